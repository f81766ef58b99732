package strategy

import (
	"errors"
	"fmt"
	"math"

	"github.com/arbovm/levenshtein"
	"github.com/google/uuid"

	"github.com/anime-shed/roi-gridview-go/internal/analyzer"
	"github.com/anime-shed/roi-gridview-go/internal/embedding"
)

// KeyFunc computes the sort key of one item. Key functions are pure.
type KeyFunc func(in Input) (Key, error)

var (
	// ErrNoPixels is returned by pixel strategies for items without metrics
	ErrNoPixels = errors.New("pixel data not loaded")
	// ErrNoReference is returned by Embedding when no reference vector was given
	ErrNoReference = errors.New("no reference vector")
)

var keyFuncs = [numKinds]KeyFunc{
	None: func(in Input) (Key, error) { return num(0), nil },
	RecordedTimestamp: func(in Input) (Key, error) {
		ts := in.Item.Metadata.RecordedTimestamp
		if ts == nil {
			// Items without a timestamp sort as the earliest instant
			return num(math.Inf(-1)), nil
		}
		return num(float64(ts.UnixMilli())), nil
	},
	AssociationID:    func(in Input) (Key, error) { return str(idString(in.Item.ID)), nil },
	ObservationID:    func(in Input) (Key, error) { return str(idString(in.Item.ObservationID)), nil },
	ImageReferenceID: func(in Input) (Key, error) { return str(idString(in.Item.ImageReferenceID)), nil },
	Label:            func(in Input) (Key, error) { return str(in.Item.Metadata.Label()), nil },
	LabelDistance: func(in Input) (Key, error) {
		return num(float64(levenshtein.Distance(in.Item.Metadata.Label(), in.Reference.Label))), nil
	},
	Observer: func(in Input) (Key, error) { return str(in.Item.Metadata.Observer), nil },
	Verifier: func(in Input) (Key, error) {
		if v := in.Item.Metadata.Verifier; v != "" {
			return str(v), nil
		}
		if v, ok := in.Item.Metadata.Data["verifier"].(string); ok {
			return str(v), nil
		}
		return str(""), nil
	},
	Confidence: func(in Input) (Key, error) {
		if c := in.Item.Metadata.Confidence; c != nil {
			return num(*c), nil
		}
		return num(dataFloat(in.Item.Metadata.Data, "confidence")), nil
	},
	Depth: func(in Input) (Key, error) {
		if d := in.Item.Metadata.DepthMeters; d != nil {
			return num(*d), nil
		}
		return num(0), nil
	},
	Width:  func(in Input) (Key, error) { return num(float64(in.Item.Region.Width)), nil },
	Height: func(in Input) (Key, error) { return num(float64(in.Item.Region.Height)), nil },
	Area:   func(in Input) (Key, error) { return num(float64(in.Item.Region.Area())), nil },

	Sharpness:          metric(func(m metrics) float64 { return m.Sharpness }),
	SharpnessLoG:       metric(func(m metrics) float64 { return m.SharpnessLoG }),
	SharpnessSobel:     metric(func(m metrics) float64 { return m.SharpnessSobel }),
	SharpnessCanny:     metric(func(m metrics) float64 { return m.SharpnessCanny }),
	SharpnessFrequency: metric(func(m metrics) float64 { return m.SharpnessFrequency }),
	Intensity:          metric(func(m metrics) float64 { return m.Intensity }),
	IntensityVariance:  metric(func(m metrics) float64 { return m.IntensityVariance }),
	HueMean:            metric(func(m metrics) float64 { return m.HueMean }),
	HueVariance:        metric(func(m metrics) float64 { return m.HueVariance }),
	HueMeanCenter:      metric(func(m metrics) float64 { return m.HueMeanCenter }),
	Embedding: func(in Input) (Key, error) {
		if in.Embedding == nil {
			return Key{}, ErrNoPixels
		}
		if len(in.Reference.Vector) == 0 {
			return Key{}, ErrNoReference
		}
		d, err := embedding.CosineDistance(in.Embedding, in.Reference.Vector)
		if err != nil {
			return Key{}, err
		}
		return num(d), nil
	},
}

// Key computes the key of k for in
func (k Kind) Key(in Input) (Key, error) {
	if !k.Valid() {
		return Key{}, fmt.Errorf("unknown sort strategy %d", int(k))
	}
	if in.Item == nil {
		return Key{}, errors.New("nil item")
	}
	return keyFuncs[k](in)
}

func num(v float64) Key { return Key{Num: v} }
func str(v string) Key  { return Key{Str: v, IsStr: true} }

type metrics = analyzer.Metrics

func metric(get func(metrics) float64) KeyFunc {
	return func(in Input) (Key, error) {
		if in.Metrics == nil {
			return Key{}, ErrNoPixels
		}
		return num(get(*in.Metrics)), nil
	}
}

func idString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

func dataFloat(data map[string]interface{}, field string) float64 {
	switch v := data[field].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

package strategy

import (
	"fmt"
	"math"
	"strings"

	"github.com/anime-shed/roi-gridview-go/internal/analyzer"
	"github.com/anime-shed/roi-gridview-go/pkg/models"
)

// Kind identifies a sort strategy. The set is closed: adding a strategy means
// adding a Kind and its key function below.
type Kind int

const (
	// None keeps insertion order
	None Kind = iota
	RecordedTimestamp
	AssociationID
	ObservationID
	ImageReferenceID
	Label
	// LabelDistance is the edit distance of the label to a reference label
	LabelDistance
	Observer
	Verifier
	Confidence
	Depth
	Width
	Height
	Area

	// Sharpness is the variance of the Laplacian of the gray region
	Sharpness
	// SharpnessLoG is Sharpness after a Gaussian blur
	SharpnessLoG
	SharpnessSobel
	// SharpnessCanny is the variance of the Canny edge map
	SharpnessCanny
	// SharpnessFrequency is the share of spectral energy at high frequencies
	SharpnessFrequency
	// Intensity is the mean channel value
	Intensity
	IntensityVariance
	HueMean
	HueVariance
	// HueMeanCenter is the mean hue of the middle third of the region
	HueMeanCenter
	// Embedding is the cosine distance of the item's embedding to a reference vector
	Embedding

	numKinds
)

var kindNames = [numKinds]string{
	None:               "none",
	RecordedTimestamp:  "recorded_timestamp",
	AssociationID:      "association_id",
	ObservationID:      "observation_id",
	ImageReferenceID:   "image_reference_id",
	Label:              "label",
	LabelDistance:      "label_distance",
	Observer:           "observer",
	Verifier:           "verifier",
	Confidence:         "confidence",
	Depth:              "depth",
	Width:              "width",
	Height:             "height",
	Area:               "area",
	Sharpness:          "sharpness",
	SharpnessLoG:       "sharpness_log",
	SharpnessSobel:     "sharpness_sobel",
	SharpnessCanny:     "sharpness_canny",
	SharpnessFrequency: "sharpness_frequency",
	Intensity:          "intensity",
	IntensityVariance:  "intensity_variance",
	HueMean:            "hue_mean",
	HueVariance:        "hue_variance",
	HueMeanCenter:      "hue_mean_center",
	Embedding:          "embedding",
}

func (k Kind) String() string {
	if k >= 0 && k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Valid reports whether k is a known strategy
func (k Kind) Valid() bool {
	return k >= 0 && k < numKinds
}

// NeedsPixels reports whether keys of k can only be computed from loaded pixel data
func (k Kind) NeedsPixels() bool {
	return k >= Sharpness && k < numKinds
}

// MarshalText implements encoding.TextMarshaler
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind parses a strategy name. Matching ignores case, and '-' or ' '
// may be used in place of '_'.
func ParseKind(name string) (Kind, error) {
	norm := strings.ToLower(strings.TrimSpace(name))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	for k, n := range kindNames {
		if n == norm {
			return Kind(k), nil
		}
	}
	return None, fmt.Errorf("unknown sort strategy %q", name)
}

// Kinds returns every strategy in declaration order
func Kinds() []Kind {
	kinds := make([]Kind, numKinds)
	for i := range kinds {
		kinds[i] = Kind(i)
	}
	return kinds
}

// Key is a sort key. Keys of one Kind are either all numeric or all strings.
type Key struct {
	Num   float64
	Str   string
	IsStr bool
}

// Compare returns -1, 0 or 1. NaN sorts after every number.
func (a Key) Compare(b Key) int {
	if a.IsStr || b.IsStr {
		return strings.Compare(a.Str, b.Str)
	}
	an, bn := math.IsNaN(a.Num), math.IsNaN(b.Num)
	switch {
	case an && bn:
		return 0
	case an:
		return 1
	case bn:
		return -1
	case a.Num < b.Num:
		return -1
	case a.Num > b.Num:
		return 1
	}
	return 0
}

// Order is Compare with the direction reversed when descending. NaN sorts
// last in both directions.
func (a Key) Order(b Key, descending bool) int {
	if !a.IsStr && !b.IsStr {
		if an, bn := math.IsNaN(a.Num), math.IsNaN(b.Num); an != bn {
			if an {
				return 1
			}
			return -1
		}
	}
	cmp := a.Compare(b)
	if descending {
		cmp = -cmp
	}
	return cmp
}

func (a Key) String() string {
	if a.IsStr {
		return a.Str
	}
	return fmt.Sprintf("%g", a.Num)
}

// Reference holds the per-sort parameters some strategies compare against
type Reference struct {
	Label  string
	Vector []float64
}

// Input is everything a key function may read for one item
type Input struct {
	Item      *models.Item
	Metrics   *analyzer.Metrics
	Embedding []float64
	Reference Reference
}

package strategy

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anime-shed/roi-gridview-go/internal/analyzer"
	"github.com/anime-shed/roi-gridview-go/pkg/models"
)

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}

	k, err := ParseKind("Hue-Mean Center")
	require.NoError(t, err)
	assert.Equal(t, HueMeanCenter, k)

	k, err = ParseKind("Sharpness-Canny")
	require.NoError(t, err)
	assert.Equal(t, SharpnessCanny, k)

	_, err = ParseKind("canny")
	assert.Error(t, err)
	assert.False(t, Kind(-1).Valid())
	assert.False(t, numKinds.Valid())
}

func TestKindText(t *testing.T) {
	var k Kind
	require.NoError(t, k.UnmarshalText([]byte("label_distance")))
	assert.Equal(t, LabelDistance, k)
	text, err := Embedding.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "embedding", string(text))
}

func TestEveryKindHasKeyFunc(t *testing.T) {
	item := &models.Item{ID: uuid.New()}
	m := &analyzer.Metrics{}
	for _, k := range Kinds() {
		assert.NotNil(t, keyFuncs[k], k.String())
		_, err := k.Key(Input{Item: item, Metrics: m, Embedding: []float64{1}, Reference: Reference{Vector: []float64{1}}})
		assert.NoError(t, err, k.String())
	}
}

func TestNeedsPixels(t *testing.T) {
	assert.False(t, Label.NeedsPixels())
	assert.False(t, Area.NeedsPixels())
	assert.True(t, Sharpness.NeedsPixels())
	assert.True(t, SharpnessFrequency.NeedsPixels())
	assert.True(t, Embedding.NeedsPixels())
}

func TestKeyCompare(t *testing.T) {
	assert.Equal(t, -1, num(1).Compare(num(2)))
	assert.Equal(t, 1, num(2).Compare(num(1)))
	assert.Equal(t, 0, num(2).Compare(num(2)))
	assert.Equal(t, -1, num(math.Inf(-1)).Compare(num(-1e300)))
	assert.Equal(t, 1, num(math.NaN()).Compare(num(math.Inf(1))))
	assert.Equal(t, 0, num(math.NaN()).Compare(num(math.NaN())))
	assert.Equal(t, -1, str("a").Compare(str("b")))
}

func TestKeyOrder(t *testing.T) {
	assert.Equal(t, 1, num(1).Order(num(2), true))
	assert.Equal(t, -1, num(1).Order(num(2), false))
	assert.Equal(t, 1, str("a").Order(str("b"), true))

	for _, descending := range []bool{false, true} {
		assert.Equal(t, 1, num(math.NaN()).Order(num(5), descending))
		assert.Equal(t, -1, num(math.Inf(-1)).Order(num(math.NaN()), descending))
		assert.Equal(t, 0, num(math.NaN()).Order(num(math.NaN()), descending))
	}
}

func TestMetadataKeys(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	conf := 0.75
	depth := 812.5
	obs := uuid.New()
	item := &models.Item{
		ID:            uuid.New(),
		ObservationID: obs,
		Region:        models.Region{X: 1, Y: 2, Width: 30, Height: 40},
		Metadata: models.Metadata{
			Concept:           "Aegina",
			Part:              "tentacle",
			Observer:          "kwalz",
			RecordedTimestamp: &ts,
			Confidence:        &conf,
			DepthMeters:       &depth,
			Data:              map[string]interface{}{"verifier": "brian"},
		},
	}
	in := Input{Item: item, Reference: Reference{Label: "Aegina"}}

	tests := []struct {
		kind Kind
		want Key
	}{
		{RecordedTimestamp, num(float64(ts.UnixMilli()))},
		{AssociationID, str(item.ID.String())},
		{ObservationID, str(obs.String())},
		{ImageReferenceID, str("")},
		{Label, str("Aegina tentacle")},
		{LabelDistance, num(9)},
		{Observer, str("kwalz")},
		{Verifier, str("brian")},
		{Confidence, num(0.75)},
		{Depth, num(812.5)},
		{Width, num(30)},
		{Height, num(40)},
		{Area, num(1200)},
		{None, num(0)},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			got, err := tt.kind.Key(in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMetadataDefaults(t *testing.T) {
	in := Input{Item: &models.Item{ID: uuid.New(), Metadata: models.Metadata{
		Data: map[string]interface{}{"confidence": 0.5},
	}}}

	ts, _ := RecordedTimestamp.Key(in)
	assert.True(t, math.IsInf(ts.Num, -1), "missing timestamp sorts as the earliest instant")
	c, _ := Confidence.Key(in)
	assert.Equal(t, 0.5, c.Num, "confidence falls back to association data")
	d, _ := Depth.Key(in)
	assert.Equal(t, 0.0, d.Num)
	v, _ := Verifier.Key(in)
	assert.Equal(t, "", v.Str)
}

func TestPixelKeys(t *testing.T) {
	item := &models.Item{ID: uuid.New()}
	_, err := Sharpness.Key(Input{Item: item})
	assert.ErrorIs(t, err, ErrNoPixels)

	m := &analyzer.Metrics{Sharpness: 1, SharpnessLoG: 2, SharpnessSobel: 3, SharpnessCanny: 4, SharpnessFrequency: 5,
		Intensity: 6, IntensityVariance: 7, HueMean: 8, HueVariance: 9, HueMeanCenter: 10}
	kinds := []Kind{Sharpness, SharpnessLoG, SharpnessSobel, SharpnessCanny, SharpnessFrequency,
		Intensity, IntensityVariance, HueMean, HueVariance, HueMeanCenter}
	for i, k := range kinds {
		got, err := k.Key(Input{Item: item, Metrics: m})
		require.NoError(t, err)
		assert.Equal(t, float64(i+1), got.Num, k.String())
	}
}

func TestEmbeddingKey(t *testing.T) {
	item := &models.Item{ID: uuid.New()}
	_, err := Embedding.Key(Input{Item: item, Reference: Reference{Vector: []float64{1, 0}}})
	assert.ErrorIs(t, err, ErrNoPixels)
	_, err = Embedding.Key(Input{Item: item, Embedding: []float64{1, 0}})
	assert.ErrorIs(t, err, ErrNoReference)

	got, err := Embedding.Key(Input{Item: item, Embedding: []float64{0, 1}, Reference: Reference{Vector: []float64{1, 0}}})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got.Num, 1e-12)
}

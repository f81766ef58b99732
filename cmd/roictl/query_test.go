package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anime-shed/roi-gridview-go/internal/registry"
	"github.com/anime-shed/roi-gridview-go/internal/sorting"
	"github.com/anime-shed/roi-gridview-go/internal/strategy"
	"github.com/anime-shed/roi-gridview-go/pkg/models"
)

const sampleQuery = `
reference_label: Aegina
reference_ids:
  - 6f1c3f7e-2b0a-4a53-9c59-0d7b8a0e4c11
items:
  - id: 6f1c3f7e-2b0a-4a53-9c59-0d7b8a0e4c11
    source_url: https://example.org/frames/0001.png
    region: {x: 10, y: 20, width: 64, height: 48}
    metadata:
      concept: Aegina
      part: tentacle
      recorded_timestamp: 2024-05-01T12:00:00Z
  - source_url: file:///data/frames/0002.png
    region: {x: 0, y: 0, width: 32, height: 32}
    scale_x: 2
    metadata:
      concept: Nanomia
`

func TestDecodeQuery(t *testing.T) {
	q, err := decodeQuery(strings.NewReader(sampleQuery))
	require.NoError(t, err)
	require.Len(t, q.Items, 2)

	first := q.Items[0]
	assert.Equal(t, uuid.MustParse("6f1c3f7e-2b0a-4a53-9c59-0d7b8a0e4c11"), first.ID)
	assert.Equal(t, models.Region{X: 10, Y: 20, Width: 64, Height: 48}, first.Region)
	assert.Equal(t, "Aegina tentacle", first.Metadata.Label())
	require.NotNil(t, first.Metadata.RecordedTimestamp)
	assert.Equal(t, 2024, first.Metadata.RecordedTimestamp.Year())

	assert.NotEqual(t, uuid.Nil, q.Items[1].ID, "missing ids are generated")
	assert.Equal(t, 2.0, q.Items[1].ScaleX)
	assert.Equal(t, "Aegina", q.ReferenceLabel)
	assert.Equal(t, []uuid.UUID{first.ID}, q.ReferenceIDs)

	items := q.items()
	require.Len(t, items, 2)
	assert.Same(t, &q.Items[0], items[0])
}

func TestDecodeQuery_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", "items: []\n"},
		{"unknown field", "items:\n  - source_url: a\n    colour: red\n"},
		{"bad id", "items:\n  - id: nope\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeQuery(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestKindsValue(t *testing.T) {
	var v kindsValue
	require.NoError(t, v.Set("label"))
	require.NoError(t, v.Set("Recorded-Timestamp, sharpness"))
	assert.Equal(t, []strategy.Kind{strategy.Label, strategy.RecordedTimestamp, strategy.Sharpness}, v.kinds)
	assert.Equal(t, "label,recorded_timestamp,sharpness", v.String())
	assert.Error(t, v.Set("canny"))
}

func TestSortRequest(t *testing.T) {
	opts := newSort(newRoot())
	opts.descending = true
	opts.reference = "Nanomia"
	require.NoError(t, opts.strategies.Set("label_distance"))

	ref := uuid.New()
	req := opts.request(&queryFile{ReferenceLabel: "Aegina", ReferenceIDs: []uuid.UUID{ref}})
	assert.Equal(t, []sorting.Criterion{{Kind: strategy.LabelDistance, Descending: true}}, req.Criteria)
	assert.Equal(t, "Nanomia", req.Reference.Label)
	assert.Equal(t, []uuid.UUID{ref}, req.ReferenceIDs)

	req = newSort(newRoot()).request(&queryFile{})
	assert.Equal(t, []sorting.Criterion{{Kind: strategy.None}}, req.Criteria)
}

func TestPrintOrdering(t *testing.T) {
	a := &models.Item{ID: uuid.New(), Metadata: models.Metadata{Concept: "Aegina"}}
	b := &models.Item{ID: uuid.New(), Metadata: models.Metadata{Concept: "Nanomia", Part: "bract"}}
	entries := []registry.Entry{
		{Item: a, State: models.Loaded, Pixels: &models.PixelData{Source: models.SourceCache}},
		{Item: b, State: models.Unloaded},
	}

	var buf bytes.Buffer
	require.NoError(t, printOrdering(&buf, sorting.Ordering{IDs: []uuid.UUID{b.ID, a.ID}}, entries))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "RANK"))
	assert.Contains(t, lines[1], b.ID.String())
	assert.Contains(t, lines[1], "Nanomia bract")
	assert.Contains(t, lines[2], "cache")
}

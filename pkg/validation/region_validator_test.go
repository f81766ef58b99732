package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/anime-shed/roi-gridview-go/internal/errors"
	"github.com/anime-shed/roi-gridview-go/pkg/models"
)

func TestClipRegion(t *testing.T) {
	tests := []struct {
		name          string
		region        models.Region
		width, height int
		want          models.Region
		warned        bool
	}{
		{
			name:   "inside",
			region: models.Region{X: 10, Y: 10, Width: 20, Height: 20},
			width:  100, height: 100,
			want: models.Region{X: 10, Y: 10, Width: 20, Height: 20},
		},
		{
			name:   "overhangs right and bottom",
			region: models.Region{X: 90, Y: 95, Width: 20, Height: 20},
			width:  100, height: 100,
			want:   models.Region{X: 90, Y: 95, Width: 10, Height: 5},
			warned: true,
		},
		{
			name:   "negative origin",
			region: models.Region{X: -5, Y: -5, Width: 10, Height: 10},
			width:  100, height: 100,
			want:   models.Region{X: 0, Y: 0, Width: 5, Height: 5},
			warned: true,
		},
		{
			name:   "unknown dimensions",
			region: models.Region{X: 5000, Y: 5000, Width: 10, Height: 10},
			want:   models.Region{X: 5000, Y: 5000, Width: 10, Height: 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, warnings, err := ClipRegion(tt.region, tt.width, tt.height)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if tt.warned {
				assert.Len(t, warnings, 1)
			} else {
				assert.Empty(t, warnings)
			}
		})
	}
}

func TestClipRegion_Invalid(t *testing.T) {
	tests := map[string]models.Region{
		"zero width":     {X: 1, Y: 1, Width: 0, Height: 10},
		"negative":       {X: 1, Y: 1, Width: 10, Height: -3},
		"fully outside":  {X: 200, Y: 200, Width: 10, Height: 10},
		"touching edge":  {X: 100, Y: 0, Width: 10, Height: 10},
		"left of origin": {X: -20, Y: 0, Width: 10, Height: 10},
	}
	for name, region := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := ClipRegion(region, 100, 100)
			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidRegion), "got %v", err)
		})
	}
}

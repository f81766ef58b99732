package models

import (
	"fmt"
	"image"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultFormat is the content-affecting tag used when an item does not carry one.
// Bump it if the cached pixel layout changes.
const DefaultFormat = "rgba"

// LoadState represents where an item is in its pixel loading lifecycle
type LoadState int

const (
	// Unloaded means no pixel data and no outstanding job
	Unloaded LoadState = iota
	// Loading means a load job is outstanding
	Loading
	// Loaded means pixel data is available
	Loaded
	// Failed means the last load attempt ended in an error
	Failed
)

var loadStateNames = map[LoadState]string{
	Unloaded: "unloaded",
	Loading:  "loading",
	Loaded:   "loaded",
	Failed:   "failed",
}

func (s LoadState) String() string {
	if name, ok := loadStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("LoadState(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler
func (s LoadState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *LoadState) UnmarshalText(text []byte) error {
	for state, name := range loadStateNames {
		if name == strings.ToLower(string(text)) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown load state %q", string(text))
}

// Region is a rectangle in source-pixel coordinates, before any scale factor is applied
type Region struct {
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Rect returns the region as an image.Rectangle
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Empty reports whether the region has zero area
func (r Region) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Area returns width*height, or zero for degenerate regions
func (r Region) Area() int {
	if r.Empty() {
		return 0
	}
	return r.Width * r.Height
}

// RegionFromRect converts an image.Rectangle back to a Region
func RegionFromRect(rect image.Rectangle) Region {
	return Region{X: rect.Min.X, Y: rect.Min.Y, Width: rect.Dx(), Height: rect.Dy()}
}

// Metadata holds the annotation fields that metadata sort strategies read
type Metadata struct {
	Concept           string                 `json:"concept" yaml:"concept"`
	Part              string                 `json:"part,omitempty" yaml:"part,omitempty"`
	Observer          string                 `json:"observer,omitempty" yaml:"observer,omitempty"`
	Verifier          string                 `json:"verifier,omitempty" yaml:"verifier,omitempty"`
	RecordedTimestamp *time.Time             `json:"recorded_timestamp,omitempty" yaml:"recorded_timestamp,omitempty"`
	Confidence        *float64               `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	DepthMeters       *float64               `json:"depth_meters,omitempty" yaml:"depth_meters,omitempty"`
	Data              map[string]interface{} `json:"data,omitempty" yaml:"data,omitempty"`
}

// Label returns the text label shown for the item: the concept, plus the part
// when it is something other than the whole organism.
func (m Metadata) Label() string {
	if m.Part == "" || m.Part == "self" {
		return m.Concept
	}
	return m.Concept + " " + m.Part
}

// Item is one reviewable region of interest
type Item struct {
	ID                uuid.UUID `json:"id" yaml:"id"`
	ObservationID     uuid.UUID `json:"observation_id" yaml:"observation_id"`
	ImageReferenceID  uuid.UUID `json:"image_reference_id,omitempty" yaml:"image_reference_id,omitempty"`
	SourceURL         string    `json:"source_url" yaml:"source_url"`
	ElapsedTimeMillis *int64    `json:"elapsed_time_millis,omitempty" yaml:"elapsed_time_millis,omitempty"`
	Region            Region    `json:"region" yaml:"region"`
	ImageWidth        int       `json:"image_width,omitempty" yaml:"image_width,omitempty"`
	ImageHeight       int       `json:"image_height,omitempty" yaml:"image_height,omitempty"`
	ScaleX            float64   `json:"scale_x,omitempty" yaml:"scale_x,omitempty"`
	ScaleY            float64   `json:"scale_y,omitempty" yaml:"scale_y,omitempty"`
	Format            string    `json:"format,omitempty" yaml:"format,omitempty"`
	Metadata          Metadata  `json:"metadata" yaml:"metadata"`
}

// Scale returns the source-to-proxy scale factors, treating unset values as 1
func (it *Item) Scale() (float64, float64) {
	sx, sy := it.ScaleX, it.ScaleY
	if sx <= 0 || math.IsNaN(sx) || math.IsInf(sx, 0) {
		sx = 1
	}
	if sy <= 0 || math.IsNaN(sy) || math.IsInf(sy, 0) {
		sy = 1
	}
	return sx, sy
}

// FormatTag returns the content-affecting version tag for cache keys
func (it *Item) FormatTag() string {
	if it.Format == "" {
		return DefaultFormat
	}
	return it.Format
}

// ToProxy converts a rectangle in source coordinates to the coordinates of
// the (possibly lower resolution) media the crop service serves.
func (it *Item) ToProxy(rect image.Rectangle) image.Rectangle {
	sx, sy := it.Scale()
	return image.Rect(
		int(math.Round(float64(rect.Min.X)/sx)),
		int(math.Round(float64(rect.Min.Y)/sy)),
		int(math.Round(float64(rect.Max.X)/sx)),
		int(math.Round(float64(rect.Max.Y)/sy)),
	)
}

// PixelSource records where a PixelData came from
type PixelSource string

const (
	SourceCache     PixelSource = "cache"
	SourceCrop      PixelSource = "crop_service"
	SourceLocalCrop PixelSource = "local_crop"
)

// PixelData is the decoded region for one item, at annotated (source) resolution
type PixelData struct {
	Image    *image.NRGBA
	Region   Region
	Source   PixelSource
	Warnings []string
}

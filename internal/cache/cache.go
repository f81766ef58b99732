package cache

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/anime-shed/roi-gridview-go/pkg/models"
)

// ErrNotCached is returned on a miss. A corrupt entry also reads as a miss.
var ErrNotCached = errors.New("not cached")

type Reader interface {
	// Get returns the value at a key and when it was inserted
	Get(k Keyer) ([]byte, time.Time, error)
}

type Writer interface {
	// Put stores a value; writing identical bytes again is a no-op
	Put(k Keyer, v []byte) error
}

// Store is a size-bounded key to bytes store with least-recently-used eviction.
// Implementations are safe for concurrent use.
type Store interface {
	Reader
	Writer
	Remove(k Keyer)
	// EvictIfNeeded drops least recently used entries until the store is within budget
	EvictIfNeeded()
	Clear() error
	Size() int64
	Len() int
}

// An interface to provide the key under which to store the data
type Keyer interface {
	Key() string
}

// StringKey is a Keyer for callers that already hold a key
type StringKey string

func (k StringKey) Key() string {
	return string(k)
}

type regionKey struct {
	digest digest.Digest
}

// NewRegionKey derives the canonical cache key of an item: a digest over its
// source reference, region, scale factors, format tag and frame offset.
// Identical inputs always produce the same key.
func NewRegionKey(item *models.Item) Keyer {
	sx, sy := item.Scale()
	elapsed := "-"
	if item.ElapsedTimeMillis != nil {
		elapsed = strconv.FormatInt(*item.ElapsedTimeMillis, 10)
	}
	r := item.Region
	canonical := strings.Join([]string{
		"roipixelsv1", // Bump the version number if the cache format changes
		item.SourceURL,
		strconv.Itoa(r.X), strconv.Itoa(r.Y), strconv.Itoa(r.Width), strconv.Itoa(r.Height),
		strconv.FormatFloat(sx, 'g', -1, 64), strconv.FormatFloat(sy, 'g', -1, 64),
		item.FormatTag(),
		elapsed,
	}, "|")
	return &regionKey{digest: digest.FromString(canonical)}
}

func (k *regionKey) Key() string {
	return k.digest.String()
}

package sorting

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/roi-gridview-go/internal/analyzer"
	"github.com/anime-shed/roi-gridview-go/internal/embedding"
	apperrors "github.com/anime-shed/roi-gridview-go/internal/errors"
	"github.com/anime-shed/roi-gridview-go/internal/registry"
	"github.com/anime-shed/roi-gridview-go/internal/strategy"
	"github.com/anime-shed/roi-gridview-go/pkg/models"
)

// ErrExtractorUnavailable is returned by Sort for the embedding strategy when
// no working extractor is configured. No substitute order is produced.
var ErrExtractorUnavailable = embedding.ErrExtractorUnavailable

// Loader requests pixel loads; the scheduler implements it
type Loader interface {
	RequestLoad(items []*models.Item) int
}

// Criterion is one key of a sort
type Criterion struct {
	Kind       strategy.Kind
	Descending bool
}

// Request describes one ordering pass
type Request struct {
	Criteria []Criterion
	// Reference holds the reference label and, for Embedding, an explicit reference vector
	Reference strategy.Reference
	// ReferenceIDs selects items whose embedding centroid is the reference
	// when no vector is given
	ReferenceIDs []uuid.UUID
}

// Ordering is the result of a sort. IDs lists orderable items: keyed items in
// key order, then items whose key could not be computed. Pending items are
// waiting for pixel data and are left out of IDs.
type Ordering struct {
	Epoch       uint64
	IDs         []uuid.UUID
	Pending     []uuid.UUID
	Failed      []uuid.UUID
	Unavailable []uuid.UUID
}

type cached struct {
	generation uint64
	metrics    *analyzer.Metrics
	embedding  []float64
	embedErr   error
}

// Sorter computes orderings of the registry. Pixel derived values are cached
// per item generation and dropped when the registry epoch changes.
type Sorter struct {
	registry  *registry.Registry
	loader    Loader
	calc      analyzer.MetricsCalculator
	extractor *embedding.Handle
	logger    logrus.FieldLogger

	mu    sync.Mutex
	epoch uint64
	cache map[uuid.UUID]*cached
}

// New creates a sorter. extractor may be an unavailable handle.
func New(reg *registry.Registry, loader Loader, calc analyzer.MetricsCalculator, extractor *embedding.Handle, logger logrus.FieldLogger) *Sorter {
	return &Sorter{
		registry:  reg,
		loader:    loader,
		calc:      calc,
		extractor: extractor,
		logger:    logger,
		cache:     map[uuid.UUID]*cached{},
	}
}

type row struct {
	entry registry.Entry
	keys  []strategy.Key
}

// Sort orders the current registry. Under a pixel strategy, Unloaded items
// are requested through the loader and reported pending; Failed items go
// last in insertion order.
func (s *Sorter) Sort(req Request) (Ordering, error) {
	start := time.Now()
	criteria := req.Criteria
	if len(criteria) == 0 {
		criteria = []Criterion{{Kind: strategy.None}}
	}
	needPixels, needEmbedding := false, false
	for _, c := range criteria {
		if !c.Kind.Valid() {
			return Ordering{}, apperrors.NewValidationError(fmt.Sprintf("unknown sort strategy %d", int(c.Kind)), nil)
		}
		needPixels = needPixels || c.Kind.NeedsPixels()
		needEmbedding = needEmbedding || c.Kind == strategy.Embedding
	}
	if needEmbedding {
		if err := s.extractor.Available(); err != nil {
			return Ordering{}, err
		}
	}

	entries, epoch := s.registry.Ordered()
	s.resetIfStale(epoch)
	out := Ordering{Epoch: epoch}

	reference := req.Reference
	if needEmbedding && len(reference.Vector) == 0 {
		vector, waiting, err := s.centroid(req.ReferenceIDs)
		if err != nil {
			return Ordering{}, err
		}
		if len(waiting) > 0 {
			// Nothing can be keyed until the reference resolves
			for _, e := range entries {
				out.Pending = append(out.Pending, e.Item.ID)
			}
			s.loader.RequestLoad(waiting)
			return out, nil
		}
		reference.Vector = vector
	} else if len(reference.Vector) > 0 {
		reference.Vector = embedding.Normalize(reference.Vector)
	}

	rows := make([]row, 0, len(entries))
	var toLoad []*models.Item
	var unavailable []uuid.UUID
	for _, e := range entries {
		in := strategy.Input{Item: e.Item, Reference: reference}
		if needPixels {
			switch e.State {
			case models.Unloaded:
				toLoad = append(toLoad, e.Item)
				out.Pending = append(out.Pending, e.Item.ID)
				continue
			case models.Loading:
				out.Pending = append(out.Pending, e.Item.ID)
				continue
			case models.Failed:
				out.Failed = append(out.Failed, e.Item.ID)
				continue
			}
			c := s.derive(e, needEmbedding)
			in.Metrics = c.metrics
			in.Embedding = c.embedding
		}

		keys, err := keysOf(criteria, in)
		if err != nil {
			s.logger.WithField("item_id", e.Item.ID).WithError(err).Debug("Sort key unavailable")
			unavailable = append(unavailable, e.Item.ID)
			continue
		}
		rows = append(rows, row{entry: e, keys: keys})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		for k, c := range criteria {
			if cmp := rows[i].keys[k].Order(rows[j].keys[k], c.Descending); cmp != 0 {
				return cmp < 0
			}
		}
		return rows[i].entry.Index < rows[j].entry.Index
	})

	out.IDs = make([]uuid.UUID, 0, len(rows)+len(out.Failed)+len(unavailable))
	for _, r := range rows {
		out.IDs = append(out.IDs, r.entry.Item.ID)
	}
	out.IDs = append(out.IDs, out.Failed...)
	out.IDs = append(out.IDs, unavailable...)
	out.Unavailable = unavailable

	if len(toLoad) > 0 {
		s.loader.RequestLoad(toLoad)
	}
	observeSort(criteria[0].Kind, time.Since(start))
	s.logger.WithFields(logrus.Fields{
		"strategy": criteria[0].Kind,
		"epoch":    epoch,
		"ordered":  len(out.IDs),
		"pending":  len(out.Pending),
		"failed":   len(out.Failed),
	}).Debug("Computed ordering")
	return out, nil
}

func keysOf(criteria []Criterion, in strategy.Input) ([]strategy.Key, error) {
	keys := make([]strategy.Key, len(criteria))
	for i, c := range criteria {
		k, err := c.Kind.Key(in)
		if err != nil {
			return nil, err
		}
		keys[i] = k
	}
	return keys, nil
}

// centroid returns the reference vector for ids, or the items that must load first
func (s *Sorter) centroid(ids []uuid.UUID) ([]float64, []*models.Item, error) {
	if len(ids) == 0 {
		return nil, nil, apperrors.NewValidationError("embedding sort needs a reference vector or reference items", strategy.ErrNoReference)
	}
	var vectors [][]float64
	var waiting []*models.Item
	for _, id := range ids {
		e, ok := s.registry.Get(id)
		if !ok {
			return nil, nil, apperrors.NewNotFoundError(fmt.Sprintf("reference item %s not found", id), nil)
		}
		switch e.State {
		case models.Loaded:
		case models.Failed:
			return nil, nil, apperrors.NewValidationError(fmt.Sprintf("reference item %s failed to load", id), e.Err)
		default:
			waiting = append(waiting, e.Item)
			continue
		}
		c := s.derive(e, true)
		if c.embedErr != nil {
			return nil, nil, c.embedErr
		}
		if c.embedding == nil {
			return nil, nil, apperrors.NewInternalError(fmt.Sprintf("reference item %s has no pixel data", id), nil)
		}
		vectors = append(vectors, c.embedding)
	}
	if len(waiting) > 0 {
		return nil, waiting, nil
	}
	v, err := embedding.Centroid(vectors)
	if err != nil {
		return nil, nil, apperrors.NewInternalError("reference centroid", err)
	}
	return v, nil, nil
}

// derive returns the pixel derived values of a Loaded entry, computing what
// is missing for its generation
func (s *Sorter) derive(e registry.Entry, withEmbedding bool) *cached {
	s.mu.Lock()
	c, ok := s.cache[e.Item.ID]
	if !ok || c.generation != e.Generation {
		c = &cached{generation: e.Generation}
		s.cache[e.Item.ID] = c
	}
	s.mu.Unlock()

	if e.Pixels == nil || e.Pixels.Image == nil {
		return &cached{generation: e.Generation}
	}
	// Computed outside the lock; concurrent passes may both compute a value.
	s.mu.Lock()
	haveMetrics := c.metrics != nil
	haveEmbedding := c.embedding != nil || c.embedErr != nil
	s.mu.Unlock()

	var metrics *analyzer.Metrics
	if !haveMetrics {
		m := s.calc.Compute(e.Pixels.Image)
		metrics = &m
	}
	var vector []float64
	var embedErr error
	if withEmbedding && !haveEmbedding {
		vector, embedErr = s.extractor.Embed(e.Pixels.Image)
		if embedErr != nil && !errors.Is(embedErr, ErrExtractorUnavailable) {
			s.logger.WithField("item_id", e.Item.ID).WithError(embedErr).Warn("Embedding failed")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if metrics != nil {
		c.metrics = metrics
	}
	if withEmbedding && !haveEmbedding {
		c.embedding, c.embedErr = vector, embedErr
	}
	return &cached{generation: c.generation, metrics: c.metrics, embedding: c.embedding, embedErr: c.embedErr}
}

func (s *Sorter) resetIfStale(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		s.epoch = epoch
		s.cache = map[uuid.UUID]*cached{}
	}
}

// Forget drops cached values of one item
func (s *Sorter) Forget(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, id)
}

package service

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/roi-gridview-go/internal/cache"
	apperrors "github.com/anime-shed/roi-gridview-go/internal/errors"
	"github.com/anime-shed/roi-gridview-go/internal/observer"
	"github.com/anime-shed/roi-gridview-go/internal/registry"
	"github.com/anime-shed/roi-gridview-go/internal/scheduler"
	"github.com/anime-shed/roi-gridview-go/internal/sorting"
	"github.com/anime-shed/roi-gridview-go/pkg/models"
	"github.com/anime-shed/roi-gridview-go/pkg/validation"
)

// Consumer receives item state changes and orderings that became ready after
// their pending keys resolved. Callbacks arrive in the order transitions were
// applied, from a single goroutine, and must not block for long.
type Consumer interface {
	OnItemStateChanged(id uuid.UUID, state models.LoadState, err error)
	OnOrderingReady(ids []uuid.UUID)
}

// GridService is the engine facade used by the transport and the CLI
type GridService interface {
	// Replace swaps in the records of a new query, cancelling all outstanding loads
	Replace(items []*models.Item) (uint64, error)
	Items() ([]registry.Entry, uint64)
	// Load requests pixel data; no ids means every item
	Load(ids []uuid.UUID) (int, error)
	// Reload re-arms Failed items; no ids means every Failed item
	Reload(ids []uuid.UUID) (int, error)
	Delete(id uuid.UUID) error
	Sort(req sorting.Request) (sorting.Ordering, error)
	// Thumbnail encodes the loaded pixels of an item as PNG, scaled to fit the box
	Thumbnail(id uuid.UUID, maxWidth, maxHeight int) ([]byte, error)
	ClearCache() error
	Subscribe(c Consumer) (unsubscribe func())
	// Wait blocks until no load is outstanding and every callback has run
	Wait(ctx context.Context) error
	Close()
}

type activeSort struct {
	req     sorting.Request
	epoch   uint64
	pending map[uuid.UUID]struct{}
}

type gridService struct {
	registry  *registry.Registry
	scheduler *scheduler.Scheduler
	sorter    *sorting.Sorter
	store     cache.Store
	events    *observer.EventPublisher
	validator *validation.URLValidator
	logger    logrus.FieldLogger

	mu        sync.Mutex
	consumers map[int]Consumer
	nextID    int
	active    *activeSort
}

// NewGridService wires the engine parts together. The registry's replace hook
// is taken over to cancel the previous set's loads.
func NewGridService(
	reg *registry.Registry,
	sched *scheduler.Scheduler,
	sorter *sorting.Sorter,
	store cache.Store,
	events *observer.EventPublisher,
	validator *validation.URLValidator,
	logger logrus.FieldLogger,
) GridService {
	s := &gridService{
		registry:  reg,
		scheduler: sched,
		sorter:    sorter,
		store:     store,
		events:    events,
		validator: validator,
		logger:    logger,
		consumers: map[int]Consumer{},
	}
	reg.OnReplace(sched.CancelAll)
	sched.Subscribe(&consumerBridge{service: s})
	return s
}

func (s *gridService) Replace(items []*models.Item) (uint64, error) {
	for i, item := range items {
		if err := s.validator.ValidateItem(item); err != nil {
			return 0, fmt.Errorf("item %d: %w", i, err)
		}
	}
	epoch, err := s.registry.Replace(items)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.active = nil
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"epoch": epoch,
		"items": len(items),
	}).Info("Registry replaced")
	return epoch, nil
}

func (s *gridService) Items() ([]registry.Entry, uint64) {
	return s.registry.Ordered()
}

func (s *gridService) Load(ids []uuid.UUID) (int, error) {
	items, err := s.selectItems(ids, nil)
	if err != nil {
		return 0, err
	}
	return s.scheduler.RequestLoad(items), nil
}

func (s *gridService) Reload(ids []uuid.UUID) (int, error) {
	failed := func(e registry.Entry) bool { return e.State == models.Failed }
	items, err := s.selectItems(ids, failed)
	if err != nil {
		return 0, err
	}
	n := s.scheduler.RequestLoad(items)
	s.logger.WithField("requeued", n).Info("Reloading failed items")
	return n, nil
}

// selectItems resolves ids to items in request order, or every entry passing
// keep when ids is empty. Unknown ids are an error; entries failing keep are skipped.
func (s *gridService) selectItems(ids []uuid.UUID, keep func(registry.Entry) bool) ([]*models.Item, error) {
	var items []*models.Item
	if len(ids) == 0 {
		entries, _ := s.registry.Ordered()
		for _, e := range entries {
			if keep == nil || keep(e) {
				items = append(items, e.Item)
			}
		}
		return items, nil
	}
	for _, id := range ids {
		e, ok := s.registry.Get(id)
		if !ok {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("item %s not found", id), nil)
		}
		if keep == nil || keep(e) {
			items = append(items, e.Item)
		}
	}
	return items, nil
}

func (s *gridService) Delete(id uuid.UUID) error {
	if _, ok := s.registry.Get(id); !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("item %s not found", id), nil)
	}
	s.scheduler.Cancel(id)
	if !s.registry.Delete(id) {
		return apperrors.NewNotFoundError(fmt.Sprintf("item %s not found", id), nil)
	}
	s.sorter.Forget(id)

	s.mu.Lock()
	var ready *activeSort
	if s.active != nil {
		delete(s.active.pending, id)
		if len(s.active.pending) == 0 {
			ready = s.active
		}
	}
	s.mu.Unlock()
	if ready != nil {
		s.recompute(ready)
	}
	return nil
}

func (s *gridService) Sort(req sorting.Request) (sorting.Ordering, error) {
	out, err := s.sorter.Sort(req)
	if err != nil {
		return sorting.Ordering{}, err
	}

	s.mu.Lock()
	if len(out.Pending) == 0 {
		s.active = nil
		s.mu.Unlock()
		return out, nil
	}
	active := &activeSort{req: req, epoch: out.Epoch, pending: s.unsettled(out.Pending)}
	s.active = active
	s.mu.Unlock()

	if len(active.pending) == 0 {
		s.recompute(active)
	}
	return out, nil
}

// unsettled keeps the ids that are Loading. Items may have settled after the
// sorter looked at them, and their events may already be delivered. Items the
// sorter reported pending without requesting stay Unloaded and produce no
// event, so the next pass requests them.
func (s *gridService) unsettled(ids []uuid.UUID) map[uuid.UUID]struct{} {
	pending := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if state, ok := s.registry.State(id); ok && state == models.Loading {
			pending[id] = struct{}{}
		}
	}
	return pending
}

// resolve is called for every applied transition
func (s *gridService) resolve(event observer.StateEvent) {
	if event.EventType == observer.LoadStarted {
		return
	}
	s.mu.Lock()
	active := s.active
	if active == nil {
		s.mu.Unlock()
		return
	}
	if _, ok := active.pending[event.ItemID]; !ok {
		s.mu.Unlock()
		return
	}
	delete(active.pending, event.ItemID)
	done := len(active.pending) == 0
	s.mu.Unlock()

	if done {
		s.recompute(active)
	}
}

// maxResorts bounds the passes of one recompute in which nothing new starts loading
const maxResorts = 3

// recompute re-runs a sort whose pending keys all resolved. Consumers get the
// ordering once nothing is pending; a pass that queued more loads waits for
// them. A sort of an earlier epoch is dropped.
func (s *gridService) recompute(active *activeSort) {
	for pass := 0; pass < maxResorts; pass++ {
		if s.registry.Epoch() != active.epoch {
			return
		}
		out, err := s.sorter.Sort(active.req)
		if err != nil {
			s.logger.WithError(err).Warn("Recomputing ordering failed")
			return
		}

		s.mu.Lock()
		if s.active != active {
			s.mu.Unlock()
			return
		}
		if len(out.Pending) > 0 {
			// Embedding sorts resolve their reference first, then the items
			active.pending = s.unsettled(out.Pending)
			waiting := len(active.pending)
			s.mu.Unlock()
			if waiting > 0 {
				s.logger.WithFields(logrus.Fields{
					"epoch":   out.Epoch,
					"pending": waiting,
				}).Debug("Ordering waits for more loads")
				return
			}
			continue
		}
		s.active = nil
		consumers := s.snapshotConsumers()
		s.mu.Unlock()

		s.logger.WithFields(logrus.Fields{
			"epoch":   out.Epoch,
			"ordered": len(out.IDs),
			"failed":  len(out.Failed),
		}).Debug("Ordering ready")
		for _, c := range consumers {
			c.OnOrderingReady(out.IDs)
		}
		return
	}

	s.mu.Lock()
	if s.active == active {
		s.active = nil
	}
	s.mu.Unlock()
	s.logger.WithField("epoch", active.epoch).Warn("Ordering abandoned, pending items are not loading")
}

func (s *gridService) Thumbnail(id uuid.UUID, maxWidth, maxHeight int) ([]byte, error) {
	if maxWidth <= 0 || maxHeight <= 0 {
		return nil, apperrors.NewValidationError("thumbnail size must be positive", nil)
	}
	e, ok := s.registry.Get(id)
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("item %s not found", id), nil)
	}
	if e.State != models.Loaded || e.Pixels == nil || e.Pixels.Image == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("item %s is %s", id, e.State), nil)
	}
	thumb := imaging.Fit(e.Pixels.Image, maxWidth, maxHeight, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.PNG); err != nil {
		return nil, apperrors.NewInternalError("failed to encode thumbnail", err)
	}
	return buf.Bytes(), nil
}

func (s *gridService) ClearCache() error {
	n := s.store.Len()
	if err := s.store.Clear(); err != nil {
		return apperrors.NewCacheIOError("failed to clear cache", err)
	}
	s.logger.WithField("entries", n).Info("Cache cleared")
	return nil
}

func (s *gridService) Subscribe(c Consumer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.consumers[id] = c
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.consumers, id)
	}
}

func (s *gridService) snapshotConsumers() []Consumer {
	out := make([]Consumer, 0, len(s.consumers))
	for i := 0; i < s.nextID; i++ {
		if c, ok := s.consumers[i]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (s *gridService) Wait(ctx context.Context) error {
	// Callbacks may queue more loads, e.g. once an embedding reference resolves
	for {
		if err := s.scheduler.Wait(ctx); err != nil {
			return err
		}
		s.events.Flush()
		if s.scheduler.Outstanding() == 0 {
			return nil
		}
	}
}

func (s *gridService) Close() {
	s.scheduler.Close()
	s.events.Close()
}

// consumerBridge forwards scheduler events to consumers
type consumerBridge struct {
	service *gridService
}

func (b *consumerBridge) OnEvent(ctx context.Context, event observer.StateEvent) {
	b.service.mu.Lock()
	consumers := b.service.snapshotConsumers()
	b.service.mu.Unlock()

	for _, c := range consumers {
		c.OnItemStateChanged(event.ItemID, event.State, event.Err)
	}
	b.service.resolve(event)
}

func (b *consumerBridge) GetObserverName() string {
	return "grid_consumer_bridge"
}

package registry

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	apperrors "github.com/anime-shed/roi-gridview-go/internal/errors"
	"github.com/anime-shed/roi-gridview-go/pkg/models"
)

// Entry is a point-in-time copy of one item's registry record
type Entry struct {
	Item       *models.Item
	Index      int
	State      models.LoadState
	Generation uint64
	Pixels     *models.PixelData
	Err        error
}

type record struct {
	item       *models.Item
	index      int
	state      models.LoadState
	generation uint64
	pixels     *models.PixelData
	err        error
}

func (r *record) snapshot() Entry {
	return Entry{
		Item:       r.item,
		Index:      r.index,
		State:      r.state,
		Generation: r.generation,
		Pixels:     r.pixels,
		Err:        r.err,
	}
}

// Registry holds the ordered item set of the active query. Every state
// change goes through one mutex, and each load attempt is stamped with a
// generation so a late result from an abandoned attempt is never applied.
type Registry struct {
	mu         sync.RWMutex
	epoch      uint64
	generation uint64
	order      []uuid.UUID
	records    map[uuid.UUID]*record
	onReplace  func()
}

func New() *Registry {
	return &Registry{records: map[uuid.UUID]*record{}}
}

// OnReplace installs the hook run after every Replace. The engine uses it
// to cancel the jobs of the previous item set.
func (r *Registry) OnReplace(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onReplace = fn
}

// Replace swaps in a new item set, all Unloaded, and returns its epoch.
// Duplicate identifiers reject the whole set and leave the registry as it was.
func (r *Registry) Replace(items []*models.Item) (uint64, error) {
	order := make([]uuid.UUID, 0, len(items))
	records := make(map[uuid.UUID]*record, len(items))
	for i, item := range items {
		if item == nil {
			return 0, apperrors.NewValidationError(fmt.Sprintf("item %d is nil", i), nil)
		}
		if _, dup := records[item.ID]; dup {
			return 0, apperrors.NewValidationError(fmt.Sprintf("duplicate item id %s", item.ID), nil)
		}
		records[item.ID] = &record{item: item, index: i, state: models.Unloaded}
		order = append(order, item.ID)
	}

	r.mu.Lock()
	r.epoch++
	epoch := r.epoch
	// New records start at a fresh generation so nothing from the old set matches.
	r.generation++
	for _, rec := range records {
		rec.generation = r.generation
	}
	r.order = order
	r.records = records
	hook := r.onReplace
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	return epoch, nil
}

// Epoch identifies the current item set; it changes on every Replace
func (r *Registry) Epoch() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.epoch
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Ordered returns every entry in insertion order, with the epoch they belong to
func (r *Registry) Ordered() ([]Entry, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		entries = append(entries, r.records[id].snapshot())
	}
	return entries, r.epoch
}

func (r *Registry) Get(id uuid.UUID) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return Entry{}, false
	}
	return rec.snapshot(), true
}

func (r *Registry) State(id uuid.UUID) (models.LoadState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return models.Unloaded, false
	}
	return rec.state, true
}

// Mark forces an item into Unloaded or Failed, invalidating any attempt in
// flight. Loading and Loaded are only reachable through Begin and Complete.
func (r *Registry) Mark(id uuid.UUID, state models.LoadState, err error) (uint64, bool) {
	if state != models.Unloaded && state != models.Failed {
		return 0, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return 0, false
	}
	r.generation++
	rec.generation = r.generation
	rec.state = state
	rec.pixels = nil
	rec.err = err
	return rec.generation, true
}

// Begin moves an item to Loading under a new generation. Loaded items are
// left alone; a Loading item is restarted, superseding its current attempt.
func (r *Registry) Begin(id uuid.UUID) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.state == models.Loaded {
		return 0, false
	}
	r.generation++
	rec.generation = r.generation
	rec.state = models.Loading
	rec.err = nil
	return rec.generation, true
}

// Complete applies the outcome of the attempt stamped with generation. It is
// discarded, returning false, if the item is gone, has moved on to a newer
// attempt, or is no longer Loading.
func (r *Registry) Complete(id uuid.UUID, generation uint64, pixels *models.PixelData, err error) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.generation != generation || rec.state != models.Loading {
		return Entry{}, false
	}
	if err != nil {
		rec.state = models.Failed
		rec.pixels = nil
		rec.err = err
	} else {
		rec.state = models.Loaded
		rec.pixels = pixels
		rec.err = nil
	}
	return rec.snapshot(), true
}

// Reset returns a Loading item to Unloaded if generation is still current
func (r *Registry) Reset(id uuid.UUID, generation uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.generation != generation || rec.state != models.Loading {
		return false
	}
	r.generation++
	rec.generation = r.generation
	rec.state = models.Unloaded
	return true
}

// ResetLoading returns every Loading item to Unloaded and reports which ones
func (r *Registry) ResetLoading() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	var reset []uuid.UUID
	for _, id := range r.order {
		rec := r.records[id]
		if rec.state != models.Loading {
			continue
		}
		r.generation++
		rec.generation = r.generation
		rec.state = models.Unloaded
		reset = append(reset, id)
	}
	return reset
}

// Delete removes one item; the caller cancels its job
func (r *Registry) Delete(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return false
	}
	delete(r.records, id)
	for i, other := range r.order {
		if other == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

package scheduler

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/roi-gridview-go/internal/fetcher"
	"github.com/anime-shed/roi-gridview-go/internal/observer"
	"github.com/anime-shed/roi-gridview-go/internal/registry"
	"github.com/anime-shed/roi-gridview-go/pkg/models"
)

// Options configures a Scheduler
type Options struct {
	// Workers bounds concurrent fetches; <= 0 means runtime.NumCPU()
	Workers int
	// FetchTimeout bounds each fetch; <= 0 means no timeout beyond the fetcher's own
	FetchTimeout time.Duration
}

type job struct {
	item       *models.Item
	generation uint64
	ctx        context.Context
	cancel     context.CancelFunc
	started    time.Time
}

// Scheduler runs fetch jobs on a bounded worker pool. Jobs are dispatched in
// submission order; each item has at most one outstanding job, and all load
// state transitions are applied, and their events published, under one lock
// so observers see them in the order they happened.
type Scheduler struct {
	fetcher  fetcher.Interface
	registry *registry.Registry
	events   *observer.EventPublisher
	logger   logrus.FieldLogger
	timeout  time.Duration
	workers  int

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*job
	jobs   map[uuid.UUID]*job
	idle   chan struct{}
	closed bool

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a scheduler and starts its workers
func New(f fetcher.Interface, reg *registry.Registry, events *observer.EventPublisher, opts Options, logger logrus.FieldLogger) *Scheduler {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	idle := make(chan struct{})
	close(idle)
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		fetcher:    f,
		registry:   reg,
		events:     events,
		logger:     logger,
		timeout:    opts.FetchTimeout,
		workers:    workers,
		jobs:       map[uuid.UUID]*job{},
		idle:       idle,
		baseCtx:    ctx,
		baseCancel: cancel,
	}
	s.cond = sync.NewCond(&s.mu)
	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.worker()
	}
	return s
}

// Workers returns the concurrency bound
func (s *Scheduler) Workers() int {
	return s.workers
}

// Subscribe registers an observer for state events
func (s *Scheduler) Subscribe(o observer.Observer) {
	s.events.Subscribe(o)
}

// Unsubscribe removes an observer
func (s *Scheduler) Unsubscribe(o observer.Observer) {
	s.events.Unsubscribe(o)
}

// RequestLoad queues a job for each item, in the order given, and returns
// how many were queued. It never blocks on fetching. Loaded items and items
// not in the registry are skipped; an item that already has a job gets a new
// one and the old one is cancelled.
func (s *Scheduler) RequestLoad(items []*models.Item) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}

	queued := 0
	for _, item := range items {
		if item == nil {
			continue
		}
		generation, ok := s.registry.Begin(item.ID)
		if !ok {
			continue
		}
		if old, ok := s.jobs[item.ID]; ok {
			old.cancel()
		}
		ctx, cancel := context.WithCancel(s.baseCtx)
		j := &job{item: item, generation: generation, ctx: ctx, cancel: cancel}
		s.addJobLocked(j)
		s.queue = append(s.queue, j)
		s.publishLocked(observer.StateEvent{
			EventType:  observer.LoadStarted,
			ItemID:     item.ID,
			State:      models.Loading,
			Generation: generation,
		})
		queued++
	}
	if queued > 0 {
		s.cond.Broadcast()
	}
	return queued
}

// Cancel abandons the job of one item, returning it to Unloaded
func (s *Scheduler) Cancel(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return
	}
	j.cancel()
	if s.registry.Reset(id, j.generation) {
		s.publishCancelledLocked(id)
	}
	s.removeJobLocked(id)
}

// CancelAll abandons every outstanding job. Items that were Loading go back
// to Unloaded; Loaded and Failed items keep their state.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelAllLocked()
}

// cancelAllLocked publishes before dropping the jobs so that Wait returning
// implies every event is queued.
func (s *Scheduler) cancelAllLocked() {
	for _, j := range s.jobs {
		j.cancel()
	}
	s.queue = nil
	for _, id := range s.registry.ResetLoading() {
		s.publishCancelledLocked(id)
	}
	for id := range s.jobs {
		s.removeJobLocked(id)
	}
}

// Outstanding returns the number of queued or running jobs
func (s *Scheduler) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Wait blocks until no job is outstanding or ctx is done
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels everything and stops the workers
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.cancelAllLocked()
	s.closed = true
	s.baseCancel()
	s.cond.Broadcast()
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for {
		j, ok := s.next()
		if !ok {
			return
		}
		s.run(j)
	}
}

// next pops the oldest job that is still current
func (s *Scheduler) next() (*job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			return nil, false
		}
		j := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		if s.jobs[j.item.ID] != j {
			// Superseded or cancelled while queued.
			continue
		}
		j.started = time.Now()
		return j, true
	}
}

func (s *Scheduler) run(j *job) {
	ctx := j.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	pixels, err := s.fetcher.Fetch(ctx, j.item)
	s.complete(j, pixels, err)
}

func (s *Scheduler) complete(j *job, pixels *models.PixelData, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := j.item.ID
	defer func() {
		if s.jobs[id] == j {
			s.removeJobLocked(id)
		}
	}()
	// Whoever cancelled the job already settled the item's state.
	if j.ctx.Err() != nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		if s.registry.Reset(id, j.generation) {
			s.publishCancelledLocked(id)
		}
		return
	}

	entry, applied := s.registry.Complete(id, j.generation, pixels, err)
	if !applied {
		s.logger.WithField("item_id", id).WithField("generation", j.generation).
			Debug("Discarding stale load result")
		return
	}
	event := observer.StateEvent{
		EventType:  observer.LoadSucceeded,
		ItemID:     id,
		State:      entry.State,
		Generation: j.generation,
		Duration:   time.Since(j.started),
		Err:        err,
	}
	if err != nil {
		event.EventType = observer.LoadFailed
	} else if pixels != nil {
		event.Source = pixels.Source
		event.Warnings = pixels.Warnings
	}
	s.publishLocked(event)
}

func (s *Scheduler) addJobLocked(j *job) {
	if len(s.jobs) == 0 {
		s.idle = make(chan struct{})
	}
	s.jobs[j.item.ID] = j
}

func (s *Scheduler) removeJobLocked(id uuid.UUID) {
	if _, ok := s.jobs[id]; !ok {
		return
	}
	delete(s.jobs, id)
	if len(s.jobs) == 0 {
		close(s.idle)
	}
}

func (s *Scheduler) publishCancelledLocked(id uuid.UUID) {
	entry, _ := s.registry.Get(id)
	s.publishLocked(observer.StateEvent{
		EventType:  observer.LoadCancelled,
		ItemID:     id,
		State:      entry.State,
		Generation: entry.Generation,
	})
}

func (s *Scheduler) publishLocked(event observer.StateEvent) {
	event.Timestamp = time.Now()
	s.events.NotifyObservers(context.Background(), event)
}

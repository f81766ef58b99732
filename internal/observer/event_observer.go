package observer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	apperrors "github.com/anime-shed/roi-gridview-go/internal/errors"
	"github.com/anime-shed/roi-gridview-go/pkg/models"
)

// StateEvent is one applied load state transition of an item
type StateEvent struct {
	EventType  EventType          `json:"event_type"`
	Timestamp  time.Time          `json:"timestamp"`
	ItemID     uuid.UUID          `json:"item_id"`
	State      models.LoadState   `json:"state"`
	Generation uint64             `json:"generation"`
	Source     models.PixelSource `json:"source,omitempty"`
	Duration   time.Duration      `json:"duration,omitempty"`
	Warnings   []string           `json:"warnings,omitempty"`
	Err        error              `json:"-"`
}

// EventType represents the kind of transition
type EventType string

const (
	// LoadStarted when an item enters Loading
	LoadStarted EventType = "load_started"
	// LoadSucceeded when an item reaches Loaded
	LoadSucceeded EventType = "load_succeeded"
	// LoadFailed when an item reaches Failed
	LoadFailed EventType = "load_failed"
	// LoadCancelled when a Loading item goes back to Unloaded
	LoadCancelled EventType = "load_cancelled"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event StateEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event StateEvent)
}

// LoggingObserver logs state transitions
type LoggingObserver struct {
	logger logrus.FieldLogger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger logrus.FieldLogger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles state events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event StateEvent) {
	fields := logrus.Fields{
		"event_type": event.EventType,
		"item_id":    event.ItemID,
		"state":      event.State,
		"generation": event.Generation,
	}
	if event.Source != "" {
		fields["source"] = event.Source
	}
	if event.Duration > 0 {
		fields["duration"] = event.Duration
	}
	if len(event.Warnings) > 0 {
		fields["warnings"] = event.Warnings
	}
	if event.Err != nil {
		fields["error"] = event.Err.Error()
		fields["error_type"] = apperrors.TypeOf(event.Err)
	}

	switch event.EventType {
	case LoadSucceeded:
		o.logger.WithFields(fields).Debug("Item loaded")
	case LoadFailed:
		o.logger.WithFields(fields).Warn("Item failed to load")
	case LoadStarted, LoadCancelled:
		o.logger.WithFields(fields).Debug("Item load state changed")
	default:
		o.logger.WithFields(fields).Info("Load event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

var (
	loadTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roigrid",
		Subsystem: "loads",
		Name:      "transitions_total",
		Help:      "Applied load state transitions by event type.",
	}, []string{"event_type"})

	loadDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "roigrid",
		Subsystem: "loads",
		Name:      "duration_seconds",
		Help:      "Time from dispatch to completion of load jobs, in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"success"})
)

func init() {
	prometheus.MustRegister(loadTransitions, loadDuration)
}

// MetricsObserver counts state transitions
type MetricsObserver struct {
	mu                sync.RWMutex
	started           int64
	succeeded         int64
	failed            int64
	cancelled         int64
	failedByType      map[apperrors.ErrorType]int64
	totalLoadDuration time.Duration
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{failedByType: map[apperrors.ErrorType]int64{}}
}

// OnEvent handles state events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event StateEvent) {
	loadTransitions.WithLabelValues(string(event.EventType)).Inc()

	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case LoadStarted:
		o.started++
	case LoadSucceeded:
		o.succeeded++
		o.totalLoadDuration += event.Duration
		loadDuration.WithLabelValues("true").Observe(event.Duration.Seconds())
	case LoadFailed:
		o.failed++
		o.failedByType[apperrors.TypeOf(event.Err)]++
		loadDuration.WithLabelValues("false").Observe(event.Duration.Seconds())
	case LoadCancelled:
		o.cancelled++
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avgLoadTime := time.Duration(0)
	if o.succeeded > 0 {
		avgLoadTime = o.totalLoadDuration / time.Duration(o.succeeded)
	}
	failures := make(map[string]int64, len(o.failedByType))
	for t, n := range o.failedByType {
		failures[string(t)] = n
	}

	return map[string]interface{}{
		"loads_started":    o.started,
		"loads_succeeded":  o.succeeded,
		"loads_failed":     o.failed,
		"loads_cancelled":  o.cancelled,
		"failures_by_type": failures,
		"avg_load_time":    avgLoadTime,
	}
}

type queuedEvent struct {
	ctx   context.Context
	event StateEvent
}

// EventPublisher implements the Subject interface. Notifying never blocks:
// events are queued and handed to observers, one at a time and in the
// order they were published, by a single dispatch goroutine.
type EventPublisher struct {
	mu        sync.Mutex
	cond      *sync.Cond
	observers []Observer
	queue     []queuedEvent
	busy      bool
	closed    bool
	done      chan struct{}
	logger    logrus.FieldLogger
}

// NewEventPublisher creates a publisher and starts its dispatch goroutine
func NewEventPublisher(logger logrus.FieldLogger) *EventPublisher {
	p := &EventPublisher{
		observers: make([]Observer, 0),
		done:      make(chan struct{}),
		logger:    logger,
	}
	p.cond = sync.NewCond(&p.mu)
	go p.run()
	return p
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers queues an event for delivery
func (p *EventPublisher) NotifyObservers(ctx context.Context, event StateEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.queue = append(p.queue, queuedEvent{ctx: ctx, event: event})
	p.cond.Broadcast()
}

// Flush waits until every event queued so far has been delivered. It must
// not be called from an observer.
func (p *EventPublisher) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for (len(p.queue) > 0 || p.busy) && !p.closed {
		p.cond.Wait()
	}
}

// Close delivers what is already queued, then stops the dispatch goroutine
func (p *EventPublisher) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		p.cond.Broadcast()
	}
	p.mu.Unlock()
	<-p.done
}

func (p *EventPublisher) run() {
	defer close(p.done)
	p.mu.Lock()
	for {
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		batch := p.queue
		p.queue = nil
		p.busy = true
		observers := make([]Observer, len(p.observers))
		copy(observers, p.observers)
		p.mu.Unlock()

		for _, qe := range batch {
			for _, obs := range observers {
				p.deliver(obs, qe)
			}
		}

		p.mu.Lock()
		p.busy = false
		p.cond.Broadcast()
	}
}

func (p *EventPublisher) deliver(obs Observer, qe queuedEvent) {
	defer func() {
		if r := recover(); r != nil {
			// Log panic but don't crash the application
			p.logger.WithField("observer", obs.GetObserverName()).
				WithField("panic", r).
				Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(qe.ctx, qe.event)
}

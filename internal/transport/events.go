package transport

import (
	"sync/atomic"

	"github.com/google/uuid"

	apperrors "github.com/anime-shed/roi-gridview-go/internal/errors"
	"github.com/anime-shed/roi-gridview-go/internal/logger"
	"github.com/anime-shed/roi-gridview-go/pkg/models"
)

type sseEvent struct {
	name string
	data interface{}
}

// eventSink adapts a service consumer to a bounded channel. Consumer callbacks
// must not block, so events are dropped when the client falls behind.
type eventSink struct {
	events  chan sseEvent
	dropped atomic.Int64
}

func newEventSink(size int) *eventSink {
	return &eventSink{events: make(chan sseEvent, size)}
}

func (s *eventSink) OnItemStateChanged(id uuid.UUID, state models.LoadState, err error) {
	ev := models.StateChangeEvent{ID: id.String(), State: state}
	if err != nil {
		ev.Error = err.Error()
		ev.ErrorType = string(apperrors.TypeOf(err))
	}
	s.offer(sseEvent{name: "state", data: ev})
}

func (s *eventSink) OnOrderingReady(ids []uuid.UUID) {
	s.offer(sseEvent{name: "ordering", data: models.OrderingResponse{IDs: idStrings(ids)}})
}

func (s *eventSink) offer(ev sseEvent) {
	select {
	case s.events <- ev:
	default:
		if n := s.dropped.Add(1); n == 1 || n%100 == 0 {
			logger.WithField("dropped", n).Warn("Event stream client is falling behind")
		}
	}
}

package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agendaclin/agendaclin/internal/notify"
)

// Dispatcher fans an event out to every subscription.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev notify.Event) (*notify.Result, error)
}

// Outcome tells the subscriber what to do with a message.
type Outcome int

// Message outcomes.
const (
	Ack Outcome = iota
	Nack
)

func (o Outcome) String() string {
	if o == Nack {
		return "nack"
	}
	return "ack"
}

// EventHandlerConfig holds configuration for an EventHandler.
type EventHandlerConfig struct {
	Dispatcher Dispatcher
	Logger     zerolog.Logger

	// Timeout bounds the store calls of one dispatch. Delivery attempts
	// already started run to completion.
	// Default: 2 minutes
	Timeout time.Duration
}

// EventHandler turns one event message into one dispatch.
//
// Malformed messages and missing VAPID keys are acked: redelivery cannot fix
// either. Any other dispatch error is nacked so Pub/Sub redelivers the event.
type EventHandler struct {
	dispatcher Dispatcher
	logger     zerolog.Logger
	timeout    time.Duration
	stats      *Stats
}

// NewEventHandler creates an event handler.
func NewEventHandler(cfg EventHandlerConfig) *EventHandler {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &EventHandler{
		dispatcher: cfg.Dispatcher,
		logger:     cfg.Logger,
		timeout:    timeout,
		stats:      &Stats{},
	}
}

// Stats returns the handler's counters.
func (h *EventHandler) Stats() *Stats {
	return h.stats
}

// Handle decodes data as a notify.Event and dispatches it.
func (h *EventHandler) Handle(ctx context.Context, messageID string, data []byte) Outcome {
	start := time.Now()
	logger := h.logger.With().Str("message_id", messageID).Logger()
	h.stats.received(start)

	ev, err := decodeEvent(data)
	if err != nil {
		logger.Error().Err(err).Msg("dropping malformed event")
		h.stats.malformed()
		return Ack
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	res, err := h.dispatcher.Dispatch(ctx, ev)
	switch {
	case errors.Is(err, notify.ErrMissingVAPIDKeys):
		logger.Error().Err(err).Str("type", string(ev.Kind)).Msg("push keys not configured, dropping event")
		h.stats.done(Ack, err)
		return Ack
	case err != nil:
		logger.Error().Err(err).Str("type", string(ev.Kind)).Msg("dispatch failed, requesting redelivery")
		h.stats.done(Nack, err)
		return Nack
	}

	logger.Info().
		Str("type", string(ev.Kind)).
		Int("sent", res.Sent).
		Int("delivered", res.Delivered).
		Int("pruned", res.Pruned).
		Int("failed", res.Failed).
		Bool("skipped", res.Skipped).
		Dur("duration", time.Since(start)).
		Msg("event dispatched")
	h.stats.done(Ack, nil)
	return Ack
}

var errEmptyEvent = errors.New("empty event")

func decodeEvent(data []byte) (notify.Event, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return notify.Event{}, errEmptyEvent
	}
	var ev notify.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return notify.Event{}, err
	}
	ev.Kind = notify.ParseKind(string(ev.Kind))
	return ev, nil
}

// Stats tracks event handling counters.
type Stats struct {
	mu sync.RWMutex

	Received  int64
	Acked     int64
	Nacked    int64
	Malformed int64

	LastEventAt   time.Time
	LastSuccessAt time.Time
	LastError     string
}

func (s *Stats) received(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Received++
	s.LastEventAt = at
}

func (s *Stats) malformed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Malformed++
	s.Acked++
}

func (s *Stats) done(o Outcome, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o == Nack {
		s.Nacked++
	} else {
		s.Acked++
	}
	if err != nil {
		s.LastError = err.Error()
		return
	}
	s.LastSuccessAt = time.Now()
}

// StatsSnapshot is a copy of Stats safe to read without locking.
type StatsSnapshot struct {
	Received      int64      `json:"received"`
	Acked         int64      `json:"acked"`
	Nacked        int64      `json:"nacked"`
	Malformed     int64      `json:"malformed"`
	LastEventAt   *time.Time `json:"lastEventAt,omitempty"`
	LastSuccessAt *time.Time `json:"lastSuccessAt,omitempty"`
	LastError     string     `json:"lastError,omitempty"`
}

// Snapshot returns a copy of the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := StatsSnapshot{
		Received:  s.Received,
		Acked:     s.Acked,
		Nacked:    s.Nacked,
		Malformed: s.Malformed,
		LastError: s.LastError,
	}
	if !s.LastEventAt.IsZero() {
		t := s.LastEventAt
		snap.LastEventAt = &t
	}
	if !s.LastSuccessAt.IsZero() {
		t := s.LastSuccessAt
		snap.LastSuccessAt = &t
	}
	return snap
}

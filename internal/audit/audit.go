// Package audit records security-relevant gateway events: logins, logouts,
// guard denials, relay captures, and admin user management. Events carry
// identities and origins, never bearer tokens.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Kind classifies an audit event.
type Kind string

const (
	KindLoginSucceeded Kind = "login_succeeded"
	KindLoginFailed    Kind = "login_failed"
	KindLogout         Kind = "logout"
	KindGuardDenied    Kind = "guard_denied"
	KindRelayCaptured  Kind = "relay_captured"
	KindUserCreated    Kind = "user_created"
	KindUserDeleted    Kind = "user_deleted"
)

// Event is a single audit record.
type Event struct {
	Time   time.Time `json:"time"`
	Kind   Kind      `json:"kind"`
	Actor  string    `json:"actor,omitempty"`
	Origin string    `json:"origin,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// Sink receives dispatched events.
type Sink interface {
	Write(ctx context.Context, event Event) error
}

// Dispatcher decouples request handling from audit persistence. Record never
// blocks: when the buffer is full the event is dropped and counted.
type Dispatcher struct {
	sink    Sink
	origin  string
	logger  *slog.Logger
	events  chan Event
	dropped atomic.Int64
	done    chan struct{}
}

// NewDispatcher starts a background worker draining into sink. origin names
// the recording frontend and is stamped onto events that carry none.
func NewDispatcher(sink Sink, buffer int, origin string, logger *slog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	d := &Dispatcher{
		sink:   sink,
		origin: origin,
		logger: logger,
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Record enqueues an event, stamping the time and origin if unset.
func (d *Dispatcher) Record(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	if event.Origin == "" {
		event.Origin = d.origin
	}
	select {
	case d.events <- event:
	default:
		d.dropped.Add(1)
	}
}

// Dropped reports how many events the full buffer has discarded.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Close stops the worker after draining buffered events.
func (d *Dispatcher) Close() {
	close(d.events)
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for event := range d.events {
		if err := d.sink.Write(context.Background(), event); err != nil {
			d.logger.Warn("audit write failed", "kind", event.Kind, "error", err)
		}
	}
}

// MemorySink keeps the most recent events in a bounded ring. It backs the
// gateways when no durable sink is configured and the tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
	limit  int
}

// NewMemorySink retains at most limit events, oldest evicted first.
func NewMemorySink(limit int) *MemorySink {
	if limit <= 0 {
		limit = 1024
	}
	return &MemorySink{limit: limit}
}

func (s *MemorySink) Write(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if len(s.events) > s.limit {
		s.events = s.events[len(s.events)-s.limit:]
	}
	return nil
}

// Events returns a snapshot of retained events.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

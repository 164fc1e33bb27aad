package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Event is a user-facing progress notification for a call.
type Event struct {
	CallID string `json:"call_id"`
	Kind   string `json:"kind"`
	Text   string `json:"text"`

	At time.Time `json:"at"`
}

const (
	KindStatus   = "status"
	KindOutcome  = "outcome"
	KindApproval = "approval_needed"
)

// Sink delivers one event. Delivery is best-effort.
type Sink interface {
	Deliver(ctx context.Context, e Event) error
}

// Dispatcher fans events out to a sink from a single worker goroutine so
// call handling never blocks on delivery. When the buffer is full events
// are dropped with a warning.
type Dispatcher struct {
	sink  Sink
	log   *slog.Logger
	ch    chan Event
	done  chan struct{}
	close sync.Once
}

func NewDispatcher(sink Sink, log *slog.Logger, buffer int) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if buffer <= 0 {
		buffer = 64
	}
	d := &Dispatcher{
		sink: sink,
		log:  log,
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for e := range d.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.sink.Deliver(ctx, e); err != nil {
			d.log.Warn("notification delivery failed", "call_id", e.CallID, "kind", e.Kind, "error", err)
		}
		cancel()
	}
}

// Emit queues an event without blocking.
func (d *Dispatcher) Emit(callID, kind, text string) {
	e := Event{CallID: callID, Kind: kind, Text: text, At: time.Now().UTC()}
	select {
	case d.ch <- e:
	default:
		d.log.Warn("notification buffer full, dropping event", "call_id", callID, "kind", kind)
	}
}

// Close stops intake and waits for queued events to drain.
func (d *Dispatcher) Close() {
	d.close.Do(func() { close(d.ch) })
	<-d.done
}

// LogSink writes notifications to the structured log. It is the fallback
// when no redis stream is configured.
type LogSink struct {
	Log *slog.Logger
}

func (s LogSink) Deliver(ctx context.Context, e Event) error {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("call notification", "call_id", e.CallID, "kind", e.Kind, "text", e.Text)
	return nil
}

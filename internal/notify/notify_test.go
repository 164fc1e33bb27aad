package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event

	// failFirst makes the first delivery attempt error out.
	failFirst bool
	attempts  int
}

func (s *captureSink) Deliver(ctx context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.failFirst && s.attempts == 1 {
		return errors.New("sink down")
	}
	s.events = append(s.events, e)
	return nil
}

func (s *captureSink) captured() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	sink := &captureSink{}
	d := NewDispatcher(sink, nil, 8)

	d.Emit("c1", KindStatus, "DIALING")
	d.Emit("c1", KindStatus, "CONNECTED")
	d.Emit("c1", KindOutcome, "confirmed")
	d.Close()

	got := sink.captured()
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[0].Text != "DIALING" || got[2].Kind != KindOutcome {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestDispatcher_SinkErrorDoesNotStopWorker(t *testing.T) {
	sink := &captureSink{failFirst: true}
	d := NewDispatcher(sink, nil, 8)

	d.Emit("c1", KindStatus, "DIALING")
	d.Emit("c1", KindStatus, "CONNECTED")
	d.Close()

	got := sink.captured()
	if len(got) != 1 || got[0].Text != "CONNECTED" {
		t.Fatalf("expected the second event delivered, got %+v", got)
	}
}

func TestRedisSink_AppendsToStream(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	d := NewDispatcher(NewRedisSink(rdb), nil, 8)
	d.Emit("c1", KindApproval, "business asked for a deposit")
	d.Close()

	entries, err := rdb.XRange(context.Background(), StreamKey, "-", "+").Result()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 stream entry, got %d", len(entries))
	}
	if entries[0].Values["call_id"] != "c1" || entries[0].Values["kind"] != KindApproval {
		t.Fatalf("unexpected entry: %+v", entries[0].Values)
	}
}

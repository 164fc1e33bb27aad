package orchestrator

import (
	"context"
	"strings"
	"testing"
	"time"

	"reservation-caller/internal/audit"
	"reservation-caller/internal/calls"
)

func TestSweep_FailsStaleDialingCall(t *testing.T) {
	repo := calls.NewMemoryRepo()
	auditRepo := audit.NewMemoryRepo()
	svc := NewService(repo, Options{
		Audit: audit.NewService(auditRepo, nil),
		Sweep: SweepConfig{DialTimeout: 2 * time.Minute, ConversationTimeout: 15 * time.Minute},
	})

	now := time.Date(2026, 2, 22, 19, 0, 0, 0, time.UTC)
	repo.SetClock(func() time.Time { return now })
	svc.SetClock(func() time.Time { return now })

	ctx := context.Background()
	started, err := svc.StartCall(ctx, testReservation("req-1"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	id := started.Call.ID

	// Within the dial timeout nothing is swept.
	now = now.Add(time.Minute)
	res, err := svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(res.Failed) != 0 {
		t.Fatalf("expected no sweeps yet, got %v", res.Failed)
	}

	now = now.Add(5 * time.Minute)
	res, err = svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(res.Failed) != 1 || res.Failed[0] != id {
		t.Fatalf("expected call swept, got %v", res.Failed)
	}

	got, _ := repo.Get(ctx, id)
	if got.Status != calls.StatusFailed {
		t.Fatalf("expected FAILED, got %s", got.Status)
	}
	if got.Outcome == nil || got.Outcome.Confidence != 0.2 {
		t.Fatalf("expected low-confidence outcome, got %+v", got.Outcome)
	}
	if !strings.Contains(got.Outcome.Reason, "seconds in DIALING") {
		t.Fatalf("expected reason citing elapsed seconds, got %q", got.Outcome.Reason)
	}

	var sawAudit bool
	for _, e := range auditRepo.Events() {
		if e.Type == audit.EventTypeSweepTimeout && e.CallID == id {
			sawAudit = true
		}
	}
	if !sawAudit {
		t.Fatalf("expected sweep_timeout audit event")
	}
}

func TestSweep_IdempotentAcrossPasses(t *testing.T) {
	repo := calls.NewMemoryRepo()
	svc := NewService(repo, Options{
		Sweep: SweepConfig{DialTimeout: time.Minute, ConversationTimeout: time.Minute},
	})

	now := time.Date(2026, 2, 22, 19, 0, 0, 0, time.UTC)
	repo.SetClock(func() time.Time { return now })
	svc.SetClock(func() time.Time { return now })

	ctx := context.Background()
	started, err := svc.StartCall(ctx, testReservation("req-1"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	id := started.Call.ID

	now = now.Add(10 * time.Minute)
	first, _ := svc.Sweep(ctx)
	if len(first.Failed) != 1 {
		t.Fatalf("expected one sweep, got %v", first.Failed)
	}
	second, _ := svc.Sweep(ctx)
	if len(second.Failed) != 0 {
		t.Fatalf("expected second pass to skip terminal call, got %v", second.Failed)
	}

	got, _ := repo.Get(ctx, id)
	var timeoutEntries int
	for _, e := range got.Transcript {
		if strings.Contains(e.Text, "Timed out") {
			timeoutEntries++
		}
	}
	if timeoutEntries != 1 {
		t.Fatalf("expected a single timeout transcript entry, got %d", timeoutEntries)
	}
}

func TestSweep_UsesLongerTimeoutForApprovalPhase(t *testing.T) {
	repo := calls.NewMemoryRepo()
	svc := NewService(repo, Options{
		Sweep:         SweepConfig{DialTimeout: time.Minute, ConversationTimeout: 30 * time.Minute},
		PublicBaseURL: "https://caller.example.com",
	})

	now := time.Date(2026, 2, 22, 19, 0, 0, 0, time.UTC)
	repo.SetClock(func() time.Time { return now })
	svc.SetClock(func() time.Time { return now })

	ctx := context.Background()
	c := answeredCall(t, svc, "req-1", testReservation(""))
	if _, err := svc.HandleSpeech(ctx, c.ID, "yes but we need a $20 deposit"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	// Past the dial timeout but inside the conversation timeout: the call
	// waiting on a human stays put.
	now = now.Add(10 * time.Minute)
	res, err := svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(res.Failed) != 0 {
		t.Fatalf("expected approval-phase call untouched, got %v", res.Failed)
	}

	now = now.Add(time.Hour)
	res, _ = svc.Sweep(ctx)
	if len(res.Failed) != 1 {
		t.Fatalf("expected sweep past conversation timeout, got %v", res.Failed)
	}
}

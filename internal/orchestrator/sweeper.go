package orchestrator

import (
	"context"
	"fmt"
	"time"

	"reservation-caller/internal/calls"
	"reservation-caller/internal/notify"
)

// SweepConfig holds the phase-specific staleness timeouts.
type SweepConfig struct {
	// DialTimeout applies while the call is DIALING or CONNECTED, where
	// progress should be fast.
	DialTimeout time.Duration
	// ConversationTimeout applies to every other active phase, including
	// calls parked on human approval.
	ConversationTimeout time.Duration
}

func (c SweepConfig) withDefaults() SweepConfig {
	out := c
	if out.DialTimeout <= 0 {
		out.DialTimeout = 2 * time.Minute
	}
	if out.ConversationTimeout <= 0 {
		out.ConversationTimeout = 15 * time.Minute
	}
	return out
}

func (c SweepConfig) timeoutFor(status calls.CallStatus) time.Duration {
	switch status {
	case calls.StatusDialing, calls.StatusConnected:
		return c.DialTimeout
	default:
		return c.ConversationTimeout
	}
}

// SweepResult reports which calls a sweep pass force-failed.
type SweepResult struct {
	Failed []string `json:"failed"`
}

// Sweep force-fails every non-terminal call whose last update is older than
// its phase timeout. Safe to call repeatedly: terminal calls are skipped, so
// a call failed in one pass is ignored by the next.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return SweepResult{}, err
	}

	now := s.clock()
	var result SweepResult
	for _, c := range all {
		if calls.IsTerminal(c.Status) {
			continue
		}
		elapsed := now.Sub(c.UpdatedAt)
		if elapsed <= s.sweep.timeoutFor(c.Status) {
			continue
		}

		reason := fmt.Sprintf("Timed out after %d seconds in %s", int(elapsed.Seconds()), c.Status)
		from := c.Status
		if err := s.repo.ForceStatus(ctx, c.ID, calls.StatusFailed); err != nil {
			s.log.Error("sweep force-fail failed", "call_id", c.ID, "error", err)
			continue
		}
		_ = s.repo.SetOutcome(ctx, c.ID, calls.Outcome{
			Status:     calls.OutcomeFailed,
			Confidence: 0.2,
			Reason:     reason,
		})
		_ = s.repo.AppendTranscript(ctx, c.ID, calls.SpeakerSystem, reason)
		if s.audit != nil {
			s.audit.LogSweepTimeout(ctx, c.ID, from, reason)
		}
		s.emit(c.ID, notify.KindOutcome, "Call timed out")
		s.log.Warn("stale call swept", "call_id", c.ID, "from", from, "elapsed", elapsed)

		result.Failed = append(result.Failed, c.ID)
	}
	return result, nil
}

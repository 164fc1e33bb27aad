package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"reservation-caller/internal/calls"
)

// Repository is the persistence contract for audit events. It is
// append-only: no update or delete methods exist.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// Callers treat audit logging as best-effort: helpers swallow repository
// errors after logging them so call handling never stalls on audit.
type Service struct {
	repo  Repository
	log   *slog.Logger
	clock func() time.Time
}

func NewService(repo Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, log: log, clock: time.Now}
}

// SetClock overrides time for tests.
func (s *Service) SetClock(clock func() time.Time) { s.clock = clock }

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.CallID == "" || e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

func (s *Service) appendBestEffort(ctx context.Context, e Event) {
	if err := s.Append(ctx, e); err != nil {
		s.log.Warn("audit append failed", "type", e.Type, "call_id", e.CallID, "error", err)
	}
}

// TransitionBlocked implements calls.TransitionObserver.
func (s *Service) TransitionBlocked(ctx context.Context, callID string, from, to calls.CallStatus) {
	s.appendBestEffort(ctx, Event{
		CallID:     callID,
		Type:       EventTypeTransitionBlocked,
		FromStatus: string(from),
		ToStatus:   string(to),
		Message:    "illegal status transition rejected",
	})
}

// LogSweepTimeout records a stale call forced to FAILED by the sweeper.
func (s *Service) LogSweepTimeout(ctx context.Context, callID string, from calls.CallStatus, message string) {
	s.appendBestEffort(ctx, Event{
		CallID:     callID,
		Type:       EventTypeSweepTimeout,
		FromStatus: string(from),
		ToStatus:   string(calls.StatusFailed),
		Message:    message,
	})
}

// LogDecisionApplied records a human decision taken on a call.
func (s *Service) LogDecisionApplied(ctx context.Context, callID, action, metadata string) {
	s.appendBestEffort(ctx, Event{
		CallID:   callID,
		Type:     EventTypeDecisionApplied,
		Reason:   action,
		Message:  "operator decision applied",
		Metadata: metadata,
	})
}

// LogDialFailed records an exhausted placement attempt.
func (s *Service) LogDialFailed(ctx context.Context, callID, message string) {
	s.appendBestEffort(ctx, Event{
		CallID:  callID,
		Type:    EventTypeDialFailed,
		Message: message,
	})
}

package calls

import (
	"context"
	"errors"
	"time"
)

// TranscriptDedupeWindow is the window within which an entry identical to the
// most recent one (same speaker, same text) is dropped. Guards against
// duplicate webhook delivery.
const TranscriptDedupeWindow = 15 * time.Second

var ErrNotFound = errors.New("calls: not found")

// Repository is the persistence contract for call records.
//
// Rules:
// - Create is idempotent on the reservation's request id: an existing record
//   is returned unchanged, never duplicated.
// - Every other mutator is a no-op (not an error) on an unknown id.
// - UpdateStatus validates the transition against the *persisted* status;
//   ForceStatus is the narrow administrative override used by the sweeper.
// - Implementations must serialize read-modify-write sequences per call id
//   (mutex-guarded map or row locks); callers hold no locks of their own.
type Repository interface {
	Create(ctx context.Context, res Reservation) (Call, error)
	Get(ctx context.Context, id string) (Call, error)
	List(ctx context.Context) ([]Call, error)

	UpdateStatus(ctx context.Context, id string, status CallStatus) error
	ForceStatus(ctx context.Context, id string, status CallStatus) error

	AppendTranscript(ctx context.Context, id string, speaker Speaker, text string) error
	SetOutcome(ctx context.Context, id string, out Outcome) error
	UpdateReservation(ctx context.Context, id string, patch ReservationPatch) error
	AttachSessionRef(ctx context.Context, id string, ref string) error
}

// TransitionObserver receives blocked-transition events for observability.
// Implementations must be best-effort; repositories never fail a mutation
// because observing failed.
type TransitionObserver interface {
	TransitionBlocked(ctx context.Context, callID string, from, to CallStatus)
}

// shouldDropTranscript implements the duplicate-suppression rule shared by
// all repository backends.
func shouldDropTranscript(last *TranscriptEntry, speaker Speaker, text string, now time.Time) bool {
	if last == nil {
		return false
	}
	if last.Speaker != speaker || last.Text != text {
		return false
	}
	delta := now.Sub(last.At)
	return delta >= 0 && delta <= TranscriptDedupeWindow
}

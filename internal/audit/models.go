package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - Audit is best-effort; critical flows never block on audit failures.

type Event struct {
	ID     string `json:"id" db:"id"`
	CallID string `json:"call_id" db:"call_id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// FromStatus/ToStatus capture the attempted move for transition events.
	FromStatus string `json:"from_status,omitempty" db:"from_status"`
	ToStatus   string `json:"to_status,omitempty" db:"to_status"`

	// Reason is a short machine-friendly cause (e.g. the decision action).
	Reason string `json:"reason,omitempty" db:"reason"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeTransitionBlocked EventType = "transition_blocked"
	EventTypeSweepTimeout      EventType = "sweep_timeout"
	EventTypeDecisionApplied   EventType = "decision_applied"
	EventTypeDialFailed        EventType = "dial_failed"
)

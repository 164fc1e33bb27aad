package calls

import "time"

// Call is the aggregate root of one phone-call attempt, including any
// follow-up recalls placed after a revision.
//
// Invariants:
// - ID is unique and immutable after creation; it doubles as the idempotency
//   key for call creation (derived from the caller-supplied request id).
// - Status transitions must be legal per the state machine unless applied
//   through the administrative ForceStatus entry point.
// - Transcript only grows; entries are never edited or reordered.
// - UpdatedAt is refreshed on every mutation; the stale sweeper keys off it.

type Call struct {
	ID          string      `json:"id" db:"id"`
	Reservation Reservation `json:"reservation" db:"reservation"`

	Status CallStatus `json:"status" db:"status"`

	Transcript []TranscriptEntry `json:"transcript" db:"transcript"`

	// Outcome is the engine's current belief about how the call resolved.
	// It is overwritten wholesale on each update, never appended.
	Outcome *Outcome `json:"outcome,omitempty" db:"outcome"`

	// SessionRef is the external telephony session identifier, attached once
	// dialing is initiated. Simulated dials carry a "SIM-" prefix.
	SessionRef string `json:"session_ref,omitempty" db:"session_ref"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CallStatus string

const (
	StatusInit                CallStatus = "INIT"
	StatusDialing             CallStatus = "DIALING"
	StatusConnected           CallStatus = "CONNECTED"
	StatusDiscovery           CallStatus = "DISCOVERY"
	StatusNegotiation         CallStatus = "NEGOTIATION"
	StatusProposedOutcome     CallStatus = "PROPOSED_OUTCOME"
	StatusWaitingUserApproval CallStatus = "WAITING_USER_APPROVAL"
	StatusConfirmed           CallStatus = "CONFIRMED"
	StatusFailed              CallStatus = "FAILED"
	StatusEnded               CallStatus = "ENDED"
)

// Reservation is the request payload the call negotiates for. Immutable until
// explicitly revised (approval with an alternate time, or a recall).
type Reservation struct {
	// RequestID is the caller-supplied idempotency key; empty means one is
	// generated at creation time.
	RequestID string `json:"request_id,omitempty"`

	BusinessName  string `json:"business_name"`
	BusinessPhone string `json:"business_phone"`

	// Date is YYYY-MM-DD; TimePreferred is HH:MM.
	Date          string `json:"date"`
	TimePreferred string `json:"time_preferred"`
	PartySize     int    `json:"party_size"`

	NameForBooking string `json:"name_for_booking"`

	Policy Policy  `json:"policy"`
	Script *Script `json:"script,omitempty"`
}

type Policy struct {
	// AllowAutoConfirm lets the negotiation policy finalize risky replies
	// without human approval.
	AllowAutoConfirm bool `json:"allow_auto_confirm"`
}

// Script overrides the generated assistant lines.
type Script struct {
	Mode      ScriptMode `json:"mode,omitempty"`
	Intro     string     `json:"intro,omitempty"`
	Question  string     `json:"question,omitempty"`
	Voicemail string     `json:"voicemail,omitempty"`
}

type ScriptMode string

const (
	ScriptModeReservation ScriptMode = "reservation"
	ScriptModePersonal    ScriptMode = "personal"
)

// ReservationPatch is a partial reservation update applied by recall/revision.
// Nil fields are left untouched.
type ReservationPatch struct {
	Date          *string `json:"date,omitempty"`
	TimePreferred *string `json:"time_preferred,omitempty"`
	PartySize     *int    `json:"party_size,omitempty"`
}

func (p ReservationPatch) IsZero() bool {
	return p.Date == nil && p.TimePreferred == nil && p.PartySize == nil
}

// Apply merges the patch into a copy of the reservation.
func (p ReservationPatch) Apply(r Reservation) Reservation {
	out := r
	if p.Date != nil {
		out.Date = *p.Date
	}
	if p.TimePreferred != nil {
		out.TimePreferred = *p.TimePreferred
	}
	if p.PartySize != nil {
		out.PartySize = *p.PartySize
	}
	return out
}

type Speaker string

const (
	SpeakerAssistant Speaker = "assistant"
	SpeakerBusiness  Speaker = "business"
	SpeakerSystem    Speaker = "system"
)

type TranscriptEntry struct {
	At      time.Time `json:"at"`
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
}

// BusinessTurns counts captured business-speaker utterances; the negotiation
// policy uses it to bound clarification loops.
func (c Call) BusinessTurns() int {
	n := 0
	for _, e := range c.Transcript {
		if e.Speaker == SpeakerBusiness {
			n++
		}
	}
	return n
}

type OutcomeStatus string

const (
	OutcomePending   OutcomeStatus = "pending"
	OutcomeConfirmed OutcomeStatus = "confirmed"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeVoicemail OutcomeStatus = "voicemail"
)

// Outcome is the latest proposed or final resolution of a call.
type Outcome struct {
	Status OutcomeStatus `json:"status"`

	// NeedsUserApproval = true implies the call moved to
	// WAITING_USER_APPROVAL in the same logical operation.
	NeedsUserApproval bool `json:"needs_user_approval"`

	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`

	ConfirmedDetails *ConfirmedDetails `json:"confirmed_details,omitempty"`
}

type ConfirmedDetails struct {
	Date      string `json:"date"`
	Time      string `json:"time"`
	PartySize int    `json:"party_size"`
	Name      string `json:"name"`
	Notes     string `json:"notes,omitempty"`
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"reservation-caller/internal/audit"
	"reservation-caller/internal/calls"
	"reservation-caller/internal/negotiation"
	"reservation-caller/internal/notify"
	"reservation-caller/internal/telephony"
)

// ErrInvalidDecision is returned for unknown decision actions before any
// state is touched.
var ErrInvalidDecision = errors.New("orchestrator: invalid decision action")

// DecisionAction is what an operator can do with a call waiting on approval.
type DecisionAction string

const (
	DecisionApprove DecisionAction = "approve"
	DecisionCancel  DecisionAction = "cancel"
	DecisionRevise  DecisionAction = "revise"
)

// Options wires the service's collaborators. Dialer may be nil: dials are
// then simulated and marked with a SIM session ref.
type Options struct {
	Dialer   telephony.Dialer
	Audit    *audit.Service
	Notifier *notify.Dispatcher
	Log      *slog.Logger

	// PublicBaseURL is where the telephony provider reaches our webhooks.
	PublicBaseURL string

	Retry telephony.RetryConfig
	Sweep SweepConfig
}

// Service drives calls through their lifecycle. Each public operation is a
// self-contained unit of work; per-call serialization is the repository's
// responsibility.
type Service struct {
	repo     calls.Repository
	dialer   telephony.Dialer
	audit    *audit.Service
	notifier *notify.Dispatcher
	log      *slog.Logger

	baseURL string
	retry   telephony.RetryConfig
	sweep   SweepConfig
	clock   func() time.Time
}

func NewService(repo calls.Repository, opts Options) *Service {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	retry := opts.Retry
	if retry.Attempts == 0 {
		retry = telephony.DefaultRetryConfig()
	}
	return &Service{
		repo:     repo,
		dialer:   opts.Dialer,
		audit:    opts.Audit,
		notifier: opts.Notifier,
		log:      log,
		baseURL:  strings.TrimRight(opts.PublicBaseURL, "/"),
		retry:    retry,
		sweep:    opts.Sweep.withDefaults(),
		clock:    time.Now,
	}
}

// SetClock overrides time for tests.
func (s *Service) SetClock(clock func() time.Time) { s.clock = clock }

// StartResult reports how a call start resolved.
type StartResult struct {
	Call      calls.Call
	Simulated bool
	// Existing is true when the request id matched a call already underway.
	Existing bool
}

// StartCall creates (or finds) the call record and places the outbound dial.
// Placement failure moves the call to FAILED and is surfaced to the caller.
func (s *Service) StartCall(ctx context.Context, res calls.Reservation) (StartResult, error) {
	c, err := s.repo.Create(ctx, res)
	if err != nil {
		return StartResult{}, err
	}
	if c.Status != calls.StatusInit {
		// Idempotent replay: the call is already underway, return it untouched.
		return StartResult{Call: c, Existing: true, Simulated: strings.HasPrefix(c.SessionRef, "SIM-")}, nil
	}

	if err := s.repo.UpdateStatus(ctx, c.ID, calls.StatusDialing); err != nil {
		return StartResult{}, err
	}
	s.emit(c.ID, notify.KindStatus, "Dialing "+c.Reservation.BusinessName)

	simulated, err := s.placeCall(ctx, c.ID, c.Reservation)
	if err != nil {
		return StartResult{}, err
	}

	final, err := s.repo.Get(ctx, c.ID)
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{Call: final, Simulated: simulated}, nil
}

// placeCall dials through the provider, or simulates when none is configured.
// On exhausted retries it applies the compensating FAILED update and returns
// the placement error.
func (s *Service) placeCall(ctx context.Context, id string, res calls.Reservation) (bool, error) {
	if s.dialer == nil {
		ref := simulatedRef(id)
		if err := s.repo.AttachSessionRef(ctx, id, ref); err != nil {
			return false, err
		}
		_ = s.repo.AppendTranscript(ctx, id, calls.SpeakerSystem, "Simulated dial, no telephony configured")
		s.log.Info("call placement simulated", "call_id", id, "session_ref", ref)
		return true, nil
	}

	placement, err := telephony.PlaceWithRetry(ctx, s.dialer, telephony.PlaceRequest{
		CallID:    id,
		To:        res.BusinessPhone,
		VoiceURL:  s.webhookURL("voice", id),
		StatusURL: s.webhookURL("status", id),
	}, s.retry)
	if err != nil {
		s.log.Error("call placement failed", "call_id", id, "error", err)
		if s.audit != nil {
			s.audit.LogDialFailed(ctx, id, err.Error())
		}
		_ = s.repo.AppendTranscript(ctx, id, calls.SpeakerSystem, "Dial failed: "+err.Error())
		_ = s.repo.UpdateStatus(ctx, id, calls.StatusFailed)
		// A recorded resolution (an approved callback, a voicemail) must
		// survive the failed dial; only an absent or pending outcome is
		// replaced.
		if cur, getErr := s.repo.Get(ctx, id); getErr == nil && (cur.Outcome == nil || cur.Outcome.Status == calls.OutcomePending) {
			_ = s.repo.SetOutcome(ctx, id, calls.Outcome{
				Status:     calls.OutcomeFailed,
				Confidence: 0.9,
				Reason:     "Outbound call could not be placed",
			})
		}
		s.emit(id, notify.KindOutcome, "Call failed: could not reach the business line")
		return false, err
	}

	if err := s.repo.AttachSessionRef(ctx, id, placement.ProviderRef); err != nil {
		return false, err
	}
	return false, nil
}

// ApplyDecision executes an operator decision on a call, typically one
// sitting in WAITING_USER_APPROVAL.
func (s *Service) ApplyDecision(ctx context.Context, id string, action DecisionAction, notes string) (calls.Call, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return calls.Call{}, err
	}

	switch action {
	case DecisionApprove:
		return s.applyApprove(ctx, c, notes)
	case DecisionCancel:
		return s.applyCancel(ctx, c, notes)
	case DecisionRevise:
		return s.applyRevise(ctx, c, notes)
	default:
		return calls.Call{}, fmt.Errorf("%w: %q", ErrInvalidDecision, action)
	}
}

func (s *Service) applyApprove(ctx context.Context, c calls.Call, notes string) (calls.Call, error) {
	proposedTime := ""
	if c.Outcome != nil && c.Outcome.ConfirmedDetails != nil {
		proposedTime = c.Outcome.ConfirmedDetails.Time
	}
	s.logDecision(ctx, c.ID, "approve", notes)

	if proposedTime != "" && proposedTime != c.Reservation.TimePreferred {
		// Approval at a new time means confirmed pending a callback: record
		// the approval first, adopt the time, then re-dial. The recorded
		// approval survives even if the dial cannot be placed.
		patch := calls.ReservationPatch{TimePreferred: &proposedTime}
		if err := s.repo.UpdateReservation(ctx, c.ID, patch); err != nil {
			return calls.Call{}, err
		}
		out := calls.Outcome{
			Status:     calls.OutcomeConfirmed,
			Confidence: 0.95,
			Reason:     "Approved by user, calling back to confirm the new time",
			ConfirmedDetails: &calls.ConfirmedDetails{
				Date:      c.Reservation.Date,
				Time:      proposedTime,
				PartySize: c.Reservation.PartySize,
				Name:      c.Reservation.NameForBooking,
				Notes:     notes,
			},
		}
		if c.Outcome != nil && c.Outcome.ConfirmedDetails != nil {
			out.ConfirmedDetails.Notes = strings.TrimSpace(c.Outcome.ConfirmedDetails.Notes + " " + notes)
		}
		if err := s.repo.SetOutcome(ctx, c.ID, out); err != nil {
			return calls.Call{}, err
		}
		_ = s.repo.AppendTranscript(ctx, c.ID, calls.SpeakerSystem,
			fmt.Sprintf("Operator approved alternate time %s, calling back to confirm", proposedTime))
		if err := s.repo.UpdateStatus(ctx, c.ID, calls.StatusDialing); err != nil {
			return calls.Call{}, err
		}
		res := patch.Apply(c.Reservation)
		if _, err := s.placeCall(ctx, c.ID, res); err != nil {
			final, _ := s.repo.Get(ctx, c.ID)
			return final, err
		}
		return s.repo.Get(ctx, c.ID)
	}

	out := calls.Outcome{
		Status:     calls.OutcomeConfirmed,
		Confidence: 0.95,
		Reason:     "Operator approved the proposed reservation",
		ConfirmedDetails: &calls.ConfirmedDetails{
			Date:      c.Reservation.Date,
			Time:      c.Reservation.TimePreferred,
			PartySize: c.Reservation.PartySize,
			Name:      c.Reservation.NameForBooking,
			Notes:     notes,
		},
	}
	if c.Outcome != nil && c.Outcome.ConfirmedDetails != nil {
		out.ConfirmedDetails.Notes = strings.TrimSpace(c.Outcome.ConfirmedDetails.Notes + " " + notes)
	}
	if err := s.repo.SetOutcome(ctx, c.ID, out); err != nil {
		return calls.Call{}, err
	}
	if err := s.repo.UpdateStatus(ctx, c.ID, calls.StatusConfirmed); err != nil {
		return calls.Call{}, err
	}
	_ = s.repo.AppendTranscript(ctx, c.ID, calls.SpeakerSystem, "Operator approved, reservation confirmed")
	s.emit(c.ID, notify.KindOutcome, "Reservation confirmed")
	return s.repo.Get(ctx, c.ID)
}

func (s *Service) applyCancel(ctx context.Context, c calls.Call, notes string) (calls.Call, error) {
	s.logDecision(ctx, c.ID, "cancel", notes)
	if err := s.repo.SetOutcome(ctx, c.ID, calls.Outcome{
		Status:     calls.OutcomeFailed,
		Confidence: 1,
		Reason:     "Cancelled by user",
	}); err != nil {
		return calls.Call{}, err
	}
	if err := s.repo.UpdateStatus(ctx, c.ID, calls.StatusFailed); err != nil {
		return calls.Call{}, err
	}
	_ = s.repo.AppendTranscript(ctx, c.ID, calls.SpeakerSystem, "Cancelled by user")
	s.emit(c.ID, notify.KindOutcome, "Call cancelled")
	return s.repo.Get(ctx, c.ID)
}

func (s *Service) applyRevise(ctx context.Context, c calls.Call, notes string) (calls.Call, error) {
	s.logDecision(ctx, c.ID, "revise", notes)
	if patch := negotiation.ParseRevisionText(notes); !patch.IsZero() {
		if err := s.repo.UpdateReservation(ctx, c.ID, patch); err != nil {
			return calls.Call{}, err
		}
	}
	_ = s.repo.AppendTranscript(ctx, c.ID, calls.SpeakerSystem, "Revision requested: "+notes)
	if err := s.repo.UpdateStatus(ctx, c.ID, calls.StatusNegotiation); err != nil {
		return calls.Call{}, err
	}
	return s.repo.Get(ctx, c.ID)
}

// RecallResult reports how a recall resolved.
type RecallResult struct {
	Call      calls.Call
	Simulated bool
}

// RunRecall merges the patch into the reservation and re-dials the business.
func (s *Service) RunRecall(ctx context.Context, id string, patch calls.ReservationPatch, notes string) (RecallResult, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return RecallResult{}, err
	}

	if !patch.IsZero() {
		if err := s.repo.UpdateReservation(ctx, c.ID, patch); err != nil {
			return RecallResult{}, err
		}
	}
	_ = s.repo.AppendTranscript(ctx, c.ID, calls.SpeakerSystem, describeRecall(patch, notes))

	if err := s.repo.UpdateStatus(ctx, c.ID, calls.StatusDialing); err != nil {
		return RecallResult{}, err
	}
	s.emit(c.ID, notify.KindStatus, "Calling back "+c.Reservation.BusinessName)

	simulated, err := s.placeCall(ctx, c.ID, patch.Apply(c.Reservation))
	if err != nil {
		final, _ := s.repo.Get(ctx, c.ID)
		return RecallResult{Call: final}, err
	}

	final, err := s.repo.Get(ctx, c.ID)
	if err != nil {
		return RecallResult{}, err
	}
	return RecallResult{Call: final, Simulated: simulated}, nil
}

func describeRecall(patch calls.ReservationPatch, notes string) string {
	var parts []string
	if patch.Date != nil {
		parts = append(parts, "date "+*patch.Date)
	}
	if patch.TimePreferred != nil {
		parts = append(parts, "time "+*patch.TimePreferred)
	}
	if patch.PartySize != nil {
		parts = append(parts, fmt.Sprintf("party size %d", *patch.PartySize))
	}
	msg := "Recall requested"
	if len(parts) > 0 {
		msg += " with " + strings.Join(parts, ", ")
	}
	if notes != "" {
		msg += ": " + notes
	}
	return msg
}

func (s *Service) logDecision(ctx context.Context, id, action, notes string) {
	if s.audit != nil {
		s.audit.LogDecisionApplied(ctx, id, action, notes)
	}
}

func (s *Service) emit(callID, kind, text string) {
	if s.notifier != nil {
		s.notifier.Emit(callID, kind, text)
	}
}

func (s *Service) webhookURL(kind, callID string) string {
	return fmt.Sprintf("%s/webhooks/%s?call=%s", s.baseURL, kind, callID)
}

func simulatedRef(id string) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return "SIM-" + short
}

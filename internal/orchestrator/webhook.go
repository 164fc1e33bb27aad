package orchestrator

import (
	"context"
	"fmt"

	"reservation-caller/internal/calls"
	"reservation-caller/internal/negotiation"
	"reservation-caller/internal/notify"
	"reservation-caller/internal/telephony"
)

// Webhook entry points. Duplicate and late deliveries are expected: the
// transcript de-dup window and the transition table absorb them.

// HandleSessionStatus applies a provider lifecycle callback.
func (s *Service) HandleSessionStatus(ctx context.Context, callID, providerStatus string) error {
	mapped := telephony.MapProviderStatus(providerStatus)
	if err := s.repo.UpdateStatus(ctx, callID, mapped); err != nil {
		return err
	}

	if telephony.IsFailureStatus(providerStatus) {
		c, err := s.repo.Get(ctx, callID)
		if err != nil {
			return err
		}
		if c.Outcome == nil || c.Outcome.Status == calls.OutcomePending {
			_ = s.repo.SetOutcome(ctx, callID, calls.Outcome{
				Status:     calls.OutcomeFailed,
				Confidence: 0.8,
				Reason:     "Provider reported " + providerStatus,
			})
			_ = s.repo.AppendTranscript(ctx, callID, calls.SpeakerSystem, "Call ended: "+providerStatus)
			s.emit(callID, notify.KindOutcome, "Call failed: "+providerStatus)
		}
	}
	return nil
}

// HandleAnswered is hit when the callee picks up. It returns the TwiML that
// opens the conversation, or the voicemail script when machine detection
// flagged the pickup.
func (s *Service) HandleAnswered(ctx context.Context, callID string, machine bool) (string, error) {
	c, err := s.repo.Get(ctx, callID)
	if err != nil {
		return "", err
	}

	if machine {
		msg := negotiation.BuildVoicemail(c.Reservation)
		_ = s.repo.AppendTranscript(ctx, callID, calls.SpeakerAssistant, msg)
		_ = s.repo.SetOutcome(ctx, callID, calls.Outcome{
			Status:     calls.OutcomeVoicemail,
			Confidence: 0.9,
			Reason:     "Voicemail detected, message left",
		})
		_ = s.repo.UpdateStatus(ctx, callID, calls.StatusEnded)
		s.emit(callID, notify.KindOutcome, "Reached voicemail, left a message")
		return telephony.NewResponse().Say(msg).Hangup().Render()
	}

	if err := s.repo.UpdateStatus(ctx, callID, calls.StatusConnected); err != nil {
		return "", err
	}
	if err := s.repo.UpdateStatus(ctx, callID, calls.StatusDiscovery); err != nil {
		return "", err
	}

	intro := negotiation.BuildIntro(c.Reservation)
	question := negotiation.BuildQuestion(c.Reservation)
	_ = s.repo.AppendTranscript(ctx, callID, calls.SpeakerAssistant, intro)
	_ = s.repo.AppendTranscript(ctx, callID, calls.SpeakerAssistant, question)
	s.emit(callID, notify.KindStatus, "Connected to "+c.Reservation.BusinessName)

	return telephony.NewResponse().
		Say(intro).
		GatherSpeech(question, s.webhookURL("gather", callID)).
		Redirect(s.webhookURL("voice", callID)).
		Render()
}

// HandleSpeech runs the negotiation policy over a captured business reply and
// returns the next TwiML step.
func (s *Service) HandleSpeech(ctx context.Context, callID, speech string) (string, error) {
	if _, err := s.repo.Get(ctx, callID); err != nil {
		return "", err
	}

	if speech == "" {
		_ = s.repo.AppendTranscript(ctx, callID, calls.SpeakerSystem, "No speech captured")
		_ = s.repo.SetOutcome(ctx, callID, calls.Outcome{
			Status:     calls.OutcomeFailed,
			Confidence: 0.4,
			Reason:     "No speech captured from the business",
		})
		_ = s.repo.UpdateStatus(ctx, callID, calls.StatusFailed)
		return telephony.NewResponse().Say("Thank you, goodbye.").Hangup().Render()
	}

	if err := s.repo.AppendTranscript(ctx, callID, calls.SpeakerBusiness, speech); err != nil {
		return "", err
	}
	if err := s.repo.UpdateStatus(ctx, callID, calls.StatusNegotiation); err != nil {
		return "", err
	}

	c, err := s.repo.Get(ctx, callID)
	if err != nil {
		return "", err
	}

	ex := negotiation.ParseReply(speech)
	decision := negotiation.Decide(ex, speech, c.Reservation, c.BusinessTurns())

	switch decision.Kind {
	case negotiation.DecisionConfirm:
		confirmedTime := c.Reservation.TimePreferred
		if decision.ProposedTime != "" {
			confirmedTime = decision.ProposedTime
		}
		_ = s.repo.SetOutcome(ctx, callID, calls.Outcome{
			Status:     calls.OutcomeConfirmed,
			Confidence: ex.Confidence,
			Reason:     decision.Reason,
			ConfirmedDetails: &calls.ConfirmedDetails{
				Date:      c.Reservation.Date,
				Time:      confirmedTime,
				PartySize: c.Reservation.PartySize,
				Name:      c.Reservation.NameForBooking,
				Notes:     decision.Notes,
			},
		})
		_ = s.repo.UpdateStatus(ctx, callID, calls.StatusConfirmed)
		s.emit(callID, notify.KindOutcome, fmt.Sprintf("Reservation confirmed for %s at %s", c.Reservation.Date, confirmedTime))
		reply := fmt.Sprintf("Wonderful, %s at %s for %d under %s. Thank you very much, goodbye.",
			c.Reservation.Date, confirmedTime, c.Reservation.PartySize, c.Reservation.NameForBooking)
		_ = s.repo.AppendTranscript(ctx, callID, calls.SpeakerAssistant, reply)
		return telephony.NewResponse().Say(reply).Hangup().Render()

	case negotiation.DecisionReject:
		_ = s.repo.SetOutcome(ctx, callID, calls.Outcome{
			Status:     calls.OutcomeFailed,
			Confidence: ex.Confidence,
			Reason:     decision.Reason,
		})
		_ = s.repo.UpdateStatus(ctx, callID, calls.StatusFailed)
		s.emit(callID, notify.KindOutcome, "No availability: "+decision.Reason)
		reply := "Understood, thank you anyway. Goodbye."
		_ = s.repo.AppendTranscript(ctx, callID, calls.SpeakerAssistant, reply)
		return telephony.NewResponse().Say(reply).Hangup().Render()

	case negotiation.DecisionNeedsApproval:
		proposedTime := decision.ProposedTime
		if proposedTime == "" {
			proposedTime = c.Reservation.TimePreferred
		}
		_ = s.repo.SetOutcome(ctx, callID, calls.Outcome{
			Status:            calls.OutcomePending,
			NeedsUserApproval: true,
			Confidence:        ex.Confidence,
			Reason:            decision.Reason,
			ConfirmedDetails: &calls.ConfirmedDetails{
				Date:      c.Reservation.Date,
				Time:      proposedTime,
				PartySize: c.Reservation.PartySize,
				Name:      c.Reservation.NameForBooking,
				Notes:     decision.Notes,
			},
		})
		_ = s.repo.UpdateStatus(ctx, callID, calls.StatusWaitingUserApproval)
		s.emit(callID, notify.KindApproval, decision.Reason+": "+decision.Notes)
		reply := "Let me check with the customer and call you right back. Thank you."
		_ = s.repo.AppendTranscript(ctx, callID, calls.SpeakerAssistant, reply)
		return telephony.NewResponse().Say(reply).Hangup().Render()

	default: // clarify
		question := negotiation.BuildQuestion(c.Reservation)
		followUp := "Sorry, just to confirm. " + question
		_ = s.repo.AppendTranscript(ctx, callID, calls.SpeakerAssistant, followUp)
		return telephony.NewResponse().
			GatherSpeech(followUp, s.webhookURL("gather", callID)).
			Redirect(s.webhookURL("voice", callID)).
			Render()
	}
}

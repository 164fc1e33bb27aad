package negotiation

import (
	"testing"

	"reservation-caller/internal/calls"
)

func policyReservation(allowAuto bool) calls.Reservation {
	return calls.Reservation{
		BusinessName:   "Trattoria",
		BusinessPhone:  "+15551234567",
		Date:           "2026-02-22",
		TimePreferred:  "20:00",
		PartySize:      2,
		NameForBooking: "Felix",
		Policy:         calls.Policy{AllowAutoConfirm: allowAuto},
	}
}

func TestNeedsHumanConfirmation_RiskKeywords(t *testing.T) {
	if !NeedsHumanConfirmation("We need a $20 DEPOSIT to hold the table", false) {
		t.Fatalf("expected escalation for deposit")
	}
	if NeedsHumanConfirmation("We need a $20 deposit to hold the table", true) {
		t.Fatalf("expected no escalation when auto-confirm allowed")
	}
	if NeedsHumanConfirmation("yes that works, see you then", false) {
		t.Fatalf("expected no escalation without risk terms")
	}
	if NeedsHumanConfirmation("yes that works, no deposit needed", false) {
		t.Fatalf("expected no escalation for negated risk term")
	}
	for _, k := range []string{"card", "fee", "cancellation", "prepay"} {
		if !NeedsHumanConfirmation("sure, but there is a "+k, false) {
			t.Fatalf("expected escalation for %q", k)
		}
	}
}

func TestDecide_ConfirmWithoutRisk(t *testing.T) {
	text := "yes that works, no problem at all"
	d := Decide(ParseReply(text), text, policyReservation(false), 1)
	if d.Kind != DecisionConfirm {
		t.Fatalf("expected confirm, got %s (%s)", d.Kind, d.Reason)
	}
}

func TestDecide_RejectOnNegative(t *testing.T) {
	text := "sorry we are fully booked that night"
	d := Decide(ParseReply(text), text, policyReservation(false), 1)
	if d.Kind != DecisionReject {
		t.Fatalf("expected reject, got %s", d.Kind)
	}
}

func TestDecide_RiskForcesApproval(t *testing.T) {
	text := "yes but we need a $20 deposit"
	d := Decide(ParseReply(text), text, policyReservation(false), 1)
	if d.Kind != DecisionNeedsApproval {
		t.Fatalf("expected needs_approval, got %s", d.Kind)
	}
}

func TestDecide_RiskAutoConfirmedWhenAllowed(t *testing.T) {
	text := "yes but we need a $20 deposit"
	d := Decide(ParseReply(text), text, policyReservation(true), 1)
	if d.Kind != DecisionConfirm {
		t.Fatalf("expected confirm with auto-confirm policy, got %s", d.Kind)
	}
}

func TestDecide_AlternateTimeNeedsApproval(t *testing.T) {
	text := "yes, but only at 18:30"
	d := Decide(ParseReply(text), text, policyReservation(false), 1)
	if d.Kind != DecisionNeedsApproval {
		t.Fatalf("expected needs_approval, got %s", d.Kind)
	}
	if d.ProposedTime != "18:30" {
		t.Fatalf("expected proposed time 18:30, got %q", d.ProposedTime)
	}
}

func TestDecide_MatchingTimeConfirms(t *testing.T) {
	text := "yes, 20:00 works"
	d := Decide(ParseReply(text), text, policyReservation(false), 1)
	if d.Kind != DecisionConfirm {
		t.Fatalf("expected confirm for matching time, got %s", d.Kind)
	}
}

func TestDecide_ClarifyThenForcedEscalation(t *testing.T) {
	text := "umm hold on let me check something"

	d := Decide(ParseReply(text), text, policyReservation(false), 1)
	if d.Kind != DecisionClarify {
		t.Fatalf("expected clarify on first ambiguous turn, got %s", d.Kind)
	}

	d = Decide(ParseReply(text), text, policyReservation(false), 3)
	if d.Kind != DecisionNeedsApproval {
		t.Fatalf("expected forced needs_approval after %d turns, got %s", maxClarifyTurns, d.Kind)
	}
}

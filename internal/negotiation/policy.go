package negotiation

import (
	"strings"

	"reservation-caller/internal/calls"
)

// DecisionKind classifies what the engine should do with a business reply.
type DecisionKind string

const (
	DecisionConfirm       DecisionKind = "confirm"
	DecisionReject        DecisionKind = "reject"
	DecisionNeedsApproval DecisionKind = "needs_approval"
	DecisionClarify       DecisionKind = "clarify"
)

// ReplyDecision is the policy output for one business turn.
type ReplyDecision struct {
	Kind   DecisionKind
	Reason string

	// ProposedTime carries an alternate HH:MM offered by the business.
	ProposedTime string
	Notes        string
}

// riskKeywords gate auto-confirmation: an affirmative reply mentioning any of
// these needs human sign-off unless the reservation allows auto-confirm.
var riskKeywords = []string{"deposit", "card", "fee", "cancellation", "prepay"}

// maxClarifyTurns bounds the clarification loop; past this many business
// turns the policy escalates instead of asking again, so every conversation
// terminates.
const maxClarifyTurns = 3

// negations that disarm a risk keyword when they directly precede it
// ("no deposit needed", "without a fee").
var riskNegations = map[string]struct{}{"no": {}, "without": {}, "zero": {}}

// NeedsHumanConfirmation reports whether the reply text forces escalation.
// It applies regardless of extraction confidence.
func NeedsHumanConfirmation(text string, allowAutoConfirm bool) bool {
	if allowAutoConfirm {
		return false
	}
	words := strings.Fields(strings.ToLower(text))
	for i, w := range words {
		for _, k := range riskKeywords {
			if !strings.Contains(w, k) {
				continue
			}
			if negatedAt(words, i) {
				continue
			}
			return true
		}
	}
	return false
}

// matchRiskTerms returns the risk keywords present in the lowercased text,
// negated mentions excluded.
func matchRiskTerms(lower string) []string {
	var terms []string
	words := strings.Fields(lower)
	for i, w := range words {
		for _, k := range riskKeywords {
			if strings.Contains(w, k) && !negatedAt(words, i) {
				terms = append(terms, k)
			}
		}
	}
	return terms
}

// negatedAt reports whether either of the two words before index i negates it.
func negatedAt(words []string, i int) bool {
	for j := i - 1; j >= 0 && j >= i-2; j-- {
		if _, ok := riskNegations[strings.Trim(words[j], ",.!?")]; ok {
			return true
		}
	}
	return false
}

// Decide maps an extracted business reply to the next step.
// businessTurns is how many business utterances the call has captured so far,
// including this one.
func Decide(ex Extraction, text string, res calls.Reservation, businessTurns int) ReplyDecision {
	if ex.Negative {
		return ReplyDecision{
			Kind:   DecisionReject,
			Reason: "Business reported no availability",
			Notes:  text,
		}
	}

	if ex.Affirmative {
		risky := NeedsHumanConfirmation(text, res.Policy.AllowAutoConfirm)
		alternateTime := ex.ProposedTime != "" && ex.ProposedTime != res.TimePreferred

		if (risky || alternateTime) && !res.Policy.AllowAutoConfirm {
			reason := "Business reply carries conditions requiring approval"
			if alternateTime && !risky {
				reason = "Business proposed a different time"
			}
			return ReplyDecision{
				Kind:         DecisionNeedsApproval,
				Reason:       reason,
				ProposedTime: ex.ProposedTime,
				Notes:        text,
			}
		}

		return ReplyDecision{
			Kind:         DecisionConfirm,
			Reason:       "Business confirmed availability",
			ProposedTime: ex.ProposedTime,
			Notes:        text,
		}
	}

	if businessTurns >= maxClarifyTurns {
		return ReplyDecision{
			Kind:   DecisionNeedsApproval,
			Reason: "Ambiguous after multiple clarification attempts",
			Notes:  text,
		}
	}

	return ReplyDecision{
		Kind:   DecisionClarify,
		Reason: "Reply was ambiguous",
		Notes:  text,
	}
}

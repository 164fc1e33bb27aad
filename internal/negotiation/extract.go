package negotiation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"reservation-caller/internal/calls"
)

// Extraction is the structured reading of one business utterance. The
// decision policy treats extraction as a pure function of the text.
type Extraction struct {
	// Confidence is 0..1 and reflects how unambiguous the reply was.
	Confidence float64

	// ProposedTime is a normalized HH:MM alternate time, empty if none.
	ProposedTime string

	// RiskTerms are the matched risk keywords, lowercased.
	RiskTerms []string

	Affirmative bool
	Negative    bool
}

var (
	affirmativeRe = regexp.MustCompile(`\b(yes|yep|yeah|sure|available|works|ok|okay|sounds good|of course|we can|no problem)\b`)
	negativeRe    = regexp.MustCompile(`\b(no|not available|fully booked|booked out|can'?t|cannot|closed|unavailable|sorry we)\b`)

	clockTimeRe    = regexp.MustCompile(`\b([01]?\d|2[0-3])[:h]([0-5]\d)\b`)
	meridiemTimeRe = regexp.MustCompile(`\b(\d{1,2})(?::([0-5]\d))?\s?(am|pm)\b`)

	dateRe  = regexp.MustCompile(`\b(20\d{2}-\d{2}-\d{2})\b`)
	partyRe = regexp.MustCompile(`(?:party|for|size)\s*(\d{1,2})\b|\b(\d{1,2})\s*(?:people|persons|guests)\b`)
)

// ParseReply extracts structured signals from a raw business reply.
func ParseReply(text string) Extraction {
	lower := strings.ToLower(strings.TrimSpace(text))
	ex := Extraction{}
	if lower == "" {
		ex.Confidence = 0.1
		return ex
	}

	ex.Affirmative = affirmativeRe.MatchString(lower)
	ex.Negative = negativeRe.MatchString(lower)
	// "no problem" style phrases trip both; treat as affirmative.
	if ex.Affirmative && ex.Negative {
		ex.Negative = false
	}

	ex.ProposedTime = extractTime(lower)
	ex.RiskTerms = matchRiskTerms(lower)

	switch {
	case ex.Affirmative || ex.Negative:
		ex.Confidence = 0.8
	default:
		ex.Confidence = 0.3
	}
	if ex.ProposedTime != "" {
		ex.Confidence += 0.1
	}
	if ex.Confidence > 0.95 {
		ex.Confidence = 0.95
	}
	return ex
}

func extractTime(lower string) string {
	if m := clockTimeRe.FindStringSubmatch(lower); m != nil {
		h, _ := strconv.Atoi(m[1])
		return fmt.Sprintf("%02d:%s", h, m[2])
	}
	if m := meridiemTimeRe.FindStringSubmatch(lower); m != nil {
		h, _ := strconv.Atoi(m[1])
		if h > 12 {
			return ""
		}
		if m[3] == "pm" && h != 12 {
			h += 12
		}
		if m[3] == "am" && h == 12 {
			h = 0
		}
		min := m[2]
		if min == "" {
			min = "00"
		}
		return fmt.Sprintf("%02d:%s", h, min)
	}
	return ""
}

// ParseRevisionText pulls a reservation patch out of free-form revision text,
// e.g. "try 2026-03-01 at 19:30 for 4 people".
func ParseRevisionText(text string) calls.ReservationPatch {
	var patch calls.ReservationPatch
	lower := strings.ToLower(text)

	if m := dateRe.FindStringSubmatch(lower); m != nil {
		d := m[1]
		patch.Date = &d
	}
	if t := extractTime(lower); t != "" {
		patch.TimePreferred = &t
	}
	if m := partyRe.FindStringSubmatch(lower); m != nil {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			patch.PartySize = &n
		}
	}
	return patch
}

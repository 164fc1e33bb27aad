package negotiation

import (
	"testing"
)

func TestParseReply_Affirmative(t *testing.T) {
	ex := ParseReply("Yes that works, see you then")
	if !ex.Affirmative || ex.Negative {
		t.Fatalf("expected affirmative, got %+v", ex)
	}
	if ex.Confidence != 0.8 {
		t.Fatalf("expected confidence 0.8, got %v", ex.Confidence)
	}
}

func TestParseReply_Negative(t *testing.T) {
	ex := ParseReply("Sorry we are fully booked that night")
	if !ex.Negative || ex.Affirmative {
		t.Fatalf("expected negative, got %+v", ex)
	}
}

func TestParseReply_NoProblemIsAffirmative(t *testing.T) {
	ex := ParseReply("no problem at all, come on by")
	if !ex.Affirmative || ex.Negative {
		t.Fatalf("expected 'no problem' to read as affirmative, got %+v", ex)
	}
}

func TestParseReply_AlternateTimeRaisesConfidence(t *testing.T) {
	ex := ParseReply("sure, we could do 6pm instead")
	if ex.ProposedTime != "18:00" {
		t.Fatalf("expected proposed time 18:00, got %q", ex.ProposedTime)
	}
	if ex.Confidence <= 0.8 {
		t.Fatalf("expected confidence above 0.8, got %v", ex.Confidence)
	}
}

func TestParseReply_Empty(t *testing.T) {
	ex := ParseReply("   ")
	if ex.Affirmative || ex.Negative || ex.Confidence != 0.1 {
		t.Fatalf("expected low-confidence empty extraction, got %+v", ex)
	}
}

func TestParseReply_RiskTerms(t *testing.T) {
	ex := ParseReply("yes but we need a deposit and a cancellation fee applies")
	if len(ex.RiskTerms) == 0 {
		t.Fatalf("expected risk terms, got none")
	}
	ex = ParseReply("yes that works, no deposit needed")
	if len(ex.RiskTerms) != 0 {
		t.Fatalf("expected negated risk term to be excluded, got %v", ex.RiskTerms)
	}
}

func TestExtractTime(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"we can do 18:30", "18:30"},
		{"how about 18h30", "18:30"},
		{"only at 7pm", "19:00"},
		{"maybe 7:15 am", "07:15"},
		{"12pm is fine", "12:00"},
		{"12am is odd but legal", "00:00"},
		{"nothing here", ""},
	}
	for _, tc := range cases {
		if got := extractTime(tc.in); got != tc.want {
			t.Fatalf("extractTime(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseRevisionText(t *testing.T) {
	patch := ParseRevisionText("try 2026-03-01 at 19:30 for 4 people")
	if patch.Date == nil || *patch.Date != "2026-03-01" {
		t.Fatalf("expected date 2026-03-01, got %+v", patch.Date)
	}
	if patch.TimePreferred == nil || *patch.TimePreferred != "19:30" {
		t.Fatalf("expected time 19:30, got %+v", patch.TimePreferred)
	}
	if patch.PartySize == nil || *patch.PartySize != 4 {
		t.Fatalf("expected party size 4, got %+v", patch.PartySize)
	}
}

func TestParseRevisionText_NoSignals(t *testing.T) {
	if patch := ParseRevisionText("just call them again please"); !patch.IsZero() {
		t.Fatalf("expected zero patch, got %+v", patch)
	}
}

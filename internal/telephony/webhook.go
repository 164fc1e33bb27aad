package telephony

import (
	"net/http"
	"strings"
)

// StatusForm captures the subset of status callback fields the engine uses.
// Twilio posts application/x-www-form-urlencoded.
type StatusForm struct {
	CallSid    string
	CallStatus string
	AnsweredBy string
	To         string
	From       string
	Duration   string
}

func ParseStatusForm(r *http.Request) (StatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return StatusForm{}, err
	}
	return StatusForm{
		CallSid:    r.PostFormValue("CallSid"),
		CallStatus: r.PostFormValue("CallStatus"),
		AnsweredBy: r.PostFormValue("AnsweredBy"),
		To:         strings.TrimSpace(r.PostFormValue("To")),
		From:       strings.TrimSpace(r.PostFormValue("From")),
		Duration:   r.PostFormValue("CallDuration"),
	}, nil
}

// SpeechForm is the gather callback payload with the transcribed speech.
type SpeechForm struct {
	CallSid      string
	SpeechResult string
	Confidence   string
}

func ParseSpeechForm(r *http.Request) (SpeechForm, error) {
	if err := r.ParseForm(); err != nil {
		return SpeechForm{}, err
	}
	return SpeechForm{
		CallSid:      r.PostFormValue("CallSid"),
		SpeechResult: strings.TrimSpace(r.PostFormValue("SpeechResult")),
		Confidence:   r.PostFormValue("Confidence"),
	}, nil
}

// IsMachine reports whether answering machine detection flagged a voicemail
// pickup. An "unknown" verdict is treated as voicemail: leaving a message is
// the safer move when detection cannot tell. Absent AnsweredBy (detection
// disabled) counts as a human pickup.
func (f StatusForm) IsMachine() bool {
	switch f.AnsweredBy {
	case "machine_start", "machine_end_beep", "machine_end_silence", "machine_end_other", "fax", "unknown":
		return true
	}
	return false
}

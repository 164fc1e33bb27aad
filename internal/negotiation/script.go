package negotiation

import (
	"fmt"

	"reservation-caller/internal/calls"
)

// Assistant lines for the outbound conversation. Reservations may override
// any of them via their Script block.

func BuildIntro(r calls.Reservation) string {
	if r.Script != nil && r.Script.Intro != "" {
		return r.Script.Intro
	}
	return fmt.Sprintf(
		"Hi, I'm an assistant calling on behalf of %s. We'd like a reservation for %d on %s around %s.",
		r.NameForBooking, r.PartySize, r.Date, r.TimePreferred,
	)
}

func BuildQuestion(r calls.Reservation) string {
	if r.Script != nil && r.Script.Question != "" {
		return r.Script.Question
	}
	return "Could you confirm availability and any important conditions like deposit or cancellation policy?"
}

func BuildVoicemail(r calls.Reservation) string {
	if r.Script != nil && r.Script.Voicemail != "" {
		return r.Script.Voicemail
	}
	if r.Script != nil && r.Script.Mode == calls.ScriptModePersonal {
		return fmt.Sprintf(
			"Hi, this is an automated assistant calling on behalf of %s. Sorry we missed you. Please call or text %s back when you can and mention you received this voicemail. Thank you, and have a great day.",
			r.NameForBooking, r.NameForBooking,
		)
	}
	return fmt.Sprintf(
		"Hi, this is an assistant calling on behalf of %s regarding a reservation request. We are looking for a table for %d on %s around %s. If that time is not available, nearby alternatives are welcome. Please call us back with availability, any important conditions, and whether a deposit or cancellation policy applies. Thank you very much.",
		r.NameForBooking, r.PartySize, r.Date, r.TimePreferred,
	)
}

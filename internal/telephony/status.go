package telephony

import "reservation-caller/internal/calls"

// MapProviderStatus translates a provider lifecycle status string into our
// call status. Unknown values land in NEGOTIATION so mid-call provider
// events never regress a live conversation.
func MapProviderStatus(provider string) calls.CallStatus {
	switch provider {
	case "initiated", "queued", "ringing":
		return calls.StatusDialing
	case "answered", "in-progress":
		return calls.StatusConnected
	case "completed":
		return calls.StatusEnded
	case "busy", "no-answer", "failed", "canceled":
		return calls.StatusFailed
	default:
		return calls.StatusNegotiation
	}
}

// IsFailureStatus reports whether the provider status means the call never
// reached a live conversation.
func IsFailureStatus(provider string) bool {
	switch provider {
	case "busy", "no-answer", "failed", "canceled":
		return true
	}
	return false
}

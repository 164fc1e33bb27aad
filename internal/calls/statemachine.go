package calls

// Lifecycle transition table.
//
// CONFIRMED, FAILED and ENDED are operationally terminal: nothing progresses
// out of them automatically, but all three permit a manual re-entry to
// DIALING via an explicit recall (and ENDED additionally allows a late
// correction to FAILED/CONFIRMED from delayed provider events).
//
// Webhook delivery can arrive late or duplicated after a call has already
// progressed; rejecting stale transitions here prevents regressing a call's
// visible status. Rejections are recorded via TransitionObserver, never
// surfaced as errors.
var transitions = map[CallStatus][]CallStatus{
	StatusInit:                {StatusDialing, StatusFailed},
	StatusDialing:             {StatusConnected, StatusDiscovery, StatusNegotiation, StatusWaitingUserApproval, StatusFailed, StatusEnded, StatusConfirmed},
	StatusConnected:           {StatusDiscovery, StatusNegotiation, StatusWaitingUserApproval, StatusFailed, StatusEnded, StatusConfirmed},
	StatusDiscovery:           {StatusNegotiation, StatusWaitingUserApproval, StatusFailed, StatusEnded, StatusConfirmed},
	StatusNegotiation:         {StatusWaitingUserApproval, StatusFailed, StatusEnded, StatusConfirmed, StatusDialing},
	StatusProposedOutcome:     {StatusWaitingUserApproval, StatusConfirmed, StatusFailed, StatusDialing},
	StatusWaitingUserApproval: {StatusConfirmed, StatusFailed, StatusDialing, StatusNegotiation, StatusEnded},
	StatusConfirmed:           {StatusDialing, StatusEnded},
	StatusFailed:              {StatusDialing},
	StatusEnded:               {StatusDialing, StatusFailed, StatusConfirmed},
}

// CanTransition reports whether from -> to is a legal lifecycle transition.
// A transition to the same state is always legal (idempotent re-assert).
func CanTransition(from, to CallStatus) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the sweeper and negotiation logic should stop
// acting on a call in this status.
func IsTerminal(s CallStatus) bool {
	return s == StatusConfirmed || s == StatusFailed || s == StatusEnded
}

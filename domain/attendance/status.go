// Package attendance holds the registration state machine: the closed set of
// statuses, the legal transitions between them, and the rules that turn the
// face verdicts of a registration's attendance events into its next status.
package attendance

import "fmt"

type Status string

const (
	StatusRegistered    Status = "registered"
	StatusCheckedIn     Status = "checked_in"
	StatusPendingReview Status = "pending_review"
	StatusAttended      Status = "attended"
	StatusAbsent        Status = "absent"
	StatusCanceled      Status = "canceled"
)

// transitions lists, for every status, the statuses it may move to. Every
// status has an entry; TestTransitionsAreExhaustive keeps it that way.
var transitions = map[Status][]Status{
	StatusRegistered:    {StatusCheckedIn, StatusPendingReview, StatusAttended, StatusAbsent, StatusCanceled},
	StatusCheckedIn:     {StatusPendingReview, StatusAttended, StatusAbsent},
	StatusPendingReview: {StatusAttended, StatusAbsent},
	StatusAttended:      {},
	StatusAbsent:        {},
	// a canceled registration is reopened by a new registration cycle
	StatusCanceled: {StatusRegistered},
}

func Statuses() []Status {
	return []Status{
		StatusRegistered, StatusCheckedIn, StatusPendingReview,
		StatusAttended, StatusAbsent, StatusCanceled,
	}
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := transitions[st]; !ok {
		return "", fmt.Errorf("unknown registration status %q", s)
	}
	return st, nil
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Active statuses hold a seat and block overlapping registrations.
func (s Status) Active() bool {
	switch s {
	case StatusRegistered, StatusCheckedIn, StatusPendingReview:
		return true
	}
	return false
}

// Terminal reports whether the status ends the current cycle.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Phase is one of the two attendance checkpoints.
type Phase string

const (
	PhaseCheckIn  Phase = "checkin"
	PhaseCheckOut Phase = "checkout"
)

func ParsePhase(s string) (Phase, error) {
	switch p := Phase(s); p {
	case PhaseCheckIn, PhaseCheckOut:
		return p, nil
	}
	return "", fmt.Errorf("unknown attendance phase %q", s)
}

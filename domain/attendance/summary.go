package attendance

import (
	"time"

	"service_hours_backend/domain/facematch"
)

// DefaultQuorum requires both phases to be approved before attendance is
// granted without review.
const DefaultQuorum = 2

type Policy struct {
	// Quorum is how many approved verdicts are needed for Attended.
	Quorum int
}

func DefaultPolicy() Policy {
	return Policy{Quorum: DefaultQuorum}
}

// Mark is the part of an attendance event the state machine looks at.
type Mark struct {
	Phase   Phase
	Verdict facematch.Verdict
}

type FaceSummary struct {
	Approved    int  `json:"approved"`
	NeedsReview int  `json:"needs_review"`
	HasCheckIn  bool `json:"has_checkin"`
	HasCheckOut bool `json:"has_checkout"`
}

func Summarize(marks []Mark) FaceSummary {
	var s FaceSummary
	for _, m := range marks {
		switch m.Phase {
		case PhaseCheckIn:
			s.HasCheckIn = true
		case PhaseCheckOut:
			s.HasCheckOut = true
		}
		switch m.Verdict {
		case facematch.VerdictApproved:
			s.Approved++
		case facematch.VerdictNeedsReview:
			s.NeedsReview++
		}
	}
	return s
}

// CheckInStatus is the registration status right after a check-in.
func CheckInStatus(v facematch.Verdict) Status {
	if v == facematch.VerdictApproved {
		return StatusCheckedIn
	}
	return StatusPendingReview
}

// Resolve decides the status once check-out has been recorded.
func (p Policy) Resolve(s FaceSummary) Status {
	quorum := p.Quorum
	if quorum <= 0 {
		quorum = DefaultQuorum
	}
	switch {
	case s.Approved >= quorum:
		return StatusAttended
	case s.NeedsReview > 0 || s.Approved > 0:
		return StatusPendingReview
	default:
		return StatusAbsent
	}
}

// Missed reports whether a registration should lazily be marked absent: it
// never left Registered, nothing was recorded, and the activity is over.
func Missed(status Status, hasEvents bool, activityEnd, now time.Time) bool {
	return status == StatusRegistered && !hasEvents && now.After(activityEnd)
}

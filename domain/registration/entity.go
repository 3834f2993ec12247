package registration

import (
	"time"

	"service_hours_backend/domain/attendance"
	"service_hours_backend/domain/facematch"
)

const RoleAdmin = "admin"

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID int64
	Role   string
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Activity is owned by the activity administration collaborator; the engine
// only reads it.
type Activity struct {
	ID                   int64
	Title                string
	Published            bool
	StartAt              time.Time
	EndAt                time.Time
	RegistrationDeadline *time.Time
	CancellationDeadline *time.Time
	// Capacity is nil for activities without a seat limit.
	Capacity *int
}

// Overlaps uses half-open intervals, so back-to-back activities do not clash.
func (a Activity) Overlaps(b Activity) bool {
	return a.StartAt.Before(b.EndAt) && b.StartAt.Before(a.EndAt)
}

type Registration struct {
	ID                  int64
	UserID              int64
	ActivityID          int64
	Status              attendance.Status
	RegisteredAt        time.Time
	ApprovedAt          *time.Time
	CanceledAt          *time.Time
	CancelReason        *string
	Note                string
	LastCheckInAt       *time.Time
	LastCheckInNote     string
	AttendanceCheckedBy *int64
	ReviewNote          string
	UpdatedAt           time.Time
}

// Enrollment is a registration together with the activity it belongs to.
type Enrollment struct {
	Registration Registration
	Activity     Activity
	// ActiveCount is the number of seats taken, including this one.
	ActiveCount int
}

type EventMeta struct {
	Source       string           `json:"source"`
	Reason       facematch.Reason `json:"reason,omitempty"`
	CaptureError string           `json:"capture_error,omitempty"`
	Threshold    float64          `json:"threshold"`
	References   int              `json:"references"`
}

const (
	SourceFaceProfile = "face_profile"
	SourceNone        = "none"
)

// Event is one entry of the append-only attendance log.
type Event struct {
	ID             int64
	RegistrationID int64
	Phase          attendance.Phase
	Status         attendance.Status
	Note           string
	EvidenceRef    string
	Verdict        facematch.Verdict
	Score          *float64
	Meta           EventMeta
	CreatedAt      time.Time
}

func marks(events []Event) []attendance.Mark {
	out := make([]attendance.Mark, 0, len(events))
	for _, e := range events {
		out = append(out, attendance.Mark{Phase: e.Phase, Verdict: e.Verdict})
	}
	return out
}

func findPhase(events []Event, phase attendance.Phase) *Event {
	for i := range events {
		if events[i].Phase == phase {
			return &events[i]
		}
	}
	return nil
}

// Profile is the enrolled descriptor set of a user.
type Profile struct {
	UserID      int64
	Descriptors []facematch.Descriptor
	SampleRefs  []string
	UpdatedAt   time.Time
}

type FeedbackStatus string

const (
	FeedbackPending  FeedbackStatus = "pending"
	FeedbackAccepted FeedbackStatus = "accepted"
	FeedbackRejected FeedbackStatus = "rejected"
)

type FeedbackCase struct {
	ID              int64
	RegistrationID  int64
	Status          FeedbackStatus
	Content         string
	Attachments     []string
	RejectionReason *string
	WindowStart     time.Time
	WindowEnd       time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

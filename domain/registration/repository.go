package registration

import (
	"context"
	"time"
)

// Repository is what the engine needs from persistent storage. Lookups that
// find nothing return a nil pointer and a nil error.
type Repository interface {
	// WithinTx runs fn in one transaction, committed only when fn returns nil.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	GetProfile(ctx context.Context, userID int64) (*Profile, error)

	ListByUser(ctx context.Context, userID int64) ([]Enrollment, error)

	// MarkMissedAbsent applies attendance.Missed to every registration of the
	// user and returns how many rows changed.
	MarkMissedAbsent(ctx context.Context, userID int64, now time.Time) (int64, error)
}

// Tx is a unit of work. Reads that return registrations lock them until the
// transaction ends.
type Tx interface {
	// LockUser serializes registrations made by the same user.
	LockUser(ctx context.Context, userID int64) error
	// LockActivity reads the activity and blocks other writers of its seats.
	LockActivity(ctx context.Context, activityID int64) (*Activity, error)
	GetActivity(ctx context.Context, activityID int64) (*Activity, error)

	FindRegistration(ctx context.Context, userID, activityID int64) (*Registration, error)
	GetRegistration(ctx context.Context, registrationID int64) (*Registration, error)
	CountActive(ctx context.Context, activityID int64) (int, error)
	// HasScheduleConflict reports an active registration of the user on another
	// activity overlapping a.
	HasScheduleConflict(ctx context.Context, userID int64, a Activity) (bool, error)
	InsertRegistration(ctx context.Context, r *Registration) error
	UpdateRegistration(ctx context.Context, r *Registration) error
	// ResetCycle drops the attendance log and feedback case of a registration.
	ResetCycle(ctx context.Context, registrationID int64) error
	// ReferencedEvidence returns the refs that an attendance event, a face
	// profile, or the feedback case of a registration other than
	// registrationID still points to.
	ReferencedEvidence(ctx context.Context, refs []string, registrationID int64) ([]string, error)

	ListEvents(ctx context.Context, registrationID int64) ([]Event, error)
	AppendEvent(ctx context.Context, e *Event) error

	GetFeedback(ctx context.Context, registrationID int64) (*FeedbackCase, error)
	SaveFeedback(ctx context.Context, f *FeedbackCase) error
}

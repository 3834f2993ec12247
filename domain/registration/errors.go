package registration

import "errors"

// Kind groups errors by how the caller should react to them.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindForbidden
	KindUnavailable
)

// Error is a business-rule rejection. Values are compared with errors.Is.
type Error struct {
	Code    string
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Code: code, Kind: kind, Message: message}
}

var (
	ErrMissingEvidence         = newError(KindValidation, "MissingEvidence", "evidence image is required")
	ErrMalformedDescriptor     = newError(KindValidation, "MalformedDescriptor", "face descriptor is malformed")
	ErrInvalidPhase            = newError(KindValidation, "InvalidPhase", "phase must be checkin or checkout")
	ErrEmptyContent            = newError(KindValidation, "EmptyContent", "feedback content is required")
	ErrInvalidDecision         = newError(KindValidation, "InvalidDecision", "decision must be approve or reject")
	ErrRejectionReasonRequired = newError(KindValidation, "RejectionReasonRequired", "a reason is required to reject feedback")
	ErrDeadlinePassed          = newError(KindValidation, "DeadlinePassed", "registration deadline has passed")
	ErrNotYetStarted           = newError(KindValidation, "NotYetStarted", "activity has not started yet")
	ErrAlreadyEnded            = newError(KindValidation, "AlreadyEnded", "activity has already ended")

	ErrActivityNotFound     = newError(KindNotFound, "ActivityNotFound", "activity not found")
	ErrNotRegistered        = newError(KindNotFound, "NotRegistered", "no active registration for this activity")
	ErrRegistrationNotFound = newError(KindNotFound, "RegistrationNotFound", "registration not found")
	ErrNoFaceProfile        = newError(KindNotFound, "NoFaceProfile", "no enrolled face profile")

	ErrCapacityExceeded     = newError(KindConflict, "CapacityExceeded", "activity is full")
	ErrAlreadyRegistered    = newError(KindConflict, "AlreadyRegistered", "already registered for this activity")
	ErrScheduleConflict     = newError(KindConflict, "ScheduleConflict", "overlaps another activity you registered for")
	ErrAlreadyCanceled      = newError(KindConflict, "AlreadyCanceled", "registration is already canceled")
	ErrCancellationClosed   = newError(KindConflict, "CancellationClosed", "cancellation deadline has passed")
	ErrDuplicateCheckIn     = newError(KindConflict, "DuplicateCheckIn", "already checked in")
	ErrDuplicateCheckOut    = newError(KindConflict, "DuplicateCheckOut", "already checked out")
	ErrCheckInRequired      = newError(KindConflict, "CheckInRequired", "check in before checking out")
	ErrInvalidTransition    = newError(KindConflict, "InvalidTransition", "registration cannot change to that status")
	ErrNotEligible          = newError(KindConflict, "NotEligible", "registration is not awaiting review")
	ErrFeedbackWindowClosed = newError(KindConflict, "FeedbackWindowClosed", "feedback window is closed")

	ErrForbidden = newError(KindForbidden, "Forbidden", "administrator role required")

	ErrStorageUnavailable = newError(KindUnavailable, "StorageUnavailable", "evidence storage is unavailable, try again")
)

// KindOf returns the kind and code of a business error, or KindInternal.
func KindOf(err error) (Kind, string) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, e.Code
	}
	return KindInternal, ""
}

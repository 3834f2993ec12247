package models

import (
	"time"

	"service_hours_backend/domain/attendance"
	"service_hours_backend/domain/registration"
)

type RegisterRequest struct {
	Note string `json:"note"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
	Note   string `json:"note"`
}

type ActivityResponse struct {
	ID                   int64      `json:"id"`
	Title                string     `json:"title"`
	StartAt              time.Time  `json:"start_at"`
	EndAt                time.Time  `json:"end_at"`
	RegistrationDeadline *time.Time `json:"registration_deadline,omitempty"`
	CancellationDeadline *time.Time `json:"cancellation_deadline,omitempty"`
	Capacity             *int       `json:"capacity,omitempty"`
}

type RegistrationResponse struct {
	ID                  int64             `json:"id"`
	UserID              int64             `json:"user_id"`
	ActivityID          int64             `json:"activity_id"`
	Status              attendance.Status `json:"status"`
	RegisteredAt        time.Time         `json:"registered_at"`
	ApprovedAt          *time.Time        `json:"approved_at,omitempty"`
	CanceledAt          *time.Time        `json:"canceled_at,omitempty"`
	CancelReason        *string           `json:"cancel_reason,omitempty"`
	Note                string            `json:"note,omitempty"`
	LastCheckInAt       *time.Time        `json:"last_checkin_at,omitempty"`
	LastCheckInNote     string            `json:"last_checkin_note,omitempty"`
	AttendanceCheckedBy *int64            `json:"attendance_checked_by,omitempty"`
	ReviewNote          string            `json:"review_note,omitempty"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

type EnrollmentResponse struct {
	Registration RegistrationResponse `json:"registration"`
	Activity     ActivityResponse     `json:"activity"`
	ActiveCount  int                  `json:"active_count"`
}

func NewRegistrationResponse(r registration.Registration) RegistrationResponse {
	return RegistrationResponse{
		ID:                  r.ID,
		UserID:              r.UserID,
		ActivityID:          r.ActivityID,
		Status:              r.Status,
		RegisteredAt:        r.RegisteredAt,
		ApprovedAt:          r.ApprovedAt,
		CanceledAt:          r.CanceledAt,
		CancelReason:        r.CancelReason,
		Note:                r.Note,
		LastCheckInAt:       r.LastCheckInAt,
		LastCheckInNote:     r.LastCheckInNote,
		AttendanceCheckedBy: r.AttendanceCheckedBy,
		ReviewNote:          r.ReviewNote,
		UpdatedAt:           r.UpdatedAt,
	}
}

func NewEnrollmentResponse(e registration.Enrollment) EnrollmentResponse {
	a := e.Activity
	return EnrollmentResponse{
		Registration: NewRegistrationResponse(e.Registration),
		Activity: ActivityResponse{
			ID:                   a.ID,
			Title:                a.Title,
			StartAt:              a.StartAt,
			EndAt:                a.EndAt,
			RegistrationDeadline: a.RegistrationDeadline,
			CancellationDeadline: a.CancellationDeadline,
			Capacity:             a.Capacity,
		},
		ActiveCount: e.ActiveCount,
	}
}

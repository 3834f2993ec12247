package models

import (
	"time"

	"service_hours_backend/domain/attendance"
	"service_hours_backend/domain/facematch"
	"service_hours_backend/domain/registration"
)

// EvidencePayload carries the captured photo either inline as base64 (plain
// or data URL) or as a reference to a blob that is already stored.
type EvidencePayload struct {
	Data        string `json:"data"`
	Reference   string `json:"reference"`
	ContentType string `json:"content_type"`
}

type CheckInRequest struct {
	Phase          string          `json:"phase" binding:"required,oneof=checkin checkout"`
	Evidence       EvidencePayload `json:"evidence"`
	FaceDescriptor []float64       `json:"face_descriptor"`
	FaceError      string          `json:"face_error"`
	Note           string          `json:"note"`
}

type AttendanceEventResponse struct {
	ID          int64                  `json:"id"`
	Phase       attendance.Phase       `json:"phase"`
	Status      attendance.Status      `json:"status"`
	Note        string                 `json:"note,omitempty"`
	EvidenceRef string                 `json:"evidence_ref"`
	Verdict     facematch.Verdict      `json:"verdict,omitempty"`
	Score       *float64               `json:"score,omitempty"`
	Meta        registration.EventMeta `json:"meta"`
	CreatedAt   time.Time              `json:"created_at"`
}

type WindowResponse struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type CheckInResponse struct {
	Registration RegistrationResponse    `json:"registration"`
	Event        AttendanceEventResponse `json:"event"`
	Summary      attendance.FaceSummary  `json:"summary"`
	Feedback     *WindowResponse         `json:"feedback_window,omitempty"`
}

func NewWindowResponse(w *registration.Window) *WindowResponse {
	if w == nil {
		return nil
	}
	return &WindowResponse{Start: w.Start, End: w.End}
}

func NewCheckInResponse(o registration.AttendanceOutcome) CheckInResponse {
	e := o.Event
	return CheckInResponse{
		Registration: NewRegistrationResponse(o.Registration),
		Event: AttendanceEventResponse{
			ID:          e.ID,
			Phase:       e.Phase,
			Status:      e.Status,
			Note:        e.Note,
			EvidenceRef: e.EvidenceRef,
			Verdict:     e.Verdict,
			Score:       e.Score,
			Meta:        e.Meta,
			CreatedAt:   e.CreatedAt,
		},
		Summary:  o.Summary,
		Feedback: NewWindowResponse(o.Feedback),
	}
}

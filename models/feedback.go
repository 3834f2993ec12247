package models

import (
	"time"

	"service_hours_backend/domain/attendance"
	"service_hours_backend/domain/registration"
)

type FeedbackRequest struct {
	Content     string   `json:"content"`
	Attachments []string `json:"attachments"`
}

type DecisionRequest struct {
	Decision string `json:"decision" binding:"required,oneof=approve reject"`
	Note     string `json:"note"`
}

type FeedbackCaseResponse struct {
	ID              int64                       `json:"id"`
	RegistrationID  int64                       `json:"registration_id"`
	Status          registration.FeedbackStatus `json:"status"`
	Content         string                      `json:"content"`
	Attachments     []string                    `json:"attachments"`
	RejectionReason *string                     `json:"rejection_reason,omitempty"`
	WindowStart     time.Time                   `json:"window_start"`
	WindowEnd       time.Time                   `json:"window_end"`
	CreatedAt       time.Time                   `json:"created_at"`
	UpdatedAt       time.Time                   `json:"updated_at"`
}

type FeedbackViewResponse struct {
	Registration RegistrationResponse   `json:"registration"`
	Case         *FeedbackCaseResponse  `json:"feedback"`
	Summary      attendance.FaceSummary `json:"summary"`
	Window       *WindowResponse        `json:"window,omitempty"`
	Eligible     bool                   `json:"eligible"`
	CanSubmit    bool                   `json:"can_submit"`
}

func NewFeedbackCaseResponse(f *registration.FeedbackCase) *FeedbackCaseResponse {
	if f == nil {
		return nil
	}
	attachments := f.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	return &FeedbackCaseResponse{
		ID:              f.ID,
		RegistrationID:  f.RegistrationID,
		Status:          f.Status,
		Content:         f.Content,
		Attachments:     attachments,
		RejectionReason: f.RejectionReason,
		WindowStart:     f.WindowStart,
		WindowEnd:       f.WindowEnd,
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.UpdatedAt,
	}
}

func NewFeedbackViewResponse(v registration.FeedbackView) FeedbackViewResponse {
	return FeedbackViewResponse{
		Registration: NewRegistrationResponse(v.Registration),
		Case:         NewFeedbackCaseResponse(v.Case),
		Summary:      v.Summary,
		Window:       NewWindowResponse(v.Window),
		Eligible:     v.Eligible,
		CanSubmit:    v.CanSubmit,
	}
}

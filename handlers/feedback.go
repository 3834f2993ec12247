package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"service_hours_backend/domain/registration"
	"service_hours_backend/models"
)

type FeedbackService interface {
	GetFeedback(ctx context.Context, actor registration.Actor, activityID int64) (*registration.FeedbackView, error)
	SubmitFeedback(ctx context.Context, actor registration.Actor, activityID int64, content string, attachments []string) (*registration.FeedbackCase, error)
	Decide(ctx context.Context, actor registration.Actor, registrationID int64, decision registration.Decision, note string) (*registration.Registration, error)
}

type FeedbackHandler struct {
	svc FeedbackService
}

func NewFeedbackHandler(svc FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{svc: svc}
}

func (h *FeedbackHandler) GetFeedback(c *gin.Context) {
	activityID, ok := idParam(c, "activity")
	if !ok {
		return
	}
	view, err := h.svc.GetFeedback(c.Request.Context(), actorFrom(c), activityID)
	if err != nil {
		respondError(c, err, "fetch feedback")
		return
	}
	c.JSON(http.StatusOK, models.NewFeedbackViewResponse(*view))
}

func (h *FeedbackHandler) SubmitFeedback(c *gin.Context) {
	activityID, ok := idParam(c, "activity")
	if !ok {
		return
	}
	var req models.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "InvalidBody"})
		return
	}

	fc, err := h.svc.SubmitFeedback(c.Request.Context(), actorFrom(c), activityID, req.Content, req.Attachments)
	if err != nil {
		respondError(c, err, "submit feedback")
		return
	}
	c.JSON(http.StatusOK, models.NewFeedbackCaseResponse(fc))
}

// Decide settles a registration under review. Administrators only.
func (h *FeedbackHandler) Decide(c *gin.Context) {
	registrationID, ok := idParam(c, "registration")
	if !ok {
		return
	}
	var req models.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "InvalidBody"})
		return
	}

	reg, err := h.svc.Decide(c.Request.Context(), actorFrom(c), registrationID, registration.Decision(req.Decision), req.Note)
	if err != nil {
		respondError(c, err, "record decision")
		return
	}
	c.JSON(http.StatusOK, models.NewRegistrationResponse(*reg))
}

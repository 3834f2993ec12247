package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"service_hours_backend/domain/registration"
	"service_hours_backend/models"
)

type Registrar interface {
	Register(ctx context.Context, actor registration.Actor, activityID int64, note string) (*registration.Enrollment, error)
	Cancel(ctx context.Context, actor registration.Actor, activityID int64, reason, note string) (*registration.Registration, error)
	ListForUser(ctx context.Context, actor registration.Actor) ([]registration.Enrollment, error)
}

type RegistrationHandler struct {
	svc Registrar
}

func NewRegistrationHandler(svc Registrar) *RegistrationHandler {
	return &RegistrationHandler{svc: svc}
}

func (h *RegistrationHandler) Register(c *gin.Context) {
	activityID, ok := idParam(c, "activity")
	if !ok {
		return
	}
	var req models.RegisterRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	enrollment, err := h.svc.Register(c.Request.Context(), actorFrom(c), activityID, req.Note)
	if err != nil {
		respondError(c, err, "register for activity")
		return
	}
	c.JSON(http.StatusCreated, models.NewEnrollmentResponse(*enrollment))
}

func (h *RegistrationHandler) Cancel(c *gin.Context) {
	activityID, ok := idParam(c, "activity")
	if !ok {
		return
	}
	var req models.CancelRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	reg, err := h.svc.Cancel(c.Request.Context(), actorFrom(c), activityID, req.Reason, req.Note)
	if err != nil {
		respondError(c, err, "cancel registration")
		return
	}
	c.JSON(http.StatusOK, models.NewRegistrationResponse(*reg))
}

// ListMine returns the caller's registrations, newest activity first.
func (h *RegistrationHandler) ListMine(c *gin.Context) {
	enrollments, err := h.svc.ListForUser(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err, "fetch registrations")
		return
	}

	out := make([]models.EnrollmentResponse, 0, len(enrollments))
	for _, e := range enrollments {
		out = append(out, models.NewEnrollmentResponse(e))
	}
	c.JSON(http.StatusOK, gin.H{"registrations": out})
}

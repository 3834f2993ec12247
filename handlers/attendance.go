package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"service_hours_backend/domain/attendance"
	"service_hours_backend/domain/facematch"
	"service_hours_backend/domain/registration"
	"service_hours_backend/models"
)

const maxEvidenceBytes = 8 << 20

// maxRequestBytes bounds the JSON body: base64 evidence plus room for the
// descriptor and note.
const maxRequestBytes = maxEvidenceBytes*4/3 + 64<<10

type AttendanceRecorder interface {
	RecordAttendance(ctx context.Context, actor registration.Actor, activityID int64, in registration.AttendanceInput) (*registration.AttendanceOutcome, error)
}

type AttendanceHandler struct {
	svc AttendanceRecorder
}

func NewAttendanceHandler(svc AttendanceRecorder) *AttendanceHandler {
	return &AttendanceHandler{svc: svc}
}

func (h *AttendanceHandler) RecordAttendance(c *gin.Context) {
	activityID, ok := idParam(c, "activity")
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBytes)
	var req models.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body is too large", "code": "InvalidEvidence"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "InvalidBody"})
		return
	}

	evidence, err := decodeEvidence(req.Evidence)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "InvalidEvidence"})
		return
	}
	if len(evidence.Data) > maxEvidenceBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Evidence image is too large", "code": "InvalidEvidence"})
		return
	}

	outcome, err := h.svc.RecordAttendance(c.Request.Context(), actorFrom(c), activityID, registration.AttendanceInput{
		Phase:    attendance.Phase(req.Phase),
		Evidence: evidence,
		Capture: facematch.Capture{
			Descriptor: req.FaceDescriptor,
			Error:      req.FaceError,
		},
		Note: req.Note,
	})
	if err != nil {
		respondError(c, err, "record attendance")
		return
	}
	c.JSON(http.StatusCreated, models.NewCheckInResponse(*outcome))
}

type evidenceError string

func (e evidenceError) Error() string { return string(e) }

// decodeEvidence accepts plain base64 or a data URL
// ("data:image/jpeg;base64,...").
func decodeEvidence(p models.EvidencePayload) (registration.Evidence, error) {
	out := registration.Evidence{
		Reference:   strings.TrimSpace(p.Reference),
		ContentType: p.ContentType,
	}
	data := strings.TrimSpace(p.Data)
	if data == "" {
		return out, nil
	}

	if rest, ok := strings.CutPrefix(data, "data:"); ok {
		meta, payload, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(meta, ";base64") {
			return out, evidenceError("Evidence data URL must be base64 encoded")
		}
		if out.ContentType == "" {
			out.ContentType = strings.TrimSuffix(meta, ";base64")
		}
		data = payload
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(data)
	}
	if err != nil {
		return out, evidenceError("Evidence data is not valid base64")
	}
	out.Data = raw
	return out, nil
}

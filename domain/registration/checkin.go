package registration

import (
	"context"
	"fmt"
	"log"
	"strings"

	"service_hours_backend/domain/attendance"
	"service_hours_backend/domain/facematch"
	"service_hours_backend/events"
)

// Evidence is the image proving presence: either raw bytes still to be stored
// or a reference to a blob the client already uploaded.
type Evidence struct {
	Data        []byte
	ContentType string
	Reference   string
}

func (e Evidence) empty() bool {
	return len(e.Data) == 0 && strings.TrimSpace(e.Reference) == ""
}

type AttendanceInput struct {
	Phase    attendance.Phase
	Evidence Evidence
	Capture  facematch.Capture
	Note     string
}

type AttendanceOutcome struct {
	Registration Registration
	Event        Event
	Summary      attendance.FaceSummary
	// Feedback is set when the registration now waits for review.
	Feedback *Window
}

// RecordAttendance appends a check-in or check-out to the actor's registration
// and moves the registration to its next status. A capture that cannot be
// matched is not an error: the registration goes to review instead.
func (s *Service) RecordAttendance(ctx context.Context, actor Actor, activityID int64, in AttendanceInput) (*AttendanceOutcome, error) {
	if _, err := attendance.ParsePhase(string(in.Phase)); err != nil {
		return nil, ErrInvalidPhase
	}
	if in.Evidence.empty() {
		return nil, ErrMissingEvidence
	}
	if err := s.evaluator.Validate(in.Capture.Descriptor); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDescriptor, err)
	}

	profile, err := s.repo.GetProfile(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	var references []facematch.Descriptor
	if profile != nil {
		references = profile.Descriptors
	}
	if s.policy.RequireProfile && !s.evaluator.Enrolled(references) {
		return nil, ErrNoFaceProfile
	}
	result := s.evaluator.Evaluate(in.Capture, references)
	meta := EventMeta{
		Source:       SourceNone,
		Reason:       result.Reason,
		CaptureError: in.Capture.Error,
		Threshold:    result.Threshold,
		References:   result.References,
	}
	if s.evaluator.Enrolled(references) {
		meta.Source = SourceFaceProfile
	}

	ref, stored, err := s.storeEvidence(ctx, in.Evidence)
	if err != nil {
		return nil, err
	}

	now := s.now()
	note := strings.TrimSpace(in.Note)
	var out AttendanceOutcome
	err = s.repo.WithinTx(ctx, func(tx Tx) error {
		act, err := tx.GetActivity(ctx, activityID)
		if err != nil {
			return err
		}
		if act == nil {
			return ErrActivityNotFound
		}
		reg, err := tx.FindRegistration(ctx, actor.UserID, activityID)
		if err != nil {
			return err
		}
		if reg == nil || reg.Status == attendance.StatusCanceled {
			return ErrNotRegistered
		}
		recorded, err := tx.ListEvents(ctx, reg.ID)
		if err != nil {
			return err
		}

		switch in.Phase {
		case attendance.PhaseCheckIn:
			if now.Before(act.StartAt) {
				return ErrNotYetStarted
			}
			if now.After(act.EndAt) {
				return ErrAlreadyEnded
			}
			if findPhase(recorded, attendance.PhaseCheckIn) != nil {
				return ErrDuplicateCheckIn
			}
		case attendance.PhaseCheckOut:
			if findPhase(recorded, attendance.PhaseCheckIn) == nil {
				return ErrCheckInRequired
			}
			if findPhase(recorded, attendance.PhaseCheckOut) != nil {
				return ErrDuplicateCheckOut
			}
			if now.Before(act.StartAt) {
				return ErrNotYetStarted
			}
			if now.After(act.EndAt.Add(s.policy.CheckoutGrace)) {
				return ErrAlreadyEnded
			}
		}

		ev := Event{
			RegistrationID: reg.ID,
			Phase:          in.Phase,
			Note:           note,
			EvidenceRef:    ref,
			Verdict:        result.Verdict,
			Score:          result.Score,
			Meta:           meta,
			CreatedAt:      now,
		}
		summary := attendance.Summarize(marks(append(recorded, ev)))
		next := attendance.CheckInStatus(result.Verdict)
		if in.Phase == attendance.PhaseCheckOut {
			next = s.policy.Attendance.Resolve(summary)
		}
		if next != reg.Status && !reg.Status.CanTransitionTo(next) {
			return ErrInvalidTransition
		}

		ev.Status = next
		if err := tx.AppendEvent(ctx, &ev); err != nil {
			return err
		}
		reg.Status = next
		reg.LastCheckInAt = &now
		reg.LastCheckInNote = note
		reg.UpdatedAt = now
		if err := tx.UpdateRegistration(ctx, reg); err != nil {
			return err
		}

		out = AttendanceOutcome{Registration: *reg, Event: ev, Summary: summary}
		if next == attendance.StatusPendingReview && summary.NeedsReview > 0 {
			w := s.feedbackWindow(*reg)
			out.Feedback = &w
		}
		return nil
	})
	if err != nil {
		if stored {
			s.discard(ref)
		}
		return nil, err
	}

	log.Printf("User %d %s for activity %d: verdict=%q status=%s",
		actor.UserID, in.Phase, activityID, out.Event.Verdict, out.Registration.Status)
	s.emit(ctx, events.AttendanceRecorded, &out.Registration)
	return &out, nil
}

// storeEvidence writes raw evidence to the blob store before any transaction
// starts, so a storage outage leaves nothing behind.
func (s *Service) storeEvidence(ctx context.Context, e Evidence) (ref string, stored bool, err error) {
	if len(e.Data) == 0 {
		return strings.TrimSpace(e.Reference), false, nil
	}
	ref, err = s.evidence.Put(ctx, e.Data, e.ContentType)
	if err != nil {
		log.Printf("Error storing evidence: %v", err)
		return "", false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return ref, true, nil
}

package registration

import (
	"context"
	"log"
	"strings"

	"service_hours_backend/domain/attendance"
	"service_hours_backend/events"
)

// FeedbackView is what a participant sees about the review of their
// registration.
type FeedbackView struct {
	Registration Registration
	Case         *FeedbackCase
	Summary      attendance.FaceSummary
	// Window is nil when the registration is not waiting for review.
	Window    *Window
	Eligible  bool
	CanSubmit bool
}

// feedbackWindow opens at the later of the approval time and the last
// attendance check, shifted by the configured offset.
func (s *Service) feedbackWindow(reg Registration) Window {
	t := reg.RegisteredAt
	if reg.ApprovedAt != nil && reg.ApprovedAt.After(t) {
		t = *reg.ApprovedAt
	}
	if reg.LastCheckInAt != nil && reg.LastCheckInAt.After(t) {
		t = *reg.LastCheckInAt
	}
	start := t.Add(s.policy.FeedbackOffset)
	return Window{Start: start, End: start.Add(s.policy.FeedbackWindow)}
}

func eligible(reg Registration, summary attendance.FaceSummary) bool {
	return reg.Status == attendance.StatusPendingReview && summary.NeedsReview > 0
}

func (s *Service) GetFeedback(ctx context.Context, actor Actor, activityID int64) (*FeedbackView, error) {
	now := s.now()

	var out FeedbackView
	err := s.repo.WithinTx(ctx, func(tx Tx) error {
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
		fb, err := tx.GetFeedback(ctx, reg.ID)
		if err != nil {
			return err
		}

		out = FeedbackView{
			Registration: *reg,
			Case:         fb,
			Summary:      attendance.Summarize(marks(recorded)),
		}
		out.Eligible = eligible(*reg, out.Summary)
		if out.Eligible {
			w := s.feedbackWindow(*reg)
			out.Window = &w
			out.CanSubmit = w.Contains(now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitFeedback lets a participant whose attendance is under review send
// supplementary evidence. Submitting again replaces the previous content.
func (s *Service) SubmitFeedback(ctx context.Context, actor Actor, activityID int64, content string, attachments []string) (*FeedbackCase, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	attachments = cleanAttachments(attachments)
	now := s.now()

	var out FeedbackCase
	var reg Registration
	var orphans []string
	err := s.repo.WithinTx(ctx, func(tx Tx) error {
		orphans = nil
		act, err := tx.GetActivity(ctx, activityID)
		if err != nil {
			return err
		}
		if act == nil {
			return ErrActivityNotFound
		}
		r, err := tx.FindRegistration(ctx, actor.UserID, activityID)
		if err != nil {
			return err
		}
		if r == nil || r.Status == attendance.StatusCanceled {
			return ErrNotRegistered
		}
		reg = *r
		recorded, err := tx.ListEvents(ctx, reg.ID)
		if err != nil {
			return err
		}
		if !eligible(reg, attendance.Summarize(marks(recorded))) {
			return ErrNotEligible
		}
		w := s.feedbackWindow(reg)
		if !w.Contains(now) {
			return ErrFeedbackWindowClosed
		}

		fb, err := tx.GetFeedback(ctx, reg.ID)
		if err != nil {
			return err
		}
		if fb == nil {
			fb = &FeedbackCase{RegistrationID: reg.ID, CreatedAt: now}
		} else {
			orphans, err = unreferenced(ctx, tx, missing(fb.Attachments, attachments), reg.ID)
			if err != nil {
				return err
			}
		}
		fb.Status = FeedbackPending
		fb.Content = content
		fb.Attachments = attachments
		fb.RejectionReason = nil
		fb.WindowStart = w.Start
		fb.WindowEnd = w.End
		fb.UpdatedAt = now
		if err := tx.SaveFeedback(ctx, fb); err != nil {
			return err
		}
		out = *fb
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("User %d submitted feedback %d for registration %d", actor.UserID, out.ID, reg.ID)
	s.discard(orphans...)
	s.emit(ctx, events.FeedbackSubmitted, &reg)
	return &out, nil
}

// Decide records an administrator's binding verdict on a registration. It
// overrides whatever the face matching concluded.
func (s *Service) Decide(ctx context.Context, actor Actor, registrationID int64, decision Decision, note string) (*Registration, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	var next attendance.Status
	switch decision {
	case DecisionApprove:
		next = attendance.StatusAttended
	case DecisionReject:
		next = attendance.StatusAbsent
	default:
		return nil, ErrInvalidDecision
	}
	note = strings.TrimSpace(note)
	now := s.now()

	var out Registration
	err := s.repo.WithinTx(ctx, func(tx Tx) error {
		reg, err := tx.GetRegistration(ctx, registrationID)
		if err != nil {
			return err
		}
		if reg == nil {
			return ErrRegistrationNotFound
		}
		if !reg.Status.CanTransitionTo(next) || reg.Status == attendance.StatusRegistered {
			return ErrInvalidTransition
		}
		fb, err := tx.GetFeedback(ctx, reg.ID)
		if err != nil {
			return err
		}
		if fb != nil {
			if decision == DecisionReject && note == "" {
				return ErrRejectionReasonRequired
			}
			fb.UpdatedAt = now
			if decision == DecisionApprove {
				fb.Status = FeedbackAccepted
				fb.RejectionReason = nil
			} else {
				fb.Status = FeedbackRejected
				fb.RejectionReason = &note
			}
			if err := tx.SaveFeedback(ctx, fb); err != nil {
				return err
			}
		}

		reg.Status = next
		if decision == DecisionApprove {
			reg.ApprovedAt = &now
		}
		checker := actor.UserID
		reg.AttendanceCheckedBy = &checker
		reg.ReviewNote = note
		reg.UpdatedAt = now
		if err := tx.UpdateRegistration(ctx, reg); err != nil {
			return err
		}
		out = *reg
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Admin %d decided %s on registration %d", actor.UserID, decision, out.ID)
	s.emit(ctx, events.ReviewDecided, &out)
	return &out, nil
}

func cleanAttachments(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, a := range in {
		a = strings.TrimSpace(a)
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

// unreferenced keeps the refs that nothing outside the given registration's
// feedback case points to.
func unreferenced(ctx context.Context, tx Tx, refs []string, registrationID int64) ([]string, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	inUse, err := tx.ReferencedEvidence(ctx, refs, registrationID)
	if err != nil {
		return nil, err
	}
	return missing(refs, inUse), nil
}

// missing returns the entries of before that are absent from after.
func missing(before, after []string) []string {
	keep := make(map[string]bool, len(after))
	for _, a := range after {
		keep[a] = true
	}
	var out []string
	for _, b := range before {
		if !keep[b] {
			out = append(out, b)
		}
	}
	return out
}

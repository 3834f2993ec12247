// Package registration admits users into activities and drives their
// registrations through attendance verification and review.
package registration

import (
	"context"
	"log"
	"strings"
	"time"

	"service_hours_backend/domain/attendance"
	"service_hours_backend/domain/facematch"
	"service_hours_backend/events"
	"service_hours_backend/storage"
)

const DefaultFeedbackWindow = 72 * time.Hour

type Policy struct {
	Attendance          attendance.Policy
	MatchThreshold      float64
	DescriptorDimension int
	MinDescriptors      int
	// FeedbackOffset delays the opening of the feedback window.
	FeedbackOffset time.Duration
	FeedbackWindow time.Duration
	// CheckoutGrace lets check-out happen a little after the activity ends.
	CheckoutGrace time.Duration
	// RequireProfile rejects attendance from users who never enrolled instead
	// of sending their captures to review.
	RequireProfile bool
}

func DefaultPolicy() Policy {
	return Policy{
		Attendance:          attendance.DefaultPolicy(),
		MatchThreshold:      facematch.DefaultThreshold,
		DescriptorDimension: facematch.DefaultDimension,
		MinDescriptors:      facematch.DefaultMinReferences,
		FeedbackWindow:      DefaultFeedbackWindow,
	}
}

type Service struct {
	repo      Repository
	evidence  storage.EvidenceStore
	publisher events.Publisher
	evaluator facematch.Evaluator
	policy    Policy
	now       func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, evidence storage.EvidenceStore, publisher events.Publisher, policy Policy, opts ...Option) *Service {
	if policy.FeedbackWindow <= 0 {
		policy.FeedbackWindow = DefaultFeedbackWindow
	}
	s := &Service{
		repo:      repo,
		evidence:  evidence,
		publisher: publisher,
		evaluator: facematch.New(policy.MatchThreshold, policy.DescriptorDimension, policy.MinDescriptors),
		policy:    policy,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register admits the actor into an activity, reopening a canceled
// registration when one exists.
func (s *Service) Register(ctx context.Context, actor Actor, activityID int64, note string) (*Enrollment, error) {
	now := s.now()
	note = strings.TrimSpace(note)

	var out Enrollment
	var created bool
	var stale []string
	err := s.repo.WithinTx(ctx, func(tx Tx) error {
		if err := tx.LockUser(ctx, actor.UserID); err != nil {
			return err
		}
		act, err := tx.LockActivity(ctx, activityID)
		if err != nil {
			return err
		}
		if act == nil || !act.Published {
			return ErrActivityNotFound
		}
		if !now.Before(act.StartAt) {
			return ErrDeadlinePassed
		}
		if act.RegistrationDeadline != nil && !now.Before(*act.RegistrationDeadline) {
			return ErrDeadlinePassed
		}

		existing, err := tx.FindRegistration(ctx, actor.UserID, activityID)
		if err != nil {
			return err
		}
		if existing != nil && existing.Status != attendance.StatusCanceled {
			return ErrAlreadyRegistered
		}

		conflict, err := tx.HasScheduleConflict(ctx, actor.UserID, *act)
		if err != nil {
			return err
		}
		if conflict {
			return ErrScheduleConflict
		}

		count, err := tx.CountActive(ctx, activityID)
		if err != nil {
			return err
		}
		if act.Capacity != nil && count+1 > *act.Capacity {
			return ErrCapacityExceeded
		}

		reg := Registration{UserID: actor.UserID, ActivityID: activityID}
		stale = nil
		if existing != nil {
			refs, err := cycleRefs(ctx, tx, existing.ID)
			if err != nil {
				return err
			}
			if err := tx.ResetCycle(ctx, existing.ID); err != nil {
				return err
			}
			if stale, err = unreferenced(ctx, tx, refs, existing.ID); err != nil {
				return err
			}
			reg.ID = existing.ID
		}
		reg.Status = attendance.StatusRegistered
		reg.RegisteredAt = now
		reg.ApprovedAt = &now
		reg.Note = note
		reg.UpdatedAt = now

		created = existing == nil
		if created {
			err = tx.InsertRegistration(ctx, &reg)
		} else {
			err = tx.UpdateRegistration(ctx, &reg)
		}
		if err != nil {
			return err
		}

		out = Enrollment{Registration: reg, Activity: *act, ActiveCount: count + 1}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		log.Printf("User %d registered for activity %d", actor.UserID, activityID)
	} else {
		log.Printf("User %d reopened registration %d for activity %d", actor.UserID, out.Registration.ID, activityID)
	}
	s.discard(stale...)
	s.emit(ctx, events.RegistrationCreated, &out.Registration)
	return &out, nil
}

// Cancel gives the actor's seat back.
func (s *Service) Cancel(ctx context.Context, actor Actor, activityID int64, reason, note string) (*Registration, error) {
	now := s.now()

	var out Registration
	err := s.repo.WithinTx(ctx, func(tx Tx) error {
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
		if reg == nil {
			return ErrNotRegistered
		}
		if reg.Status == attendance.StatusCanceled {
			return ErrAlreadyCanceled
		}
		if act.CancellationDeadline != nil && now.After(*act.CancellationDeadline) {
			return ErrCancellationClosed
		}
		if !reg.Status.CanTransitionTo(attendance.StatusCanceled) {
			return ErrInvalidTransition
		}

		reg.Status = attendance.StatusCanceled
		reg.CanceledAt = &now
		if reason = strings.TrimSpace(reason); reason != "" {
			reg.CancelReason = &reason
		} else {
			reg.CancelReason = nil
		}
		if note = strings.TrimSpace(note); note != "" {
			reg.Note = note
		}
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

	log.Printf("User %d canceled registration %d", actor.UserID, out.ID)
	s.emit(ctx, events.RegistrationCanceled, &out)
	return &out, nil
}

// cycleRefs lists the blobs held by the attendance log and feedback case of
// a registration.
func cycleRefs(ctx context.Context, tx Tx, registrationID int64) ([]string, error) {
	recorded, err := tx.ListEvents(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	var refs []string
	for _, e := range recorded {
		refs = append(refs, e.EvidenceRef)
	}
	fb, err := tx.GetFeedback(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if fb != nil {
		refs = append(refs, fb.Attachments...)
	}
	return cleanAttachments(refs), nil
}

// ListForUser returns the actor's registrations after marking the ones whose
// activity ended without any attendance as absent.
func (s *Service) ListForUser(ctx context.Context, actor Actor) ([]Enrollment, error) {
	n, err := s.repo.MarkMissedAbsent(ctx, actor.UserID, s.now())
	if err != nil {
		return nil, err
	}
	if n > 0 {
		log.Printf("Marked %d missed registrations of user %d as absent", n, actor.UserID)
	}
	return s.repo.ListByUser(ctx, actor.UserID)
}

func (s *Service) emit(ctx context.Context, t events.Type, reg *Registration) {
	e := events.New(t, reg.ID, reg.UserID, reg.ActivityID, string(reg.Status), s.now())
	if err := s.publisher.Publish(ctx, e); err != nil {
		log.Printf("Error publishing %s for registration %d: %v", t, reg.ID, err)
	}
}

// discard removes blobs that nothing refers to anymore. It does not wait.
func (s *Service) discard(refs ...string) {
	if len(refs) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		for _, ref := range refs {
			if err := s.evidence.Delete(ctx, ref); err != nil {
				log.Printf("Error deleting orphaned evidence %s: %v", ref, err)
			}
		}
	}()
}

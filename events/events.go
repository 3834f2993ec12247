// Package events carries domain events to the notification collaborator.
package events

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	RegistrationCreated  Type = "registration.created"
	RegistrationCanceled Type = "registration.canceled"
	AttendanceRecorded   Type = "attendance.recorded"
	FeedbackSubmitted    Type = "feedback.submitted"
	ReviewDecided        Type = "review.decided"
)

type Event struct {
	ID             string    `json:"id"`
	Type           Type      `json:"type"`
	RegistrationID int64     `json:"registration_id"`
	UserID         int64     `json:"user_id"`
	ActivityID     int64     `json:"activity_id"`
	Status         string    `json:"status"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func New(t Type, registrationID, userID, activityID int64, status string, at time.Time) Event {
	return Event{
		ID:             uuid.NewString(),
		Type:           t,
		RegistrationID: registrationID,
		UserID:         userID,
		ActivityID:     activityID,
		Status:         status,
		OccurredAt:     at,
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// LogPublisher only writes events to the log. Used when no broker is set up.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, e Event) error {
	log.Printf("Event %s: %s registration=%d user=%d activity=%d status=%s",
		e.ID, e.Type, e.RegistrationID, e.UserID, e.ActivityID, e.Status)
	return nil
}

type asyncPublisher struct {
	next    Publisher
	timeout time.Duration
}

// Async returns a Publisher that hands every event to next on its own
// goroutine and returns immediately. Delivery failures are logged.
func Async(next Publisher, timeout time.Duration) Publisher {
	return &asyncPublisher{next: next, timeout: timeout}
}

func (p *asyncPublisher) Publish(_ context.Context, e Event) error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		if err := p.next.Publish(ctx, e); err != nil {
			log.Printf("Error publishing event %s (%s): %v", e.ID, e.Type, err)
		}
	}()
	return nil
}

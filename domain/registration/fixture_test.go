package registration_test

import (
	"errors"
	"testing"
	"time"

	"service_hours_backend/domain/attendance"
	"service_hours_backend/domain/facematch"
	"service_hours_backend/domain/registration"
)

var base = time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	store *memStore
	blobs *blobs
	rec   *recorder
	svc   *registration.Service
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, registration.DefaultPolicy())
}

func newFixtureWith(t *testing.T, policy registration.Policy) *fixture {
	t.Helper()
	f := &fixture{store: newMemStore(), blobs: newBlobs(), rec: &recorder{}, now: base}
	f.svc = registration.NewService(f.store, f.blobs, f.rec, policy,
		registration.WithClock(func() time.Time { return f.now }))
	return f
}

// addActivity creates a published activity running from start to start+2h.
func (f *fixture) addActivity(id int64, start time.Time, capacity *int) registration.Activity {
	a := registration.Activity{
		ID:        id,
		Title:     "Beach clean-up",
		Published: true,
		StartAt:   start,
		EndAt:     start.Add(2 * time.Hour),
		Capacity:  capacity,
	}
	f.store.activities[id] = a
	return a
}

func (f *fixture) enroll(userID int64) {
	f.store.profiles[userID] = registration.Profile{
		UserID: userID,
		Descriptors: []facematch.Descriptor{
			descriptor(0), descriptor(0.01), descriptor(0.02),
		},
	}
}

func (f *fixture) registration(t *testing.T, userID, activityID int64) registration.Registration {
	t.Helper()
	for _, r := range f.store.registrations {
		if r.UserID == userID && r.ActivityID == activityID {
			return r
		}
	}
	t.Fatalf("no registration for user %d on activity %d", userID, activityID)
	return registration.Registration{}
}

func descriptor(fill float64) facematch.Descriptor {
	d := make(facematch.Descriptor, facematch.DefaultDimension)
	for i := range d {
		d[i] = fill
	}
	return d
}

// matching is a capture close to the enrolled descriptors.
func matching() facematch.Capture { return facematch.Capture{Descriptor: descriptor(0.005)} }

// stranger is a capture far from the enrolled descriptors.
func stranger() facematch.Capture { return facematch.Capture{Descriptor: descriptor(1)} }

func attend(phase attendance.Phase, capture facematch.Capture) registration.AttendanceInput {
	return registration.AttendanceInput{
		Phase:    phase,
		Evidence: registration.Evidence{Data: []byte("jpeg"), ContentType: "image/jpeg"},
		Capture:  capture,
	}
}

func intp(n int) *int { return &n }

func timep(t time.Time) *time.Time { return &t }

func user(id int64) registration.Actor { return registration.Actor{UserID: id, Role: "student"} }

func admin(id int64) registration.Actor {
	return registration.Actor{UserID: id, Role: registration.RoleAdmin}
}

func wantErr(t *testing.T, got, want error) {
	t.Helper()
	if !errors.Is(got, want) {
		t.Fatalf("got error %v, want %v", got, want)
	}
}

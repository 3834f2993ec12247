package registration_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"service_hours_backend/domain/attendance"
	"service_hours_backend/domain/registration"
	"service_hours_backend/events"
)

// memStore is a Repository kept in memory. A transaction holds the store
// lock for its whole duration and rolls back to a snapshot on error.
type memStore struct {
	mu            sync.Mutex
	nextID        int64
	activities    map[int64]registration.Activity
	registrations map[int64]registration.Registration
	events        map[int64][]registration.Event
	feedback      map[int64]registration.FeedbackCase
	profiles      map[int64]registration.Profile
}

func newMemStore() *memStore {
	return &memStore{
		activities:    map[int64]registration.Activity{},
		registrations: map[int64]registration.Registration{},
		events:        map[int64][]registration.Event{},
		feedback:      map[int64]registration.FeedbackCase{},
		profiles:      map[int64]registration.Profile{},
	}
}

type snapshot struct {
	nextID        int64
	registrations map[int64]registration.Registration
	events        map[int64][]registration.Event
	feedback      map[int64]registration.FeedbackCase
}

func (m *memStore) snapshot() snapshot {
	s := snapshot{
		nextID:        m.nextID,
		registrations: make(map[int64]registration.Registration, len(m.registrations)),
		events:        make(map[int64][]registration.Event, len(m.events)),
		feedback:      make(map[int64]registration.FeedbackCase, len(m.feedback)),
	}
	for k, v := range m.registrations {
		s.registrations[k] = v
	}
	for k, v := range m.events {
		s.events[k] = append([]registration.Event(nil), v...)
	}
	for k, v := range m.feedback {
		s.feedback[k] = v
	}
	return s
}

func (m *memStore) restore(s snapshot) {
	m.nextID = s.nextID
	m.registrations = s.registrations
	m.events = s.events
	m.feedback = s.feedback
}

func (m *memStore) WithinTx(ctx context.Context, fn func(tx registration.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshot()
	if err := fn(memTx{m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memStore) GetProfile(ctx context.Context, userID int64) (*registration.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memStore) ListByUser(ctx context.Context, userID int64) ([]registration.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []registration.Enrollment
	for _, r := range m.registrations {
		if r.UserID != userID {
			continue
		}
		out = append(out, registration.Enrollment{
			Registration: r,
			Activity:     m.activities[r.ActivityID],
			ActiveCount:  m.countActive(r.ActivityID),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Registration.ID < out[j].Registration.ID })
	return out, nil
}

func (m *memStore) MarkMissedAbsent(ctx context.Context, userID int64, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.registrations {
		if r.UserID != userID {
			continue
		}
		act := m.activities[r.ActivityID]
		if attendance.Missed(r.Status, len(m.events[id]) > 0, act.EndAt, now) {
			r.Status = attendance.StatusAbsent
			r.UpdatedAt = now
			m.registrations[id] = r
			n++
		}
	}
	return n, nil
}

func (m *memStore) countActive(activityID int64) int {
	n := 0
	for _, r := range m.registrations {
		if r.ActivityID == activityID && r.Status.Active() {
			n++
		}
	}
	return n
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

type memTx struct{ m *memStore }

func (t memTx) LockUser(ctx context.Context, userID int64) error { return nil }

func (t memTx) LockActivity(ctx context.Context, activityID int64) (*registration.Activity, error) {
	return t.GetActivity(ctx, activityID)
}

func (t memTx) GetActivity(ctx context.Context, activityID int64) (*registration.Activity, error) {
	a, ok := t.m.activities[activityID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (t memTx) FindRegistration(ctx context.Context, userID, activityID int64) (*registration.Registration, error) {
	for _, r := range t.m.registrations {
		if r.UserID == userID && r.ActivityID == activityID {
			return &r, nil
		}
	}
	return nil, nil
}

func (t memTx) GetRegistration(ctx context.Context, id int64) (*registration.Registration, error) {
	r, ok := t.m.registrations[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (t memTx) CountActive(ctx context.Context, activityID int64) (int, error) {
	return t.m.countActive(activityID), nil
}

func (t memTx) HasScheduleConflict(ctx context.Context, userID int64, a registration.Activity) (bool, error) {
	for _, r := range t.m.registrations {
		if r.UserID != userID || r.ActivityID == a.ID || !r.Status.Active() {
			continue
		}
		if t.m.activities[r.ActivityID].Overlaps(a) {
			return true, nil
		}
	}
	return false, nil
}

func (t memTx) InsertRegistration(ctx context.Context, r *registration.Registration) error {
	r.ID = t.m.id()
	t.m.registrations[r.ID] = *r
	return nil
}

func (t memTx) UpdateRegistration(ctx context.Context, r *registration.Registration) error {
	t.m.registrations[r.ID] = *r
	return nil
}

func (t memTx) ResetCycle(ctx context.Context, registrationID int64) error {
	delete(t.m.events, registrationID)
	delete(t.m.feedback, registrationID)
	return nil
}

func (t memTx) ReferencedEvidence(ctx context.Context, refs []string, registrationID int64) ([]string, error) {
	used := map[string]bool{}
	for _, evs := range t.m.events {
		for _, e := range evs {
			used[e.EvidenceRef] = true
		}
	}
	for id, fc := range t.m.feedback {
		if id == registrationID {
			continue
		}
		for _, a := range fc.Attachments {
			used[a] = true
		}
	}
	for _, p := range t.m.profiles {
		for _, r := range p.SampleRefs {
			used[r] = true
		}
	}
	var out []string
	for _, r := range refs {
		if used[r] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t memTx) ListEvents(ctx context.Context, registrationID int64) ([]registration.Event, error) {
	return append([]registration.Event(nil), t.m.events[registrationID]...), nil
}

func (t memTx) AppendEvent(ctx context.Context, e *registration.Event) error {
	e.ID = t.m.id()
	t.m.events[e.RegistrationID] = append(t.m.events[e.RegistrationID], *e)
	return nil
}

func (t memTx) GetFeedback(ctx context.Context, registrationID int64) (*registration.FeedbackCase, error) {
	f, ok := t.m.feedback[registrationID]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (t memTx) SaveFeedback(ctx context.Context, f *registration.FeedbackCase) error {
	if f.ID == 0 {
		f.ID = t.m.id()
	}
	t.m.feedback[f.RegistrationID] = *f
	return nil
}

// recorder collects published events synchronously.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// blobs is an EvidenceStore that remembers what was put and deleted.
type blobs struct {
	mu      sync.Mutex
	n       int
	putErr  error
	stored  map[string][]byte
	deleted chan string
}

func newBlobs() *blobs {
	return &blobs{stored: map[string][]byte{}, deleted: make(chan string, 16)}
}

func (b *blobs) Put(_ context.Context, data []byte, _ string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.putErr != nil {
		return "", b.putErr
	}
	b.n++
	ref := "evidence/blob-" + string(rune('a'+b.n-1))
	b.stored[ref] = data
	return ref, nil
}

func (b *blobs) Delete(_ context.Context, ref string) error {
	b.mu.Lock()
	delete(b.stored, ref)
	b.mu.Unlock()
	b.deleted <- ref
	return nil
}

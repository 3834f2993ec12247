package db

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"

	"service_hours_backend/domain/attendance"
	"service_hours_backend/domain/facematch"
	"service_hours_backend/domain/registration"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
	return NewStore(conn), mock
}

func pqErr(code string) error {
	return &pq.Error{Code: pq.ErrorCode(code)}
}

func TestWithinTx(t *testing.T) {
	lock := regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")

	t.Run("commits when fn succeeds", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(lock).WithArgs(int64(7)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := store.WithinTx(context.Background(), func(tx registration.Tx) error {
			return tx.LockUser(context.Background(), 7)
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("rolls back when fn fails", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := store.WithinTx(context.Background(), func(tx registration.Tx) error {
			return registration.ErrCapacityExceeded
		})
		if !errors.Is(err, registration.ErrCapacityExceeded) {
			t.Fatalf("got %v, want %v", err, registration.ErrCapacityExceeded)
		}
	})

	t.Run("retries after a deadlock", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(lock).WillReturnError(pqErr(pgerrcode.DeadlockDetected))
		mock.ExpectRollback()
		mock.ExpectBegin()
		mock.ExpectExec(lock).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := store.WithinTx(context.Background(), func(tx registration.Tx) error {
			return tx.LockUser(context.Background(), 7)
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestIsRetryable(t *testing.T) {
	for name, testcase := range map[string]struct {
		err  error
		want bool
	}{
		"deadlock":              {err: pqErr(pgerrcode.DeadlockDetected), want: true},
		"serialization":         {err: pqErr(pgerrcode.SerializationFailure), want: true},
		"unique violation":      {err: pqErr(pgerrcode.UniqueViolation), want: false},
		"plain error":           {err: errors.New("boom"), want: false},
		"nil":                   {err: nil, want: false},
		"wrapped serialization": {err: errors.Join(errors.New("ctx"), pqErr(pgerrcode.SerializationFailure)), want: true},
	} {
		t.Run(name, func(t *testing.T) {
			if got := IsRetryable(testcase.err); got != testcase.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", testcase.err, got, testcase.want)
			}
		})
	}
}

func TestInsertRegistration_uniqueViolation(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO registrations")).
		WillReturnError(pqErr(pgerrcode.UniqueViolation))
	mock.ExpectRollback()

	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	err := store.WithinTx(context.Background(), func(tx registration.Tx) error {
		return tx.InsertRegistration(context.Background(), &registration.Registration{
			UserID: 1, ActivityID: 2, Status: attendance.StatusRegistered, RegisteredAt: now, UpdatedAt: now,
		})
	})
	if !errors.Is(err, registration.ErrAlreadyRegistered) {
		t.Fatalf("got %v, want %v", err, registration.ErrAlreadyRegistered)
	}
}

func TestAppendEvent_uniqueViolation(t *testing.T) {
	for name, testcase := range map[string]struct {
		phase attendance.Phase
		want  error
	}{
		"check-in":  {phase: attendance.PhaseCheckIn, want: registration.ErrDuplicateCheckIn},
		"check-out": {phase: attendance.PhaseCheckOut, want: registration.ErrDuplicateCheckOut},
	} {
		t.Run(name, func(t *testing.T) {
			store, mock := newMock(t)
			mock.ExpectBegin()
			mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO attendance_events")).
				WillReturnError(pqErr(pgerrcode.UniqueViolation))
			mock.ExpectRollback()

			err := store.WithinTx(context.Background(), func(tx registration.Tx) error {
				return tx.AppendEvent(context.Background(), &registration.Event{
					RegistrationID: 3, Phase: testcase.phase, Status: attendance.StatusCheckedIn,
				})
			})
			if !errors.Is(err, testcase.want) {
				t.Fatalf("got %v, want %v", err, testcase.want)
			}
		})
	}
}

func TestAppendEvent_storesNullVerdict(t *testing.T) {
	store, mock := newMock(t)
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO attendance_events")).
		WithArgs(int64(3), "checkin", "pending_review", "", "evidence/a.jpg", nil, nil, sqlmock.AnyArg(), now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectCommit()

	e := &registration.Event{
		RegistrationID: 3, Phase: attendance.PhaseCheckIn, Status: attendance.StatusPendingReview,
		EvidenceRef: "evidence/a.jpg", CreatedAt: now,
	}
	err := store.WithinTx(context.Background(), func(tx registration.Tx) error {
		return tx.AppendEvent(context.Background(), e)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ID != 11 {
		t.Errorf("ID = %d, want 11", e.ID)
	}
}

func TestGetProfile(t *testing.T) {
	query := regexp.QuoteMeta("FROM face_profiles")

	t.Run("missing profile", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectQuery(query).WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "descriptors", "sample_refs", "updated_at"}))

		p, err := store.GetProfile(context.Background(), 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p != nil {
			t.Errorf("got %+v, want nil", p)
		}
	})

	t.Run("decodes descriptors", func(t *testing.T) {
		store, mock := newMock(t)
		updated := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
		mock.ExpectQuery(query).WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "descriptors", "sample_refs", "updated_at"}).
				AddRow(int64(5), []byte(`[[0.1,0.2],[0.3,0.4]]`), []byte(`{samples/a.jpg,samples/b.jpg}`), updated))

		p, err := store.GetProfile(context.Background(), 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(p.Descriptors) != 2 || p.Descriptors[1][0] != 0.3 {
			t.Errorf("descriptors = %v", p.Descriptors)
		}
		if len(p.SampleRefs) != 2 || p.SampleRefs[0] != "samples/a.jpg" {
			t.Errorf("sample refs = %v", p.SampleRefs)
		}
	})
}

func TestListEvents(t *testing.T) {
	store, mock := newMock(t)
	at := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	cols := []string{"id", "registration_id", "phase", "status", "note", "evidence_ref", "verdict", "score", "meta", "created_at"}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance_events")).WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(1), int64(3), "checkin", "checked_in", "", "evidence/a.jpg", "approved", 0.12,
				[]byte(`{"source":"face_profile","threshold":0.5,"references":3}`), at).
			AddRow(int64(2), int64(3), "checkout", "pending_review", "late", "evidence/b.jpg", nil, nil,
				[]byte(`{"source":"none","reason":"missing_profile"}`), at.Add(time.Hour)))
	mock.ExpectCommit()

	var got []registration.Event
	err := store.WithinTx(context.Background(), func(tx registration.Tx) error {
		var err error
		got, err = tx.ListEvents(context.Background(), 3)
		return err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].Verdict != facematch.VerdictApproved || got[0].Score == nil || *got[0].Score != 0.12 {
		t.Errorf("first event = %+v", got[0])
	}
	if got[0].Meta.Source != registration.SourceFaceProfile {
		t.Errorf("first event meta = %+v", got[0].Meta)
	}
	if got[1].Verdict != facematch.VerdictNone || got[1].Score != nil {
		t.Errorf("second event = %+v", got[1])
	}
	if got[1].Phase != attendance.PhaseCheckOut || got[1].Meta.Reason != facematch.ReasonMissingProfile {
		t.Errorf("second event = %+v", got[1])
	}
}

func TestMarkMissedAbsent(t *testing.T) {
	store, mock := newMock(t)
	now := time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE registrations r")).
		WithArgs(int64(4), now, "absent", "registered").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := store.MarkMissedAbsent(context.Background(), 4, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("affected = %d, want 2", n)
	}
}

func TestFindRegistration(t *testing.T) {
	store, mock := newMock(t)
	at := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	cols := []string{
		"id", "user_id", "activity_id", "status", "registered_at", "approved_at", "canceled_at",
		"cancel_reason", "note", "last_checkin_at", "last_checkin_note", "attendance_checked_by",
		"review_note", "updated_at",
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM registrations")).WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(9), int64(1), int64(2), "canceled", at, at, at.Add(time.Hour),
				"sick", "", nil, "", nil, "", at.Add(time.Hour)))
	mock.ExpectCommit()

	var got *registration.Registration
	err := store.WithinTx(context.Background(), func(tx registration.Tx) error {
		var err error
		got, err = tx.FindRegistration(context.Background(), 1, 2)
		return err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != attendance.StatusCanceled {
		t.Errorf("status = %s, want canceled", got.Status)
	}
	if got.CancelReason == nil || *got.CancelReason != "sick" {
		t.Errorf("cancel reason = %v", got.CancelReason)
	}
	if got.LastCheckInAt != nil || got.AttendanceCheckedBy != nil {
		t.Errorf("expected nil check-in fields, got %+v", got)
	}
}

func TestReferencedEvidence(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM unnest($1::text[]) AS ref")).
		WithArgs(sqlmock.AnyArg(), int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"ref"}).AddRow("evidence/a.jpg"))
	mock.ExpectCommit()

	var got []string
	err := store.WithinTx(context.Background(), func(tx registration.Tx) error {
		if none, err := tx.ReferencedEvidence(context.Background(), nil, 9); err != nil || none != nil {
			t.Errorf("empty refs: got %v, %v", none, err)
		}
		var err error
		got, err = tx.ReferencedEvidence(context.Background(), []string{"evidence/a.jpg", "evidence/b.jpg"}, 9)
		return err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != "evidence/a.jpg" {
		t.Errorf("referenced = %v, want [evidence/a.jpg]", got)
	}
}

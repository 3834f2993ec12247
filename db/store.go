package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/lib/pq"

	"service_hours_backend/domain/attendance"
	"service_hours_backend/domain/facematch"
	"service_hours_backend/domain/registration"
)

const maxTxAttempts = 3

var activeStatuses = pq.Array([]string{
	string(attendance.StatusRegistered),
	string(attendance.StatusCheckedIn),
	string(attendance.StatusPendingReview),
})

// Store implements registration.Repository on Postgres.
type Store struct {
	db *sql.DB
}

var _ registration.Repository = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// WithinTx runs fn in a transaction. Deadlocks and serialization failures
// are retried a few times before giving up.
func (s *Store) WithinTx(ctx context.Context, fn func(tx registration.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.withinTx(ctx, fn)
		if !IsRetryable(err) {
			return err
		}
		log.Printf("Retrying transaction after attempt %d: %v", attempt, err)
	}
	return err
}

func (s *Store) withinTx(ctx context.Context, fn func(tx registration.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

func (s *Store) GetProfile(ctx context.Context, userID int64) (*registration.Profile, error) {
	var p registration.Profile
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, descriptors, sample_refs, updated_at
		FROM face_profiles
		WHERE user_id = $1
	`, userID).Scan(&p.UserID, &raw, pq.Array(&p.SampleRefs), &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching face profile: %w", err)
	}
	if err := json.Unmarshal(raw, &p.Descriptors); err != nil {
		return nil, fmt.Errorf("error decoding face descriptors of user %d: %w", userID, err)
	}
	return &p, nil
}

func (s *Store) ListByUser(ctx context.Context, userID int64) ([]registration.Enrollment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+registrationColumns("r.")+`, `+activityColumns("a.")+`,
			(SELECT COUNT(*) FROM registrations c WHERE c.activity_id = a.id AND c.status = ANY($2))
		FROM registrations r
		JOIN activities a ON a.id = r.activity_id
		WHERE r.user_id = $1
		ORDER BY a.start_at DESC, r.id DESC
	`, userID, activeStatuses)
	if err != nil {
		return nil, fmt.Errorf("error fetching registrations: %w", err)
	}
	defer rows.Close()

	var out []registration.Enrollment
	for rows.Next() {
		var r registrationRow
		var a activityRow
		var e registration.Enrollment
		dest := append(r.dest(), a.dest()...)
		if err := rows.Scan(append(dest, &e.ActiveCount)...); err != nil {
			return nil, fmt.Errorf("error scanning registration: %w", err)
		}
		if e.Registration, err = r.registration(); err != nil {
			return nil, err
		}
		e.Activity = a.activity()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating registrations: %w", err)
	}
	return out, nil
}

func (s *Store) MarkMissedAbsent(ctx context.Context, userID int64, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE registrations r
		SET status = $3, updated_at = $2
		FROM activities a
		WHERE a.id = r.activity_id
			AND r.user_id = $1
			AND r.status = $4
			AND a.end_at < $2
			AND NOT EXISTS (SELECT 1 FROM attendance_events e WHERE e.registration_id = r.id)
	`, userID, now, string(attendance.StatusAbsent), string(attendance.StatusRegistered))
	if err != nil {
		return 0, fmt.Errorf("error marking missed registrations: %w", err)
	}
	return res.RowsAffected()
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) LockUser(ctx context.Context, userID int64) error {
	if _, err := t.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, userID); err != nil {
		return fmt.Errorf("error locking user %d: %w", userID, err)
	}
	return nil
}

func (t *pgTx) LockActivity(ctx context.Context, activityID int64) (*registration.Activity, error) {
	return t.activity(ctx, `SELECT `+activityColumns("")+` FROM activities WHERE id = $1 FOR UPDATE`, activityID)
}

func (t *pgTx) GetActivity(ctx context.Context, activityID int64) (*registration.Activity, error) {
	return t.activity(ctx, `SELECT `+activityColumns("")+` FROM activities WHERE id = $1`, activityID)
}

func (t *pgTx) activity(ctx context.Context, query string, activityID int64) (*registration.Activity, error) {
	var a activityRow
	err := t.tx.QueryRowContext(ctx, query, activityID).Scan(a.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching activity %d: %w", activityID, err)
	}
	act := a.activity()
	return &act, nil
}

func (t *pgTx) FindRegistration(ctx context.Context, userID, activityID int64) (*registration.Registration, error) {
	return t.registration(ctx, `
		SELECT `+registrationColumns("")+`
		FROM registrations
		WHERE user_id = $1 AND activity_id = $2
		FOR UPDATE
	`, userID, activityID)
}

func (t *pgTx) GetRegistration(ctx context.Context, registrationID int64) (*registration.Registration, error) {
	return t.registration(ctx, `
		SELECT `+registrationColumns("")+`
		FROM registrations
		WHERE id = $1
		FOR UPDATE
	`, registrationID)
}

func (t *pgTx) registration(ctx context.Context, query string, args ...any) (*registration.Registration, error) {
	var r registrationRow
	err := t.tx.QueryRowContext(ctx, query, args...).Scan(r.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching registration: %w", err)
	}
	reg, err := r.registration()
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func (t *pgTx) CountActive(ctx context.Context, activityID int64) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM registrations WHERE activity_id = $1 AND status = ANY($2)
	`, activityID, activeStatuses).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("error counting registrations: %w", err)
	}
	return n, nil
}

func (t *pgTx) HasScheduleConflict(ctx context.Context, userID int64, a registration.Activity) (bool, error) {
	var conflict bool
	err := t.tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM registrations r
			JOIN activities a ON a.id = r.activity_id
			WHERE r.user_id = $1
				AND r.activity_id <> $2
				AND r.status = ANY($3)
				AND a.start_at < $5
				AND $4 < a.end_at
		)
	`, userID, a.ID, activeStatuses, a.StartAt, a.EndAt).Scan(&conflict)
	if err != nil {
		return false, fmt.Errorf("error checking schedule conflicts: %w", err)
	}
	return conflict, nil
}

func (t *pgTx) InsertRegistration(ctx context.Context, r *registration.Registration) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO registrations (
			user_id, activity_id, status, registered_at, approved_at, canceled_at, cancel_reason,
			note, last_checkin_at, last_checkin_note, attendance_checked_by, review_note, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`,
		r.UserID, r.ActivityID, string(r.Status), r.RegisteredAt, nullTime(r.ApprovedAt), nullTime(r.CanceledAt),
		nullString(r.CancelReason), r.Note, nullTime(r.LastCheckInAt), r.LastCheckInNote,
		nullInt64(r.AttendanceCheckedBy), r.ReviewNote, r.UpdatedAt,
	).Scan(&r.ID)
	if isUniqueViolation(err) {
		return registration.ErrAlreadyRegistered
	}
	if err != nil {
		return fmt.Errorf("error creating registration: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateRegistration(ctx context.Context, r *registration.Registration) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE registrations
		SET status = $2, registered_at = $3, approved_at = $4, canceled_at = $5, cancel_reason = $6,
			note = $7, last_checkin_at = $8, last_checkin_note = $9, attendance_checked_by = $10,
			review_note = $11, updated_at = $12
		WHERE id = $1
	`,
		r.ID, string(r.Status), r.RegisteredAt, nullTime(r.ApprovedAt), nullTime(r.CanceledAt),
		nullString(r.CancelReason), r.Note, nullTime(r.LastCheckInAt), r.LastCheckInNote,
		nullInt64(r.AttendanceCheckedBy), r.ReviewNote, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("error updating registration %d: %w", r.ID, err)
	}
	return nil
}

func (t *pgTx) ResetCycle(ctx context.Context, registrationID int64) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM attendance_events WHERE registration_id = $1`, registrationID); err != nil {
		return fmt.Errorf("error clearing attendance events: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM feedback_cases WHERE registration_id = $1`, registrationID); err != nil {
		return fmt.Errorf("error clearing feedback case: %w", err)
	}
	return nil
}

func (t *pgTx) ReferencedEvidence(ctx context.Context, refs []string, registrationID int64) ([]string, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	rows, err := t.tx.QueryContext(ctx, `
		SELECT ref FROM unnest($1::text[]) AS ref
		WHERE EXISTS (SELECT 1 FROM attendance_events e WHERE e.evidence_ref = ref)
			OR EXISTS (SELECT 1 FROM feedback_cases f WHERE f.registration_id <> $2 AND ref = ANY(f.attachments))
			OR EXISTS (SELECT 1 FROM face_profiles p WHERE ref = ANY(p.sample_refs))
	`, pq.Array(refs), registrationID)
	if err != nil {
		return nil, fmt.Errorf("error checking evidence references: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("error scanning evidence reference: %w", err)
		}
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating evidence references: %w", err)
	}
	return out, nil
}

func (t *pgTx) ListEvents(ctx context.Context, registrationID int64) ([]registration.Event, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, registration_id, phase, status, note, evidence_ref, verdict, score, meta, created_at
		FROM attendance_events
		WHERE registration_id = $1
		ORDER BY id
	`, registrationID)
	if err != nil {
		return nil, fmt.Errorf("error fetching attendance events: %w", err)
	}
	defer rows.Close()

	var out []registration.Event
	for rows.Next() {
		var e registration.Event
		var phase, status string
		var verdict sql.NullString
		var score sql.NullFloat64
		var meta []byte
		if err := rows.Scan(&e.ID, &e.RegistrationID, &phase, &status, &e.Note, &e.EvidenceRef,
			&verdict, &score, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning attendance event: %w", err)
		}
		if e.Phase, err = attendance.ParsePhase(phase); err != nil {
			return nil, err
		}
		if e.Status, err = attendance.ParseStatus(status); err != nil {
			return nil, err
		}
		if e.Verdict, err = facematch.ParseVerdict(verdict.String); err != nil {
			return nil, err
		}
		if score.Valid {
			e.Score = &score.Float64
		}
		if err := json.Unmarshal(meta, &e.Meta); err != nil {
			return nil, fmt.Errorf("error decoding event meta: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attendance events: %w", err)
	}
	return out, nil
}

func (t *pgTx) AppendEvent(ctx context.Context, e *registration.Event) error {
	meta, err := json.Marshal(e.Meta)
	if err != nil {
		return fmt.Errorf("error encoding event meta: %w", err)
	}
	var score sql.NullFloat64
	if e.Score != nil {
		score = sql.NullFloat64{Float64: *e.Score, Valid: true}
	}
	verdict := sql.NullString{String: string(e.Verdict), Valid: e.Verdict != facematch.VerdictNone}

	err = t.tx.QueryRowContext(ctx, `
		INSERT INTO attendance_events (registration_id, phase, status, note, evidence_ref, verdict, score, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, e.RegistrationID, string(e.Phase), string(e.Status), e.Note, e.EvidenceRef, verdict, score, meta, e.CreatedAt,
	).Scan(&e.ID)
	if isUniqueViolation(err) {
		if e.Phase == attendance.PhaseCheckOut {
			return registration.ErrDuplicateCheckOut
		}
		return registration.ErrDuplicateCheckIn
	}
	if err != nil {
		return fmt.Errorf("error appending attendance event: %w", err)
	}
	return nil
}

func (t *pgTx) GetFeedback(ctx context.Context, registrationID int64) (*registration.FeedbackCase, error) {
	var f registration.FeedbackCase
	var status string
	var reason sql.NullString
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, registration_id, status, content, attachments, rejection_reason,
			window_start, window_end, created_at, updated_at
		FROM feedback_cases
		WHERE registration_id = $1
	`, registrationID).Scan(&f.ID, &f.RegistrationID, &status, &f.Content, pq.Array(&f.Attachments),
		&reason, &f.WindowStart, &f.WindowEnd, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching feedback case: %w", err)
	}
	f.Status = registration.FeedbackStatus(status)
	if reason.Valid {
		f.RejectionReason = &reason.String
	}
	return &f, nil
}

func (t *pgTx) SaveFeedback(ctx context.Context, f *registration.FeedbackCase) error {
	attachments := f.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO feedback_cases (
			registration_id, status, content, attachments, rejection_reason,
			window_start, window_end, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (registration_id) DO UPDATE SET
			status = EXCLUDED.status,
			content = EXCLUDED.content,
			attachments = EXCLUDED.attachments,
			rejection_reason = EXCLUDED.rejection_reason,
			window_start = EXCLUDED.window_start,
			window_end = EXCLUDED.window_end,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`, f.RegistrationID, string(f.Status), f.Content, pq.Array(attachments), nullString(f.RejectionReason),
		f.WindowStart, f.WindowEnd, f.CreatedAt, f.UpdatedAt,
	).Scan(&f.ID)
	if err != nil {
		return fmt.Errorf("error saving feedback case: %w", err)
	}
	return nil
}

func registrationColumns(prefix string) string {
	cols := []string{
		"id", "user_id", "activity_id", "status", "registered_at", "approved_at", "canceled_at",
		"cancel_reason", "note", "last_checkin_at", "last_checkin_note", "attendance_checked_by",
		"review_note", "updated_at",
	}
	return prefixed(prefix, cols)
}

func activityColumns(prefix string) string {
	cols := []string{
		"id", "title", "published", "start_at", "end_at",
		"registration_deadline", "cancellation_deadline", "capacity",
	}
	return prefixed(prefix, cols)
}

func prefixed(prefix string, cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = prefix + c
	}
	return strings.Join(out, ", ")
}

type registrationRow struct {
	reg          registration.Registration
	status       string
	approvedAt   sql.NullTime
	canceledAt   sql.NullTime
	cancelReason sql.NullString
	lastCheckIn  sql.NullTime
	checkedBy    sql.NullInt64
}

func (r *registrationRow) dest() []any {
	return []any{
		&r.reg.ID, &r.reg.UserID, &r.reg.ActivityID, &r.status, &r.reg.RegisteredAt, &r.approvedAt,
		&r.canceledAt, &r.cancelReason, &r.reg.Note, &r.lastCheckIn, &r.reg.LastCheckInNote,
		&r.checkedBy, &r.reg.ReviewNote, &r.reg.UpdatedAt,
	}
}

func (r *registrationRow) registration() (registration.Registration, error) {
	status, err := attendance.ParseStatus(r.status)
	if err != nil {
		return registration.Registration{}, err
	}
	reg := r.reg
	reg.Status = status
	reg.ApprovedAt = timePtr(r.approvedAt)
	reg.CanceledAt = timePtr(r.canceledAt)
	reg.LastCheckInAt = timePtr(r.lastCheckIn)
	if r.cancelReason.Valid {
		reg.CancelReason = &r.cancelReason.String
	}
	if r.checkedBy.Valid {
		reg.AttendanceCheckedBy = &r.checkedBy.Int64
	}
	return reg, nil
}

type activityRow struct {
	act                  registration.Activity
	registrationDeadline sql.NullTime
	cancellationDeadline sql.NullTime
	capacity             sql.NullInt64
}

func (a *activityRow) dest() []any {
	return []any{
		&a.act.ID, &a.act.Title, &a.act.Published, &a.act.StartAt, &a.act.EndAt,
		&a.registrationDeadline, &a.cancellationDeadline, &a.capacity,
	}
}

func (a *activityRow) activity() registration.Activity {
	act := a.act
	act.RegistrationDeadline = timePtr(a.registrationDeadline)
	act.CancellationDeadline = timePtr(a.cancellationDeadline)
	if a.capacity.Valid {
		n := int(a.capacity.Int64)
		act.Capacity = &n
	}
	return act
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt64(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}

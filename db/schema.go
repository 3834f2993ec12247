package db

import (
	"context"
	"database/sql"
	"fmt"
)

const Schema = `
-- Activities are managed by the administration service; this engine only reads them.
CREATE TABLE IF NOT EXISTS activities (
    id BIGSERIAL PRIMARY KEY,
    title VARCHAR(255) NOT NULL,
    published BOOLEAN NOT NULL DEFAULT FALSE,
    start_at TIMESTAMPTZ NOT NULL,
    end_at TIMESTAMPTZ NOT NULL,
    registration_deadline TIMESTAMPTZ,
    cancellation_deadline TIMESTAMPTZ,
    capacity INTEGER CHECK (capacity IS NULL OR capacity >= 0),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (start_at < end_at)
);

-- Create registrations table
CREATE TABLE IF NOT EXISTS registrations (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    activity_id BIGINT NOT NULL,
    status VARCHAR(32) NOT NULL CHECK (status IN ('registered', 'checked_in', 'pending_review', 'attended', 'absent', 'canceled')),
    registered_at TIMESTAMPTZ NOT NULL,
    approved_at TIMESTAMPTZ,
    canceled_at TIMESTAMPTZ,
    cancel_reason TEXT,
    note TEXT NOT NULL DEFAULT '',
    last_checkin_at TIMESTAMPTZ,
    last_checkin_note TEXT NOT NULL DEFAULT '',
    attendance_checked_by BIGINT,
    review_note TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    FOREIGN KEY (activity_id) REFERENCES activities(id) ON DELETE CASCADE,
    UNIQUE(user_id, activity_id)
);

CREATE INDEX IF NOT EXISTS registrations_activity_status_idx ON registrations (activity_id, status);

-- Create attendance_events table; one row per phase and registration
CREATE TABLE IF NOT EXISTS attendance_events (
    id BIGSERIAL PRIMARY KEY,
    registration_id BIGINT NOT NULL,
    phase VARCHAR(16) NOT NULL CHECK (phase IN ('checkin', 'checkout')),
    status VARCHAR(32) NOT NULL,
    note TEXT NOT NULL DEFAULT '',
    evidence_ref TEXT NOT NULL,
    verdict VARCHAR(16) CHECK (verdict IN ('approved', 'needs_review')),
    score DOUBLE PRECISION,
    meta JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    FOREIGN KEY (registration_id) REFERENCES registrations(id) ON DELETE CASCADE,
    UNIQUE(registration_id, phase)
);

-- Face profiles are written by the enrollment service
CREATE TABLE IF NOT EXISTS face_profiles (
    user_id BIGINT PRIMARY KEY,
    descriptors JSONB NOT NULL DEFAULT '[]'::jsonb,
    sample_refs TEXT[] NOT NULL DEFAULT '{}',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Create feedback_cases table
CREATE TABLE IF NOT EXISTS feedback_cases (
    id BIGSERIAL PRIMARY KEY,
    registration_id BIGINT NOT NULL UNIQUE,
    status VARCHAR(16) NOT NULL CHECK (status IN ('pending', 'accepted', 'rejected')),
    content TEXT NOT NULL,
    attachments TEXT[] NOT NULL DEFAULT '{}',
    rejection_reason TEXT,
    window_start TIMESTAMPTZ NOT NULL,
    window_end TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    FOREIGN KEY (registration_id) REFERENCES registrations(id) ON DELETE CASCADE
);
`

// InitSchema initializes the database schema
func InitSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, Schema)
	if err != nil {
		return fmt.Errorf("error initializing database schema: %w", err)
	}
	return nil
}

package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// SeedData populates the database with a demo activity and a face profile so
// the check-in flow can be exercised locally.
func SeedData(ctx context.Context, db *sql.DB, now time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	start := now.Add(24 * time.Hour).Truncate(time.Hour)
	activities := []struct {
		title    string
		capacity int
		start    time.Time
	}{
		{"Beach clean-up", 20, start},
		{"Food bank shift", 5, start.Add(48 * time.Hour)},
	}
	for _, a := range activities {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO activities (title, published, start_at, end_at, registration_deadline, cancellation_deadline, capacity)
			SELECT $1, TRUE, $2, $3, $4, $4, $5
			WHERE NOT EXISTS (SELECT 1 FROM activities WHERE title = $1)
		`, a.title, a.start, a.start.Add(3*time.Hour), a.start.Add(-time.Hour), a.capacity)
		if err != nil {
			return fmt.Errorf("error seeding activities: %w", err)
		}
	}

	descriptors := make([][]float64, 3)
	for i := range descriptors {
		d := make([]float64, 128)
		for j := range d {
			d[j] = float64(i) * 0.01
		}
		descriptors[i] = d
	}
	raw, err := json.Marshal(descriptors)
	if err != nil {
		return fmt.Errorf("error encoding seed descriptors: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO face_profiles (user_id, descriptors, sample_refs, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO NOTHING
	`, 1, raw, pq.Array([]string{}), now)
	if err != nil {
		return fmt.Errorf("error seeding face profiles: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

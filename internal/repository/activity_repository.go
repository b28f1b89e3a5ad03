package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/promtec/orientation-api/internal/models"
)

// ActivityRepository tracks per-user enrollment activity for the summary
// email debouncer. Each user has at most one pending record at a time.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository constructs the repository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// UpsertPending extends the user's pending activity window to now, creating
// the record if the user has no unsent one.
func (r *ActivityRepository) UpsertPending(ctx context.Context, userID string, now time.Time) error {
	const update = `UPDATE enrollment_activities SET last_activity = $2 WHERE user_id = $1 AND NOT email_sent`
	res, err := r.db.ExecContext(ctx, update, userID, now)
	if err != nil {
		return fmt.Errorf("extend activity window: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected > 0 {
		return nil
	}

	const insert = `INSERT INTO enrollment_activities (id, user_id, last_activity, email_sent) VALUES ($1, $2, $3, FALSE)`
	if _, err := r.db.ExecContext(ctx, insert, uuid.NewString(), userID, now); err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	return nil
}

// ListPendingBefore returns unsent activity records whose window closed
// before the cutoff.
func (r *ActivityRepository) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]models.EnrollmentActivity, error) {
	const query = `SELECT id, user_id, last_activity, email_sent FROM enrollment_activities
        WHERE NOT email_sent AND last_activity < $1 ORDER BY last_activity`
	var activities []models.EnrollmentActivity
	if err := r.db.SelectContext(ctx, &activities, query, cutoff); err != nil {
		return nil, fmt.Errorf("list pending activities: %w", err)
	}
	return activities, nil
}

// MarkSent flags an activity record as handled.
func (r *ActivityRepository) MarkSent(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE enrollment_activities SET email_sent = TRUE WHERE id = $1`, id); err != nil {
		return fmt.Errorf("mark activity sent: %w", err)
	}
	return nil
}

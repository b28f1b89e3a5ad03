package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/promtec/orientation-api/internal/models"
)

// UserRepository handles persistence of users and approval decisions.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, password_hash, first_name, last_name, is_admin, is_active, school_id, last_login, created_at, updated_at`

// FindByEmail returns a user by email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE LOWER(email) = LOWER($1)`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID returns a user by ID.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// LatestApproval returns the most recent approval decision for a user, or nil
// when no decision has been recorded yet.
func (r *UserRepository) LatestApproval(ctx context.Context, userID string) (*models.UserApproval, error) {
	const query = `SELECT id, user_id, admin_id, is_approved, created_at FROM user_approvals
        WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`
	var approval models.UserApproval
	if err := r.db.GetContext(ctx, &approval, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find latest approval: %w", err)
	}
	return &approval, nil
}

// FirstNonAdminBySchool returns the oldest non-admin account of a school.
// Admin-created enrollments are attributed to this user so the school's
// activity summaries stay complete.
func (r *UserRepository) FirstNonAdminBySchool(ctx context.Context, schoolID string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE school_id = $1 AND NOT is_admin AND is_active
        ORDER BY created_at LIMIT 1`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, schoolID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find school contact: %w", err)
	}
	return &user, nil
}

// ListNonAdminBySchool returns all active non-admin users of a school.
func (r *UserRepository) ListNonAdminBySchool(ctx context.Context, schoolID string) ([]models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE school_id = $1 AND NOT is_admin AND is_active
        ORDER BY created_at`, userColumns)
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, schoolID); err != nil {
		return nil, fmt.Errorf("list school users: %w", err)
	}
	return users, nil
}

// UpdateLastLogin stamps the user's last successful login.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	const query = `UPDATE users SET last_login = $2, updated_at = now() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID, at); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

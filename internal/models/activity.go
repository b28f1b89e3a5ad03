package models

import "time"

// EnrollmentActivity tracks a user's recent enrollment actions so the sweep
// can send a single summary notification per burst instead of one per action.
// At most one pending (EmailSent=false) record exists per user.
type EnrollmentActivity struct {
	ID           string    `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"user_id"`
	LastActivity time.Time `db:"last_activity" json:"last_activity"`
	EmailSent    bool      `db:"email_sent" json:"email_sent"`
}

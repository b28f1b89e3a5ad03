package models

import "time"

// School is referenced by students and users. Identified by a surrogate id
// with a unique name, so renames never ripple through foreign keys.
type School struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

package models

import (
	"strings"
	"time"
)

// Student is a person's profile. Personal fields are stored encrypted at
// rest; repositories hand the rest of the application plain values.
type Student struct {
	ID          string    `db:"id" json:"id"`
	FirstName   string    `db:"first_name" json:"first_name"`
	LastName    string    `db:"last_name" json:"last_name"`
	SchoolClass string    `db:"school_class" json:"school_class"`
	Gender      Gender    `db:"gender" json:"gender"`
	Address     string    `db:"address" json:"address"`
	PostalCode  string    `db:"postal_code" json:"postal_code"`
	City        string    `db:"city" json:"city"`
	Landline    *string   `db:"landline" json:"landline,omitempty"`
	Mobile      string    `db:"mobile" json:"mobile"`
	SchoolID    *string   `db:"school_id" json:"school_id,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// SchoolIDValue returns the school id or empty when unset.
func (s *Student) SchoolIDValue() string {
	if s.SchoolID == nil {
		return ""
	}
	return *s.SchoolID
}

// SameProfile reports whether two students are duplicates: every personal
// field matches case-insensitively, with nil/empty treated as equal.
func (s *Student) SameProfile(other *Student) bool {
	return foldEqual(s.FirstName, other.FirstName) &&
		foldEqual(s.LastName, other.LastName) &&
		foldEqual(s.SchoolClass, other.SchoolClass) &&
		foldEqual(s.SchoolIDValue(), other.SchoolIDValue()) &&
		s.Gender == other.Gender &&
		foldEqual(s.Address, other.Address) &&
		foldEqual(s.PostalCode, other.PostalCode) &&
		foldEqual(s.City, other.City) &&
		foldEqual(optional(s.Landline), optional(other.Landline)) &&
		foldEqual(s.Mobile, other.Mobile)
}

func foldEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func optional(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

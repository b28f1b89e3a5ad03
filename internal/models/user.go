package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User represents an application user stored in the users table. Schools
// enroll through their non-admin contact users; admins manage slots.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FirstName    string     `db:"first_name" json:"first_name"`
	LastName     string     `db:"last_name" json:"last_name"`
	IsAdmin      bool       `db:"is_admin" json:"is_admin"`
	Active       bool       `db:"is_active" json:"is_active"`
	SchoolID     *string    `db:"school_id" json:"school_id,omitempty"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName joins first and last name for greetings.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// SchoolIDValue returns the school id or empty when unset.
func (u *User) SchoolIDValue() string {
	if u.SchoolID == nil {
		return ""
	}
	return *u.SchoolID
}

// UserApproval records a single admin approve/reject decision. Only the most
// recent record per user determines current approval state; admins are
// implicitly approved.
type UserApproval struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	AdminID   string    `db:"admin_id" json:"admin_id"`
	Approved  bool      `db:"is_approved" json:"is_approved"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse returns the issued token and user info.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	IssuedAt    time.Time `json:"issued_at"`
	User        UserInfo  `json:"user"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	IsAdmin   bool    `json:"is_admin"`
	SchoolID  *string `json:"school_id,omitempty"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   string  `json:"user_id"`
	Email    string  `json:"email"`
	IsAdmin  bool    `json:"is_admin"`
	SchoolID *string `json:"school_id,omitempty"`
	jwt.RegisteredClaims
}

// SchoolIDValue returns the claim's school id or empty when unset.
func (c *JWTClaims) SchoolIDValue() string {
	if c.SchoolID == nil {
		return ""
	}
	return *c.SchoolID
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

package models

import "time"

// StudentEnrollment links a student to a slot, attributed to the user who
// created it. A student has at most one enrollment per slot.
type StudentEnrollment struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	StudentID   string    `db:"student_id" json:"student_id"`
	SlotID      string    `db:"slot_id" json:"slot_id"`
	WaitingList bool      `db:"is_in_waiting_list" json:"is_in_waiting_list"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches an enrollment with its student profile.
type EnrollmentDetail struct {
	StudentEnrollment
	Student Student `json:"student"`
}

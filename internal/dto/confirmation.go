package dto

import "github.com/promtec/orientation-api/internal/models"

// SlotCapacity reports a slot's current occupancy to API consumers.
type SlotCapacity struct {
	SlotID         string         `json:"slot_id"`
	TotalSpots     int            `json:"total_spots"`
	OccupiedSpots  int            `json:"occupied_spots"`
	AvailableSpots int            `json:"available_spots"`
	PerSchool      map[string]int `json:"per_school_available"`
}

// ConfirmedStudent is one attending student inside a confirmation summary.
type ConfirmedStudent struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	SchoolClass string `json:"school_class"`
}

// SchoolConfirmation groups a slot's confirmed students for one school with
// the school's contact users to notify.
type SchoolConfirmation struct {
	SchoolID   string             `json:"school_id"`
	SchoolName string             `json:"school_name"`
	Students   []ConfirmedStudent `json:"students"`
	Recipients []models.User      `json:"-"`
}

// ConfirmationSummary is the result of confirming a slot, consumed by the
// notification collaborator.
type ConfirmationSummary struct {
	Slot    models.Slot          `json:"slot"`
	Schools []SchoolConfirmation `json:"schools"`
}

// EnrollmentSummary is the debounced per-user digest of recent enrollments.
type EnrollmentSummary struct {
	User        models.User               `json:"-"`
	Enrollments []models.EnrollmentDetail `json:"enrollments"`
}

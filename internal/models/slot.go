package models

import (
	"errors"
	"time"
)

// Capacity sentinels returned by CanActivate; services translate them into
// API-facing errors.
var (
	ErrOccupancyFull       = errors.New("no spots available")
	ErrOccupancySchoolFull = errors.New("school capacity reached")
)

// TimePeriod is the half-day a slot occupies.
type TimePeriod string

const (
	PeriodMorning   TimePeriod = "MORNING"
	PeriodAfternoon TimePeriod = "AFTERNOON"
)

// Department identifies the hosting department of a slot.
type Department string

const (
	DepartmentTech         Department = "TECH"
	DepartmentConstruction Department = "CONSTRUCTION"
	DepartmentChemistry    Department = "CHEMISTRY"
)

// Gender of a student.
type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
)

// GenderCategory restricts which students a slot accepts.
type GenderCategory string

const (
	CategoryMixed     GenderCategory = "MIXED"
	CategoryBoysOnly  GenderCategory = "BOYS_ONLY"
	CategoryGirlsOnly GenderCategory = "GIRLS_ONLY"
)

// TimePeriods lists all valid slot periods.
func TimePeriods() []TimePeriod {
	return []TimePeriod{PeriodMorning, PeriodAfternoon}
}

// Departments lists all valid departments.
func Departments() []Department {
	return []Department{DepartmentTech, DepartmentConstruction, DepartmentChemistry}
}

// GenderCategories lists all valid gender categories.
func GenderCategories() []GenderCategory {
	return []GenderCategory{CategoryMixed, CategoryBoysOnly, CategoryGirlsOnly}
}

// Valid reports whether the period is a known value.
func (p TimePeriod) Valid() bool {
	return p == PeriodMorning || p == PeriodAfternoon
}

// Valid reports whether the department is a known value.
func (d Department) Valid() bool {
	return d == DepartmentTech || d == DepartmentConstruction || d == DepartmentChemistry
}

// Valid reports whether the gender is a known value.
func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

// Valid reports whether the category is a known value.
func (c GenderCategory) Valid() bool {
	return c == CategoryMixed || c == CategoryBoysOnly || c == CategoryGirlsOnly
}

// Allows reports whether a student of the given gender may enroll under this category.
func (c GenderCategory) Allows(g Gender) bool {
	switch c {
	case CategoryMixed:
		return true
	case CategoryBoysOnly:
		return g == GenderMale
	case CategoryGirlsOnly:
		return g == GenderFemale
	}
	return false
}

// Slot is one department/date/time-period offering with capacity limits.
type Slot struct {
	ID                   string         `db:"id" json:"id"`
	Date                 time.Time      `db:"date" json:"date"`
	TimePeriod           TimePeriod     `db:"time_period" json:"time_period"`
	Department           Department     `db:"department" json:"department"`
	GenderCategory       GenderCategory `db:"gender_category" json:"gender_category"`
	Notes                *string        `db:"notes" json:"notes,omitempty"`
	TotalSpots           int            `db:"total_spots" json:"total_spots"`
	MaxStudentsPerSchool int            `db:"max_students_per_school" json:"max_students_per_school"`
	Locked               bool           `db:"is_locked" json:"is_locked"`
	Confirmed            bool           `db:"is_confirmed" json:"is_confirmed"`
	CreatedAt            time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at" json:"updated_at"`
}

// SlotDetail enriches a slot with its current occupancy.
type SlotDetail struct {
	Slot
	OccupiedSpots int `db:"occupied_spots" json:"occupied_spots"`
}

// SlotFilter captures the list endpoint's filtering criteria.
type SlotFilter struct {
	Date           *time.Time
	TimePeriod     TimePeriod
	Department     Department
	GenderCategory GenderCategory
	Locked         *bool
	HideBefore     *time.Time
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}

// ShouldBeLocked reports whether a slot dated slotDate is inside the freeze
// window: today is on or after slotDate minus the lead time, compared on UTC
// calendar dates.
func ShouldBeLocked(slotDate, today time.Time, lead time.Duration) bool {
	lockFrom := slotDate.UTC().Truncate(24 * time.Hour).Add(-lead)
	day := today.UTC().Truncate(24 * time.Hour)
	return !day.Before(lockFrom)
}

// SlotOccupancy is a point-in-time snapshot of a slot's enrollment counts,
// always recomputed from the live enrollment set.
type SlotOccupancy struct {
	TotalSpots           int
	MaxStudentsPerSchool int
	Occupied             int
	SchoolCounts         map[string]int
}

// Available returns the number of free spots overall. Callers must treat
// values <= 0 as full.
func (o SlotOccupancy) Available() int {
	return o.TotalSpots - o.Occupied
}

// SchoolCount returns the number of non-waiting enrollments for a school.
func (o SlotOccupancy) SchoolCount(schoolID string) int {
	return o.SchoolCounts[schoolID]
}

// AvailableSchoolSpots returns how many more students a school may place
// directly: the school cap bounded by overall availability, minus the school's
// current count.
func (o SlotOccupancy) AvailableSchoolSpots(schoolID string) int {
	maxAllowed := o.MaxStudentsPerSchool
	if avail := o.Available(); avail < maxAllowed {
		maxAllowed = avail
	}
	return maxAllowed - o.SchoolCount(schoolID)
}

// DecidePlacement applies the allocation rules for a new enrollment: a full
// slot always waits; non-admins additionally wait once their school cap is
// reached. Admins bypass the school cap but never the total cap.
func DecidePlacement(o SlotOccupancy, schoolID string, isAdmin bool) (waitingList bool) {
	if o.Available() <= 0 {
		return true
	}
	if !isAdmin && o.SchoolCount(schoolID) >= o.MaxStudentsPerSchool {
		return true
	}
	return false
}

// CanActivate reports whether an enrollment may leave the waiting list:
// overall capacity binds everyone, the school bound only non-admins.
func CanActivate(o SlotOccupancy, schoolID string, isAdmin bool) error {
	if o.Available() <= 0 {
		return ErrOccupancyFull
	}
	if !isAdmin && o.AvailableSchoolSpots(schoolID) < 1 {
		return ErrOccupancySchoolFull
	}
	return nil
}

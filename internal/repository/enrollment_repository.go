package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/promtec/orientation-api/internal/models"
	"github.com/promtec/orientation-api/pkg/crypto"
	appErrors "github.com/promtec/orientation-api/pkg/errors"
)

// EnrollmentRepository handles persistence of student enrollments. Placement
// decisions happen here, inside a transaction that locks the slot row, so two
// concurrent requests can never both claim the last spot.
type EnrollmentRepository struct {
	db    *sqlx.DB
	codec *crypto.FieldCodec
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB, codec *crypto.FieldCodec) *EnrollmentRepository {
	return &EnrollmentRepository{db: db, codec: codec}
}

// AllocateParams carries everything the placement transaction needs.
type AllocateParams struct {
	SlotID    string
	StudentID string
	SchoolID  string
	UserID    string
	IsAdmin   bool
}

type lockedSlot struct {
	ID                   string `db:"id"`
	TotalSpots           int    `db:"total_spots"`
	MaxStudentsPerSchool int    `db:"max_students_per_school"`
}

// Allocate places a student on a slot or its waiting list. The slot row is
// locked for the duration of the transaction so the occupancy counts the
// placement decision reads cannot go stale before the insert commits.
func (r *EnrollmentRepository) Allocate(ctx context.Context, params AllocateParams) (*models.StudentEnrollment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin allocation: %w", err)
	}
	defer tx.Rollback()

	var slot lockedSlot
	const lockQuery = `SELECT id, total_spots, max_students_per_school FROM slots WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &slot, lockQuery, params.SlotID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrNotFound
		}
		return nil, fmt.Errorf("lock slot: %w", err)
	}

	var duplicate int
	const dupQuery = `SELECT 1 FROM student_enrollments WHERE student_id = $1 AND slot_id = $2 LIMIT 1`
	err = tx.GetContext(ctx, &duplicate, dupQuery, params.StudentID, params.SlotID)
	if err == nil {
		return nil, appErrors.ErrAlreadyEnrolled
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("check existing enrollment: %w", err)
	}

	occ, err := loadOccupancy(ctx, tx, params.SlotID, slot.TotalSpots, slot.MaxStudentsPerSchool)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	enrollment := &models.StudentEnrollment{
		ID:          uuid.NewString(),
		UserID:      params.UserID,
		StudentID:   params.StudentID,
		SlotID:      params.SlotID,
		WaitingList: models.DecidePlacement(occ, params.SchoolID, params.IsAdmin),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	const insertQuery = `INSERT INTO student_enrollments (id, user_id, student_id, slot_id, is_in_waiting_list, created_at, updated_at)
        VALUES (:id, :user_id, :student_id, :slot_id, :is_in_waiting_list, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertQuery, enrollment); err != nil {
		return nil, fmt.Errorf("insert enrollment: %w", err)
	}
	if err := unconfirmSlot(ctx, tx, params.SlotID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit allocation: %w", err)
	}
	return enrollment, nil
}

// SetWaitingList moves an enrollment between the active list and the waiting
// list. Activation re-checks capacity under the slot row lock.
func (r *EnrollmentRepository) SetWaitingList(ctx context.Context, enrollmentID string, waitingList, isAdmin bool) (*models.StudentEnrollment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin toggle: %w", err)
	}
	defer tx.Rollback()

	var enrollment models.StudentEnrollment
	const findQuery = `SELECT id, user_id, student_id, slot_id, is_in_waiting_list, created_at, updated_at
        FROM student_enrollments WHERE id = $1`
	if err := tx.GetContext(ctx, &enrollment, findQuery, enrollmentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrNotFound
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	if enrollment.WaitingList == waitingList {
		return &enrollment, nil
	}

	var slot lockedSlot
	const lockQuery = `SELECT id, total_spots, max_students_per_school FROM slots WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &slot, lockQuery, enrollment.SlotID); err != nil {
		return nil, fmt.Errorf("lock slot: %w", err)
	}

	if !waitingList {
		occ, err := loadOccupancy(ctx, tx, enrollment.SlotID, slot.TotalSpots, slot.MaxStudentsPerSchool)
		if err != nil {
			return nil, err
		}
		var schoolID string
		const schoolQuery = `SELECT COALESCE(school_id::text, '') FROM students WHERE id = $1`
		if err := tx.GetContext(ctx, &schoolID, schoolQuery, enrollment.StudentID); err != nil {
			return nil, fmt.Errorf("find student school: %w", err)
		}
		if err := models.CanActivate(occ, schoolID, isAdmin); err != nil {
			switch err {
			case models.ErrOccupancyFull:
				return nil, appErrors.ErrNoCapacity
			case models.ErrOccupancySchoolFull:
				return nil, appErrors.ErrSchoolCapacity
			default:
				return nil, err
			}
		}
	}

	enrollment.WaitingList = waitingList
	enrollment.UpdatedAt = time.Now().UTC()
	const updateQuery = `UPDATE student_enrollments SET is_in_waiting_list = $2, updated_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, updateQuery, enrollment.ID, enrollment.WaitingList, enrollment.UpdatedAt); err != nil {
		return nil, fmt.Errorf("update enrollment: %w", err)
	}
	if err := unconfirmSlot(ctx, tx, enrollment.SlotID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit toggle: %w", err)
	}
	return &enrollment, nil
}

// Delete removes an enrollment and clears its slot's confirmation in the same
// transaction.
func (r *EnrollmentRepository) Delete(ctx context.Context, enrollmentID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	var slotID string
	if err := tx.GetContext(ctx, &slotID, `SELECT slot_id FROM student_enrollments WHERE id = $1`, enrollmentID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.ErrNotFound
		}
		return fmt.Errorf("find enrollment: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM student_enrollments WHERE id = $1`, enrollmentID); err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	if err := unconfirmSlot(ctx, tx, slotID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.StudentEnrollment, error) {
	const query = `SELECT id, user_id, student_id, slot_id, is_in_waiting_list, created_at, updated_at
        FROM student_enrollments WHERE id = $1`
	var enrollment models.StudentEnrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

const enrollmentDetailQuery = `SELECT e.id, e.user_id, e.student_id, e.slot_id, e.is_in_waiting_list, e.created_at, e.updated_at,
    st.id AS "student.id", st.first_name AS "student.first_name", st.last_name AS "student.last_name",
    st.school_class AS "student.school_class", st.gender AS "student.gender", st.address AS "student.address",
    st.postal_code AS "student.postal_code", st.city AS "student.city", st.landline AS "student.landline",
    st.mobile AS "student.mobile", st.school_id AS "student.school_id",
    st.created_at AS "student.created_at", st.updated_at AS "student.updated_at"
    FROM student_enrollments e
    JOIN students st ON st.id = e.student_id`

// ListBySlot returns a slot's enrollments with decrypted student details.
func (r *EnrollmentRepository) ListBySlot(ctx context.Context, slotID string, waitingList *bool) ([]models.EnrollmentDetail, error) {
	query := enrollmentDetailQuery + ` WHERE e.slot_id = $1`
	args := []interface{}{slotID}
	if waitingList != nil {
		query += ` AND e.is_in_waiting_list = $2`
		args = append(args, *waitingList)
	}
	query += ` ORDER BY e.created_at`

	var details []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &details, query, args...); err != nil {
		return nil, fmt.Errorf("list slot enrollments: %w", err)
	}
	for i := range details {
		if err := decryptStudent(r.codec, &details[i].Student); err != nil {
			return nil, err
		}
	}
	return details, nil
}

// ListByUserBetween returns the enrollments a user created inside a time
// window, newest last, with decrypted student details.
func (r *EnrollmentRepository) ListByUserBetween(ctx context.Context, userID string, from, to time.Time) ([]models.EnrollmentDetail, error) {
	query := enrollmentDetailQuery + ` WHERE e.user_id = $1 AND e.created_at BETWEEN $2 AND $3 ORDER BY e.created_at`
	var details []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &details, query, userID, from, to); err != nil {
		return nil, fmt.Errorf("list user enrollments: %w", err)
	}
	for i := range details {
		if err := decryptStudent(r.codec, &details[i].Student); err != nil {
			return nil, err
		}
	}
	return details, nil
}

// ExistsForUser reports whether the user created any enrollment for the
// student.
func (r *EnrollmentRepository) ExistsForUser(ctx context.Context, studentID, userID string) (bool, error) {
	const query = `SELECT 1 FROM student_enrollments WHERE student_id = $1 AND user_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, userID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check student enrollments: %w", err)
	}
	return true, nil
}

func unconfirmSlot(ctx context.Context, tx sqlx.ExtContext, slotID string) error {
	const query = `UPDATE slots SET is_confirmed = FALSE, updated_at = now() WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, slotID); err != nil {
		return fmt.Errorf("clear slot confirmation: %w", err)
	}
	return nil
}

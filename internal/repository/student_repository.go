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
)

// StudentRepository handles persistence of student profiles. Personal fields
// are sealed with the field codec on the way in and opened on the way out;
// nothing above this layer sees ciphertext.
type StudentRepository struct {
	db    *sqlx.DB
	codec *crypto.FieldCodec
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB, codec *crypto.FieldCodec) *StudentRepository {
	return &StudentRepository{db: db, codec: codec}
}

const studentColumns = `id, first_name, last_name, school_class, gender, address, postal_code, city, landline, mobile, school_id, created_at, updated_at`

// Create persists a new student profile.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now

	sealed := *student
	if err := encryptStudent(r.codec, &sealed); err != nil {
		return err
	}
	const query = `INSERT INTO students (id, first_name, last_name, school_class, gender, address, postal_code, city, landline, mobile, school_id, created_at, updated_at)
        VALUES (:id, :first_name, :last_name, :school_class, :gender, :address, :postal_code, :city, :landline, :mobile, :school_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, &sealed); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// FindByID returns a student by ID with decrypted fields.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students WHERE id = $1`, studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	if err := decryptStudent(r.codec, &student); err != nil {
		return nil, err
	}
	return &student, nil
}

// Update persists profile changes and clears confirmation on every slot the
// student is enrolled in, in the same transaction. Confirmed letters name the
// student, so a profile edit makes them stale.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	sealed := *student
	if err := encryptStudent(r.codec, &sealed); err != nil {
		return err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin student update: %w", err)
	}
	defer tx.Rollback()

	const query = `UPDATE students SET first_name = :first_name, last_name = :last_name, school_class = :school_class,
        gender = :gender, address = :address, postal_code = :postal_code, city = :city, landline = :landline,
        mobile = :mobile, school_id = :school_id, updated_at = :updated_at WHERE id = :id`
	res, err := tx.NamedExecContext(ctx, query, &sealed)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}

	const unconfirmQuery = `UPDATE slots SET is_confirmed = FALSE, updated_at = now()
        WHERE id IN (SELECT slot_id FROM student_enrollments WHERE student_id = $1)`
	if _, err := tx.ExecContext(ctx, unconfirmQuery, student.ID); err != nil {
		return fmt.Errorf("clear slot confirmations: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit student update: %w", err)
	}
	return nil
}

// FindDuplicate scans the student's school for another profile matching the
// probe on every personal field. Encrypted columns cannot be compared in SQL,
// so candidates are decrypted and compared here.
func (r *StudentRepository) FindDuplicate(ctx context.Context, probe *models.Student, excludeID string) (*models.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students WHERE id <> $1`, studentColumns)
	args := []interface{}{excludeID}
	if probe.SchoolID != nil {
		query += ` AND school_id = $2`
		args = append(args, *probe.SchoolID)
	} else {
		query += ` AND school_id IS NULL`
	}

	var candidates []models.Student
	if err := r.db.SelectContext(ctx, &candidates, query, args...); err != nil {
		return nil, fmt.Errorf("list duplicate candidates: %w", err)
	}
	for i := range candidates {
		if err := decryptStudent(r.codec, &candidates[i]); err != nil {
			return nil, err
		}
		if probe.SameProfile(&candidates[i]) {
			return &candidates[i], nil
		}
	}
	return nil, nil
}

// MergeInto moves the source student's enrollments to the target and deletes
// the source. Enrollments colliding with one the target already has on the
// same slot are dropped rather than duplicated.
func (r *StudentRepository) MergeInto(ctx context.Context, sourceID, targetID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback()

	const dropCollisions = `DELETE FROM student_enrollments
        WHERE student_id = $1
          AND slot_id IN (SELECT slot_id FROM student_enrollments WHERE student_id = $2)`
	if _, err := tx.ExecContext(ctx, dropCollisions, sourceID, targetID); err != nil {
		return fmt.Errorf("drop colliding enrollments: %w", err)
	}

	const reassign = `UPDATE student_enrollments SET student_id = $2, updated_at = now() WHERE student_id = $1`
	if _, err := tx.ExecContext(ctx, reassign, sourceID, targetID); err != nil {
		return fmt.Errorf("reassign enrollments: %w", err)
	}

	const unconfirm = `UPDATE slots SET is_confirmed = FALSE, updated_at = now()
        WHERE id IN (SELECT slot_id FROM student_enrollments WHERE student_id = $1)`
	if _, err := tx.ExecContext(ctx, unconfirm, targetID); err != nil {
		return fmt.Errorf("clear slot confirmations: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, sourceID); err != nil {
		return fmt.Errorf("delete merged student: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit merge: %w", err)
	}
	return nil
}

func encryptStudent(codec *crypto.FieldCodec, student *models.Student) error {
	fields := []*string{
		&student.FirstName, &student.LastName, &student.SchoolClass,
		&student.Address, &student.PostalCode, &student.City, &student.Mobile,
	}
	if student.Landline != nil {
		// Copy so the ciphertext never writes through a pointer shared
		// with the caller's struct.
		landline := *student.Landline
		student.Landline = &landline
		fields = append(fields, student.Landline)
	}
	for _, field := range fields {
		sealed, err := codec.Encrypt(*field)
		if err != nil {
			return fmt.Errorf("seal student field: %w", err)
		}
		*field = sealed
	}
	return nil
}

func decryptStudent(codec *crypto.FieldCodec, student *models.Student) error {
	fields := []*string{
		&student.FirstName, &student.LastName, &student.SchoolClass,
		&student.Address, &student.PostalCode, &student.City, &student.Mobile,
	}
	if student.Landline != nil {
		fields = append(fields, student.Landline)
	}
	for _, field := range fields {
		plain, err := codec.Decrypt(*field)
		if err != nil {
			return fmt.Errorf("open student field: %w", err)
		}
		*field = plain
	}
	return nil
}

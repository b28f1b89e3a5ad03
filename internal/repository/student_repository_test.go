package repository

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promtec/orientation-api/internal/models"
)

func sealedStudentRow(t *testing.T, repo *StudentRepository, student models.Student) []driver.Value {
	t.Helper()
	sealed := student
	require.NoError(t, encryptStudent(repo.codec, &sealed))
	return []driver.Value{
		sealed.ID, sealed.FirstName, sealed.LastName, sealed.SchoolClass, string(sealed.Gender),
		sealed.Address, sealed.PostalCode, sealed.City, nullable(sealed.Landline), sealed.Mobile,
		nullable(sealed.SchoolID), sealed.CreatedAt, sealed.UpdatedAt,
	}
}

func nullable(v *string) driver.Value {
	if v == nil {
		return nil
	}
	return *v
}

func TestEncryptStudentLeavesCallerLandlineIntact(t *testing.T) {
	landline := "091 123 45 67"
	student := models.Student{
		FirstName: "Lia", LastName: "Berta", SchoolClass: "3A",
		Gender: models.GenderFemale, Address: "Via Roma 1", PostalCode: "39100",
		City: "Bolzano", Landline: &landline, Mobile: "3331112222",
	}

	sealed := student
	require.NoError(t, encryptStudent(testCodec(t), &sealed))

	// The copy must not share the landline pointer with the caller's struct.
	require.NotNil(t, sealed.Landline)
	assert.NotEqual(t, "091 123 45 67", *sealed.Landline)
	assert.Equal(t, "091 123 45 67", *student.Landline)
}

func TestStudentRepositoryFindByIDDecrypts(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, testCodec(t))

	school := "school-1"
	original := models.Student{
		ID: "student-1", FirstName: "Lia", LastName: "Berta", SchoolClass: "3A",
		Gender: models.GenderFemale, Address: "Via Roma 1", PostalCode: "39100",
		City: "Bolzano", Mobile: "3331112222", SchoolID: &school,
	}

	cols := []string{"id", "first_name", "last_name", "school_class", "gender", "address", "postal_code", "city", "landline", "mobile", "school_id", "created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE id = $1")).
		WithArgs("student-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(sealedStudentRow(t, repo, original)...))

	student, err := repo.FindByID(context.Background(), "student-1")
	require.NoError(t, err)
	assert.Equal(t, "Lia", student.FirstName)
	assert.Equal(t, "Via Roma 1", student.Address)
	assert.Equal(t, models.GenderFemale, student.Gender)
}

func TestStudentRepositoryFindDuplicateMatchesProfile(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, testCodec(t))

	school := "school-1"
	existing := models.Student{
		ID: "student-2", FirstName: "LIA", LastName: "berta", SchoolClass: "3a",
		Gender: models.GenderFemale, Address: "via roma 1", PostalCode: "39100",
		City: "BOLZANO", Mobile: "3331112222", SchoolID: &school,
	}
	cols := []string{"id", "first_name", "last_name", "school_class", "gender", "address", "postal_code", "city", "landline", "mobile", "school_id", "created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE id <> $1 AND school_id = $2")).
		WithArgs("student-1", school).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(sealedStudentRow(t, repo, existing)...))

	probe := models.Student{
		ID: "student-1", FirstName: "Lia", LastName: "Berta", SchoolClass: "3A",
		Gender: models.GenderFemale, Address: "Via Roma 1", PostalCode: "39100",
		City: "Bolzano", Mobile: "3331112222", SchoolID: &school,
	}
	dup, err := repo.FindDuplicate(context.Background(), &probe, "student-1")
	require.NoError(t, err)
	require.NotNil(t, dup)
	assert.Equal(t, "student-2", dup.ID)
}

func TestStudentRepositoryUpdateClearsEnrolledSlotConfirmations(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, testCodec(t))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE slots SET is_confirmed = FALSE")).
		WithArgs("student-1").
		WillReturnResult(sqlmock.NewResult(1, 2))
	mock.ExpectCommit()

	school := "school-1"
	student := models.Student{
		ID: "student-1", FirstName: "Lia", LastName: "Berta", SchoolClass: "3A",
		Gender: models.GenderFemale, Address: "Via Roma 1", PostalCode: "39100",
		City: "Bolzano", Mobile: "3331112222", SchoolID: &school,
	}
	require.NoError(t, repo.Update(context.Background(), &student))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryMergeIntoReassignsAndDeletes(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, testCodec(t))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM student_enrollments")).
		WithArgs("student-dup", "student-keep").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE student_enrollments SET student_id = $2")).
		WithArgs("student-dup", "student-keep").
		WillReturnResult(sqlmock.NewResult(1, 2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE slots SET is_confirmed = FALSE")).
		WithArgs("student-keep").
		WillReturnResult(sqlmock.NewResult(1, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM students WHERE id = $1")).
		WithArgs("student-dup").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.MergeInto(context.Background(), "student-dup", "student-keep"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

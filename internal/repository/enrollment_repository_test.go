package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promtec/orientation-api/pkg/crypto"
	appErrors "github.com/promtec/orientation-api/pkg/errors"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	cleanup := func() {
		_ = sqlxDB.Close()
		db.Close()
	}
	return sqlxDB, mock, cleanup
}

func testCodec(t *testing.T) *crypto.FieldCodec {
	t.Helper()
	codec, err := crypto.NewFieldCodec("repo-test-key")
	require.NoError(t, err)
	return codec
}

func expectSlotLock(mock sqlmock.Sqlmock, slotID string, totalSpots, maxPerSchool int) {
	rows := sqlmock.NewRows([]string{"id", "total_spots", "max_students_per_school"}).
		AddRow(slotID, totalSpots, maxPerSchool)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, total_spots, max_students_per_school FROM slots WHERE id = $1 FOR UPDATE")).
		WithArgs(slotID).
		WillReturnRows(rows)
}

func TestEnrollmentRepositoryAllocatePlacesOnSlot(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, testCodec(t))

	mock.ExpectBegin()
	expectSlotLock(mock, "slot-1", 8, 2)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM student_enrollments WHERE student_id = $1 AND slot_id = $2")).
		WithArgs("student-1", "slot-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY st.school_id")).
		WithArgs("slot-1").
		WillReturnRows(sqlmock.NewRows([]string{"school_id", "cnt"}).AddRow("school-2", 3))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO student_enrollments")).
		WithArgs(sqlmock.AnyArg(), "user-1", "student-1", "slot-1", false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE slots SET is_confirmed = FALSE")).
		WithArgs("slot-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	enrollment, err := repo.Allocate(context.Background(), AllocateParams{
		SlotID:    "slot-1",
		StudentID: "student-1",
		SchoolID:  "school-1",
		UserID:    "user-1",
	})
	require.NoError(t, err)
	assert.False(t, enrollment.WaitingList)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryAllocateFullSlotGoesToWaitingList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, testCodec(t))

	mock.ExpectBegin()
	expectSlotLock(mock, "slot-1", 3, 2)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM student_enrollments")).
		WithArgs("student-1", "slot-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY st.school_id")).
		WithArgs("slot-1").
		WillReturnRows(sqlmock.NewRows([]string{"school_id", "cnt"}).
			AddRow("school-2", 2).
			AddRow("school-3", 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO student_enrollments")).
		WithArgs(sqlmock.AnyArg(), "user-1", "student-1", "slot-1", true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE slots SET is_confirmed = FALSE")).
		WithArgs("slot-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	enrollment, err := repo.Allocate(context.Background(), AllocateParams{
		SlotID:    "slot-1",
		StudentID: "student-1",
		SchoolID:  "school-1",
		UserID:    "user-1",
	})
	require.NoError(t, err)
	assert.True(t, enrollment.WaitingList)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryAllocateRejectsDuplicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, testCodec(t))

	mock.ExpectBegin()
	expectSlotLock(mock, "slot-1", 8, 2)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM student_enrollments")).
		WithArgs("student-1", "slot-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectRollback()

	_, err := repo.Allocate(context.Background(), AllocateParams{
		SlotID:    "slot-1",
		StudentID: "student-1",
		SchoolID:  "school-1",
		UserID:    "user-1",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrAlreadyEnrolled))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositorySetWaitingListActivationChecksCapacity(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, testCodec(t))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM student_enrollments WHERE id = $1")).
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "student_id", "slot_id", "is_in_waiting_list"}).
			AddRow("enr-1", "user-1", "student-1", "slot-1", true))
	expectSlotLock(mock, "slot-1", 2, 2)
	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY st.school_id")).
		WithArgs("slot-1").
		WillReturnRows(sqlmock.NewRows([]string{"school_id", "cnt"}).AddRow("school-2", 2))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(school_id::text, '') FROM students WHERE id = $1")).
		WithArgs("student-1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("school-1"))
	mock.ExpectRollback()

	_, err := repo.SetWaitingList(context.Background(), "enr-1", false, false)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNoCapacity))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryDeleteClearsSlotConfirmation(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, testCodec(t))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT slot_id FROM student_enrollments WHERE id = $1")).
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"slot_id"}).AddRow("slot-1"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM student_enrollments WHERE id = $1")).
		WithArgs("enr-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE slots SET is_confirmed = FALSE")).
		WithArgs("slot-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), "enr-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promtec/orientation-api/internal/models"
	appErrors "github.com/promtec/orientation-api/pkg/errors"
)

type mockStudentRepo struct {
	students  map[string]models.Student
	duplicate *models.Student
	updated   *models.Student
	merged    [2]string
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) Update(ctx context.Context, student *models.Student) error {
	m.updated = student
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) FindDuplicate(ctx context.Context, probe *models.Student, excludeID string) (*models.Student, error) {
	if m.duplicate != nil && m.duplicate.ID != excludeID && probe.SameProfile(m.duplicate) {
		return m.duplicate, nil
	}
	return nil, nil
}

func (m *mockStudentRepo) MergeInto(ctx context.Context, sourceID, targetID string) error {
	m.merged = [2]string{sourceID, targetID}
	return nil
}

type mockOwnership struct {
	owners map[string]string
}

func (m *mockOwnership) ExistsForUser(ctx context.Context, studentID, userID string) (bool, error) {
	return m.owners[studentID] == userID, nil
}

func testStudent(id string) models.Student {
	school := "school-1"
	return models.Student{
		ID: id, FirstName: "Mara", LastName: "Egger", SchoolClass: "3B",
		Gender: models.GenderFemale, Address: "Via Dante 4", PostalCode: "39012",
		City: "Merano", Mobile: "3405556666", SchoolID: &school,
	}
}

func TestUpdateStudentAppliesChanges(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]models.Student{"student-1": testStudent("student-1")}}
	svc := NewStudentService(repo, &mockOwnership{}, nil, nil)

	city := "Bolzano"
	updated, err := svc.Update(context.Background(), Actor{IsAdmin: true}, "student-1", UpdateStudentRequest{City: &city})
	require.NoError(t, err)
	assert.Equal(t, "Bolzano", updated.City)
	require.NotNil(t, repo.updated)
	assert.Equal(t, "Bolzano", repo.updated.City)
}

func TestUpdateStudentMergesWhenProfilesCollide(t *testing.T) {
	existing := testStudent("student-2")
	edited := testStudent("student-1")
	edited.FirstName = "Marra" // typo the edit corrects

	repo := &mockStudentRepo{
		students:  map[string]models.Student{"student-1": edited},
		duplicate: &existing,
	}
	svc := NewStudentService(repo, &mockOwnership{}, nil, nil)

	name := "Mara"
	survivor, err := svc.Update(context.Background(), Actor{IsAdmin: true}, "student-1", UpdateStudentRequest{FirstName: &name})
	require.NoError(t, err)
	assert.Equal(t, "student-2", survivor.ID)
	assert.Equal(t, [2]string{"student-1", "student-2"}, repo.merged)
	assert.Nil(t, repo.updated)
}

func TestUpdateStudentNonOwnerForbidden(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]models.Student{"student-1": testStudent("student-1")}}
	owners := &mockOwnership{owners: map[string]string{"student-1": "user-2"}}
	svc := NewStudentService(repo, owners, nil, nil)

	city := "Bolzano"
	_, err := svc.Update(context.Background(), Actor{UserID: "user-1"}, "student-1", UpdateStudentRequest{City: &city})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestGetStudentOwnerAllowed(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]models.Student{"student-1": testStudent("student-1")}}
	owners := &mockOwnership{owners: map[string]string{"student-1": "user-1"}}
	svc := NewStudentService(repo, owners, nil, nil)

	student, err := svc.Get(context.Background(), Actor{UserID: "user-1"}, "student-1")
	require.NoError(t, err)
	assert.Equal(t, "student-1", student.ID)
}

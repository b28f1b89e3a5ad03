package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promtec/orientation-api/internal/models"
	"github.com/promtec/orientation-api/internal/repository"
	appErrors "github.com/promtec/orientation-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollments map[string]models.StudentEnrollment
	allocated   *repository.AllocateParams
	waiting     bool
	deleted     []string
	toggled     map[string]bool
}

func (m *mockEnrollmentRepo) Allocate(ctx context.Context, params repository.AllocateParams) (*models.StudentEnrollment, error) {
	m.allocated = &params
	return &models.StudentEnrollment{
		ID:          "enr-new",
		UserID:      params.UserID,
		StudentID:   params.StudentID,
		SlotID:      params.SlotID,
		WaitingList: m.waiting,
	}, nil
}

func (m *mockEnrollmentRepo) SetWaitingList(ctx context.Context, enrollmentID string, waitingList, isAdmin bool) (*models.StudentEnrollment, error) {
	if m.toggled == nil {
		m.toggled = make(map[string]bool)
	}
	m.toggled[enrollmentID] = waitingList
	e := m.enrollments[enrollmentID]
	e.WaitingList = waitingList
	return &e, nil
}

func (m *mockEnrollmentRepo) Delete(ctx context.Context, enrollmentID string) error {
	m.deleted = append(m.deleted, enrollmentID)
	return nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.StudentEnrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) ListBySlot(ctx context.Context, slotID string, waitingList *bool) ([]models.EnrollmentDetail, error) {
	return nil, nil
}

type mockSlotReader struct {
	slots map[string]models.Slot
}

func (m *mockSlotReader) FindByID(ctx context.Context, id string) (*models.Slot, error) {
	if s, ok := m.slots[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

type mockStudentCreator struct {
	created   *models.Student
	duplicate *models.Student
}

func (m *mockStudentCreator) Create(ctx context.Context, student *models.Student) error {
	student.ID = "student-new"
	m.created = student
	return nil
}

func (m *mockStudentCreator) FindDuplicate(ctx context.Context, probe *models.Student, excludeID string) (*models.Student, error) {
	return m.duplicate, nil
}

type mockSchoolEnsurer struct {
	ensured map[string]string
}

func (m *mockSchoolEnsurer) EnsureByName(ctx context.Context, name string) (*models.School, error) {
	id, ok := m.ensured[name]
	if !ok {
		id = "school-" + name
	}
	return &models.School{ID: id, Name: name}, nil
}

type mockContactReader struct {
	contacts map[string]*models.User
}

func (m *mockContactReader) FirstNonAdminBySchool(ctx context.Context, schoolID string) (*models.User, error) {
	return m.contacts[schoolID], nil
}

type mockActivityRegistrar struct {
	registered []string
}

func (m *mockActivityRegistrar) RegisterActivity(ctx context.Context, userID string) error {
	m.registered = append(m.registered, userID)
	return nil
}

func validEnrollRequest(slotID string) EnrollRequest {
	return EnrollRequest{
		SlotID:      slotID,
		FirstName:   "Mara",
		LastName:    "Egger",
		SchoolClass: "3B",
		Gender:      "FEMALE",
		Address:     "Via Dante 4",
		PostalCode:  "39012",
		City:        "Merano",
		Mobile:      "3405556666",
	}
}

func newEnrollmentFixture() (*EnrollmentService, *mockEnrollmentRepo, *mockSlotReader, *mockStudentCreator, *mockActivityRegistrar) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.StudentEnrollment{}}
	slots := &mockSlotReader{slots: map[string]models.Slot{}}
	students := &mockStudentCreator{}
	schools := &mockSchoolEnsurer{}
	contacts := &mockContactReader{contacts: map[string]*models.User{}}
	activities := &mockActivityRegistrar{}
	svc := NewEnrollmentService(repo, slots, students, schools, contacts, activities, nil, nil, nil)
	return svc, repo, slots, students, activities
}

func TestEnrollRejectsLockedSlotForNonAdmin(t *testing.T) {
	svc, _, slots, _, _ := newEnrollmentFixture()
	slots.slots["slot-1"] = models.Slot{ID: "slot-1", Locked: true, GenderCategory: models.CategoryMixed}

	actor := Actor{UserID: "user-1", SchoolID: "school-1"}
	_, err := svc.Enroll(context.Background(), actor, validEnrollRequest("slot-1"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrSlotLocked))
}

func TestEnrollAdminBypassesLock(t *testing.T) {
	svc, repo, slots, _, _ := newEnrollmentFixture()
	slots.slots["slot-1"] = models.Slot{ID: "slot-1", Locked: true, Confirmed: true, GenderCategory: models.CategoryMixed}

	actor := Actor{UserID: "admin-1", IsAdmin: true}
	enrollment, err := svc.Enroll(context.Background(), actor, validEnrollRequest("slot-1"))
	require.NoError(t, err)
	require.NotNil(t, repo.allocated)
	assert.True(t, repo.allocated.IsAdmin)
	assert.Equal(t, "enr-new", enrollment.ID)
}

func TestEnrollRejectsIneligibleGender(t *testing.T) {
	svc, _, slots, _, _ := newEnrollmentFixture()
	slots.slots["slot-1"] = models.Slot{ID: "slot-1", GenderCategory: models.CategoryBoysOnly}

	actor := Actor{UserID: "user-1", SchoolID: "school-1"}
	_, err := svc.Enroll(context.Background(), actor, validEnrollRequest("slot-1"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrGenderNotAllowed))
}

func TestEnrollNonAdminUsesOwnSchoolAndRegistersActivity(t *testing.T) {
	svc, repo, slots, students, activities := newEnrollmentFixture()
	slots.slots["slot-1"] = models.Slot{ID: "slot-1", GenderCategory: models.CategoryMixed}

	actor := Actor{UserID: "user-1", SchoolID: "school-1"}
	req := validEnrollRequest("slot-1")
	req.SchoolName = "ignored"

	_, err := svc.Enroll(context.Background(), actor, req)
	require.NoError(t, err)
	assert.Equal(t, "school-1", repo.allocated.SchoolID)
	assert.Equal(t, "user-1", repo.allocated.UserID)
	require.NotNil(t, students.created.SchoolID)
	assert.Equal(t, "school-1", *students.created.SchoolID)
	assert.Equal(t, []string{"user-1"}, activities.registered)
}

func TestEnrollReusesMatchingStudentProfile(t *testing.T) {
	svc, repo, slots, students, _ := newEnrollmentFixture()
	slots.slots["slot-1"] = models.Slot{ID: "slot-1", GenderCategory: models.CategoryMixed}
	students.duplicate = &models.Student{ID: "student-existing"}

	actor := Actor{UserID: "user-1", SchoolID: "school-1"}
	_, err := svc.Enroll(context.Background(), actor, validEnrollRequest("slot-1"))
	require.NoError(t, err)
	assert.Equal(t, "student-existing", repo.allocated.StudentID)
	assert.Nil(t, students.created)
}

func TestEnrollNonAdminWithoutSchoolRejected(t *testing.T) {
	svc, _, _, _, _ := newEnrollmentFixture()
	actor := Actor{UserID: "user-1"}
	_, err := svc.Enroll(context.Background(), actor, validEnrollRequest("slot-1"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrSchoolMismatch))
}

func TestEnrollAdminAttributesToSchoolContact(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.StudentEnrollment{}}
	slots := &mockSlotReader{slots: map[string]models.Slot{
		"slot-1": {ID: "slot-1", GenderCategory: models.CategoryMixed},
	}}
	students := &mockStudentCreator{}
	schools := &mockSchoolEnsurer{ensured: map[string]string{"Mittelschule Meran": "school-1"}}
	contacts := &mockContactReader{contacts: map[string]*models.User{
		"school-1": {ID: "contact-1", SchoolID: strPtr("school-1")},
	}}
	activities := &mockActivityRegistrar{}
	svc := NewEnrollmentService(repo, slots, students, schools, contacts, activities, nil, nil, nil)

	actor := Actor{UserID: "admin-1", IsAdmin: true}
	req := validEnrollRequest("slot-1")
	req.SchoolName = "Mittelschule Meran"

	_, err := svc.Enroll(context.Background(), actor, req)
	require.NoError(t, err)
	assert.Equal(t, "contact-1", repo.allocated.UserID)
	assert.Equal(t, "school-1", repo.allocated.SchoolID)
	// Admin actions never count as school activity, so the contact does not
	// receive a digest about enrollments they did not make.
	assert.Empty(t, activities.registered)
}

func TestSetWaitingListRejectsNonOwner(t *testing.T) {
	svc, repo, slots, _, _ := newEnrollmentFixture()
	slots.slots["slot-1"] = models.Slot{ID: "slot-1"}
	repo.enrollments["enr-1"] = models.StudentEnrollment{ID: "enr-1", UserID: "user-2", SlotID: "slot-1"}

	actor := Actor{UserID: "user-1", SchoolID: "school-1"}
	_, err := svc.SetWaitingList(context.Background(), actor, "enr-1", false)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotEnrollmentOwner))
}

func TestDeleteRejectsLockedSlotForOwner(t *testing.T) {
	svc, repo, slots, _, _ := newEnrollmentFixture()
	slots.slots["slot-1"] = models.Slot{ID: "slot-1", Locked: true}
	repo.enrollments["enr-1"] = models.StudentEnrollment{ID: "enr-1", UserID: "user-1", SlotID: "slot-1"}

	actor := Actor{UserID: "user-1", SchoolID: "school-1"}
	err := svc.Delete(context.Background(), actor, "enr-1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrSlotLocked))
	assert.Empty(t, repo.deleted)
}

func TestDeleteAllowedOnConfirmedUnlockedSlot(t *testing.T) {
	svc, repo, slots, _, _ := newEnrollmentFixture()
	slots.slots["slot-1"] = models.Slot{ID: "slot-1", Confirmed: true}
	repo.enrollments["enr-1"] = models.StudentEnrollment{ID: "enr-1", UserID: "user-1", SlotID: "slot-1"}

	actor := Actor{UserID: "user-1", SchoolID: "school-1"}
	require.NoError(t, svc.Delete(context.Background(), actor, "enr-1"))
	assert.Equal(t, []string{"enr-1"}, repo.deleted)
}

func TestDeleteAdminBypassesLockAndOwnership(t *testing.T) {
	svc, repo, slots, _, _ := newEnrollmentFixture()
	slots.slots["slot-1"] = models.Slot{ID: "slot-1", Locked: true}
	repo.enrollments["enr-1"] = models.StudentEnrollment{ID: "enr-1", UserID: "user-2", SlotID: "slot-1"}

	actor := Actor{UserID: "admin-1", IsAdmin: true}
	require.NoError(t, svc.Delete(context.Background(), actor, "enr-1"))
	assert.Equal(t, []string{"enr-1"}, repo.deleted)
}

func strPtr(s string) *string { return &s }

package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/promtec/orientation-api/internal/models"
	"github.com/promtec/orientation-api/internal/repository"
	appErrors "github.com/promtec/orientation-api/pkg/errors"
)

type enrollmentRepository interface {
	Allocate(ctx context.Context, params repository.AllocateParams) (*models.StudentEnrollment, error)
	SetWaitingList(ctx context.Context, enrollmentID string, waitingList, isAdmin bool) (*models.StudentEnrollment, error)
	Delete(ctx context.Context, enrollmentID string) error
	FindByID(ctx context.Context, id string) (*models.StudentEnrollment, error)
	ListBySlot(ctx context.Context, slotID string, waitingList *bool) ([]models.EnrollmentDetail, error)
}

type slotReader interface {
	FindByID(ctx context.Context, id string) (*models.Slot, error)
}

type studentCreator interface {
	Create(ctx context.Context, student *models.Student) error
	FindDuplicate(ctx context.Context, probe *models.Student, excludeID string) (*models.Student, error)
}

type schoolEnsurer interface {
	EnsureByName(ctx context.Context, name string) (*models.School, error)
}

type schoolContactReader interface {
	FirstNonAdminBySchool(ctx context.Context, schoolID string) (*models.User, error)
}

type activityRegistrar interface {
	RegisterActivity(ctx context.Context, userID string) error
}

type placementObserver interface {
	ObservePlacement(waitingList bool)
}

// EnrollRequest carries a new student profile and the slot to place them on.
// Non-admin actors always enroll for their own school; admins name one.
type EnrollRequest struct {
	SlotID      string  `json:"slot_id" validate:"required"`
	FirstName   string  `json:"first_name" validate:"required"`
	LastName    string  `json:"last_name" validate:"required"`
	SchoolClass string  `json:"school_class" validate:"required"`
	Gender      string  `json:"gender" validate:"required"`
	Address     string  `json:"address" validate:"required"`
	PostalCode  string  `json:"postal_code" validate:"required"`
	City        string  `json:"city" validate:"required"`
	Landline    *string `json:"landline"`
	Mobile      string  `json:"mobile" validate:"required"`
	SchoolName  string  `json:"school_name"`
}

// Actor identifies the requesting user for authorization decisions.
type Actor struct {
	UserID   string
	IsAdmin  bool
	SchoolID string
}

// EnrollmentService orchestrates placement of students on slots and the
// lifecycle of existing enrollments.
type EnrollmentService struct {
	repo       enrollmentRepository
	slots      slotReader
	students   studentCreator
	schools    schoolEnsurer
	users      schoolContactReader
	activities activityRegistrar
	metrics    placementObserver
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, slots slotReader, students studentCreator, schools schoolEnsurer, users schoolContactReader, activities activityRegistrar, metrics placementObserver, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:       repo,
		slots:      slots,
		students:   students,
		schools:    schools,
		users:      users,
		activities: activities,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
	}
}

// Enroll registers a student and places them on a slot or its waiting list.
func (s *EnrollmentService) Enroll(ctx context.Context, actor Actor, req EnrollRequest) (*models.StudentEnrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	gender := models.Gender(req.Gender)
	if !gender.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown gender")
	}

	schoolID, err := s.resolveSchool(ctx, actor, req.SchoolName)
	if err != nil {
		return nil, err
	}

	slot, err := s.slots.FindByID(ctx, req.SlotID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}
	if !actor.IsAdmin && (slot.Locked || slot.Confirmed) {
		return nil, appErrors.ErrSlotLocked
	}
	if !slot.GenderCategory.Allows(gender) {
		return nil, appErrors.ErrGenderNotAllowed
	}

	student := &models.Student{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		SchoolClass: req.SchoolClass,
		Gender:      gender,
		Address:     req.Address,
		PostalCode:  req.PostalCode,
		City:        req.City,
		Landline:    req.Landline,
		Mobile:      req.Mobile,
	}
	if schoolID != "" {
		student.SchoolID = &schoolID
	}

	// Reuse a matching profile instead of creating a twin; the unique
	// student+slot constraint then rejects a repeat enrollment as a duplicate.
	existing, err := s.students.FindDuplicate(ctx, student, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check for existing student")
	}
	if existing != nil {
		student = existing
	} else if err := s.students.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	attributedUserID, err := s.attributeUser(ctx, actor, schoolID)
	if err != nil {
		return nil, err
	}

	enrollment, err := s.repo.Allocate(ctx, repository.AllocateParams{
		SlotID:    req.SlotID,
		StudentID: student.ID,
		SchoolID:  schoolID,
		UserID:    attributedUserID,
		IsAdmin:   actor.IsAdmin,
	})
	if err != nil {
		if appErrors.FromError(err).Code != appErrors.ErrInternal.Code {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate enrollment")
	}

	if s.metrics != nil {
		s.metrics.ObservePlacement(enrollment.WaitingList)
	}
	s.registerActivity(ctx, actor)

	s.logger.Info("student enrolled",
		zap.String("slot_id", req.SlotID),
		zap.String("student_id", student.ID),
		zap.Bool("waiting_list", enrollment.WaitingList))
	return enrollment, nil
}

// SetWaitingList moves an enrollment on or off the waiting list.
func (s *EnrollmentService) SetWaitingList(ctx context.Context, actor Actor, enrollmentID string, waitingList bool) (*models.StudentEnrollment, error) {
	enrollment, err := s.loadAuthorized(ctx, actor, enrollmentID)
	if err != nil {
		return nil, err
	}
	if err := s.checkSlotOpen(ctx, actor, enrollment.SlotID); err != nil {
		return nil, err
	}
	updated, err := s.repo.SetWaitingList(ctx, enrollmentID, waitingList, actor.IsAdmin)
	if err != nil {
		if appErrors.FromError(err).Code != appErrors.ErrInternal.Code {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update waiting list state")
	}
	return updated, nil
}

// Delete removes an enrollment. Only the lock blocks deletion; the slot of a
// merely confirmed enrollment stays deletable and the repository clears its
// confirmation alongside the delete.
func (s *EnrollmentService) Delete(ctx context.Context, actor Actor, enrollmentID string) error {
	enrollment, err := s.loadAuthorized(ctx, actor, enrollmentID)
	if err != nil {
		return err
	}
	if err := s.checkSlotUnlocked(ctx, actor, enrollment.SlotID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, enrollmentID); err != nil {
		if appErrors.FromError(err).Code != appErrors.ErrInternal.Code {
			return err
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
	}
	return nil
}

// ListBySlot returns a slot's enrollments with student details.
func (s *EnrollmentService) ListBySlot(ctx context.Context, slotID string, waitingList *bool) ([]models.EnrollmentDetail, error) {
	enrollments, err := s.repo.ListBySlot(ctx, slotID, waitingList)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, nil
}

func (s *EnrollmentService) resolveSchool(ctx context.Context, actor Actor, schoolName string) (string, error) {
	if !actor.IsAdmin {
		if actor.SchoolID == "" {
			return "", appErrors.ErrSchoolMismatch
		}
		return actor.SchoolID, nil
	}
	if schoolName == "" {
		return "", nil
	}
	school, err := s.schools.EnsureByName(ctx, schoolName)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve school")
	}
	return school.ID, nil
}

// attributeUser picks the user an enrollment is recorded under. Admin-created
// enrollments belong to the school's first non-admin user when one exists, so
// the school contact can manage them afterwards.
func (s *EnrollmentService) attributeUser(ctx context.Context, actor Actor, schoolID string) (string, error) {
	if !actor.IsAdmin || schoolID == "" {
		return actor.UserID, nil
	}
	contact, err := s.users.FirstNonAdminBySchool(ctx, schoolID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve school contact")
	}
	if contact == nil {
		return actor.UserID, nil
	}
	return contact.ID, nil
}

// registerActivity marks the actor for a later digest email. Admin actions
// never count as activity, so school contacts are not summarised enrollments
// an admin created on their behalf.
func (s *EnrollmentService) registerActivity(ctx context.Context, actor Actor) {
	if s.activities == nil || actor.IsAdmin {
		return
	}
	if err := s.activities.RegisterActivity(ctx, actor.UserID); err != nil {
		s.logger.Warn("activity registration failed", zap.String("user_id", actor.UserID), zap.Error(err))
	}
}

func (s *EnrollmentService) loadAuthorized(ctx context.Context, actor Actor, enrollmentID string) (*models.StudentEnrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if !actor.IsAdmin && enrollment.UserID != actor.UserID {
		return nil, appErrors.ErrNotEnrollmentOwner
	}
	return enrollment, nil
}

func (s *EnrollmentService) checkSlotOpen(ctx context.Context, actor Actor, slotID string) error {
	if actor.IsAdmin {
		return nil
	}
	slot, err := s.slots.FindByID(ctx, slotID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}
	if slot.Locked || slot.Confirmed {
		return appErrors.ErrSlotLocked
	}
	return nil
}

func (s *EnrollmentService) checkSlotUnlocked(ctx context.Context, actor Actor, slotID string) error {
	if actor.IsAdmin {
		return nil
	}
	slot, err := s.slots.FindByID(ctx, slotID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}
	if slot.Locked {
		return appErrors.ErrSlotLocked
	}
	return nil
}

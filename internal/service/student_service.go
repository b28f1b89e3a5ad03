package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/promtec/orientation-api/internal/models"
	appErrors "github.com/promtec/orientation-api/pkg/errors"
)

type studentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	Update(ctx context.Context, student *models.Student) error
	FindDuplicate(ctx context.Context, probe *models.Student, excludeID string) (*models.Student, error)
	MergeInto(ctx context.Context, sourceID, targetID string) error
}

type enrollmentOwnershipChecker interface {
	ExistsForUser(ctx context.Context, studentID, userID string) (bool, error)
}

// UpdateStudentRequest describes profile changes. Nil fields stay unchanged.
type UpdateStudentRequest struct {
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	SchoolClass *string `json:"school_class"`
	Gender      *string `json:"gender"`
	Address     *string `json:"address"`
	PostalCode  *string `json:"postal_code"`
	City        *string `json:"city"`
	Landline    *string `json:"landline"`
	Mobile      *string `json:"mobile"`
}

// StudentService manages student profiles including duplicate merging.
type StudentService struct {
	repo        studentRepository
	enrollments enrollmentOwnershipChecker
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewStudentService constructs StudentService.
func NewStudentService(repo studentRepository, enrollments enrollmentOwnershipChecker, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, enrollments: enrollments, validator: validate, logger: logger}
}

// Get returns one student profile.
func (s *StudentService) Get(ctx context.Context, actor Actor, id string) (*models.Student, error) {
	student, err := s.loadAuthorized(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return student, nil
}

// Update applies profile changes. When the edited profile becomes identical
// to another student of the same school, the two records merge: enrollments
// move to the surviving record and the edited one is deleted.
func (s *StudentService) Update(ctx context.Context, actor Actor, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student, err := s.loadAuthorized(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	updated := *student
	if req.FirstName != nil {
		updated.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		updated.LastName = *req.LastName
	}
	if req.SchoolClass != nil {
		updated.SchoolClass = *req.SchoolClass
	}
	if req.Gender != nil {
		gender := models.Gender(*req.Gender)
		if !gender.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown gender")
		}
		updated.Gender = gender
	}
	if req.Address != nil {
		updated.Address = *req.Address
	}
	if req.PostalCode != nil {
		updated.PostalCode = *req.PostalCode
	}
	if req.City != nil {
		updated.City = *req.City
	}
	if req.Landline != nil {
		updated.Landline = req.Landline
	}
	if req.Mobile != nil {
		updated.Mobile = *req.Mobile
	}

	duplicate, err := s.repo.FindDuplicate(ctx, &updated, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check for duplicates")
	}
	if duplicate != nil {
		if err := s.repo.MergeInto(ctx, id, duplicate.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to merge duplicate students")
		}
		s.logger.Info("students merged",
			zap.String("merged_id", id),
			zap.String("surviving_id", duplicate.ID))
		return duplicate, nil
	}

	if err := s.repo.Update(ctx, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return &updated, nil
}

func (s *StudentService) loadAuthorized(ctx context.Context, actor Actor, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if actor.IsAdmin {
		return student, nil
	}
	owns, err := s.enrollments.ExistsForUser(ctx, id, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student access")
	}
	if !owns {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not authorized to manage this student")
	}
	return student, nil
}

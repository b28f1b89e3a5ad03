package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/promtec/orientation-api/internal/dto"
	"github.com/promtec/orientation-api/internal/models"
	"github.com/promtec/orientation-api/pkg/config"
	appErrors "github.com/promtec/orientation-api/pkg/errors"
)

const (
	cacheKeyAvailableDates = "slots:available-dates"
	// Two slots per department per day, one per half-day period.
	maxSlotsPerDay = 2
)

type slotRepository interface {
	List(ctx context.Context, filter models.SlotFilter) ([]models.SlotDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Slot, error)
	FindDetailByID(ctx context.Context, id string) (*models.SlotDetail, error)
	CountByDateDepartment(ctx context.Context, date time.Time, department models.Department, excludeID string) (int, error)
	ExistsByPeriod(ctx context.Context, date time.Time, department models.Department, period models.TimePeriod, excludeID string) (bool, error)
	Create(ctx context.Context, slot *models.Slot) error
	Update(ctx context.Context, slot *models.Slot) error
	SetConfirmed(ctx context.Context, id string, confirmed bool) error
	Delete(ctx context.Context, id string) error
	AvailableDates(ctx context.Context) ([]time.Time, error)
	Occupancy(ctx context.Context, slotID string) (models.SlotOccupancy, error)
}

type slotEnrollmentLister interface {
	ListBySlot(ctx context.Context, slotID string, waitingList *bool) ([]models.EnrollmentDetail, error)
}

type schoolReader interface {
	FindByID(ctx context.Context, id string) (*models.School, error)
}

type schoolUserLister interface {
	ListNonAdminBySchool(ctx context.Context, schoolID string) ([]models.User, error)
}

type optionsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CreateSlotRequest describes slot creation payload.
type CreateSlotRequest struct {
	Date                 time.Time `json:"date" validate:"required"`
	TimePeriod           string    `json:"time_period" validate:"required"`
	Department           string    `json:"department" validate:"required"`
	GenderCategory       string    `json:"gender_category" validate:"required"`
	Notes                *string   `json:"notes"`
	TotalSpots           int       `json:"total_spots" validate:"required,gt=0"`
	MaxStudentsPerSchool int       `json:"max_students_per_school" validate:"required,gt=0"`
}

// UpdateSlotRequest describes slot update payload. Nil fields stay unchanged.
type UpdateSlotRequest struct {
	Date                 *time.Time `json:"date"`
	TimePeriod           *string    `json:"time_period"`
	Department           *string    `json:"department"`
	GenderCategory       *string    `json:"gender_category"`
	Notes                *string    `json:"notes"`
	TotalSpots           *int       `json:"total_spots" validate:"omitempty,gt=0"`
	MaxStudentsPerSchool *int       `json:"max_students_per_school" validate:"omitempty,gt=0"`
	Locked               *bool      `json:"is_locked"`
}

// SlotEnumValues lists the accepted values for each slot enum field.
type SlotEnumValues struct {
	TimePeriods      []models.TimePeriod     `json:"time_periods"`
	Departments      []models.Department     `json:"departments"`
	GenderCategories []models.GenderCategory `json:"gender_categories"`
}

// SlotService orchestrates slot lifecycle: creation constraints, updates with
// confirmation invalidation, confirmation summaries and cheap option lookups.
type SlotService struct {
	repo        slotRepository
	enrollments slotEnrollmentLister
	schools     schoolReader
	users       schoolUserLister
	cache       optionsCache
	notifier    Notifier
	slotsCfg    config.SlotsConfig
	orgCfg      config.OrganizationConfig
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewSlotService constructs SlotService.
func NewSlotService(repo slotRepository, enrollments slotEnrollmentLister, schools schoolReader, users schoolUserLister, cache optionsCache, notifier Notifier, slotsCfg config.SlotsConfig, orgCfg config.OrganizationConfig, validate *validator.Validate, logger *zap.Logger) *SlotService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlotService{
		repo:        repo,
		enrollments: enrollments,
		schools:     schools,
		users:       users,
		cache:       cache,
		notifier:    notifier,
		slotsCfg:    slotsCfg,
		orgCfg:      orgCfg,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// List returns slots for the actor. Non-admins never see slots whose date has
// passed by more than the configured hiding window.
func (s *SlotService) List(ctx context.Context, filter models.SlotFilter, isAdmin bool) ([]models.SlotDetail, *models.Pagination, error) {
	if !isAdmin {
		cutoff := s.now().Add(-s.slotsCfg.HiddenAfter).Truncate(24 * time.Hour)
		filter.HideBefore = &cutoff
	}
	slots, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list slots")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 10
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return slots, pagination, nil
}

// Get returns one slot with occupancy.
func (s *SlotService) Get(ctx context.Context, id string) (*models.SlotDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}
	return detail, nil
}

// Create validates constraints and persists a new slot. The initial locked
// state follows the lead-time rule; admins may override it afterwards.
func (s *SlotService) Create(ctx context.Context, req CreateSlotRequest) (*models.Slot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
	}
	period := models.TimePeriod(req.TimePeriod)
	department := models.Department(req.Department)
	category := models.GenderCategory(req.GenderCategory)
	if !period.Valid() || !department.Valid() || !category.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown time period, department or gender category")
	}
	date := req.Date.UTC().Truncate(24 * time.Hour)

	if err := s.checkConstraints(ctx, date, department, period, ""); err != nil {
		return nil, err
	}

	slot := &models.Slot{
		Date:                 date,
		TimePeriod:           period,
		Department:           department,
		GenderCategory:       category,
		Notes:                req.Notes,
		TotalSpots:           req.TotalSpots,
		MaxStudentsPerSchool: req.MaxStudentsPerSchool,
		Locked:               models.ShouldBeLocked(date, s.now(), s.slotsCfg.LockLeadTime),
	}
	if err := s.repo.Create(ctx, slot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create slot")
	}
	s.invalidateOptions(ctx)
	return slot, nil
}

// Update applies partial changes. Constraint checks rerun only when the
// fields they guard actually change; any material change clears the slot's
// confirmation.
func (s *SlotService) Update(ctx context.Context, id string, req UpdateSlotRequest) (*models.Slot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
	}
	slot, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}

	updated := *slot
	material := false
	if req.Date != nil {
		date := req.Date.UTC().Truncate(24 * time.Hour)
		if !date.Equal(slot.Date) {
			updated.Date = date
			material = true
		}
	}
	if req.TimePeriod != nil {
		period := models.TimePeriod(*req.TimePeriod)
		if !period.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown time period")
		}
		if period != slot.TimePeriod {
			updated.TimePeriod = period
			material = true
		}
	}
	if req.Department != nil {
		department := models.Department(*req.Department)
		if !department.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown department")
		}
		if department != slot.Department {
			updated.Department = department
			material = true
		}
	}
	if req.GenderCategory != nil {
		category := models.GenderCategory(*req.GenderCategory)
		if !category.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown gender category")
		}
		if category != slot.GenderCategory {
			updated.GenderCategory = category
			material = true
		}
	}
	if req.Notes != nil && (slot.Notes == nil || *slot.Notes != *req.Notes) {
		updated.Notes = req.Notes
		material = true
	}
	if req.TotalSpots != nil && *req.TotalSpots != slot.TotalSpots {
		updated.TotalSpots = *req.TotalSpots
		material = true
	}
	if req.MaxStudentsPerSchool != nil && *req.MaxStudentsPerSchool != slot.MaxStudentsPerSchool {
		updated.MaxStudentsPerSchool = *req.MaxStudentsPerSchool
		material = true
	}
	if req.Locked != nil {
		updated.Locked = *req.Locked
	}

	scheduleChanged := !updated.Date.Equal(slot.Date) || updated.Department != slot.Department || updated.TimePeriod != slot.TimePeriod
	if scheduleChanged {
		if err := s.checkConstraints(ctx, updated.Date, updated.Department, updated.TimePeriod, id); err != nil {
			return nil, err
		}
	}
	if material {
		updated.Confirmed = false
	}
	if err := s.repo.Update(ctx, &updated); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update slot")
	}
	s.invalidateOptions(ctx)
	return &updated, nil
}

// Delete removes a slot and its enrollments.
func (s *SlotService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete slot")
	}
	s.invalidateOptions(ctx)
	return nil
}

// Confirm finalises a slot's attendee list: the slot is marked confirmed and
// every involved school's contact users are notified with their students.
// Notification delivery never blocks or fails the confirmation itself.
func (s *SlotService) Confirm(ctx context.Context, id string) (*dto.ConfirmationSummary, error) {
	slot, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}

	waiting := false
	enrollments, err := s.enrollments.ListBySlot(ctx, id, &waiting)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}
	if len(enrollments) == 0 {
		return nil, appErrors.ErrNoConfirmedStudents
	}

	summary, err := s.buildConfirmation(ctx, *slot, enrollments)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetConfirmed(ctx, id, true); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to confirm slot")
	}
	summary.Slot.Confirmed = true

	if s.notifier != nil {
		go s.deliverConfirmation(*summary)
	}
	return summary, nil
}

// ConfirmationPreview builds the grouped attendee list without confirming the
// slot or notifying anyone. Used for letter rendering.
func (s *SlotService) ConfirmationPreview(ctx context.Context, id string) (*dto.ConfirmationSummary, error) {
	slot, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}
	waiting := false
	enrollments, err := s.enrollments.ListBySlot(ctx, id, &waiting)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}
	if len(enrollments) == 0 {
		return nil, appErrors.ErrNoConfirmedStudents
	}
	return s.buildConfirmation(ctx, *slot, enrollments)
}

// Capacity reports a slot's occupancy including per-school availability.
func (s *SlotService) Capacity(ctx context.Context, id string) (*dto.SlotCapacity, error) {
	occ, err := s.repo.Occupancy(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot capacity")
	}
	perSchool := make(map[string]int, len(occ.SchoolCounts))
	for schoolID := range occ.SchoolCounts {
		perSchool[schoolID] = occ.AvailableSchoolSpots(schoolID)
	}
	return &dto.SlotCapacity{
		SlotID:         id,
		TotalSpots:     occ.TotalSpots,
		OccupiedSpots:  occ.Occupied,
		AvailableSpots: occ.Available(),
		PerSchool:      perSchool,
	}, nil
}

// AvailableDates returns the distinct dates slots exist on, cached briefly.
func (s *SlotService) AvailableDates(ctx context.Context) ([]time.Time, error) {
	var dates []time.Time
	if s.cache != nil {
		if err := s.cache.Get(ctx, cacheKeyAvailableDates, &dates); err == nil {
			return dates, nil
		} else if !appErrors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("available dates cache read failed", zap.Error(err))
		}
	}
	dates, err := s.repo.AvailableDates(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list slot dates")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKeyAvailableDates, dates, s.slotsCfg.OptionsCacheTTL); err != nil {
			s.logger.Warn("available dates cache write failed", zap.Error(err))
		}
	}
	return dates, nil
}

// EnumValues returns the accepted enum values for slot fields.
func (s *SlotService) EnumValues() SlotEnumValues {
	return SlotEnumValues{
		TimePeriods:      models.TimePeriods(),
		Departments:      models.Departments(),
		GenderCategories: models.GenderCategories(),
	}
}

// OrganizationInfo returns the configured contact details.
func (s *SlotService) OrganizationInfo() config.OrganizationConfig {
	return s.orgCfg
}

func (s *SlotService) checkConstraints(ctx context.Context, date time.Time, department models.Department, period models.TimePeriod, excludeID string) error {
	count, err := s.repo.CountByDateDepartment(ctx, date, department, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate slot constraints")
	}
	if count >= maxSlotsPerDay {
		return appErrors.ErrSlotDailyLimit
	}
	taken, err := s.repo.ExistsByPeriod(ctx, date, department, period, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate slot constraints")
	}
	if taken {
		return appErrors.ErrSlotPeriodTaken
	}
	return nil
}

func (s *SlotService) buildConfirmation(ctx context.Context, slot models.Slot, enrollments []models.EnrollmentDetail) (*dto.ConfirmationSummary, error) {
	bySchool := map[string]*dto.SchoolConfirmation{}
	var order []string
	for _, e := range enrollments {
		schoolID := e.Student.SchoolIDValue()
		group, ok := bySchool[schoolID]
		if !ok {
			group = &dto.SchoolConfirmation{SchoolID: schoolID}
			if schoolID != "" {
				school, err := s.schools.FindByID(ctx, schoolID)
				if err != nil {
					return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
				}
				group.SchoolName = school.Name
				recipients, err := s.users.ListNonAdminBySchool(ctx, schoolID)
				if err != nil {
					return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school users")
				}
				group.Recipients = recipients
			}
			bySchool[schoolID] = group
			order = append(order, schoolID)
		}
		group.Students = append(group.Students, dto.ConfirmedStudent{
			FirstName:   e.Student.FirstName,
			LastName:    e.Student.LastName,
			SchoolClass: e.Student.SchoolClass,
		})
	}

	summary := &dto.ConfirmationSummary{Slot: slot}
	for _, schoolID := range order {
		summary.Schools = append(summary.Schools, *bySchool[schoolID])
	}
	return summary, nil
}

func (s *SlotService) deliverConfirmation(summary dto.ConfirmationSummary) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, school := range summary.Schools {
		if len(school.Recipients) == 0 {
			continue
		}
		if err := s.notifier.SendConfirmation(ctx, school, summary); err != nil {
			s.logger.Error("confirmation notification failed",
				zap.String("slot_id", summary.Slot.ID),
				zap.String("school_id", school.SchoolID),
				zap.Error(err))
		}
	}
}

func (s *SlotService) invalidateOptions(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cacheKeyAvailableDates); err != nil {
		s.logger.Warn("options cache invalidation failed", zap.Error(err))
	}
}

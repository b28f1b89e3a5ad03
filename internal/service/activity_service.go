package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/promtec/orientation-api/internal/dto"
	"github.com/promtec/orientation-api/internal/models"
	"github.com/promtec/orientation-api/pkg/config"
)

type activityRepository interface {
	UpsertPending(ctx context.Context, userID string, now time.Time) error
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]models.EnrollmentActivity, error)
	MarkSent(ctx context.Context, id string) error
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type windowedEnrollmentLister interface {
	ListByUserBetween(ctx context.Context, userID string, from, to time.Time) ([]models.EnrollmentDetail, error)
}

type sweepObserver interface {
	ObserveSweep(duration time.Duration)
	CountSummarySent()
}

// ActivityService debounces enrollment summary emails. Every enrollment bumps
// the actor's pending activity record; once a user has been quiet for the
// debounce window, one summary covering the whole burst goes out.
type ActivityService struct {
	repo        activityRepository
	users       userReader
	enrollments windowedEnrollmentLister
	notifier    Notifier
	metrics     sweepObserver
	cfg         config.ActivityConfig
	logger      *zap.Logger
	now         func() time.Time
}

// NewActivityService constructs ActivityService.
func NewActivityService(repo activityRepository, users userReader, enrollments windowedEnrollmentLister, notifier Notifier, metrics sweepObserver, cfg config.ActivityConfig, logger *zap.Logger) *ActivityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityService{
		repo:        repo,
		users:       users,
		enrollments: enrollments,
		notifier:    notifier,
		metrics:     metrics,
		cfg:         cfg,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// RegisterActivity records that a user just created an enrollment, extending
// their pending summary window.
func (s *ActivityService) RegisterActivity(ctx context.Context, userID string) error {
	return s.repo.UpsertPending(ctx, userID, s.now())
}

// Run sweeps pending activity on the configured interval until the context is
// cancelled. Meant to be started as a goroutine from main.
func (s *ActivityService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	s.logger.Info("activity sweep started",
		zap.Duration("interval", s.cfg.SweepInterval),
		zap.Duration("debounce_window", s.cfg.DebounceWindow))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("activity sweep stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep processes every activity record whose debounce window has closed.
// Failures are isolated per record; a failed notification leaves its record
// pending so the next sweep retries it.
func (s *ActivityService) Sweep(ctx context.Context) {
	started := s.now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveSweep(time.Since(started))
		}
	}()

	cutoff := started.Add(-s.cfg.DebounceWindow)
	pending, err := s.repo.ListPendingBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("activity sweep query failed", zap.Error(err))
		return
	}
	for _, activity := range pending {
		if err := s.processActivity(ctx, activity); err != nil {
			s.logger.Error("activity summary failed",
				zap.String("activity_id", activity.ID),
				zap.String("user_id", activity.UserID),
				zap.Error(err))
		}
	}
}

func (s *ActivityService) processActivity(ctx context.Context, activity models.EnrollmentActivity) error {
	user, err := s.users.FindByID(ctx, activity.UserID)
	if err != nil {
		return err
	}

	// Admins never receive summaries; their record is simply retired.
	if !user.IsAdmin {
		from := activity.LastActivity.Add(-s.cfg.DebounceWindow)
		enrollments, err := s.enrollments.ListByUserBetween(ctx, activity.UserID, from, activity.LastActivity)
		if err != nil {
			return err
		}
		if len(enrollments) > 0 && s.notifier != nil {
			summary := dto.EnrollmentSummary{User: *user, Enrollments: enrollments}
			if err := s.notifier.SendEnrollmentSummary(ctx, summary); err != nil {
				return err
			}
			if s.metrics != nil {
				s.metrics.CountSummarySent()
			}
			s.logger.Info("enrollment summary sent",
				zap.String("user_id", user.ID),
				zap.Int("enrollments", len(enrollments)))
		}
	}
	return s.repo.MarkSent(ctx, activity.ID)
}

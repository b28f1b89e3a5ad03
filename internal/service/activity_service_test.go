package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promtec/orientation-api/internal/dto"
	"github.com/promtec/orientation-api/internal/models"
	"github.com/promtec/orientation-api/pkg/config"
)

type mockActivityRepo struct {
	pending  []models.EnrollmentActivity
	upserted map[string]time.Time
	sent     []string
}

func (m *mockActivityRepo) UpsertPending(ctx context.Context, userID string, now time.Time) error {
	if m.upserted == nil {
		m.upserted = make(map[string]time.Time)
	}
	m.upserted[userID] = now
	return nil
}

func (m *mockActivityRepo) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]models.EnrollmentActivity, error) {
	var due []models.EnrollmentActivity
	for _, a := range m.pending {
		if a.LastActivity.Before(cutoff) {
			due = append(due, a)
		}
	}
	return due, nil
}

func (m *mockActivityRepo) MarkSent(ctx context.Context, id string) error {
	m.sent = append(m.sent, id)
	return nil
}

type mockUserReader struct {
	users map[string]models.User
}

func (m *mockUserReader) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return &u, nil
	}
	return nil, sql.ErrNoRows
}

type mockWindowedLister struct {
	byUser   map[string][]models.EnrollmentDetail
	lastFrom time.Time
	lastTo   time.Time
}

func (m *mockWindowedLister) ListByUserBetween(ctx context.Context, userID string, from, to time.Time) ([]models.EnrollmentDetail, error) {
	m.lastFrom = from
	m.lastTo = to
	return m.byUser[userID], nil
}

type captureNotifier struct {
	summaries     []dto.EnrollmentSummary
	confirmations []dto.SchoolConfirmation
	fail          bool
}

func (n *captureNotifier) SendConfirmation(ctx context.Context, confirmation dto.SchoolConfirmation, summary dto.ConfirmationSummary) error {
	if n.fail {
		return errors.New("smtp down")
	}
	n.confirmations = append(n.confirmations, confirmation)
	return nil
}

func (n *captureNotifier) SendEnrollmentSummary(ctx context.Context, summary dto.EnrollmentSummary) error {
	if n.fail {
		return errors.New("smtp down")
	}
	n.summaries = append(n.summaries, summary)
	return nil
}

func activityTestConfig() config.ActivityConfig {
	return config.ActivityConfig{DebounceWindow: 30 * time.Minute, SweepInterval: time.Minute}
}

func TestSweepSendsSummaryAfterQuietWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	lastActivity := now.Add(-40 * time.Minute)

	repo := &mockActivityRepo{pending: []models.EnrollmentActivity{
		{ID: "act-1", UserID: "user-1", LastActivity: lastActivity},
	}}
	users := &mockUserReader{users: map[string]models.User{
		"user-1": {ID: "user-1", Email: "school@example.org"},
	}}
	lister := &mockWindowedLister{byUser: map[string][]models.EnrollmentDetail{
		"user-1": {{StudentEnrollment: models.StudentEnrollment{ID: "enr-1"}}},
	}}
	notifier := &captureNotifier{}
	svc := NewActivityService(repo, users, lister, notifier, nil, activityTestConfig(), nil)
	svc.now = func() time.Time { return now }

	svc.Sweep(context.Background())

	require.Len(t, notifier.summaries, 1)
	assert.Equal(t, "user-1", notifier.summaries[0].User.ID)
	assert.Equal(t, []string{"act-1"}, repo.sent)
	// The summary window covers the whole enrollment burst.
	assert.Equal(t, lastActivity.Add(-30*time.Minute), lister.lastFrom)
	assert.Equal(t, lastActivity, lister.lastTo)
}

func TestSweepSkipsRecentActivity(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := &mockActivityRepo{pending: []models.EnrollmentActivity{
		{ID: "act-1", UserID: "user-1", LastActivity: now.Add(-10 * time.Minute)},
	}}
	notifier := &captureNotifier{}
	svc := NewActivityService(repo, &mockUserReader{}, &mockWindowedLister{}, notifier, nil, activityTestConfig(), nil)
	svc.now = func() time.Time { return now }

	svc.Sweep(context.Background())

	assert.Empty(t, notifier.summaries)
	assert.Empty(t, repo.sent)
}

func TestSweepRetiresAdminRecordsWithoutNotifying(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := &mockActivityRepo{pending: []models.EnrollmentActivity{
		{ID: "act-1", UserID: "admin-1", LastActivity: now.Add(-40 * time.Minute)},
	}}
	users := &mockUserReader{users: map[string]models.User{
		"admin-1": {ID: "admin-1", IsAdmin: true},
	}}
	notifier := &captureNotifier{}
	svc := NewActivityService(repo, users, &mockWindowedLister{}, notifier, nil, activityTestConfig(), nil)
	svc.now = func() time.Time { return now }

	svc.Sweep(context.Background())

	assert.Empty(t, notifier.summaries)
	assert.Equal(t, []string{"act-1"}, repo.sent)
}

func TestSweepLeavesRecordPendingOnNotifyFailure(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := &mockActivityRepo{pending: []models.EnrollmentActivity{
		{ID: "act-1", UserID: "user-1", LastActivity: now.Add(-40 * time.Minute)},
		{ID: "act-2", UserID: "user-2", LastActivity: now.Add(-45 * time.Minute)},
	}}
	users := &mockUserReader{users: map[string]models.User{
		"user-1": {ID: "user-1"},
		"user-2": {ID: "user-2", IsAdmin: true},
	}}
	lister := &mockWindowedLister{byUser: map[string][]models.EnrollmentDetail{
		"user-1": {{StudentEnrollment: models.StudentEnrollment{ID: "enr-1"}}},
	}}
	notifier := &captureNotifier{fail: true}
	svc := NewActivityService(repo, users, lister, notifier, nil, activityTestConfig(), nil)
	svc.now = func() time.Time { return now }

	svc.Sweep(context.Background())

	// The failing record stays pending; the admin record is still retired.
	assert.Equal(t, []string{"act-2"}, repo.sent)
}

func TestSweepRetiresEmptyWindowWithoutNotifying(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := &mockActivityRepo{pending: []models.EnrollmentActivity{
		{ID: "act-1", UserID: "user-1", LastActivity: now.Add(-40 * time.Minute)},
	}}
	users := &mockUserReader{users: map[string]models.User{"user-1": {ID: "user-1"}}}
	notifier := &captureNotifier{}
	svc := NewActivityService(repo, users, &mockWindowedLister{}, notifier, nil, activityTestConfig(), nil)
	svc.now = func() time.Time { return now }

	svc.Sweep(context.Background())

	assert.Empty(t, notifier.summaries)
	assert.Equal(t, []string{"act-1"}, repo.sent)
}

func TestRegisterActivityBumpsPendingRecord(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := &mockActivityRepo{}
	svc := NewActivityService(repo, &mockUserReader{}, &mockWindowedLister{}, nil, nil, activityTestConfig(), nil)
	svc.now = func() time.Time { return now }

	require.NoError(t, svc.RegisterActivity(context.Background(), "user-1"))
	assert.Equal(t, now, repo.upserted["user-1"])
}

package handler

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promtec/orientation-api/internal/middleware"
	"github.com/promtec/orientation-api/internal/models"
)

func testContext(t *testing.T) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	return c, w
}

func TestEnrollmentHandlerCreateInvalidBody(t *testing.T) {
	h := NewEnrollmentHandler(nil)
	c, w := testContext(t)
	req, _ := http.NewRequest(http.MethodPost, "/enrollments", bytes.NewReader([]byte(`invalid`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	h.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSlotHandlerCreateInvalidBody(t *testing.T) {
	h := NewSlotHandler(nil, nil, nil)
	c, w := testContext(t)
	req, _ := http.NewRequest(http.MethodPost, "/slots", bytes.NewReader([]byte(`{`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	h.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSlotHandlerListRejectsBadDateFilter(t *testing.T) {
	h := NewSlotHandler(nil, nil, nil)
	c, w := testContext(t)
	req, _ := http.NewRequest(http.MethodGet, "/slots?date=20-03-2026", nil)
	c.Request = req

	h.List(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthHandlerMeWithoutClaims(t *testing.T) {
	h := NewAuthHandler(nil)
	c, w := testContext(t)
	req, _ := http.NewRequest(http.MethodGet, "/auth/me", nil)
	c.Request = req

	h.Me(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestActorFromContextMapsClaims(t *testing.T) {
	schoolID := "school-1"
	c, _ := testContext(t)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{
		UserID:   "user-1",
		IsAdmin:  true,
		SchoolID: &schoolID,
	})

	actor := actorFromContext(c)
	assert.Equal(t, "user-1", actor.UserID)
	assert.True(t, actor.IsAdmin)
	assert.Equal(t, "school-1", actor.SchoolID)
}

func TestActorFromContextWithoutClaimsIsZero(t *testing.T) {
	c, _ := testContext(t)
	assert.Equal(t, "", actorFromContext(c).UserID)
}

package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tandemhq/tandem-api/internal/modules/gamification/repository"
	"github.com/tandemhq/tandem-api/internal/modules/gamification/service"
	"github.com/tandemhq/tandem-api/internal/testutil"
)

func newTestRouter(t *testing.T, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)

	db := testutil.OpenTestDB(t)
	svc := service.NewGamificationService(
		repository.NewGamificationRepository(db),
		testutil.NewFakeBroadcaster(),
		3*time.Second,
	)
	handler := NewGamificationHandler(svc)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("user_id", userID.String())
	})
	router.POST("/activities", handler.RecordActivity)
	router.GET("/stats", handler.GetStats)
	return router
}

func TestRecordActivityEndpoint(t *testing.T) {
	userID := uuid.New()
	router := newTestRouter(t, userID)

	body, _ := json.Marshal(map[string]interface{}{
		"activity_kind": "daily_response",
	})
	req := httptest.NewRequest(http.MethodPost, "/activities", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var result struct {
		Data struct {
			PointsAwarded int      `json:"points_awarded"`
			NewBadges     []string `json:"new_badges"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.Greater(t, result.Data.PointsAwarded, 0)
	assert.Contains(t, result.Data.NewBadges, "FIRST_STEPS")
}

func TestRecordActivityEndpointRejectsUnknownKind(t *testing.T) {
	router := newTestRouter(t, uuid.New())

	body, _ := json.Marshal(map[string]interface{}{
		"activity_kind": "vacation",
	})
	req := httptest.NewRequest(http.MethodPost, "/activities", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetStatsEndpointUnknownUser(t *testing.T) {
	router := newTestRouter(t, uuid.New())

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

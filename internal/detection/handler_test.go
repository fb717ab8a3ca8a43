package detection

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/reviewguard/reviewguard/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestRouter(repo DetectionRepository) (*gin.Engine, *Orchestrator) {
	gin.SetMode(gin.TestMode)
	cfg := testDetectionConfig()
	service := NewService(repo, NewEngine(cfg.DuplicateThreshold), nil, cfg)
	service.now = func() time.Time { return baseTime }

	classifier := LoadClassifier(&config.ClassifierConfig{Threshold: 0.5})
	orchestrator := NewOrchestrator(repo, classifier, NewAnalyzer(5*time.Minute), nil, 2)

	router := gin.New()
	NewHandler(service, orchestrator).RegisterRoutes(router.Group("/api/v1"))
	return router, orchestrator
}

func performRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func decodeEnvelope(t *testing.T, recorder *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var envelope map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	return envelope
}

func TestSubmitReviewEndpoint(t *testing.T) {
	repo := new(mockDetectionRepository)
	router, _ := newTestRouter(repo)

	userID := uuid.New()
	productID := uuid.New()
	expectCleanLookups(repo, userID, productID, []string{})

	recorder := performRequest(router, http.MethodPost, "/api/v1/reviews", gin.H{
		"product_id":         productID.String(),
		"user_id":            userID.String(),
		"rating":             4,
		"text":               "arrived quickly and works well",
		"ip_address":         "203.0.113.5",
		"device_fingerprint": "device-1",
	})

	require.Equal(t, http.StatusCreated, recorder.Code)
	envelope := decodeEnvelope(t, recorder)
	assert.Equal(t, true, envelope["success"])

	data, ok := envelope["data"].(map[string]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, data["review_id"])
	assert.Equal(t, false, data["is_fake_rule_based"])
	repo.AssertExpectations(t)
}

func TestSubmitReviewValidation(t *testing.T) {
	router, _ := newTestRouter(new(mockDetectionRepository))

	cases := []struct {
		name string
		body gin.H
	}{
		{"rating out of range", gin.H{"product_id": uuid.New().String(), "user_id": uuid.New().String(), "rating": 9, "text": "x"}},
		{"missing text", gin.H{"product_id": uuid.New().String(), "user_id": uuid.New().String(), "rating": 3}},
		{"malformed product id", gin.H{"product_id": "nope", "user_id": uuid.New().String(), "rating": 3, "text": "x"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recorder := performRequest(router, http.MethodPost, "/api/v1/reviews", tc.body)
			assert.Equal(t, http.StatusBadRequest, recorder.Code)
			envelope := decodeEnvelope(t, recorder)
			assert.Equal(t, false, envelope["success"])
		})
	}
}

func TestSubmitReviewUnknownUserReturns404(t *testing.T) {
	repo := new(mockDetectionRepository)
	router, _ := newTestRouter(repo)

	userID := uuid.New()
	repo.On("GetUserByID", mock.Anything, userID).Return(nil, ErrUserNotFound).Once()

	recorder := performRequest(router, http.MethodPost, "/api/v1/reviews", gin.H{
		"product_id": uuid.New().String(),
		"user_id":    userID.String(),
		"rating":     4,
		"text":       "arrived quickly and works well",
	})

	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestGetReviewEndpoint(t *testing.T) {
	repo := new(mockDetectionRepository)
	router, _ := newTestRouter(repo)

	review := makeReview(uuid.New(), baseTime)
	repo.On("GetReviewByID", mock.Anything, review.ID).Return(review, nil).Once()

	recorder := performRequest(router, http.MethodGet, "/api/v1/reviews/"+review.ID.String(), nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	envelope := decodeEnvelope(t, recorder)
	data, ok := envelope["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, review.ID.String(), data["id"])
}

func TestGetReviewBadID(t *testing.T) {
	router, _ := newTestRouter(new(mockDetectionRepository))
	recorder := performRequest(router, http.MethodGet, "/api/v1/reviews/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestGetReviewNotFound(t *testing.T) {
	repo := new(mockDetectionRepository)
	router, _ := newTestRouter(repo)

	reviewID := uuid.New()
	repo.On("GetReviewByID", mock.Anything, reviewID).Return(nil, ErrReviewNotFound).Once()

	recorder := performRequest(router, http.MethodGet, "/api/v1/reviews/"+reviewID.String(), nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestListReviewsEndpoint(t *testing.T) {
	repo := new(mockDetectionRepository)
	router, _ := newTestRouter(repo)

	productID := uuid.New()
	reviews := []*Review{makeReview(uuid.New(), baseTime), makeReview(uuid.New(), baseTime.Add(time.Minute))}
	repo.On("ListReviewsByProduct", mock.Anything, productID, 20, 0).Return(reviews, nil).Once()

	recorder := performRequest(router, http.MethodGet, fmt.Sprintf("/api/v1/reviews?product_id=%s", productID), nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	envelope := decodeEnvelope(t, recorder)
	data, ok := envelope["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(2), data["count"])
}

func TestListReviewsRepositoryFailure(t *testing.T) {
	repo := new(mockDetectionRepository)
	router, _ := newTestRouter(repo)

	productID := uuid.New()
	repo.On("ListReviewsByProduct", mock.Anything, productID, 20, 0).Return(nil, assert.AnError).Once()

	recorder := performRequest(router, http.MethodGet, fmt.Sprintf("/api/v1/reviews?product_id=%s", productID), nil)
	require.Equal(t, http.StatusInternalServerError, recorder.Code)

	envelope := decodeEnvelope(t, recorder)
	assert.Equal(t, false, envelope["success"])
	assert.Equal(t, "failed to list reviews", envelope["error"])
}

func TestListReviewsRequiresProductID(t *testing.T) {
	router, _ := newTestRouter(new(mockDetectionRepository))
	recorder := performRequest(router, http.MethodGet, "/api/v1/reviews", nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestRunAnalysisDefaultsToFullMode(t *testing.T) {
	repo := new(mockDetectionRepository)
	router, _ := newTestRouter(repo)

	repo.On("SnapshotReviews", mock.Anything).Return([]*Review{}, nil).Once()
	repo.On("CommitBatchVerdicts", mock.Anything, mock.Anything).Return(nil).Once()

	recorder := performRequest(router, http.MethodPost, "/api/v1/admin/analysis/run", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	envelope := decodeEnvelope(t, recorder)
	data, ok := envelope["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "full", data["mode"])
	repo.AssertExpectations(t)
}

func TestRunAnalysisIncrementalMode(t *testing.T) {
	repo := new(mockDetectionRepository)
	router, _ := newTestRouter(repo)

	repo.On("SnapshotUnlabeledReviews", mock.Anything).Return([]*Review{}, nil).Once()
	repo.On("CommitBatchVerdicts", mock.Anything, mock.Anything).Return(nil).Once()

	recorder := performRequest(router, http.MethodPost, "/api/v1/admin/analysis/run", gin.H{"mode": "incremental"})
	require.Equal(t, http.StatusOK, recorder.Code)
	repo.AssertExpectations(t)
}

func TestRunAnalysisRejectsUnknownMode(t *testing.T) {
	router, _ := newTestRouter(new(mockDetectionRepository))
	recorder := performRequest(router, http.MethodPost, "/api/v1/admin/analysis/run", gin.H{"mode": "weekly"})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestRunAnalysisConflictWhileRunning(t *testing.T) {
	router, orchestrator := newTestRouter(new(mockDetectionRepository))
	orchestrator.state = StateRunning

	recorder := performRequest(router, http.MethodPost, "/api/v1/admin/analysis/run", nil)
	assert.Equal(t, http.StatusConflict, recorder.Code)

	envelope := decodeEnvelope(t, recorder)
	assert.Equal(t, false, envelope["success"])
	assert.Equal(t, ErrRunInProgress.Error(), envelope["error"])
}

func TestAnalysisStatusEndpoint(t *testing.T) {
	repo := new(mockDetectionRepository)
	router, _ := newTestRouter(repo)

	recorder := performRequest(router, http.MethodGet, "/api/v1/admin/analysis/status", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	envelope := decodeEnvelope(t, recorder)
	data, ok := envelope["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "idle", data["state"])
	assert.Nil(t, data["last_summary"])
}

package detection

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/reviewguard/reviewguard/pkg/common"
	"github.com/reviewguard/reviewguard/pkg/logger"
	"github.com/reviewguard/reviewguard/pkg/validation"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for the detection engine
type Handler struct {
	service      *Service
	orchestrator *Orchestrator
}

// NewHandler creates a new detection handler
func NewHandler(service *Service, orchestrator *Orchestrator) *Handler {
	return &Handler{service: service, orchestrator: orchestrator}
}

// RegisterRoutes mounts the detection endpoints on the router group
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/reviews", h.SubmitReview)
	api.GET("/reviews/:id", h.GetReview)
	api.GET("/reviews", h.ListReviews)

	admin := api.Group("/admin")
	{
		admin.POST("/analysis/run", h.RunAnalysis)
		admin.GET("/analysis/status", h.AnalysisStatus)
	}
}

// SubmitReview scores and persists a review submission
// POST /api/v1/reviews
func (h *Handler) SubmitReview(c *gin.Context) {
	var req SubmitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			common.ErrorResponse(c, http.StatusBadRequest, validation.NewValidationError(validationErrs).Error())
			return
		}
		common.ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	verdict, err := h.service.ScoreSubmission(c.Request.Context(), &req)
	if err != nil {
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			common.AppErrorResponse(c, appErr)
			return
		}
		logger.WithContext(c.Request.Context()).Error("submission scoring failed", zap.Error(err))
		common.AppErrorResponse(c, common.NewInternalServerError("failed to score review"))
		return
	}

	common.CreatedResponse(c, verdict)
}

// GetReview fetches a review with its verdict fields
// GET /api/v1/reviews/:id
func (h *Handler) GetReview(c *gin.Context) {
	reviewID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid review ID")
		return
	}

	review, err := h.service.GetReview(c.Request.Context(), reviewID)
	if err != nil {
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			common.AppErrorResponse(c, appErr)
			return
		}
		common.AppErrorResponse(c, common.NewInternalServerError("failed to load review"))
		return
	}

	common.SuccessResponse(c, review)
}

// ListReviews lists reviews for a product
// GET /api/v1/reviews?product_id=...&limit=...&offset=...
func (h *Handler) ListReviews(c *gin.Context) {
	productID, err := uuid.Parse(c.Query("product_id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid or missing product_id")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	reviews, err := h.service.ListProductReviews(c.Request.Context(), productID, limit, offset)
	if err != nil {
		common.AppErrorResponse(c, common.NewInternalServerError("failed to list reviews"))
		return
	}

	common.SuccessResponse(c, gin.H{
		"reviews": reviews,
		"count":   len(reviews),
	})
}

// runAnalysisRequest selects the batch mode
type runAnalysisRequest struct {
	Mode string `json:"mode" binding:"omitempty,oneof=full incremental"`
}

// RunAnalysis triggers a batch analysis run
// POST /api/v1/admin/analysis/run
func (h *Handler) RunAnalysis(c *gin.Context) {
	// Empty body defaults to a full run
	var req runAnalysisRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			common.ErrorResponse(c, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	mode := BatchMode(req.Mode)
	if mode == "" {
		mode = BatchModeFull
	}

	summary, err := h.orchestrator.Run(c.Request.Context(), mode)
	if err != nil {
		if errors.Is(err, ErrRunInProgress) {
			common.AppErrorResponse(c, common.NewConflictError(ErrRunInProgress.Error()))
			return
		}
		logger.WithContext(c.Request.Context()).Error("analysis run failed", zap.Error(err))
		common.AppErrorResponse(c, common.NewInternalServerError("analysis run failed"))
		return
	}

	common.SuccessResponse(c, summary)
}

// AnalysisStatus reports the orchestrator state and last run summary
// GET /api/v1/admin/analysis/status
func (h *Handler) AnalysisStatus(c *gin.Context) {
	state, lastSummary := h.orchestrator.State()
	common.SuccessResponse(c, gin.H{
		"state":        state,
		"last_summary": lastSummary,
	})
}

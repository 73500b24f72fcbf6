package verification

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"fieldserve/dispatch/dispatch-backend/internal/auth"
	"fieldserve/dispatch/dispatch-backend/pkg/faults"
)

// Handler handles HTTP requests for the verification workflow
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new verification handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers verification routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	v := router.Group("/verification")
	{
		v.GET("/form", auth.RequireRole(auth.RoleProvider), h.getForm)
		v.POST("/submit", auth.RequireRole(auth.RoleProvider), h.submit)

		v.POST("/:submissionId/approve", auth.RequireRole(auth.RoleAdmin), h.approve)
		v.POST("/:submissionId/reject", auth.RequireRole(auth.RoleAdmin), h.reject)
		v.POST("/:submissionId/request-info", auth.RequireRole(auth.RoleAdmin), h.requestInfo)
	}
}

func (h *Handler) fail(c *gin.Context, err error, msg string) {
	h.logger.Error(msg, zap.Error(err))
	body := gin.H{"error": err.Error()}
	if f, ok := faults.As(err); ok {
		body["code"] = f.Code
		if f.RetryAt != nil {
			body["retry_at"] = f.RetryAt
		}
		if f.CurrentStatus != "" {
			body["current_status"] = f.CurrentStatus
		}
	}
	c.JSON(faults.HTTPStatus(err), body)
}

// getForm handles GET /api/v1/verification/form
func (h *Handler) getForm(c *gin.Context) {
	providerID, err := uuid.Parse(auth.FromContext(c).ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid actor id"})
		return
	}

	form, err := h.service.GetForm(c.Request.Context(), providerID)
	if err != nil {
		h.fail(c, err, "Failed to load verification form")
		return
	}
	c.JSON(http.StatusOK, form)
}

// submit handles POST /api/v1/verification/submit
func (h *Handler) submit(c *gin.Context) {
	providerID, err := uuid.Parse(auth.FromContext(c).ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid actor id"})
		return
	}

	var req struct {
		Documents []DocumentInput `json:"documents" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	submission, err := h.service.Submit(c.Request.Context(), providerID, req.Documents)
	if err != nil {
		h.fail(c, err, "Failed to submit verification")
		return
	}
	c.JSON(http.StatusCreated, submission)
}

// approve handles POST /api/v1/verification/:submissionId/approve
func (h *Handler) approve(c *gin.Context) {
	submissionID, err := uuid.Parse(c.Param("submissionId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid submission ID"})
		return
	}
	reviewerID, err := uuid.Parse(auth.FromContext(c).ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid actor id"})
		return
	}

	var req struct {
		Feedback string `json:"feedback"`
	}
	_ = c.ShouldBindJSON(&req)

	decision, err := h.service.Approve(c.Request.Context(), submissionID, reviewerID, req.Feedback)
	if err != nil {
		h.fail(c, err, "Failed to approve submission")
		return
	}
	c.JSON(http.StatusOK, decision)
}

// reject handles POST /api/v1/verification/:submissionId/reject
func (h *Handler) reject(c *gin.Context) {
	submissionID, err := uuid.Parse(c.Param("submissionId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid submission ID"})
		return
	}
	reviewerID, err := uuid.Parse(auth.FromContext(c).ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid actor id"})
		return
	}

	var req struct {
		Reason string `json:"reason" binding:"required"`
		Notes  string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	decision, err := h.service.Reject(c.Request.Context(), submissionID, reviewerID, req.Reason, req.Notes)
	if err != nil {
		h.fail(c, err, "Failed to reject submission")
		return
	}
	c.JSON(http.StatusOK, decision)
}

// requestInfo handles POST /api/v1/verification/:submissionId/request-info
func (h *Handler) requestInfo(c *gin.Context) {
	submissionID, err := uuid.Parse(c.Param("submissionId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid submission ID"})
		return
	}
	reviewerID, err := uuid.Parse(auth.FromContext(c).ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid actor id"})
		return
	}

	var req struct {
		Feedback     string `json:"feedback" binding:"required"`
		DeadlineDays int    `json:"deadline_days"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	decision, err := h.service.RequestMoreInfo(c.Request.Context(), submissionID, reviewerID, req.Feedback, req.DeadlineDays)
	if err != nil {
		h.fail(c, err, "Failed to request more info")
		return
	}
	c.JSON(http.StatusOK, decision)
}

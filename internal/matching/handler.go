package matching

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fieldserve/dispatch/dispatch-backend/internal/auth"
	"fieldserve/dispatch/dispatch-backend/pkg/faults"
)

// Handler handles HTTP requests for proximity matching
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new matching handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers matching routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	m := router.Group("/matching")
	{
		m.GET("/nearby", h.findNearby)
		m.GET("/closest", h.findClosest)
		m.POST("/batch", auth.RequireRole(auth.RoleInternal, auth.RoleAdmin), h.batchMatch)
	}
}

// findNearby handles GET /api/v1/matching/nearby
func (h *Handler) findNearby(c *gin.Context) {
	lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
	lng, err2 := strconv.ParseFloat(c.Query("lng"), 64)
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lng are required"})
		return
	}

	radius, _ := strconv.ParseFloat(c.DefaultQuery("radius", "0"), 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	actor := auth.FromContext(c)
	opts := Options{
		Limit:             limit,
		Skill:             c.Query("skill"),
		IncludeUnapproved: c.Query("include_unapproved") == "true" && (actor.Role == auth.RoleAdmin || actor.Role == auth.RoleInternal),
	}

	matches, err := h.service.FindNearby(c.Request.Context(), lat, lng, radius, opts)
	if err != nil {
		h.logger.Error("Failed to find nearby providers", zap.Error(err))
		c.JSON(faults.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches, "count": len(matches)})
}

// findClosest handles GET /api/v1/matching/closest
func (h *Handler) findClosest(c *gin.Context) {
	lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
	lng, err2 := strconv.ParseFloat(c.Query("lng"), 64)
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lng are required"})
		return
	}

	match, err := h.service.FindClosest(c.Request.Context(), lat, lng)
	if err != nil {
		h.logger.Error("Failed to find closest provider", zap.Error(err))
		c.JSON(faults.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	if match == nil {
		c.JSON(http.StatusOK, gin.H{"match": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"match": match})
}

// batchMatch handles POST /api/v1/matching/batch
func (h *Handler) batchMatch(c *gin.Context) {
	var req struct {
		Requests []Request `json:"requests" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	matches, err := h.service.BatchMatch(c.Request.Context(), req.Requests)
	if err != nil {
		h.logger.Error("Failed to batch match", zap.Error(err))
		c.JSON(faults.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches})
}

package providers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"fieldserve/dispatch/dispatch-backend/internal/auth"
	"fieldserve/dispatch/dispatch-backend/pkg/faults"
)

// Handler handles HTTP requests for provider profiles
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new provider handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers provider routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	p := router.Group("/providers")
	{
		p.POST("", h.register)
		p.GET("/me", auth.RequireRole(auth.RoleProvider), h.me)
		p.GET("/:providerId", auth.RequireRole(auth.RoleAdmin, auth.RoleInternal), h.get)
		p.GET("/:providerId/audit", auth.RequireRole(auth.RoleAdmin), h.audit)
	}
}

func (h *Handler) fail(c *gin.Context, err error, msg string) {
	h.logger.Error(msg, zap.Error(err))
	body := gin.H{"error": err.Error()}
	if f, ok := faults.As(err); ok {
		body["code"] = f.Code
	}
	c.JSON(faults.HTTPStatus(err), body)
}

// register handles POST /api/v1/providers
func (h *Handler) register(c *gin.Context) {
	userID, err := uuid.Parse(auth.FromContext(c).ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid actor id"})
		return
	}

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	provider, err := h.service.Register(c.Request.Context(), userID, req)
	if err != nil {
		h.fail(c, err, "Failed to register provider")
		return
	}
	c.JSON(http.StatusCreated, provider)
}

// me handles GET /api/v1/providers/me
func (h *Handler) me(c *gin.Context) {
	userID, err := uuid.Parse(auth.FromContext(c).ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid actor id"})
		return
	}

	provider, err := h.service.Profile(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err, "Failed to load provider profile")
		return
	}
	c.JSON(http.StatusOK, provider)
}

// get handles GET /api/v1/providers/:providerId
func (h *Handler) get(c *gin.Context) {
	providerID, err := uuid.Parse(c.Param("providerId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid provider ID"})
		return
	}

	provider, err := h.service.Get(c.Request.Context(), providerID)
	if err != nil {
		h.fail(c, err, "Failed to get provider")
		return
	}
	c.JSON(http.StatusOK, provider)
}

// audit handles GET /api/v1/providers/:providerId/audit
func (h *Handler) audit(c *gin.Context) {
	providerID, err := uuid.Parse(c.Param("providerId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid provider ID"})
		return
	}

	entries, err := h.service.AuditTrail(c.Request.Context(), providerID)
	if err != nil {
		h.fail(c, err, "Failed to load audit trail")
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

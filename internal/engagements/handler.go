package engagements

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"fieldserve/dispatch/dispatch-backend/internal/auth"
	"fieldserve/dispatch/dispatch-backend/pkg/faults"
)

// Handler handles HTTP requests for the engagement lifecycle
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new engagement handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers engagement routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	e := router.Group("/engagements")
	{
		e.POST("", auth.RequireRole(auth.RoleCustomer), h.create)
		e.GET("/mine", h.list)
		e.GET("/:engagementId", h.get)

		e.POST("/:engagementId/status", h.updateStatus)
		e.POST("/:engagementId/arrived", auth.RequireRole(auth.RoleProvider), h.arrive)
		e.POST("/:engagementId/start", auth.RequireRole(auth.RoleProvider), h.start)
		e.POST("/:engagementId/complete", auth.RequireRole(auth.RoleProvider), h.complete)
	}
}

func (h *Handler) fail(c *gin.Context, err error, msg string) {
	h.logger.Error(msg, zap.Error(err))
	body := gin.H{"error": err.Error()}
	if f, ok := faults.As(err); ok {
		body["code"] = f.Code
		if f.CurrentStatus != "" {
			body["current_status"] = f.CurrentStatus
		}
	}
	c.JSON(faults.HTTPStatus(err), body)
}

func (h *Handler) actorAndEngagement(c *gin.Context) (auth.Actor, uuid.UUID, bool) {
	actor := auth.FromContext(c)
	id, err := uuid.Parse(c.Param("engagementId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid engagement ID"})
		return actor, uuid.Nil, false
	}
	return actor, id, true
}

// create handles POST /api/v1/engagements
func (h *Handler) create(c *gin.Context) {
	requesterID, err := uuid.Parse(auth.FromContext(c).ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid actor id"})
		return
	}

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	engagement, err := h.service.Create(c.Request.Context(), requesterID, req)
	if err != nil {
		h.fail(c, err, "Failed to create engagement")
		return
	}
	c.JSON(http.StatusCreated, engagement.RequesterSnapshot())
}

// list handles GET /api/v1/engagements/mine and returns the caller's side of
// the history.
func (h *Handler) list(c *gin.Context) {
	actor := auth.FromContext(c)
	actorID, err := uuid.Parse(actor.ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid actor id"})
		return
	}

	var engagements []Engagement
	switch actor.Role {
	case auth.RoleProvider:
		engagements, err = h.service.ListForProvider(c.Request.Context(), actorID)
	default:
		engagements, err = h.service.ListForRequester(c.Request.Context(), actorID)
	}
	if err != nil {
		h.fail(c, err, "Failed to list engagements")
		return
	}
	c.JSON(http.StatusOK, gin.H{"engagements": engagements, "count": len(engagements)})
}

// get handles GET /api/v1/engagements/:engagementId
func (h *Handler) get(c *gin.Context) {
	actor, id, ok := h.actorAndEngagement(c)
	if !ok {
		return
	}

	engagement, err := h.service.Get(c.Request.Context(), actor, id)
	if err != nil {
		h.fail(c, err, "Failed to get engagement")
		return
	}
	if actor.Role == auth.RoleProvider {
		c.JSON(http.StatusOK, engagement.ProviderSnapshot())
		return
	}
	c.JSON(http.StatusOK, engagement.RequesterSnapshot())
}

// updateStatus handles POST /api/v1/engagements/:engagementId/status
func (h *Handler) updateStatus(c *gin.Context) {
	actor, id, ok := h.actorAndEngagement(c)
	if !ok {
		return
	}

	var req struct {
		Status Status `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	engagement, err := h.service.UpdateStatus(c.Request.Context(), actor, id, req.Status)
	if err != nil {
		h.fail(c, err, "Failed to update engagement status")
		return
	}
	c.JSON(http.StatusOK, engagement.ProviderSnapshot())
}

// arrive handles POST /api/v1/engagements/:engagementId/arrived
func (h *Handler) arrive(c *gin.Context) {
	actor, id, ok := h.actorAndEngagement(c)
	if !ok {
		return
	}
	providerID, err := uuid.Parse(actor.ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid actor id"})
		return
	}

	engagement, err := h.service.MarkArrived(c.Request.Context(), providerID, id)
	if err != nil {
		h.fail(c, err, "Failed to mark arrival")
		return
	}
	c.JSON(http.StatusOK, engagement.ProviderSnapshot())
}

// start handles POST /api/v1/engagements/:engagementId/start
func (h *Handler) start(c *gin.Context) {
	h.codeGated(c, "Failed to start work", h.service.StartWork)
}

// complete handles POST /api/v1/engagements/:engagementId/complete
func (h *Handler) complete(c *gin.Context) {
	h.codeGated(c, "Failed to complete work", h.service.CompleteWork)
}

// codeGated binds the shared {code} payload for the two code-verified
// transitions and invokes the given service operation.
func (h *Handler) codeGated(c *gin.Context, failMsg string, op func(ctx context.Context, providerID, id uuid.UUID, code string) (*Engagement, error)) {
	actor, id, ok := h.actorAndEngagement(c)
	if !ok {
		return
	}
	providerID, err := uuid.Parse(actor.ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid actor id"})
		return
	}

	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	engagement, err := op(c.Request.Context(), providerID, id, req.Code)
	if err != nil {
		h.fail(c, err, failMsg)
		return
	}
	c.JSON(http.StatusOK, engagement.ProviderSnapshot())
}

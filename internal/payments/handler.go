package payments

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"fieldserve/dispatch/dispatch-backend/internal/auth"
	"fieldserve/dispatch/dispatch-backend/pkg/faults"
)

// Handler handles HTTP requests for payment settlement
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new payment handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers payment routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	p := router.Group("/payments")
	{
		p.POST("/order", auth.RequireRole(auth.RoleCustomer, auth.RoleAdmin), h.createOrder)
		p.POST("/confirm", h.confirm)
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

// createOrder handles POST /api/v1/payments/order
func (h *Handler) createOrder(c *gin.Context) {
	var req struct {
		EngagementID uuid.UUID `json:"engagement_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.service.CreateOrder(c.Request.Context(), auth.FromContext(c), req.EngagementID)
	if err != nil {
		h.fail(c, err, "Failed to create payment order")
		return
	}
	c.JSON(http.StatusCreated, order)
}

// confirm handles POST /api/v1/payments/confirm
func (h *Handler) confirm(c *gin.Context) {
	var req struct {
		OrderID   string `json:"order_id" binding:"required"`
		PaymentID string `json:"payment_id" binding:"required"`
		Signature string `json:"signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	engagement, err := h.service.Confirm(c.Request.Context(), req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		h.fail(c, err, "Failed to confirm payment")
		return
	}
	c.JSON(http.StatusOK, engagement.RequesterSnapshot())
}

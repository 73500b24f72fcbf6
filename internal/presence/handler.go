package presence

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fieldserve/dispatch/dispatch-backend/internal/auth"
)

// Handler upgrades authenticated requests into presence sessions.
type Handler struct {
	manager   *Manager
	jwtSecret string
	logger    *zap.Logger
}

// NewHandler creates a new presence handler
func NewHandler(manager *Manager, jwtSecret string, logger *zap.Logger) *Handler {
	return &Handler{manager: manager, jwtSecret: jwtSecret, logger: logger}
}

// RegisterRoutes registers the socket endpoint on the root router; the
// upgrade happens outside the JSON API group.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/ws", h.connect)
}

// connect handles GET /ws. Browsers cannot set headers on socket
// upgrades, so the token is also accepted as a query parameter.
func (h *Handler) connect(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		header := c.GetHeader("Authorization")
		token = strings.TrimPrefix(header, "Bearer ")
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	actor, err := auth.ParseToken(h.jwtSecret, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	if _, err := h.manager.HandleConnection(c.Writer, c.Request, actor); err != nil {
		h.logger.Error("Failed to upgrade socket", zap.Error(err))
	}
}

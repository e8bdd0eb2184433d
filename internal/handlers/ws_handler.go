package handlers

import (
	"strconv"
	"strings"

	"github.com/chaweee/BEventique-sub000/internal/middleware"
	"github.com/chaweee/BEventique-sub000/internal/models"
	"github.com/chaweee/BEventique-sub000/internal/realtime"
	"github.com/chaweee/BEventique-sub000/internal/services"
	"github.com/chaweee/BEventique-sub000/pkg/utils"
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type RealtimeHandler struct {
	hub       *realtime.Hub
	auth      realtime.JoinAuthorizer
	jwtSecret string
	options   realtime.ClientOptions
	logger    *zap.Logger
}

func NewRealtimeHandler(
	hub *realtime.Hub,
	auth realtime.JoinAuthorizer,
	jwtSecret string,
	options realtime.ClientOptions,
	logger *zap.Logger,
) *RealtimeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RealtimeHandler{
		hub:       hub,
		auth:      auth,
		jwtSecret: jwtSecret,
		options:   options,
		logger:    logger,
	}
}

// WebSocketAuth runs before the upgrade. Browsers cannot set headers on a
// websocket handshake, so the token may also come in the query string.
func (h *RealtimeHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	tokenString := strings.TrimSpace(c.Query("token"))
	if tokenString == "" {
		var err error
		tokenString, err = middleware.BearerToken(c.Get("Authorization"))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
		}
	}

	claims, err := utils.ValidateToken(tokenString, h.jwtSecret)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}

	userID, err := strconv.ParseInt(claims.UserID, 10, 64)
	if err != nil || userID <= 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}
	if _, ok := models.ParseRole(claims.Role); !ok {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	c.Locals("user_id", claims.UserID)
	c.Locals("role", claims.Role)
	return c.Next()
}

func (h *RealtimeHandler) HandleWebSocket(conn *websocket.Conn) {
	userIDStr, _ := conn.Locals("user_id").(string)
	roleStr, _ := conn.Locals("role").(string)
	userID, _ := strconv.ParseInt(userIDStr, 10, 64)
	role, _ := models.ParseRole(roleStr)

	client := realtime.NewClient(
		h.hub,
		conn,
		services.Caller{UserID: userID, Role: role},
		h.auth,
		h.options,
		h.logger,
	)

	h.logger.Debug("websocket connected", zap.String("conn_id", client.ID()), zap.Int64("user_id", userID))
	client.Serve()
	h.logger.Debug("websocket disconnected", zap.String("conn_id", client.ID()), zap.Int64("user_id", userID))
}

package ws

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/fathima-sithara/petadopt-messaging/internal/apperr"
	"github.com/fathima-sithara/petadopt-messaging/internal/middleware"
	"github.com/fathima-sithara/petadopt-messaging/internal/models"
)

// TokenValidator resolves a bearer token to a caller id.
type TokenValidator interface {
	Validate(token string) (string, error)
}

// Upgrade authenticates the upgrade request, taking the token from the
// "token" query parameter (browsers cannot set headers on websockets) or the
// Authorization header.
func Upgrade(jv TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		token := c.Query("token")
		if token == "" {
			token = strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
		}
		uid, err := jv.Validate(token)
		if err != nil {
			return middleware.Fail(c, apperr.Unauthorized("invalid token"))
		}
		c.Locals("user_id", models.NormalizeID(uid))
		return c.Next()
	}
}

// Handler serves an authenticated websocket until it closes.
func Handler(hub *Hub, cfg Config) fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		uid, _ := conn.Locals("user_id").(string)
		if uid == "" {
			_ = conn.Close()
			return
		}
		NewClient(conn, uid, hub, cfg).Serve()
	})
}

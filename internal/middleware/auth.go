package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/fathima-sithara/petadopt-messaging/internal/apperr"
	"github.com/fathima-sithara/petadopt-messaging/internal/models"
)

const userIDKey = "user_id"

type TokenValidator interface {
	Validate(token string) (string, error)
}

// JWTAuth rejects requests without a valid bearer token and stores the
// normalized caller id in the request locals.
func JWTAuth(jv TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		hdr := c.Get(fiber.HeaderAuthorization)
		if hdr == "" {
			return Fail(c, apperr.Unauthorized("missing authorization"))
		}
		parts := strings.SplitN(hdr, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return Fail(c, apperr.Unauthorized("invalid authorization"))
		}
		sub, err := jv.Validate(parts[1])
		if err != nil {
			return Fail(c, apperr.Unauthorized("invalid token"))
		}
		c.Locals(userIDKey, models.NormalizeID(sub))
		return c.Next()
	}
}

// Fail writes err as {"error": msg} with the status of its kind.
func Fail(c *fiber.Ctx, err error) error {
	return c.Status(apperr.Status(err)).JSON(fiber.Map{"error": apperr.Message(err)})
}

// UserID returns the caller id set by JWTAuth.
func UserID(c *fiber.Ctx) string {
	uid, _ := c.Locals(userIDKey).(string)
	return uid
}

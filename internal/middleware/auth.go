package middleware

import (
	"errors"
	"strings"

	"github.com/chaweee/BEventique-sub000/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

var (
	errMissingAuthHeader = errors.New("Missing authorization header")
	errInvalidAuthHeader = errors.New("Invalid authorization header format")
)

func AuthRequired(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, err := BearerToken(c.Get("Authorization"))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		claims, err := utils.ValidateToken(tokenString, secret)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("user_id", claims.UserID)
		c.Locals("role", claims.Role)

		return c.Next()
	}
}

// BearerToken pulls the token out of an "Authorization: Bearer <token>" value.
func BearerToken(authHeader string) (string, error) {
	authHeader = strings.TrimSpace(authHeader)
	if authHeader == "" {
		return "", errMissingAuthHeader
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", errInvalidAuthHeader
	}
	return parts[1], nil
}

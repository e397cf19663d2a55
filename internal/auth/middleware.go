package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// tokenFromRequest pulls the access token from the Authorization header
// or the access_token cookie.
func tokenFromRequest(c *fiber.Ctx) (string, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		if cookie := c.Cookies("access_token"); cookie != "" {
			return cookie, nil
		}
		return "", errors.New("missing authorization token")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", errors.New("invalid authorization header format")
	}
	return parts[1], nil
}

// Middleware validates the caller's access token and stores the claims
// in request locals.
func Middleware(jwtManager *JWTManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := tokenFromRequest(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		claims, err := jwtManager.ValidateAccessToken(token)
		if err != nil {
			if errors.Is(err, ErrExpiredToken) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "token expired",
					"code":  "TOKEN_EXPIRED",
				})
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid token",
			})
		}

		c.Locals("userID", claims.UserID)
		c.Locals("claims", claims)
		return c.Next()
	}
}

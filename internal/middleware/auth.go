package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/auralis/api/internal/auth"
	"github.com/auralis/api/pkg/response"
)

// AuthMiddleware checks bearer tokens against a list of verifiers in order.
type AuthMiddleware struct {
	verifiers []auth.TokenVerifier
}

func NewAuthMiddleware(verifiers ...auth.TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifiers: verifiers}
}

// Authenticate validates the JWT from the Authorization header
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return m.handler(false)
}

// AuthenticateUpgrade validates the JWT of a WebSocket handshake. Browsers
// cannot set headers on the handshake, so the token may also arrive in the
// token query parameter.
func (m *AuthMiddleware) AuthenticateUpgrade() fiber.Handler {
	return m.handler(true)
}

func (m *AuthMiddleware) handler(allowQuery bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if len(m.verifiers) == 0 {
			return response.Unauthorized(c, "Authentication not configured")
		}

		token, msg := bearerToken(c, allowQuery)
		if token == "" {
			return response.Unauthorized(c, msg)
		}

		for _, v := range m.verifiers {
			claims, err := v.Validate(token)
			if err != nil {
				continue
			}
			c.Locals("userId", claims.UserID)
			c.Locals("email", claims.Email)
			c.Locals("claims", claims)
			return c.Next()
		}

		return response.Unauthorized(c, "Invalid or expired token")
	}
}

// bearerToken returns the token of the request, or an empty token and the
// reason it is missing.
func bearerToken(c *fiber.Ctx, allowQuery bool) (string, string) {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		if allowQuery {
			if token := c.Query("token"); token != "" {
				return token, ""
			}
		}
		return "", "Missing authorization header"
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", "Invalid authorization header format"
	}
	return parts[1], ""
}

// GetUserID extracts the authenticated user ID from context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals("userId").(string); ok {
		return userID
	}
	return ""
}

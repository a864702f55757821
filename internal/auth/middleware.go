package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/workorder-service/pkg/util/errorutil"
)

const principalKey = "auth.principal"

// Principal is the authenticated caller attached to the request context.
type Principal struct {
	PersonID  string
	AccountID string
}

// Middleware returns a fiber handler that requires a valid bearer token.
func Middleware(tokens *TokenManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return apperrors.NewUnauthorized("missing authorization header")
		}
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			return apperrors.NewUnauthorized("authorization header is not a bearer token")
		}
		claims, err := tokens.Parse(raw)
		if err != nil {
			return apperrors.NewUnauthorized("invalid or expired token")
		}
		c.Locals(principalKey, Principal{PersonID: claims.PersonID, AccountID: claims.AccountID})
		return c.Next()
	}
}

// PrincipalFrom returns the authenticated caller, if any.
func PrincipalFrom(c *fiber.Ctx) (Principal, bool) {
	principal, ok := c.Locals(principalKey).(Principal)
	return principal, ok
}

package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/pixmart/internal/domain"
	apperrors "github.com/spec-kit/pixmart/pkg/util/errorutil"
)

// RequireSession ensures the gate attached an identity. Mount it behind RouteGate.Handle.
func RequireSession() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := IdentityFromContext(c); !ok {
			return apperrors.NewSessionInvalid("missing session")
		}
		return c.Next()
	}
}

// RequireRole ensures the session carries one of the allowed roles.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		identity, ok := IdentityFromContext(c)
		if !ok {
			return apperrors.NewSessionInvalid("missing session")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[identity.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

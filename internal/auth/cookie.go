package auth

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/pixmart/internal/domain"
)

// SetSessionCookie hands the session to the browser as an HTTP-only cookie.
func SetSessionCookie(c *fiber.Ctx, name string, session *domain.Session, secure bool) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HTTPOnly: true,
		Secure:   secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(c *fiber.Ctx, name string, secure bool) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/pixmart/internal/api/dto"
	"github.com/spec-kit/pixmart/internal/auth"
	"github.com/spec-kit/pixmart/internal/service"
	apperrors "github.com/spec-kit/pixmart/pkg/util/errorutil"
)

// defaultCallback is where a successful sign-in lands without a callbackUrl.
const defaultCallback = "/dashboard"

// CookieSettings controls how the session cookie is written.
type CookieSettings struct {
	Name   string
	Secure bool
}

// AuthHandler exposes the credential sign-in, registration and session endpoints.
type AuthHandler struct {
	auth   *service.AuthService
	cookie CookieSettings
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService, cookie CookieSettings) *AuthHandler {
	return &AuthHandler{auth: authService, cookie: cookie}
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	req.Email = auth.NormalizeEmail(req.Email)
	if err := auth.ValidateStruct(req, "invalid login"); err != nil {
		return apperrors.NewInvalidCredentials()
	}

	session, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	auth.SetSessionCookie(c, h.cookie.Name, session, h.cookie.Secure)
	return c.JSON(fiber.Map{"data": dto.NewSessionEnvelope(session)})
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = auth.NormalizeEmail(req.Email)
	if err := auth.ValidateStruct(req, "invalid registration"); err != nil {
		return err
	}

	session, err := h.auth.Register(c.UserContext(), req.Name, req.Email, req.Password)
	if err != nil {
		return err
	}

	auth.SetSessionCookie(c, h.cookie.Name, session, h.cookie.Secure)
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewSessionEnvelope(session)})
}

// Logout handles POST /api/auth/logout. It always clears the cookie.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if token := auth.TokenFromRequest(c, h.cookie.Name); token != "" {
		if err := h.auth.Logout(c.UserContext(), token); err != nil {
			return err
		}
	}
	auth.ClearSessionCookie(c, h.cookie.Name, h.cookie.Secure)
	return c.JSON(fiber.Map{"data": fiber.Map{"signed_out": true}})
}

// Session handles GET /api/auth/session. Signed-out callers get an empty object.
func (h *AuthHandler) Session(c *fiber.Ctx) error {
	token := auth.TokenFromRequest(c, h.cookie.Name)
	if token == "" {
		return c.JSON(fiber.Map{})
	}

	claims, err := h.auth.Session(c.UserContext(), token)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeSessionInvalid) {
			return c.JSON(fiber.Map{})
		}
		return err
	}
	return c.JSON(dto.SessionInfo{User: claims.Identity(), Expires: claims.ExpiresAt.Time.UTC()})
}

// LoginPage handles GET /login, the entry point signed-out page requests are redirected to.
func (h *AuthHandler) LoginPage(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": fiber.Map{
		"page":         "login",
		"callback_url": safeCallback(c.Query("callbackUrl")),
		"action":       "/api/auth/login",
	}})
}

// RegisterPage handles GET /register.
func (h *AuthHandler) RegisterPage(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": fiber.Map{
		"page":   "register",
		"action": "/api/auth/register",
		"rules": fiber.Map{
			"name_min_length":       auth.MinNameLength,
			"password_min_strength": auth.MinPasswordStrength,
		},
	}})
}

// safeCallback only honors same-origin absolute paths.
func safeCallback(callback string) string {
	if callback == "" || !strings.HasPrefix(callback, "/") || strings.HasPrefix(callback, "//") || strings.HasPrefix(callback, "/\\") {
		return defaultCallback
	}
	return callback
}

package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/pixmart/internal/api/dto"
	"github.com/spec-kit/pixmart/internal/auth"
	"github.com/spec-kit/pixmart/internal/service"
	apperrors "github.com/spec-kit/pixmart/pkg/util/errorutil"
)

// AccountHandler serves the signed-in views: the caller's own identity, the dashboard and
// the admin user lookup.
type AccountHandler struct {
	auth *service.AuthService
}

// NewAccountHandler constructs handler.
func NewAccountHandler(authService *service.AuthService) *AccountHandler {
	return &AccountHandler{auth: authService}
}

// Me handles GET /api/me.
func (h *AccountHandler) Me(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return apperrors.NewSessionInvalid("missing session")
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"user": identity}})
}

// Dashboard handles GET /dashboard, the landing page after sign-in.
func (h *AccountHandler) Dashboard(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return apperrors.NewSessionInvalid("missing session")
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"message": "Welcome back, " + identity.Name,
		"user":    identity,
	}})
}

// GetUser handles GET /api/admin/users/:id.
// Ids that are not UUIDs cannot exist and answer 404.
func (h *AccountHandler) GetUser(c *fiber.Ctx) error {
	var params dto.UserParams
	if err := c.ParamsParser(&params); err != nil {
		return apperrors.NewValidationError("invalid path parameters", nil)
	}
	if err := auth.ValidateStruct(params, "invalid user id"); err != nil {
		return apperrors.NewNotFound("user", map[string]any{"id": params.ID})
	}

	identity, err := h.auth.GetUser(c.UserContext(), params.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"user": identity}})
}

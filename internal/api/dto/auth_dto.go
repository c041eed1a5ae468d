package dto

import (
	"time"

	"github.com/spec-kit/pixmart/internal/domain"
)

// RegisterRequest payload for new accounts.
type RegisterRequest struct {
	Name     string `json:"name" form:"name" validate:"min=2"`
	Email    string `json:"email" form:"email" validate:"required,account_email"`
	Password string `json:"password" form:"password" validate:"required,bcrypt_max,password_strength"`
}

// LoginRequest payload for credential sign-in.
type LoginRequest struct {
	Email    string `json:"email" form:"email" validate:"required,account_email"`
	Password string `json:"password" form:"password" validate:"required"`
}

// UserParams addresses a stored user by id.
type UserParams struct {
	ID string `params:"id" validate:"required,uuid"`
}

// AuthResponse carries the issued token for non-browser clients.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionEnvelope is the login/register response body.
type SessionEnvelope struct {
	User domain.Identity `json:"user"`
	Auth AuthResponse    `json:"auth"`
}

// SessionInfo answers GET /api/auth/session for a valid session.
type SessionInfo struct {
	User    domain.Identity `json:"user"`
	Expires time.Time       `json:"expires"`
}

// NewSessionEnvelope maps a session to its response body.
func NewSessionEnvelope(session *domain.Session) SessionEnvelope {
	return SessionEnvelope{
		User: session.Identity,
		Auth: AuthResponse{Token: session.Token, ExpiresAt: session.ExpiresAt},
	}
}

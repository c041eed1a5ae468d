package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/pixmart/internal/domain"
	apperrors "github.com/spec-kit/pixmart/pkg/util/errorutil"
)

// TokenManager handles issuing and validating session tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption customizes a TokenManager.
type TokenOption func(*TokenManager)

// WithClock replaces time.Now for issuance and validation.
func WithClock(now func() time.Time) TokenOption {
	return func(tm *TokenManager) {
		tm.now = now
	}
}

// NewTokenManager builds a new manager. The secret and a positive lifetime are mandatory.
func NewTokenManager(secret string, ttl time.Duration, opts ...TokenOption) (*TokenManager, error) {
	if secret == "" {
		return nil, apperrors.NewConfigurationError("session signing secret is empty", nil)
	}
	if ttl <= 0 {
		return nil, apperrors.NewConfigurationError("session lifetime must be positive", nil)
	}
	tm := &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(tm)
	}
	return tm, nil
}

// Claims describes the session token payload. Subject carries the user id.
type Claims struct {
	Name  string      `json:"name"`
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Identity extracts the identity claims.
func (c *Claims) Identity() domain.Identity {
	return domain.Identity{ID: c.Subject, Name: c.Name, Email: c.Email, Role: c.Role}
}

// Issue builds and signs a session token for the identity.
func (tm *TokenManager) Issue(identity domain.Identity) (*domain.Session, error) {
	if identity.ID == "" {
		return nil, apperrors.NewInternalError(errors.New("cannot issue session without subject"))
	}
	if !identity.Role.Valid() {
		return nil, apperrors.NewInternalError(fmt.Errorf("cannot issue session for role %q", identity.Role))
	}

	issuedAt := tm.now().Truncate(jwt.TimePrecision)
	expiresAt := issuedAt.Add(tm.ttl)
	claims := &Claims{
		Name:  identity.Name,
		Email: identity.Email,
		Role:  identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &domain.Session{
		Token:     tokenString,
		Identity:  identity,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Parse validates signature and expiry and returns the claims.
// A token is rejected from the instant its expiry is reached. The iat claim is not
// checked so clock skew between instances cannot reject a fresh token.
func (tm *TokenManager) Parse(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, apperrors.NewSessionInvalid("missing session")
	}

	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return tm.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		message := "invalid session"
		if errors.Is(err, jwt.ErrTokenExpired) {
			message = "session expired"
		}
		return nil, &apperrors.DomainError{
			Code:       apperrors.CodeSessionInvalid,
			Message:    message,
			HTTPStatus: http.StatusUnauthorized,
			Err:        err,
		}
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" || !claims.Role.Valid() {
		return nil, apperrors.NewSessionInvalid("invalid session claims")
	}
	return claims, nil
}

// Remaining returns how long the claims stay valid from now; zero or less once expired.
func (tm *TokenManager) Remaining(claims *Claims) time.Duration {
	if claims == nil || claims.ExpiresAt == nil {
		return 0
	}
	return claims.ExpiresAt.Time.Sub(tm.now())
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/pixmart/internal/auth"
	"github.com/spec-kit/pixmart/internal/domain"
	"github.com/spec-kit/pixmart/internal/events"
	"github.com/spec-kit/pixmart/internal/observability"
	"github.com/spec-kit/pixmart/internal/repository"
	apperrors "github.com/spec-kit/pixmart/pkg/util/errorutil"
)

// Revoker records signed-out tokens. Implemented by auth.RevocationList.
type Revoker interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// AuthService coordinates registration, login and logout flows.
type AuthService struct {
	users       repository.UserRepository
	hasher      *auth.PasswordHasher
	tokens      *auth.TokenManager
	dispatcher  events.Dispatcher
	revocations Revoker
	logger      *zap.Logger
	metrics     *observability.Metrics
}

// AuthDependencies encapsulates collaborators for the auth service.
// Dispatcher, Revocations, Logger and Metrics are optional.
type AuthDependencies struct {
	UserRepo    repository.UserRepository
	Hasher      *auth.PasswordHasher
	Tokens      *auth.TokenManager
	Dispatcher  events.Dispatcher
	Revocations Revoker
	Logger      *zap.Logger
	Metrics     *observability.Metrics
}

// NewAuthService builds the service.
func NewAuthService(deps AuthDependencies) (*AuthService, error) {
	if deps.UserRepo == nil {
		return nil, errors.New("user repository is required")
	}
	if deps.Hasher == nil {
		return nil, errors.New("password hasher is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("token manager is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:       deps.UserRepo,
		hasher:      deps.Hasher,
		tokens:      deps.Tokens,
		dispatcher:  deps.Dispatcher,
		revocations: deps.Revocations,
		logger:      logger,
		metrics:     deps.Metrics,
	}, nil
}

// Verify checks an email/password pair against the stored hash.
// Unknown email and wrong password fail with the same INVALID_CREDENTIALS error.
func (s *AuthService) Verify(ctx context.Context, email, password string) (domain.Identity, error) {
	email = auth.NormalizeEmail(email)
	if email == "" || password == "" {
		return domain.Identity{}, apperrors.NewInvalidCredentials()
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, pgx.ErrNoRows) {
		s.hasher.CompareDummy(password)
		return domain.Identity{}, apperrors.NewInvalidCredentials()
	}
	if err != nil {
		return domain.Identity{}, apperrors.NewInternalError(fmt.Errorf("lookup user: %w", err))
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return domain.Identity{}, apperrors.NewInvalidCredentials()
	}
	return user.Identity(), nil
}

// Issue mints a session for an already verified identity.
func (s *AuthService) Issue(identity domain.Identity) (*domain.Session, error) {
	return s.tokens.Issue(identity)
}

// Login verifies credentials and issues a session.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.Session, error) {
	identity, err := s.Verify(ctx, email, password)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeInvalidCredentials) {
			s.metrics.RecordLogin("invalid_credentials")
		} else {
			s.metrics.RecordLogin("error")
		}
		return nil, err
	}

	session, err := s.Issue(identity)
	if err != nil {
		s.metrics.RecordLogin("error")
		return nil, err
	}

	s.metrics.RecordLogin("success")
	s.publish(ctx, events.NewEvent(events.EventUserLoggedIn, identity, events.SessionPayload{ExpiresAt: session.ExpiresAt}))
	return session, nil
}

// Register creates a customer account and signs it in.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*domain.Session, error) {
	name = strings.TrimSpace(name)
	email = auth.NormalizeEmail(email)

	if err := auth.ValidateRegistration(name, email, password); err != nil {
		s.metrics.RecordRegistration("invalid")
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		s.metrics.RecordRegistration("duplicate")
		return nil, apperrors.NewConflict(repository.ErrEmailTaken.Error(), map[string]any{"email": "Email is already registered"})
	} else if !errors.Is(err, pgx.ErrNoRows) {
		s.metrics.RecordRegistration("error")
		return nil, apperrors.NewInternalError(fmt.Errorf("lookup user: %w", err))
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.metrics.RecordRegistration("error")
		return nil, apperrors.NewInternalError(fmt.Errorf("hash password: %w", err))
	}

	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleCustomer,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			s.metrics.RecordRegistration("duplicate")
			return nil, apperrors.NewConflict(err.Error(), map[string]any{"email": "Email is already registered"})
		}
		s.metrics.RecordRegistration("error")
		return nil, apperrors.NewInternalError(fmt.Errorf("create user: %w", err))
	}

	identity := user.Identity()
	session, err := s.Issue(identity)
	if err != nil {
		s.metrics.RecordRegistration("error")
		return nil, err
	}

	s.metrics.RecordRegistration("success")
	s.publish(ctx, events.NewEvent(events.EventUserRegistered, identity, nil))
	return session, nil
}

// Session resolves a presented token to its claims, honoring revocations when enabled.
func (s *AuthService) Session(ctx context.Context, token string) (*auth.Claims, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	if s.revocations != nil {
		revoked, err := s.revocations.IsRevoked(ctx, token)
		if err != nil {
			return nil, apperrors.NewInternalError(fmt.Errorf("check revocation: %w", err))
		}
		if revoked {
			return nil, apperrors.NewSessionInvalid("session signed out")
		}
	}
	return claims, nil
}

// Logout revokes the token when a revocation list is configured. Invalid or
// expired tokens are ignored; there is nothing left to sign out.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil
	}

	if s.revocations != nil {
		if err := s.revocations.Revoke(ctx, token, s.tokens.Remaining(claims)); err != nil {
			return apperrors.NewInternalError(fmt.Errorf("revoke session: %w", err))
		}
	}

	s.publish(ctx, events.NewEvent(events.EventUserLoggedOut, claims.Identity(), events.SessionPayload{ExpiresAt: claims.ExpiresAt.Time}))
	return nil
}

// GetUser returns the public identity of a stored user.
// Ids that are not UUIDs are reported as not found without touching the store.
func (s *AuthService) GetUser(ctx context.Context, id string) (domain.Identity, error) {
	if uuid.Validate(id) != nil {
		return domain.Identity{}, apperrors.NewNotFound("user", map[string]any{"id": id})
	}
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Identity{}, apperrors.NewNotFound("user", map[string]any{"id": id})
	}
	if err != nil {
		return domain.Identity{}, apperrors.NewInternalError(fmt.Errorf("lookup user: %w", err))
	}
	return user.Identity(), nil
}

func (s *AuthService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

package auth

import (
	"context"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/pixmart/internal/domain"
	"github.com/spec-kit/pixmart/internal/observability"
	apperrors "github.com/spec-kit/pixmart/pkg/util/errorutil"
)

const identityKey = "auth_identity"

// apiPrefix marks requests that get a 401 body instead of a redirect. Matched
// case-insensitively since the router is.
const apiPrefix = "/api/"

// SessionParser validates a raw session token.
type SessionParser interface {
	Parse(token string) (*Claims, error)
}

// RevocationChecker reports whether a still-unexpired token was signed out.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// Outcome is the route gate's verdict for one request.
type Outcome int

const (
	// OutcomeAllowPublic lets a public path through without looking at any token.
	OutcomeAllowPublic Outcome = iota
	// OutcomeAllow lets an authenticated request through.
	OutcomeAllow
	// OutcomeDeny answers 401.
	OutcomeDeny
	// OutcomeRedirect sends the caller to the login entry point.
	OutcomeRedirect
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAllowPublic:
		return "public"
	case OutcomeAllow:
		return "allow"
	case OutcomeDeny:
		return "deny"
	case OutcomeRedirect:
		return "redirect"
	}
	return "unknown"
}

// Decision is the transport-independent result of gating a request.
type Decision struct {
	Outcome  Outcome
	Identity *domain.Identity
	// Location is set for OutcomeRedirect.
	Location string
	// Err carries the SESSION_INVALID cause for deny and redirect.
	Err error
}

// GateConfig configures a RouteGate.
type GateConfig struct {
	PublicPrefixes []string
	CookieName     string
	SecureCookies  bool
	LoginPath      string
	// Revocations is optional; nil keeps validity a function of signature and expiry only.
	Revocations RevocationChecker
}

// RouteGate classifies each request path and authorizes protected ones.
type RouteGate struct {
	prefixes    []string
	cookieName  string
	secure      bool
	loginPath   string
	parser      SessionParser
	revocations RevocationChecker
	logger      *zap.Logger
	metrics     *observability.Metrics
}

// NewRouteGate constructs the gate.
func NewRouteGate(parser SessionParser, cfg GateConfig, logger *zap.Logger, metrics *observability.Metrics) *RouteGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	loginPath := cfg.LoginPath
	if loginPath == "" {
		loginPath = "/login"
	}
	return &RouteGate{
		prefixes:    append([]string(nil), cfg.PublicPrefixes...),
		cookieName:  cfg.CookieName,
		secure:      cfg.SecureCookies,
		loginPath:   loginPath,
		parser:      parser,
		revocations: cfg.Revocations,
		logger:      logger,
		metrics:     metrics,
	}
}

// IsPublic reports whether path starts with any public prefix.
func (g *RouteGate) IsPublic(path string) bool {
	for _, prefix := range g.prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Decide gates a request for path carrying token (empty when absent).
// Public paths return before the token is examined.
func (g *RouteGate) Decide(ctx context.Context, path, token string) Decision {
	if g.IsPublic(path) {
		return Decision{Outcome: OutcomeAllowPublic}
	}

	if token == "" {
		return g.reject(path, apperrors.NewSessionInvalid("missing session"))
	}

	claims, err := g.parser.Parse(token)
	if err != nil {
		return g.reject(path, err)
	}

	if g.revocations != nil {
		revoked, err := g.revocations.IsRevoked(ctx, token)
		if err != nil {
			g.logger.Error("revocation lookup failed", zap.Error(err))
			return g.reject(path, apperrors.NewSessionInvalid("session could not be verified"))
		}
		if revoked {
			return g.reject(path, apperrors.NewSessionInvalid("session signed out"))
		}
	}

	identity := claims.Identity()
	return Decision{Outcome: OutcomeAllow, Identity: &identity}
}

func (g *RouteGate) reject(path string, cause error) Decision {
	if isAPIPath(path) {
		return Decision{Outcome: OutcomeDeny, Err: cause}
	}
	return Decision{
		Outcome:  OutcomeRedirect,
		Location: g.loginPath + "?callbackUrl=" + url.QueryEscape(path),
		Err:      cause,
	}
}

// isAPIPath also matches the bare /api path.
func isAPIPath(path string) bool {
	return strings.HasPrefix(strings.ToLower(path)+"/", apiPrefix)
}

// Handle applies the gate as fiber middleware. It never returns an error past itself.
func (g *RouteGate) Handle(c *fiber.Ctx) error {
	decision := g.Decide(c.UserContext(), c.Path(), TokenFromRequest(c, g.cookieName))
	g.metrics.RecordGateDecision(decision.Outcome.String())

	switch decision.Outcome {
	case OutcomeAllowPublic:
		return c.Next()
	case OutcomeAllow:
		c.Locals(identityKey, decision.Identity)
		return c.Next()
	case OutcomeRedirect:
		g.logger.Debug("redirecting unauthenticated request",
			zap.String("path", c.Path()), zap.Error(decision.Err))
		if c.Cookies(g.cookieName) != "" {
			ClearSessionCookie(c, g.cookieName, g.secure)
		}
		return c.Redirect(decision.Location, fiber.StatusFound)
	default:
		g.logger.Debug("denying unauthenticated request",
			zap.String("path", c.Path()), zap.Error(decision.Err))
		domainErr := apperrors.ToDomainError(decision.Err)
		if domainErr.Code != apperrors.CodeSessionInvalid {
			domainErr = apperrors.NewSessionInvalid("invalid session").(*apperrors.DomainError)
		}
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"message": domainErr.Message,
			"code":    domainErr.Code,
		})
	}
}

// TokenFromRequest reads the session cookie, falling back to a bearer token.
func TokenFromRequest(c *fiber.Ctx, cookieName string) string {
	if cookieName != "" {
		if token := c.Cookies(cookieName); token != "" {
			return token
		}
	}

	parts := strings.SplitN(c.Get(fiber.HeaderAuthorization), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// IdentityFromContext retrieves the authenticated identity attached by the gate.
func IdentityFromContext(c *fiber.Ctx) (*domain.Identity, bool) {
	identity, ok := c.Locals(identityKey).(*domain.Identity)
	return identity, ok && identity != nil
}

package http

import (
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/pixmart/internal/api/http/handlers"
	"github.com/spec-kit/pixmart/internal/auth"
	"github.com/spec-kit/pixmart/internal/config"
	"github.com/spec-kit/pixmart/internal/domain"
	"github.com/spec-kit/pixmart/internal/events"
	"github.com/spec-kit/pixmart/internal/observability"
	"github.com/spec-kit/pixmart/internal/repository"
	"github.com/spec-kit/pixmart/internal/service"
)

const cookieName = "pixmart.session-token"

// memoryUsers is an in-memory UserRepository honoring the unique email index.
type memoryUsers struct {
	mu      sync.Mutex
	byEmail map[string]*domain.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{byEmail: map[string]*domain.User{}}
}

func (r *memoryUsers) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byEmail[user.Email]; exists {
		return repository.ErrEmailTaken
	}
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	r.byEmail[user.Email] = &stored
	return nil
}

func (r *memoryUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.byEmail {
		if user.ID == id {
			copied := *user
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memoryUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byEmail[email]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *user
	return &copied, nil
}

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

type testServer struct {
	app    *fiber.App
	users  *memoryUsers
	hasher *auth.PasswordHasher
	now    time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{users: newMemoryUsers(), now: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)}

	hasher, err := auth.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	ts.hasher = hasher

	tokens, err := auth.NewTokenManager("router-test-secret", 240*time.Hour, auth.WithClock(func() time.Time { return ts.now }))
	require.NoError(t, err)

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	revocations := auth.NewRevocationList(client)

	logger := zap.NewNop()
	metrics := observability.NewMetrics()

	authService, err := service.NewAuthService(service.AuthDependencies{
		UserRepo:    ts.users,
		Hasher:      hasher,
		Tokens:      tokens,
		Dispatcher:  events.NewInMemoryDispatcher(),
		Revocations: revocations,
		Logger:      logger,
		Metrics:     metrics,
	})
	require.NoError(t, err)

	gate := auth.NewRouteGate(tokens, auth.GateConfig{
		PublicPrefixes: config.DefaultPublicPrefixes,
		CookieName:     cookieName,
		LoginPath:      "/login",
		Revocations:    revocations,
	}, logger, metrics)

	ts.app = fiber.New()
	RegisterMiddlewares(ts.app, logger, metrics, 5*time.Second)
	RegisterRoutes(ts.app, RouteConfig{
		Health:   handlers.NewHealthHandler("pixmart", "test", map[string]handlers.Pinger{"postgres": okPinger{}}),
		Auth:     handlers.NewAuthHandler(authService, handlers.CookieSettings{Name: cookieName}),
		Accounts: handlers.NewAccountHandler(authService),
		Gate:     gate,
		Metrics:  metrics,
	})
	return ts
}

func (ts *testServer) seed(t *testing.T, name, email, password string, role domain.Role) *domain.User {
	t.Helper()
	hash, err := ts.hasher.Hash(password)
	require.NoError(t, err)
	user := &domain.User{Name: name, Email: email, PasswordHash: hash, Role: role}
	require.NoError(t, ts.users.Create(context.Background(), user))
	return user
}

func (ts *testServer) do(t *testing.T, req *nethttp.Request) *nethttp.Response {
	t.Helper()
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (ts *testServer) get(t *testing.T, path, token string) *nethttp.Response {
	t.Helper()
	req := httptest.NewRequest(nethttp.MethodGet, path, nil)
	if token != "" {
		req.AddCookie(&nethttp.Cookie{Name: cookieName, Value: token})
	}
	return ts.do(t, req)
}

func (ts *testServer) postJSON(t *testing.T, path, body, token string) *nethttp.Response {
	t.Helper()
	req := httptest.NewRequest(nethttp.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.AddCookie(&nethttp.Cookie{Name: cookieName, Value: token})
	}
	return ts.do(t, req)
}

func decode(t *testing.T, resp *nethttp.Response) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	return body
}

func sessionCookie(resp *nethttp.Response) *nethttp.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	return nil
}

func TestLoginPageIsReachableWithoutSession(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.get(t, "/login?callbackUrl=%2Fdashboard", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	data := decode(t, resp)["data"].(map[string]any)
	assert.Equal(t, "/dashboard", data["callback_url"])
}

func TestLoginPageIgnoresOffsiteCallback(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.get(t, "/login?callbackUrl="+url.QueryEscape("//evil.example/x"), "")
	data := decode(t, resp)["data"].(map[string]any)
	assert.Equal(t, "/dashboard", data["callback_url"])
}

func TestDashboardRedirectsToLoginWithoutSession(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.get(t, "/dashboard", "")
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login?callbackUrl=%2Fdashboard", resp.Header.Get("Location"))
}

func TestLoginWithWrongPasswordReturnsGenericMessage(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "Alice", "a@b.com", "correct", domain.RoleCustomer)

	wrong := ts.postJSON(t, "/api/auth/login", `{"email":"a@b.com","password":"wrong"}`, "")
	unknown := ts.postJSON(t, "/api/auth/login", `{"email":"nobody@b.com","password":"correct"}`, "")

	for _, resp := range []*nethttp.Response{wrong, unknown} {
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		assert.Nil(t, sessionCookie(resp))
		body := decode(t, resp)
		assert.Equal(t, "invalid email or password", body["message"])
		assert.Equal(t, "INVALID_CREDENTIALS", body["code"])
	}
}

func TestLoginThenVisitProtectedRoutes(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.seed(t, "Alice", "a@b.com", "correct", domain.RoleCustomer)

	resp := ts.postJSON(t, "/api/auth/login", `{"email":"A@b.com","password":"correct"}`, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	cookie := sessionCookie(resp)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, nethttp.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, "/", cookie.Path)

	data := decode(t, resp)["data"].(map[string]any)
	user := data["user"].(map[string]any)
	assert.Equal(t, alice.ID, user["id"])
	assert.Equal(t, "customer", user["role"])
	assert.Equal(t, cookie.Value, data["auth"].(map[string]any)["token"])

	dashboard := ts.get(t, "/dashboard", cookie.Value)
	require.Equal(t, fiber.StatusOK, dashboard.StatusCode)
	assert.Equal(t, "Welcome back, Alice", decode(t, dashboard)["data"].(map[string]any)["message"])

	me := ts.get(t, "/api/me", cookie.Value)
	require.Equal(t, fiber.StatusOK, me.StatusCode)
	assert.Equal(t, "a@b.com", decode(t, me)["data"].(map[string]any)["user"].(map[string]any)["email"])
}

func TestBearerTokenAuthorizesAPI(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "Alice", "a@b.com", "correct", domain.RoleCustomer)

	login := ts.postJSON(t, "/api/auth/login", `{"email":"a@b.com","password":"correct"}`, "")
	token := decode(t, login)["data"].(map[string]any)["auth"].(map[string]any)["token"].(string)

	req := httptest.NewRequest(nethttp.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, fiber.StatusOK, ts.do(t, req).StatusCode)
}

func TestAPIWithoutSessionIsDenied(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.get(t, "/api/me", "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "SESSION_INVALID", decode(t, resp)["code"])
}

func TestExpiredSessionIsRejected(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "Alice", "a@b.com", "correct", domain.RoleCustomer)

	login := ts.postJSON(t, "/api/auth/login", `{"email":"a@b.com","password":"correct"}`, "")
	cookie := sessionCookie(login)
	require.NotNil(t, cookie)

	ts.now = ts.now.Add(240 * time.Hour)
	resp := ts.get(t, "/dashboard", cookie.Value)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	cleared := sessionCookie(resp)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
}

func TestRegister(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.postJSON(t, "/api/auth/register", `{"name":"Bob","email":"bob@b.com","password":"Groceries1"}`, "")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.NotNil(t, sessionCookie(resp))
	user := decode(t, resp)["data"].(map[string]any)["user"].(map[string]any)
	assert.Equal(t, "customer", user["role"])

	dup := ts.postJSON(t, "/api/auth/register", `{"name":"Bob","email":"BOB@b.com","password":"Groceries1"}`, "")
	assert.Equal(t, fiber.StatusConflict, dup.StatusCode)
	assert.Equal(t, "CONFLICT", decode(t, dup)["code"])

	weak := ts.postJSON(t, "/api/auth/register", `{"name":"B","email":"not-an-email","password":"short"}`, "")
	require.Equal(t, fiber.StatusBadRequest, weak.StatusCode)
	body := decode(t, weak)
	assert.Equal(t, "VALIDATION_FAILED", body["code"])
	details := body["details"].(map[string]any)
	assert.Contains(t, details, "name")
	assert.Contains(t, details, "email")
	assert.Contains(t, details, "password")
}

func TestMalformedBodyIsValidationError(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.postJSON(t, "/api/auth/login", `{"email":`, "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", decode(t, resp)["code"])
}

func TestLogoutRevokesSession(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "Alice", "a@b.com", "correct", domain.RoleCustomer)

	login := ts.postJSON(t, "/api/auth/login", `{"email":"a@b.com","password":"correct"}`, "")
	token := sessionCookie(login).Value

	out := ts.postJSON(t, "/api/auth/logout", ``, token)
	require.Equal(t, fiber.StatusOK, out.StatusCode)
	cleared := sessionCookie(out)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	assert.Equal(t, fiber.StatusUnauthorized, ts.get(t, "/api/me", token).StatusCode)
}

func TestSessionEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "Alice", "a@b.com", "correct", domain.RoleCustomer)

	anonymous := ts.get(t, "/api/auth/session", "")
	require.Equal(t, fiber.StatusOK, anonymous.StatusCode)
	assert.Empty(t, decode(t, anonymous))

	garbage := ts.get(t, "/api/auth/session", "not-a-token")
	assert.Empty(t, decode(t, garbage))

	login := ts.postJSON(t, "/api/auth/login", `{"email":"a@b.com","password":"correct"}`, "")
	token := sessionCookie(login).Value

	body := decode(t, ts.get(t, "/api/auth/session", token))
	assert.Equal(t, "Alice", body["user"].(map[string]any)["name"])
	assert.Equal(t, "2026-03-24T09:30:00Z", body["expires"])
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	ts := newTestServer(t)
	customer := ts.seed(t, "Alice", "a@b.com", "correct", domain.RoleCustomer)
	ts.seed(t, "Ops", "ops@b.com", "s3cret", domain.RoleAdmin)

	customerToken := sessionCookie(ts.postJSON(t, "/api/auth/login", `{"email":"a@b.com","password":"correct"}`, "")).Value
	adminToken := sessionCookie(ts.postJSON(t, "/api/auth/login", `{"email":"ops@b.com","password":"s3cret"}`, "")).Value

	forbidden := ts.get(t, "/api/admin/users/"+customer.ID, customerToken)
	assert.Equal(t, fiber.StatusForbidden, forbidden.StatusCode)
	assert.Equal(t, "FORBIDDEN", decode(t, forbidden)["code"])

	found := ts.get(t, "/api/admin/users/"+customer.ID, adminToken)
	require.Equal(t, fiber.StatusOK, found.StatusCode)
	assert.Equal(t, "a@b.com", decode(t, found)["data"].(map[string]any)["user"].(map[string]any)["email"])

	missing := ts.get(t, "/api/admin/users/"+uuid.NewString(), adminToken)
	assert.Equal(t, fiber.StatusNotFound, missing.StatusCode)
	assert.Equal(t, "NOT_FOUND", decode(t, missing)["code"])

	malformed := ts.get(t, "/api/admin/users/abc", adminToken)
	assert.Equal(t, fiber.StatusNotFound, malformed.StatusCode)
	assert.Equal(t, "NOT_FOUND", decode(t, malformed)["code"])
}

func TestAPIPathCaseDoesNotTurnDenialIntoRedirect(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/API/ME", "/api"} {
		resp := ts.get(t, path, "")
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, path)
		assert.Empty(t, resp.Header.Get("Location"), path)
	}
}

func TestLoginWithMalformedEmailIsInvalidCredentials(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.postJSON(t, "/api/auth/login", `{"email":"not-an-email","password":"x"}`, "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "INVALID_CREDENTIALS", body["code"])
	assert.Equal(t, "invalid email or password", body["message"])
}

func TestUnknownRouteForSignedInUserIsNotFound(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "Alice", "a@b.com", "correct", domain.RoleCustomer)
	token := sessionCookie(ts.postJSON(t, "/api/auth/login", `{"email":"a@b.com","password":"correct"}`, "")).Value

	resp := ts.get(t, "/api/orders", token)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", decode(t, resp)["code"])
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	ts := newTestServer(t)

	live := ts.get(t, "/health/live", "")
	require.Equal(t, fiber.StatusOK, live.StatusCode)
	assert.Equal(t, "alive", decode(t, live)["status"])

	ready := ts.get(t, "/health/ready", "")
	require.Equal(t, fiber.StatusOK, ready.StatusCode)

	ts.get(t, "/dashboard", "")
	metrics := ts.get(t, "/metrics", "")
	require.Equal(t, fiber.StatusOK, metrics.StatusCode)
	raw, err := io.ReadAll(metrics.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `pixmart_route_gate_decisions_total{outcome="redirect"} 1`)
	assert.Contains(t, string(raw), "pixmart_http_requests_total")
}

func TestRequestIDHeader(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.get(t, "/health/live", "")
	_, err := uuid.Parse(resp.Header.Get(fiber.HeaderXRequestID))
	assert.NoError(t, err)
}

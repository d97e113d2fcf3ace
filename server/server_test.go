package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stockpilot/auth-service/auth"
	"github.com/stockpilot/auth-service/server"
	"github.com/stockpilot/auth-service/token"
	"github.com/stockpilot/auth-service/users/repofake"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testEmail    = "a@b.com"
	testPassword = "secret123"
	testOrigin   = "http://localhost:5173"
)

type testConfig struct{}

func (testConfig) GetPort() string                          { return ":0" }
func (testConfig) GetAppName() string                       { return "StockPilot Auth" }
func (testConfig) GetEnv() string                           { return "test" }
func (testConfig) GetDatabaseURL() string                   { return "" }
func (testConfig) GetRedisAddr() string                     { return "" }
func (testConfig) GetClientOrigin() string                  { return testOrigin }
func (testConfig) GetAllowedMethods() string                { return "GET, POST, PUT, PATCH, DELETE" }
func (testConfig) GetAllowedHeaders() string                { return "Content-Type, Authorization" }
func (testConfig) GetAccessTokenSecret() string             { return "access-secret-1" }
func (testConfig) GetRefreshTokenSecret() string            { return "refresh-secret-1" }
func (testConfig) GetAccessTokenExpiry() time.Duration      { return 15 * time.Minute }
func (testConfig) GetRefreshTokenExpiry() time.Duration     { return 7 * 24 * time.Hour }
func (testConfig) GetBcryptCost() int                       { return bcrypt.MinCost }
func (testConfig) GetMaxLoginAttempts() int                 { return 10 }
func (testConfig) GetLoginCooldown() time.Duration          { return time.Minute }

func newTestServer(t *testing.T) *server.Server {
	t.Helper()

	tm, err := token.NewManager(testConfig{})
	require.NoError(t, err)
	service, err := auth.NewService(repofake.NewFakeUserRepo(), tm, auth.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)
	s, err := server.New(testConfig{}, service)
	require.NoError(t, err)
	return s
}

func perform(t *testing.T, s *server.Server, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeAuthResponse(t *testing.T, rec *httptest.ResponseRecorder) (accessToken, email string) {
	t.Helper()

	var body struct {
		AccessToken string `json:"accessToken"`
		User        struct {
			Email string `json:"email"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.AccessToken, body.User.Email
}

// refreshCookie returns the non-cleared jid cookie set by the response.
func refreshCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()

	for _, c := range rec.Result().Cookies() {
		if c.Name == server.RefreshCookieName && c.Value != "" {
			return c
		}
	}
	t.Fatal("no refresh cookie set")
	return nil
}

func register(t *testing.T, s *server.Server) (accessToken string, cookie *http.Cookie) {
	t.Helper()

	rec := perform(t, s, http.MethodPost, "/api/auth/register",
		`{"name":"Alice","email":"`+testEmail+`","password":"`+testPassword+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	accessToken, email := decodeAuthResponse(t, rec)
	require.Equal(t, testEmail, email)
	require.NotEmpty(t, accessToken)
	return accessToken, refreshCookie(t, rec)
}

func TestRegisterLoginRoundTrip(t *testing.T) {
	s := newTestServer(t)
	register(t, s)

	rec := perform(t, s, http.MethodPost, "/api/auth/login",
		`{"email":"`+testEmail+`","password":"`+testPassword+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	_, email := decodeAuthResponse(t, rec)
	require.Equal(t, testEmail, email)
}

func TestRegisterValidationAndConflict(t *testing.T) {
	s := newTestServer(t)

	rec := perform(t, s, http.MethodPost, "/api/auth/register", `{"email":"","password":""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	register(t, s)
	rec = perform(t, s, http.MethodPost, "/api/auth/register",
		`{"name":"Bob","email":"`+testEmail+`","password":"other"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestLoginInvalidCredentials(t *testing.T) {
	s := newTestServer(t)
	register(t, s)

	unknown := perform(t, s, http.MethodPost, "/api/auth/login",
		`{"email":"nobody@b.com","password":"`+testPassword+`"}`)
	wrong := perform(t, s, http.MethodPost, "/api/auth/login",
		`{"email":"`+testEmail+`","password":"wrong"}`)

	require.Equal(t, http.StatusUnauthorized, unknown.Code)
	require.Equal(t, http.StatusUnauthorized, wrong.Code)
	// Same body for both, so accounts cannot be enumerated.
	require.Equal(t, unknown.Body.String(), wrong.Body.String())
}

// The full rotation scenario: refresh succeeds once, the replayed original
// cookie is revoked, and access tokens issued earlier keep working until they
// expire naturally.
func TestRefreshRotationAndReuseDetection(t *testing.T) {
	s := newTestServer(t)
	firstAccess, firstCookie := register(t, s)

	rec := perform(t, s, http.MethodPost, "/api/auth/refresh", "", firstCookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	secondAccess, _ := decodeAuthResponse(t, rec)
	require.NotEqual(t, firstAccess, secondAccess)
	secondCookie := refreshCookie(t, rec)
	require.NotEqual(t, firstCookie.Value, secondCookie.Value)

	// Replaying the original cookie is reuse: 401 and full revocation.
	rec = perform(t, s, http.MethodPost, "/api/auth/refresh", "", firstCookie)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// The legitimate successor is collateral damage of the revocation.
	rec = perform(t, s, http.MethodPost, "/api/auth/refresh", "", secondCookie)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// But previously issued access tokens still validate until expiry.
	rec = perform(t, s, http.MethodGet, "/api/auth/me", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+firstAccess)
	meRec := httptest.NewRecorder()
	s.ServeHTTP(meRec, req)
	require.Equal(t, http.StatusOK, meRec.Code)
}

func TestRefreshWithoutCookie(t *testing.T) {
	s := newTestServer(t)

	rec := perform(t, s, http.MethodPost, "/api/auth/refresh", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutIsIdempotent(t *testing.T) {
	s := newTestServer(t)
	_, cookie := register(t, s)

	for i := 0; i < 2; i++ {
		rec := perform(t, s, http.MethodPost, "/api/auth/logout", "", cookie)
		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, `{"ok":true}`, rec.Body.String())

		cleared := rec.Result().Cookies()
		require.NotEmpty(t, cleared)
		require.Equal(t, server.RefreshCookieName, cleared[0].Name)
		require.Empty(t, cleared[0].Value)
	}

	// The logged-out token no longer refreshes.
	rec := perform(t, s, http.MethodPost, "/api/auth/refresh", "", cookie)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCookieContract(t *testing.T) {
	s := newTestServer(t)

	rec := perform(t, s, http.MethodPost, "/api/auth/register",
		`{"name":"Alice","email":"`+testEmail+`","password":"`+testPassword+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2) // clear-then-set, never accumulating values

	cleared, set := cookies[0], cookies[1]
	require.Equal(t, server.RefreshCookieName, cleared.Name)
	require.Empty(t, cleared.Value)
	require.Negative(t, cleared.MaxAge)

	require.Equal(t, server.RefreshCookieName, set.Name)
	require.NotEmpty(t, set.Value)
	require.True(t, set.HttpOnly)
	require.Equal(t, "/", set.Path)
	require.Equal(t, int(7*24*time.Hour/time.Second), set.MaxAge)
	require.Equal(t, http.SameSiteLaxMode, set.SameSite)
	require.False(t, set.Secure) // secure+SameSite=None only in production
}

func TestNoResponseEverContainsPasswordHash(t *testing.T) {
	s := newTestServer(t)
	accessToken, cookie := register(t, s)

	responses := []*httptest.ResponseRecorder{
		perform(t, s, http.MethodPost, "/api/auth/login",
			`{"email":"`+testEmail+`","password":"`+testPassword+`"}`),
		perform(t, s, http.MethodPost, "/api/auth/refresh", "", cookie),
	}
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	meRec := httptest.NewRecorder()
	s.ServeHTTP(meRec, req)
	responses = append(responses, meRec)

	for _, rec := range responses {
		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		require.NotContains(t, body, "password")
		require.NotContains(t, body, testPassword)
		require.NotContains(t, body, "$2a$") // bcrypt prefix
	}
}

func TestProtectedEndpointRequiresBearer(t *testing.T) {
	s := newTestServer(t)
	accessToken, _ := register(t, s)

	rec := perform(t, s, http.MethodGet, "/api/protected", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/protected", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	okRec := httptest.NewRecorder()
	s.ServeHTTP(okRec, req)
	require.Equal(t, http.StatusOK, okRec.Code)
	require.JSONEq(t, `{"ok":true}`, okRec.Body.String())
}

func TestCorsPreflightForAllowedOrigin(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", testOrigin)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, testOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	// An unknown origin gets no CORS grant.
	req = httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://evil.example.com")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

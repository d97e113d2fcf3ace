// Package session is the client half of the auth protocol: it keeps the
// access token and user in process memory only, attaches the token to
// outgoing requests, and transparently refreshes and retries when the server
// rejects an expired token. The refresh token itself lives in the http-only
// jid cookie and never leaves the cookie jar.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/stockpilot/auth-service/users"
	"golang.org/x/sync/singleflight"
)

const defaultRefreshTimeout = 10 * time.Second

// AuthResult mirrors the body of the register/login/refresh responses.
type AuthResult struct {
	AccessToken string           `json:"accessToken"`
	User        users.PublicUser `json:"user"`
}

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Client is a single-instance session coordinator. Concurrent requests that
// fail with 401 share one in-flight refresh via the singleflight group; every
// waiter observes the same outcome, one new token or one shared failure.
type Client struct {
	baseURL string

	httpClient  *http.Client // interceptor transport + shared cookie jar
	plainClient *http.Client // same jar, no interceptor; used by refresh itself

	mu          sync.RWMutex
	user        *users.PublicUser
	accessToken string
	loading     bool

	refreshGroup   singleflight.Group
	refreshTimeout time.Duration
}

// Option modifies a Client during construction.
type Option func(*Client)

// WithRefreshTimeout bounds the refresh call so a hung server cannot leave
// queued waiters blocked forever.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.refreshTimeout = d
	}
}

// New creates a session client and performs exactly one silent refresh
// attempt, restoring a prior session if the browser-equivalent jar already
// holds a valid jid cookie. A failed silent refresh leaves the client
// anonymous; it is not an error.
func New(ctx context.Context, baseURL string, opts ...Option) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		refreshTimeout: defaultRefreshTimeout,
		loading:        true,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.plainClient = &http.Client{Jar: jar}
	c.httpClient = &http.Client{
		Jar:       jar,
		Transport: &refreshTransport{client: c, base: http.DefaultTransport},
	}

	_, _ = c.refreshCoalesced(ctx) // silent startup refresh; failure means anonymous
	c.mu.Lock()
	c.loading = false
	c.mu.Unlock()

	return c, nil
}

// User returns the current user, or nil when anonymous.
func (c *Client) User() *users.PublicUser {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

// AccessToken returns the held access token, empty when anonymous.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// Loading reports whether the startup silent refresh is still in flight.
func (c *Client) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// Authenticated reports whether a session is currently held.
func (c *Client) Authenticated() bool {
	return c.AccessToken() != ""
}

// Login authenticates with credentials and populates the session state.
func (c *Client) Login(ctx context.Context, email, password string) (*users.PublicUser, error) {
	return c.authenticate(ctx, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
}

// Register creates an account and populates the session state.
func (c *Client) Register(ctx context.Context, name, email, password string) (*users.PublicUser, error) {
	return c.authenticate(ctx, "/api/auth/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	})
}

func (c *Client) authenticate(ctx context.Context, path string, body map[string]string) (*users.PublicUser, error) {
	var result AuthResult
	// A 401 here is a credential failure, not an expired session; mark the
	// request so the transport does not try to refresh on its behalf.
	if err := c.do(withRetryMark(ctx), http.MethodPost, path, body, &result); err != nil {
		return nil, err
	}
	c.setSession(result.AccessToken, result.User)
	u := result.User
	return &u, nil
}

// Logout ends the session server-side (best effort) and always clears local
// state.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(withRetryMark(ctx), http.MethodPost, "/api/auth/logout", nil, nil)
	c.clearSession()
	return err
}

// Me fetches the current user through the interceptor, so an expired access
// token is refreshed and retried transparently.
func (c *Client) Me(ctx context.Context) (*users.PublicUser, error) {
	var result struct {
		User users.PublicUser `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &result); err != nil {
		return nil, err
	}
	return &result.User, nil
}

// Do issues an arbitrary API request through the session transport. Domain
// clients (inventory, stock, deliveries) route their calls through here.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	return c.do(ctx, method, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// refreshCoalesced performs at most one concurrent refresh call; every
// caller that arrives while one is in flight waits for that same outcome.
func (c *Client) refreshCoalesced(ctx context.Context) (string, error) {
	result, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		return c.doRefresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// doRefresh calls the refresh endpoint directly, bypassing the interceptor
// so a rejected refresh cannot trigger another refresh.
func (c *Client) doRefresh(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/refresh", nil)
	if err != nil {
		return "", fmt.Errorf("build refresh request: %w", err)
	}

	resp, err := c.plainClient.Do(req)
	if err != nil {
		c.clearSession()
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.clearSession()
		return "", decodeAPIError(resp)
	}

	var result AuthResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		c.clearSession()
		return "", fmt.Errorf("decode refresh response: %w", err)
	}

	c.setSession(result.AccessToken, result.User)
	return result.AccessToken, nil
}

func (c *Client) setSession(token string, user users.PublicUser) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
	c.user = &user
}

func (c *Client) clearSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = ""
	c.user = nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		apiErr.Message = body.Message
	}
	return apiErr
}

package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/masa-erp/masa/internal/shared"
)

// HTTPClient talks to the session endpoints with a cookie jar, the way a
// browser tab would.
type HTTPClient struct {
	base   *url.URL
	http   *http.Client
	authed atomic.Bool

	mu   sync.Mutex
	csrf string
}

// NewHTTPClient builds a client for the server at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("reconcile: parse base url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		base: base,
		http: &http.Client{Jar: jar, Timeout: timeout},
	}, nil
}

type loginResponse struct {
	CSRFToken string `json:"csrfToken"`
}

// Login signs in and stores the session cookie.
func (c *HTTPClient) Login(ctx context.Context, email, password string) error {
	payload, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPost, "/auth/login", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reconcile: login: %w (status %d)", shared.ErrInvalidCredentials, resp.StatusCode)
	}
	var body loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("reconcile: decode login: %w", err)
	}
	c.setCSRF(body.CSRFToken)
	c.authed.Store(true)
	return nil
}

// Authenticated reports whether the last exchange left a usable session.
func (c *HTTPClient) Authenticated() bool {
	return c.authed.Load()
}

// Check asks whether the session should refresh.
func (c *HTTPClient) Check(ctx context.Context) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/session/check", nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		c.authed.Store(false)
		return false, shared.ErrUnauthenticated
	case http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, shared.ErrRateLimited
	default:
		return false, fmt.Errorf("reconcile: check: unexpected status %d", resp.StatusCode)
	}
	var body struct {
		ShouldRefresh bool `json:"shouldRefresh"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("reconcile: decode check: %w", err)
	}
	return body.ShouldRefresh, nil
}

// Refresh re-issues the session with current permissions.
func (c *HTTPClient) Refresh(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, "/api/session/refresh", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		c.authed.Store(false)
		return shared.ErrUnauthenticated
	default:
		return fmt.Errorf("reconcile: refresh: unexpected status %d", resp.StatusCode)
	}
	var body struct {
		CSRFToken string `json:"csrfToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("reconcile: decode refresh: %w", err)
	}
	c.setCSRF(body.CSRFToken)
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		c.mu.Lock()
		if c.csrf != "" {
			req.Header.Set(shared.CSRFHeader, c.csrf)
		}
		c.mu.Unlock()
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %s %s: %w", method, path, err)
	}
	return resp, nil
}

func (c *HTTPClient) setCSRF(token string) {
	if token == "" {
		return
	}
	c.mu.Lock()
	c.csrf = token
	c.mu.Unlock()
}

var _ Client = (*HTTPClient)(nil)

package session

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masa-erp/masa/internal/platform/ratelimit"
	"github.com/masa-erp/masa/internal/rbac"
	"github.com/masa-erp/masa/internal/rbac/rbactest"
	"github.com/masa-erp/masa/internal/shared"
)

type sessionFixture struct {
	mr      *miniredis.Miniredis
	store   *rbactest.MemoryStore
	tokens  *TokenManager
	markers *MarkerStore
	router  chi.Router
	userID  int64
	roleID  int64
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	mr, client := newTestRedis(t)
	store := rbactest.NewMemoryStore()
	roleID := store.AddRole("vendedor", shared.PermSalesView)
	userID := store.AddUser("ana@masa.test", roleID, "")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter, err := ratelimit.NewRedisLimiter(client, ratelimit.Config{Limit: 30, Window: time.Minute, Prefix: "session-check"})
	require.NoError(t, err)
	tokens := newTestTokens()
	markers := NewMarkerStore(client, 300*time.Second)
	h := NewHandler(tokens, markers, limiter, rbac.NewService(store, logger), logger)

	r := chi.NewRouter()
	r.Use(tokens.Authenticate(logger))
	r.Route("/api/session", h.MountRoutes)
	return &sessionFixture{mr: mr, store: store, tokens: tokens, markers: markers, router: r, userID: userID, roleID: roleID}
}

// issueAt returns a token whose permissions were resolved at the given time.
func (f *sessionFixture) issueAt(t *testing.T, at time.Time) string {
	t.Helper()
	raw, _, err := f.tokens.Issue(rbac.Access{
		UserID:      f.userID,
		Role:        "vendedor",
		Permissions: rbac.NewPermissionSet(shared.PermSalesView),
		ResolvedAt:  at,
	})
	require.NoError(t, err)
	return raw
}

func (f *sessionFixture) do(t *testing.T, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: f.tokens.CookieName(), Value: token})
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func shouldRefresh(t *testing.T, rr *httptest.ResponseRecorder) bool {
	t.Helper()
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var body CheckResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body.ShouldRefresh
}

func TestCheckRequiresAuthentication(t *testing.T) {
	f := newSessionFixture(t)
	rr := f.do(t, http.MethodGet, "/api/session/check", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Header().Get("Cache-Control"), "no-store")
}

func TestCheckIsNotCacheable(t *testing.T) {
	f := newSessionFixture(t)
	rr := f.do(t, http.MethodGet, "/api/session/check", f.issueAt(t, time.Now()))
	assert.Equal(t, "no-store, no-cache, must-revalidate, max-age=0", rr.Header().Get("Cache-Control"))
	assert.Equal(t, "no-cache", rr.Header().Get("Pragma"))
	assert.Equal(t, "30", rr.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "29", rr.Header().Get("X-RateLimit-Remaining"))
}

func TestInvalidationRoundTrip(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	stale := f.issueAt(t, time.Now().Add(-time.Minute))

	assert.False(t, shouldRefresh(t, f.do(t, http.MethodGet, "/api/session/check", stale)))

	f.markers.now = func() time.Time { return time.Now().Add(-time.Second) }
	require.NoError(t, f.markers.Mark(ctx, f.userID))

	// Observed on every poll until the token is refreshed.
	assert.True(t, shouldRefresh(t, f.do(t, http.MethodGet, "/api/session/check", stale)))
	assert.True(t, shouldRefresh(t, f.do(t, http.MethodGet, "/api/session/check", stale)))

	require.NoError(t, f.store.SetRolePermissions(ctx, f.roleID, []string{shared.PermSalesView, shared.PermSalesCreate}))
	rr := f.do(t, http.MethodPost, "/api/session/refresh", stale)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var refreshed RefreshResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &refreshed))
	assert.Equal(t, []string{shared.PermSalesCreate, shared.PermSalesView}, refreshed.Permissions)

	var fresh string
	for _, c := range rr.Result().Cookies() {
		if c.Name == f.tokens.CookieName() {
			fresh = c.Value
		}
	}
	require.NotEmpty(t, fresh)

	// The refreshed snapshot is newer than the marker: no refresh loop.
	assert.False(t, shouldRefresh(t, f.do(t, http.MethodGet, "/api/session/check", fresh)))

	// Another stale session of the same user still sees it.
	assert.True(t, shouldRefresh(t, f.do(t, http.MethodGet, "/api/session/check", stale)))

	f.mr.FastForward(301 * time.Second)
	assert.False(t, shouldRefresh(t, f.do(t, http.MethodGet, "/api/session/check", stale)))
}

func TestCheckRateLimitPerUser(t *testing.T) {
	f := newSessionFixture(t)
	token := f.issueAt(t, time.Now())

	for i := 0; i < 30; i++ {
		rr := f.do(t, http.MethodGet, "/api/session/check", token)
		require.Equal(t, http.StatusOK, rr.Code, "request %d", i+1)
	}
	rr := f.do(t, http.MethodGet, "/api/session/check", token)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))

	otherID := f.store.AddUser("bob@masa.test", f.roleID, "")
	other, _, err := f.tokens.Issue(rbac.Access{UserID: otherID, Role: "vendedor", Permissions: rbac.NewPermissionSet()})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/session/check", other).Code)

	f.mr.FastForward(61 * time.Second)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/session/check", token).Code)
}

func TestCheckFailsOpenWhenMarkerStoreDown(t *testing.T) {
	f := newSessionFixture(t)
	token := f.issueAt(t, time.Now())
	f.mr.Close()

	assert.False(t, shouldRefresh(t, f.do(t, http.MethodGet, "/api/session/check", token)))
}

func TestRefreshRejectsDeactivatedUser(t *testing.T) {
	f := newSessionFixture(t)
	token := f.issueAt(t, time.Now())
	f.store.Deactivate(f.userID)

	rr := f.do(t, http.MethodPost, "/api/session/refresh", token)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	var cleared bool
	for _, c := range rr.Result().Cookies() {
		if c.Name == f.tokens.CookieName() && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared)
}

func TestRefreshReturnsTokenToBearerClients(t *testing.T) {
	f := newSessionFixture(t)
	token := f.issueAt(t, time.Now())

	req := httptest.NewRequest(http.MethodPost, "/api/session/refresh", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var body RefreshResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	id, err := f.tokens.Parse(body.Token)
	require.NoError(t, err)
	assert.Equal(t, f.userID, id.UserID)
}

// racingStore runs during once, right after the first role read of a resolve.
type racingStore struct {
	*rbactest.MemoryStore
	once   sync.Once
	during func()
}

func (s *racingStore) FindRole(ctx context.Context, roleID int64) (rbac.RoleGrants, error) {
	grants, err := s.MemoryStore.FindRole(ctx, roleID)
	s.once.Do(s.during)
	return grants, err
}

func refreshedCookie(t *testing.T, f *sessionFixture, rr *httptest.ResponseRecorder) string {
	t.Helper()
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	for _, c := range rr.Result().Cookies() {
		if c.Name == f.tokens.CookieName() {
			return c.Value
		}
	}
	t.Fatal("refresh did not set the session cookie")
	return ""
}

func TestRefreshOverlappingPermissionChangeStillConverges(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	racing := &racingStore{MemoryStore: f.store}
	racing.during = func() {
		require.NoError(t, f.store.SetRolePermissions(ctx, f.roleID, []string{shared.PermSalesView, shared.PermSalesCreate}))
		require.NoError(t, f.markers.Mark(ctx, f.userID))
		time.Sleep(2 * time.Millisecond)
	}
	h := NewHandler(f.tokens, f.markers, nil, rbac.NewService(racing, logger), logger)
	r := chi.NewRouter()
	r.Use(f.tokens.Authenticate(logger))
	r.Route("/api/session", h.MountRoutes)
	f.router = r

	stale := f.issueAt(t, time.Now().Add(-time.Minute))
	rr := f.do(t, http.MethodPost, "/api/session/refresh", stale)
	first := refreshedCookie(t, f, rr)
	var body RefreshResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, []string{shared.PermSalesView}, body.Permissions, "grants were read before the change")

	// The change landed mid-resolve, so the new token must still be told to refresh.
	assert.True(t, shouldRefresh(t, f.do(t, http.MethodGet, "/api/session/check", first)))

	second := refreshedCookie(t, f, f.do(t, http.MethodPost, "/api/session/refresh", first))
	id, err := f.tokens.Parse(second)
	require.NoError(t, err)
	assert.Contains(t, id.Permissions, shared.PermSalesCreate)
	assert.False(t, shouldRefresh(t, f.do(t, http.MethodGet, "/api/session/check", second)))
}

package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/berties-books/bookshop/internal/audit"
	audithttp "github.com/berties-books/bookshop/internal/audit/http"
	"github.com/berties-books/bookshop/internal/auth"
	"github.com/berties-books/bookshop/internal/observability"
	"github.com/berties-books/bookshop/internal/shared"
	"github.com/berties-books/bookshop/internal/users"
	"github.com/berties-books/bookshop/jobs"
	_ "github.com/berties-books/bookshop/testing"
)

type memoryUsers struct {
	mu   sync.Mutex
	rows []users.User
}

func (m *memoryUsers) FindByUsername(ctx context.Context, username string) (*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.rows {
		if u.Username == username {
			clone := u
			return &clone, nil
		}
	}
	return nil, users.ErrNotFound
}

func (m *memoryUsers) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := m.FindByUsername(ctx, username)
	return err == nil, nil
}

func (m *memoryUsers) Create(ctx context.Context, in users.NewUser) (*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.rows {
		if u.Username == in.Username || u.Email == in.Email {
			return nil, users.ErrDuplicateKey
		}
	}
	u := users.User{
		ID:           int64(len(m.rows) + 1),
		Username:     in.Username,
		First:        in.First,
		Last:         in.Last,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		CreatedAt:    time.Now().UTC(),
	}
	m.rows = append(m.rows, u)
	return &u, nil
}

func (m *memoryUsers) List(ctx context.Context) ([]users.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]users.Listing, 0, len(m.rows))
	for _, u := range m.rows {
		out = append(out, users.Listing{Username: u.Username, First: u.First, Last: u.Last, Email: u.Email})
	}
	return out, nil
}

type memoryAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (m *memoryAudit) Append(ctx context.Context, e audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memoryAudit) Recent(ctx context.Context, limit int) ([]audit.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]audit.Entry(nil), m.entries...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type harness struct {
	router http.Handler
	audit  *memoryAudit
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second}
	metrics := observability.NewMetrics()
	sessions := shared.NewSessionStore(client, "bookshop_session", shared.SessionPolicy{}, false)
	directory := &memoryUsers{}
	auditLog := &memoryAudit{}
	recorder := audit.NewRecorder(auditLog, nil, metrics)
	hasher := auth.NewBoundedHasher(auth.NewBcryptHasher(bcrypt.MinCost), 2)
	authService := auth.NewService(directory, hasher, sessions, recorder, nil, metrics)

	router := NewRouter(RouterParams{
		Config:       cfg,
		Sessions:     sessions,
		AuthHandler:  auth.NewHandler(nil, authService, sessions, 1000),
		UsersHandler: users.NewHandler(nil, users.NewService(directory)),
		AuditHandler: audithttp.NewHandler(nil, audit.NewService(auditLog, 0), auth.RequireUser),
		JobHandler:   jobs.NewHandler(nil, nil),
		Metrics:      metrics,
	})
	return &harness{router: router, audit: auditLog}
}

func (h *harness) do(method, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthzAndSecurityHeaders(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestJobsHealthMounted(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/jobs/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterLoginAuditFlow(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/users/registered", url.Values{
		"username": {"alice"}, "first": {"Alice"}, "last": {"L"}, "email": {"a@x.com"}, "password": {"s3cretpw"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = h.do(http.MethodPost, "/users/loggedin", url.Values{"username": {"bob"}, "password": {"whatever1"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodGet, "/users/audit", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodPost, "/users/loggedin", url.Values{"username": {"alice"}, "password": {"s3cretpw"}})
	require.Equal(t, http.StatusOK, rec.Code)
	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "bookshop_session" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)

	rec = h.do(http.MethodGet, "/users/audit", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		Entries []audit.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history.Entries, 3)

	var failed, succeeded int
	for _, e := range history.Entries {
		if e.Action != audit.ActionLogin {
			continue
		}
		if e.Success {
			succeeded++
			assert.Equal(t, "a@x.com", e.Subject)
		} else {
			failed++
			assert.Equal(t, "bob", e.Subject)
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, succeeded)

	rec = h.do(http.MethodGet, "/users/list", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"alice"`)
	assert.NotContains(t, rec.Body.String(), "$2a$")

	rec = h.do(http.MethodPost, "/users/logout", nil, cookie)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = h.do(http.MethodGet, "/users/me", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMetricsEndpointCountsAttempts(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodPost, "/users/loggedin", url.Values{"username": {"ghost"}, "password": {"whatever1"}})

	rec := h.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `bookshop_auth_attempts_total{action="login",outcome="failure"} 1`)
}

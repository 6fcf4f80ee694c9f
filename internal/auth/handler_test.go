package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berties-books/bookshop/internal/platform/httpx"
)

func newTestRouter(t *testing.T) (http.Handler, *fixture) {
	t.Helper()
	f := newFixture(t)
	handler := NewHandler(nil, f.service, f.sessions, 1000)
	r := chi.NewRouter()
	r.Use(LoadSession(nil, f.sessions))
	r.Route("/users", handler.MountRoutes)
	return r, f
}

func postForm(router http.Handler, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "bookshop_session" {
			return c
		}
	}
	t.Fatalf("no session cookie in response")
	return nil
}

var aliceForm = url.Values{
	"username": {"alice"},
	"first":    {"Alice"},
	"last":     {"Liddell"},
	"email":    {"a@x.com"},
	"password": {"s3cretpw"},
}

func TestHandleRegister(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := postForm(router, "/users/registered", aliceForm)
	require.Equal(t, http.StatusCreated, rec.Code)

	var body registeredResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "alice", body.Username)
	assert.Equal(t, "Hello Alice Liddell you are now registered! We will send an email to you at a@x.com", body.Message)
	assert.NotContains(t, rec.Body.String(), "s3cretpw")
	assert.Empty(t, rec.Result().Cookies())

	rec = postForm(router, "/users/registered", aliceForm)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleRegisterValidation(t *testing.T) {
	router, _ := newTestRouter(t)
	form := url.Values{"username": {"alice"}, "email": {"nope"}, "password": {"short"}}

	rec := postForm(router, "/users/registered", form)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "Email must be a valid email address", problem.Errors["email"])
	assert.Equal(t, "Password must be at least 8 characters long", problem.Errors["password"])
}

func TestHandleLoginAndMe(t *testing.T) {
	router, _ := newTestRouter(t)
	require.Equal(t, http.StatusCreated, postForm(router, "/users/registered", aliceForm).Code)

	rec := postForm(router, "/users/loggedin", url.Values{"username": {"alice"}, "password": {"s3cretpw"}})
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(t, rec)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.AddCookie(cookie)
	me := httptest.NewRecorder()
	router.ServeHTTP(me, req)
	require.Equal(t, http.StatusOK, me.Code)
	assert.JSONEq(t, `{"username":"alice","email":"a@x.com"}`, me.Body.String())
}

func TestHandleLoginInvalidCredentials(t *testing.T) {
	router, _ := newTestRouter(t)
	require.Equal(t, http.StatusCreated, postForm(router, "/users/registered", aliceForm).Code)

	wrong := postForm(router, "/users/loggedin", url.Values{"username": {"alice"}, "password": {"wrongpass"}})
	unknown := postForm(router, "/users/loggedin", url.Values{"username": {"bob"}, "password": {"wrongpass"}})

	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
	assert.Empty(t, wrong.Result().Cookies())
}

func TestHandleLoginReplacesPresentedSession(t *testing.T) {
	router, f := newTestRouter(t)
	require.Equal(t, http.StatusCreated, postForm(router, "/users/registered", aliceForm).Code)
	creds := url.Values{"username": {"alice"}, "password": {"s3cretpw"}}

	first := sessionCookie(t, postForm(router, "/users/loggedin", creds))
	second := sessionCookie(t, postForm(router, "/users/loggedin", creds, first))

	assert.NotEqual(t, first.Value, second.Value)
	assert.False(t, f.redis.Exists("session:"+first.Value))
	assert.True(t, f.redis.Exists("session:"+second.Value))
}

func TestHandleLogout(t *testing.T) {
	router, f := newTestRouter(t)
	require.Equal(t, http.StatusCreated, postForm(router, "/users/registered", aliceForm).Code)
	cookie := sessionCookie(t, postForm(router, "/users/loggedin", url.Values{"username": {"alice"}, "password": {"s3cretpw"}}))

	rec := postForm(router, "/users/logout", nil, cookie)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, -1, sessionCookie(t, rec).MaxAge)
	assert.False(t, f.redis.Exists("session:"+cookie.Value))

	req := httptest.NewRequest(http.MethodGet, "/users/logout", nil)
	again := httptest.NewRecorder()
	router.ServeHTTP(again, req)
	assert.Equal(t, http.StatusNoContent, again.Code)
}

func TestRequireUserRejectsAnonymous(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.AddCookie(&http.Cookie{Name: "bookshop_session", Value: "forged"})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginRateLimit(t *testing.T) {
	f := newFixture(t)
	r := chi.NewRouter()
	r.Route("/users", NewHandler(nil, f.service, f.sessions, 2).MountRoutes)

	creds := url.Values{"username": {"nobody"}, "password": {"whatever1"}}
	assert.Equal(t, http.StatusUnauthorized, postForm(r, "/users/loggedin", creds).Code)
	assert.Equal(t, http.StatusUnauthorized, postForm(r, "/users/loggedin", creds).Code)
	assert.Equal(t, http.StatusTooManyRequests, postForm(r, "/users/loggedin", creds).Code)
}

func TestGreeting(t *testing.T) {
	assert.Equal(t, "Hello you are now registered! We will send an email to you at a@x.com", greeting("", "", "a@x.com"))
	assert.Equal(t, "Hello Ann you are now registered! We will send an email to you at a@x.com", greeting("Ann", "", "a@x.com"))
}

func TestSessionStoreOutage(t *testing.T) {
	router, f := newTestRouter(t)
	require.Equal(t, http.StatusCreated, postForm(router, "/users/registered", aliceForm).Code)
	cookie := sessionCookie(t, postForm(router, "/users/loggedin", url.Values{"username": {"alice"}, "password": {"s3cretpw"}}))
	f.redis.Close()

	rec := postForm(router, "/users/logout", nil, cookie)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, -1, sessionCookie(t, rec).MaxAge)

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.AddCookie(cookie)
	me := httptest.NewRecorder()
	router.ServeHTTP(me, req)
	assert.Equal(t, http.StatusServiceUnavailable, me.Code)
}

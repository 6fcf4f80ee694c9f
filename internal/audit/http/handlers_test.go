package audithttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berties-books/bookshop/internal/audit"
)

type stubHistory struct {
	entries   []audit.Entry
	err       error
	lastLimit int
	calls     int
}

func (s *stubHistory) Recent(ctx context.Context, limit int) ([]audit.Entry, error) {
	s.lastLimit = limit
	s.calls++
	return s.entries, s.err
}

func denyAll(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
}

func serve(h *Handler, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.MountRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHistoryReturnsEntries(t *testing.T) {
	svc := &stubHistory{entries: []audit.Entry{
		{ID: uuid.New(), At: time.Now(), Subject: "a@x.com", Action: audit.ActionLogin, Success: true},
	}}
	rec := serve(NewHandler(nil, svc, nil), "/audit?limit=5")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, svc.lastLimit)

	var body historyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Entries, 1)
	assert.Equal(t, audit.ActionLogin, body.Entries[0].Action)
}

func TestHistoryRejectsBadLimit(t *testing.T) {
	svc := &stubHistory{}
	rec := serve(NewHandler(nil, svc, nil), "/audit?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryStorageError(t *testing.T) {
	svc := &stubHistory{err: errors.New("db down")}
	rec := serve(NewHandler(nil, svc, nil), "/audit")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHistoryGuarded(t *testing.T) {
	svc := &stubHistory{}
	rec := serve(NewHandler(nil, svc, denyAll), "/audit")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, svc.calls)
}

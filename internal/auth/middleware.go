package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/berties-books/bookshop/internal/platform/httpx"
	"github.com/berties-books/bookshop/internal/shared"
)

type sessionUnavailableKey struct{}

// LoadSession resolves the session cookie and stores the authenticated user in the
// request context. Requests without a live session continue anonymously. When the
// store cannot be reached the request also continues anonymously, marked so that
// RequireUser answers 503 instead of 401.
func LoadSession(logger *slog.Logger, sessions *shared.SessionStore) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := sessions.IDFromRequest(r)
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}
			user, err := sessions.Get(r.Context(), id)
			if err != nil {
				logger.Error("failed to load session", slog.Any("error", err))
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionUnavailableKey{}, true)))
				return
			}
			if user == nil {
				sessions.ClearCookie(w)
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithSession(r.Context(), user)))
		})
	}
}

// RequireUser rejects anonymous requests with 401, or 503 when the session could
// not be loaded.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shared.SessionFromContext(r.Context()) == nil {
			if unavailable, _ := r.Context().Value(sessionUnavailableKey{}).(bool); unavailable {
				httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "session store unavailable")
				return
			}
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

package audithttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/berties-books/bookshop/internal/shared"
)

const rateLimit = 30
const rateWindow = time.Minute

// MountRoutes registers the audit history endpoint.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)
	r.Group(func(gr chi.Router) {
		if h.requireUser != nil {
			gr.Use(h.requireUser)
		}
		gr.Use(limiter)
		gr.Get("/audit", h.handleHistory)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if user := shared.SessionFromContext(r.Context()); user != nil && user.Username != "" {
		return "user:" + user.Username, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

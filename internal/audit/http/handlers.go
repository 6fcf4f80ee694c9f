package audithttp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/berties-books/bookshop/internal/audit"
	"github.com/berties-books/bookshop/internal/platform/httpx"
)

// HistoryService is the read contract the handler needs.
type HistoryService interface {
	Recent(ctx context.Context, limit int) ([]audit.Entry, error)
}

// Handler serves the audit history page.
type Handler struct {
	logger      *slog.Logger
	service     HistoryService
	requireUser func(http.Handler) http.Handler
}

// NewHandler builds the audit handler. requireUser gates every route; nil leaves them
// open.
func NewHandler(logger *slog.Logger, service HistoryService, requireUser func(http.Handler) http.Handler) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, requireUser: requireUser}
}

type historyResponse struct {
	Entries []audit.Entry `json:"entries"`
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	entries, err := h.service.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("audit history", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, historyResponse{Entries: entries})
}

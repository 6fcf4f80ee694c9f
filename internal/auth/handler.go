package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/berties-books/bookshop/internal/platform/httpx"
	"github.com/berties-books/bookshop/internal/shared"
)

// DefaultLoginRate is the per-IP budget for login and registration attempts per minute.
const DefaultLoginRate = 10

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	sessions  *shared.SessionStore
	loginRate int
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionStore, loginRate int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if loginRate <= 0 {
		loginRate = DefaultLoginRate
	}
	return &Handler{
		logger:    logger,
		service:   service,
		sessions:  sessions,
		loginRate: loginRate,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(h.loginRate, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "too many attempts, try again later")
		}),
	)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Post("/registered", h.handleRegister)
		gr.Post("/loggedin", h.handleLogin)
	})
	r.Post("/logout", h.handleLogout)
	r.Get("/logout", h.handleLogout)
	r.With(RequireUser).Get("/me", h.handleMe)
}

type registeredResponse struct {
	Username string `json:"username"`
	First    string `json:"first"`
	Last     string `json:"last"`
	Email    string `json:"email"`
	Message  string `json:"message"`
}

type loggedInResponse struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed form body")
		return
	}
	user, err := h.service.Register(r.Context(), RegisterInput{
		Username: r.PostFormValue("username"),
		First:    r.PostFormValue("first"),
		Last:     r.PostFormValue("last"),
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	})
	if err != nil {
		h.respondError(w, "register", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, registeredResponse{
		Username: user.Username,
		First:    user.First,
		Last:     user.Last,
		Email:    user.Email,
		Message:  greeting(user.First, user.Last, user.Email),
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed form body")
		return
	}
	result, err := h.service.Login(r.Context(), LoginInput{
		Username: r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
	})
	if err != nil {
		h.respondError(w, "login", err)
		return
	}
	// A session presented before login is never reused.
	if previous := h.sessions.IDFromRequest(r); previous != "" {
		h.service.Logout(r.Context(), previous)
	}
	h.sessions.SetCookie(w, result.SessionID)
	httpx.JSON(w, http.StatusOK, loggedInResponse{
		Username: result.User.Username,
		Email:    result.User.Email,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if id := h.sessions.IDFromRequest(r); id != "" {
		h.service.Logout(r.Context(), id)
	}
	h.sessions.ClearCookie(w)
	httpx.NoContent(w)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user := shared.SessionFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, loggedInResponse{Username: user.Username, Email: user.Email})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	expected := errors.Is(err, ErrValidation) || errors.Is(err, ErrDuplicateUser) || errors.Is(err, ErrInvalidCredentials)
	if !expected {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func greeting(first, last, email string) string {
	name := strings.TrimSpace(first + " " + last)
	if name == "" {
		return fmt.Sprintf("Hello you are now registered! We will send an email to you at %s", email)
	}
	return fmt.Sprintf("Hello %s you are now registered! We will send an email to you at %s", name, email)
}

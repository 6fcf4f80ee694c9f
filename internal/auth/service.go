package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/berties-books/bookshop/internal/audit"
	"github.com/berties-books/bookshop/internal/shared"
	"github.com/berties-books/bookshop/internal/users"
)

// Directory is the user directory the service registers into and authenticates
// against.
type Directory interface {
	FindByUsername(ctx context.Context, username string) (*users.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	Create(ctx context.Context, in users.NewUser) (*users.User, error)
}

// SessionStore binds authenticated users to opaque session identifiers.
type SessionStore interface {
	Create(ctx context.Context, user shared.SessionUser) (string, error)
	Get(ctx context.Context, id string) (*shared.SessionUser, error)
	Destroy(ctx context.Context, id string) error
}

// AuditRecorder appends audit entries best-effort.
type AuditRecorder interface {
	Record(ctx context.Context, subject string, action audit.Action, success bool, details string)
}

// AttemptCounter counts attempts by outcome. Optional.
type AttemptCounter interface {
	AuthAttempt(action string, success bool)
}

// LoginResult is returned by a successful login. The web layer attaches SessionID as
// a cookie.
type LoginResult struct {
	SessionID string
	User      shared.SessionUser
}

// Audit details recorded for each outcome.
const (
	detailRegistered     = "registration succeeded"
	detailUsernameTaken  = "username already taken"
	detailDuplicateKey   = "username or email already registered"
	detailUserNotFound   = "user not found"
	detailWrongPassword  = "wrong password"
	detailLoggedIn       = "login succeeded"
	detailInternalError  = "internal error"
	detailSessionFailure = "session could not be established"
)

// Service wraps authentication business rules: registration, login and logout.
type Service struct {
	directory Directory
	hasher    CredentialHasher
	sessions  SessionStore
	recorder  AuditRecorder
	metrics   AttemptCounter
	logger    *slog.Logger
	validate  *validator.Validate

	dummyMu   sync.Mutex
	dummyHash string
}

// NewService constructs a new Service. logger and metrics may be nil.
func NewService(directory Directory, hasher CredentialHasher, sessions SessionStore, recorder AuditRecorder, logger *slog.Logger, metrics AttemptCounter) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		directory: directory,
		hasher:    hasher,
		sessions:  sessions,
		recorder:  recorder,
		metrics:   metrics,
		logger:    logger,
		validate:  newValidator(),
	}
	s.placeholderHash(context.Background())
	return s
}

// Register validates, hashes and persists a new user. No session is established.
// Input rejected by validation is not audited; every other outcome is.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*users.User, error) {
	form, err := normaliseRegistration(s.validate, in)
	if err != nil {
		return nil, err
	}

	taken, err := s.directory.ExistsByUsername(ctx, form.Username)
	if err != nil {
		s.conclude(ctx, audit.ActionRegister, form.Username, false, detailInternalError)
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if taken {
		s.conclude(ctx, audit.ActionRegister, form.Username, false, detailUsernameTaken)
		return nil, ErrDuplicateUser
	}

	hash, err := s.hasher.Hash(ctx, form.Password)
	if err != nil {
		s.conclude(ctx, audit.ActionRegister, form.Email, false, detailInternalError)
		return nil, wrapHashing(err)
	}

	user, err := s.directory.Create(ctx, users.NewUser{
		Username:     form.Username,
		First:        form.First,
		Last:         form.Last,
		Email:        form.Email,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, users.ErrDuplicateKey) {
			s.conclude(ctx, audit.ActionRegister, form.Email, false, detailDuplicateKey)
			return nil, ErrDuplicateUser
		}
		s.conclude(ctx, audit.ActionRegister, form.Email, false, detailInternalError)
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	s.conclude(ctx, audit.ActionRegister, user.Email, true, detailRegistered)
	return user, nil
}

// Login verifies credentials and establishes a session. Unknown usernames and wrong
// passwords return the same ErrInvalidCredentials after comparable work.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	form, err := normaliseLogin(s.validate, in)
	if err != nil {
		return nil, err
	}

	user, err := s.directory.FindByUsername(ctx, form.Username)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			s.burnVerify(ctx, form.Password)
			s.conclude(ctx, audit.ActionLogin, form.Username, false, detailUserNotFound)
			return nil, ErrInvalidCredentials
		}
		s.conclude(ctx, audit.ActionLogin, form.Username, false, detailInternalError)
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	ok, err := s.hasher.Verify(ctx, form.Password, user.PasswordHash)
	if err != nil {
		s.conclude(ctx, audit.ActionLogin, user.Email, false, detailInternalError)
		return nil, wrapHashing(err)
	}
	if !ok {
		s.conclude(ctx, audit.ActionLogin, user.Email, false, detailWrongPassword)
		return nil, ErrInvalidCredentials
	}

	descriptor := shared.SessionUser{ID: user.ID, Username: user.Username, Email: user.Email}
	sessionID, err := s.sessions.Create(ctx, descriptor)
	if err != nil {
		s.conclude(ctx, audit.ActionLogin, user.Email, false, detailSessionFailure)
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	s.conclude(ctx, audit.ActionLogin, user.Email, true, detailLoggedIn)
	return &LoginResult{SessionID: sessionID, User: descriptor}, nil
}

// Logout destroys the session. It always succeeds from the caller's point of view.
func (s *Service) Logout(ctx context.Context, sessionID string) {
	if err := s.sessions.Destroy(ctx, sessionID); err != nil {
		s.logger.Warn("destroy session", slog.Any("error", err))
	}
}

// Authenticate resolves a session identifier to its user, or nil when absent.
func (s *Service) Authenticate(ctx context.Context, sessionID string) (*shared.SessionUser, error) {
	user, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return user, nil
}

// conclude records the single audit entry for an attempt.
func (s *Service) conclude(ctx context.Context, action audit.Action, subject string, success bool, details string) {
	if s.metrics != nil {
		s.metrics.AuthAttempt(string(action), success)
	}
	s.recorder.Record(ctx, subject, action, success, details)
}

// burnVerify runs a verification that can never succeed so an unknown username
// costs about as much as a wrong password. It ignores cancellation of ctx so an
// aborted request still pays the full price.
func (s *Service) burnVerify(ctx context.Context, password string) {
	ctx = context.WithoutCancel(ctx)
	hash := s.placeholderHash(ctx)
	if hash == "" {
		return
	}
	_, _ = s.hasher.Verify(ctx, password, hash)
}

// placeholderHash returns the cached placeholder hash, building it when missing. A
// failed build is retried by the next caller.
func (s *Service) placeholderHash(ctx context.Context) string {
	s.dummyMu.Lock()
	defer s.dummyMu.Unlock()
	if s.dummyHash != "" {
		return s.dummyHash
	}
	hash, err := s.hasher.Hash(ctx, "bookshop-placeholder-credential")
	if err != nil {
		s.logger.Warn("prepare placeholder hash", slog.Any("error", err))
		return ""
	}
	s.dummyHash = hash
	return hash
}

func wrapHashing(err error) error {
	if errors.Is(err, ErrHashing) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrHashing, err)
}

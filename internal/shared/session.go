package shared

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionIDBytes = 32

	// DefaultIdleTTL ends a session after this long without a read.
	DefaultIdleTTL = 30 * time.Minute
	// DefaultAbsoluteTTL ends a session this long after login regardless of activity.
	DefaultAbsoluteTTL = 12 * time.Hour
)

// SessionUser is the descriptor bound to a session. It is the only user data the
// store keeps.
type SessionUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// SessionPolicy controls expiry. Zero values fall back to the defaults.
type SessionPolicy struct {
	IdleTTL     time.Duration
	AbsoluteTTL time.Duration
}

func (p SessionPolicy) normalised() SessionPolicy {
	if p.IdleTTL <= 0 {
		p.IdleTTL = DefaultIdleTTL
	}
	if p.AbsoluteTTL <= 0 {
		p.AbsoluteTTL = DefaultAbsoluteTTL
	}
	if p.IdleTTL > p.AbsoluteTTL {
		p.IdleTTL = p.AbsoluteTTL
	}
	return p
}

// SessionStore maps opaque session identifiers to SessionUser descriptors in Redis.
// Redis is the single source of truth, so concurrent requests carrying the same id
// observe last-writer-wins semantics.
type SessionStore struct {
	client     *redis.Client
	cookieName string
	policy     SessionPolicy
	secure     bool
	now        func() time.Time
}

type sessionPayload struct {
	User      SessionUser `json:"user"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore(client *redis.Client, cookieName string, policy SessionPolicy, secure bool) *SessionStore {
	return &SessionStore{
		client:     client,
		cookieName: cookieName,
		policy:     policy.normalised(),
		secure:     secure,
		now:        time.Now,
	}
}

// Create binds user to a fresh unguessable identifier and returns it.
func (s *SessionStore) Create(ctx context.Context, user SessionUser) (string, error) {
	id, err := generateSessionID()
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(sessionPayload{User: user, CreatedAt: s.now().UTC()})
	if err != nil {
		return "", fmt.Errorf("session: encode: %w", err)
	}
	ok, err := s.client.SetNX(ctx, redisKey(id), data, s.policy.IdleTTL).Result()
	if err != nil {
		return "", fmt.Errorf("session: store: %w", err)
	}
	if !ok {
		return "", ErrSessionCollision
	}
	return id, nil
}

// Get resolves id to its descriptor. It returns nil without error when the session
// was never created, was destroyed, or has expired. A successful read slides the idle
// window, never past the absolute deadline.
func (s *SessionStore) Get(ctx context.Context, id string) (*SessionUser, error) {
	if id == "" {
		return nil, nil
	}
	raw, err := s.client.Get(ctx, redisKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("session: load: %w", err)
	}

	var stored sessionPayload
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}

	remaining := stored.CreatedAt.Add(s.policy.AbsoluteTTL).Sub(s.now())
	if remaining <= 0 {
		if err := s.client.Del(ctx, redisKey(id)).Err(); err != nil {
			return nil, fmt.Errorf("session: expire: %w", err)
		}
		return nil, nil
	}
	if err := s.client.Expire(ctx, redisKey(id), min(s.policy.IdleTTL, remaining)).Err(); err != nil {
		return nil, fmt.Errorf("session: touch: %w", err)
	}

	user := stored.User
	return &user, nil
}

// Destroy removes the session. Destroying an unknown or already destroyed id is not
// an error.
func (s *SessionStore) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.client.Del(ctx, redisKey(id)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("session: destroy: %w", err)
	}
	return nil
}

// IDFromRequest returns the session id presented by the client, or "".
func (s *SessionStore) IDFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// SetCookie attaches the session id to the response.
func (s *SessionStore) SetCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.policy.AbsoluteTTL.Seconds()),
	})
}

// ClearCookie instructs the client to drop the session cookie.
func (s *SessionStore) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func redisKey(id string) string {
	return "session:" + id
}

func generateSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: generate id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

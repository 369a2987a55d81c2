// Package auth gates websocket handshakes and API requests on a signed
// session token and owns the login/logoff flow that issues them.
package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"devcollab/internal/models"

	"github.com/c-pro/geche"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultTokenExpiry = 24 * time.Hour
	loginFailedMessage = "Login failed"
	// Attempts past this many start the backoff.
	freeLoginAttempts = 3
)

var (
	ErrMissingToken = errors.New("token required")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrUserNotFound = errors.New("user not found")
)

// Reasons sent to clients when a handshake is rejected.
const (
	ReasonMissingToken = "missing_token"
	ReasonInvalidToken = "invalid_token"
	ReasonUserNotFound = "user_not_found"
)

// Reason maps a gate error to its reason string.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrMissingToken):
		return ReasonMissingToken
	case errors.Is(err, ErrUserNotFound):
		return ReasonUserNotFound
	default:
		return ReasonInvalidToken
	}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Success     bool         `json:"success"`
	Message     string       `json:"message,omitempty"`
	Token       string       `json:"token,omitempty"`
	TokenExpiry int64        `json:"tokenExpiry,omitempty"`
	User        *models.User `json:"user,omitempty"`
}

// UserStore resolves identities for the gate.
type UserStore interface {
	GetUser(id string) (models.User, error)
	GetUserCredentials(email string) (models.User, string, error)
}

type Config struct {
	Secret      string        `json:"secret"`
	secretBytes []byte        `json:"-"`
	TokenExpiry time.Duration `json:"tokenExpiry"`
}

func (c *Config) Validate() error {
	if c.Secret == "" {
		return errors.New("secret is required")
	}

	var err error
	c.secretBytes, err = base64.StdEncoding.DecodeString(c.Secret)
	if err != nil {
		return fmt.Errorf("auth secret is not a valid base64: %w", err)
	}

	if c.TokenExpiry == 0 {
		c.TokenExpiry = DefaultTokenExpiry
	}

	return nil
}

type loginAttempts struct {
	failed int64
	last   time.Time
}

// Gate authenticates connections and API calls.
type Gate struct {
	Config
	users  UserStore
	tokens *TokenManager
	// token ids revoked by logoff, kept until the token would expire anyway
	revoked  geche.Geche[string, struct{}]
	attempts *geche.Locker[string, loginAttempts]
	now      func() time.Time
}

func NewGate(ctx context.Context, config Config, users UserStore) (*Gate, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Gate{
		Config:   config,
		users:    users,
		tokens:   NewTokenManager(config.secretBytes, config.TokenExpiry),
		revoked:  geche.NewMapTTLCache[string, struct{}](ctx, config.TokenExpiry, time.Minute),
		attempts: geche.NewLocker[string, loginAttempts](geche.NewMapTTLCache[string, loginAttempts](ctx, time.Hour, time.Minute)),
		now:      time.Now,
	}, nil
}

// Authenticate validates the token and resolves it to an active user.
func (g *Gate) Authenticate(token string) (models.User, error) {
	if token == "" {
		return models.User{}, ErrMissingToken
	}

	claims, err := g.tokens.Parse(token)
	if err != nil {
		return models.User{}, err
	}
	if _, err := g.revoked.Get(claims.ID); err == nil {
		return models.User{}, ErrInvalidToken
	}

	user, err := g.users.GetUser(claims.Subject)
	if errors.Is(err, models.ErrNotFound) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		slog.Error("failed to resolve token subject", "user_id", claims.Subject, "error", err)
		return models.User{}, fmt.Errorf("resolve user: %w", err)
	}
	if !user.Active {
		return models.User{}, ErrUserNotFound
	}
	return user, nil
}

// Issue signs a session token for the user without checking a password.
func (g *Gate) Issue(userID string) (string, time.Time, error) {
	return g.tokens.Issue(userID)
}

func (g *Gate) Login(req LoginRequest) LoginResponse {
	now := g.now()
	if msg := g.throttled(req.Email, now); msg != "" {
		return LoginResponse{Message: msg}
	}

	// The password check runs unlocked so a slow bcrypt compare does not
	// stall logins for other emails.
	user, ok := g.checkCredentials(req)
	if !ok {
		g.recordFailure(req.Email, now)
		return LoginResponse{Message: loginFailedMessage}
	}

	token, expiresAt, err := g.tokens.Issue(user.ID)
	if err != nil {
		slog.Error("login failed", "user_id", user.ID, "error", err)
		return LoginResponse{Message: "internal error"}
	}

	tx := g.attempts.Lock()
	_ = tx.Del(req.Email)
	tx.Unlock()

	return LoginResponse{
		Success:     true,
		Token:       token,
		TokenExpiry: expiresAt.Unix(),
		User:        &user,
	}
}

// throttled returns a message when email is still backing off after too many
// failed attempts.
func (g *Gate) throttled(email string, now time.Time) string {
	tx := g.attempts.RLock()
	attempts, _ := tx.Get(email)
	tx.Unlock()

	if attempts.failed <= freeLoginAttempts {
		return ""
	}
	backoff := time.Duration(30*attempts.failed*attempts.failed) * time.Second
	if next := attempts.last.Add(backoff); now.Before(next) {
		return fmt.Sprintf("Too many failed login attempts. Next attempt in %d seconds", int(next.Sub(now).Seconds()))
	}
	return ""
}

// recordFailure re-reads the counter under the write lock so concurrent
// failures are all counted.
func (g *Gate) recordFailure(email string, now time.Time) {
	tx := g.attempts.Lock()
	defer tx.Unlock()
	attempts, _ := tx.Get(email)
	tx.Set(email, loginAttempts{failed: attempts.failed + 1, last: now})
}

func (g *Gate) checkCredentials(req LoginRequest) (models.User, bool) {
	user, hash, err := g.users.GetUserCredentials(req.Email)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			slog.Error("login lookup failed", "error", err)
		}
		return models.User{}, false
	}
	if !user.Active || hash == "" {
		return models.User{}, false
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		return models.User{}, false
	}
	return user, true
}

// Logoff revokes the token. Revoking an invalid token is an error.
func (g *Gate) Logoff(token string) error {
	claims, err := g.tokens.Parse(token)
	if err != nil {
		return err
	}
	g.revoked.Set(claims.ID, struct{}{})
	return nil
}

// HashPassword hashes a password for storage.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

package server

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrInvalidCredentials is returned when a login does not match the configured pair.
var ErrInvalidCredentials = errors.New("invalid username or password")

// Gate checks the single credential pair and tracks issued session cookies.
// Tokens never expire; they live until the process restarts.
type Gate struct {
	username   string
	password   string
	cookieName string
	store      SubjectStore
	logger     zerolog.Logger

	mutex  sync.RWMutex
	tokens map[string]time.Time
}

// NewGate creates a gate for one username/password pair
func NewGate(username, password, cookieName string, store SubjectStore, logger zerolog.Logger) *Gate {
	return &Gate{
		username:   username,
		password:   password,
		cookieName: cookieName,
		store:      store,
		logger:     logger.With().Str("component", "gate").Logger(),
		tokens:     make(map[string]time.Time),
	}
}

// Login validates the credentials, marks the session logged in and returns a new token.
func (g *Gate) Login(username, password string) (string, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(g.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(g.password)) == 1
	if !userOK || !passOK {
		g.logger.Warn().Str("username", username).Msg("Login rejected")
		return "", ErrInvalidCredentials
	}

	token := uuid.NewString()
	g.mutex.Lock()
	g.tokens[token] = time.Now()
	g.mutex.Unlock()

	g.store.MarkLoggedIn()
	g.logger.Info().Str("username", username).Msg("Login accepted")
	return token, nil
}

// Cookie builds the session cookie for a token
func (g *Gate) Cookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     g.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

// Authenticated reports whether the request carries a token issued by Login.
func (g *Gate) Authenticated(r *http.Request) bool {
	c, err := r.Cookie(g.cookieName)
	if err != nil || c.Value == "" {
		return false
	}
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	_, ok := g.tokens[c.Value]
	return ok
}

// Require wraps a handler so it answers 401 without a valid session cookie.
func (g *Gate) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !g.Authenticated(r) {
			writeError(w, http.StatusUnauthorized, "login required")
			return
		}
		next(w, r)
	}
}

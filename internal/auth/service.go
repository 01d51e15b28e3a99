// Package auth is the session authority: it checks credentials, mints
// bearer tokens with an expiry and answers Verify calls from the signal
// gate. Everything lives in memory behind one mutex.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vigia-cam/vigia/internal/domain"
)

var (
	ErrMissingFields  = errors.New("missing credentials")
	ErrInvalidRole    = errors.New("invalid role")
	ErrBadCredentials = errors.New("invalid credentials")
)

// Credentials maps username to sha256 hex of the password, per role.
type Credentials map[string]string

// HashPassword returns the sha256 hex digest used by the credential store.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

type Service struct {
	mu       sync.Mutex
	cameras  Credentials
	viewers  Credentials
	sessions map[string]domain.Session
	ttl      time.Duration

	now func() time.Time
}

func NewService(cameras, viewers Credentials, ttl time.Duration) *Service {
	return &Service{
		cameras:  cameras,
		viewers:  viewers,
		sessions: make(map[string]domain.Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

type LoginResult struct {
	Token     string
	UserID    domain.UserID
	Role      domain.Role
	ExpiresAt time.Time
}

// Login checks the credentials against the store for the requested role and
// issues a fresh session token on success.
func (s *Service) Login(username, password string, role domain.Role) (LoginResult, error) {
	if username == "" || password == "" || role == "" {
		return LoginResult{}, ErrMissingFields
	}
	if !role.Valid() {
		return LoginResult{}, ErrInvalidRole
	}

	store := s.viewers
	if role == domain.RoleCamera {
		store = s.cameras
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if hash, ok := store[username]; !ok || hash != HashPassword(password) {
		return LoginResult{}, ErrBadCredentials
	}

	token, err := generateToken()
	if err != nil {
		return LoginResult{}, err
	}
	expires := s.now().Add(s.ttl)
	s.sessions[token] = domain.Session{
		UserID:    domain.UserID(username),
		Role:      role,
		ExpiresAt: expires,
	}
	log.Info().Str("module", "auth").Str("user", username).Str("role", string(role)).Msg("session issued")
	return LoginResult{Token: token, UserID: domain.UserID(username), Role: role, ExpiresAt: expires}, nil
}

// Logout revokes a token. Unknown tokens are ignored.
func (s *Service) Logout(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

// Verify resolves a token to the identity it was issued for. Absent or
// expired tokens report false; expired entries are dropped on the spot.
func (s *Service) Verify(token string) (domain.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return domain.Identity{}, false
	}
	if sess.Expired(s.now()) {
		delete(s.sessions, token)
		return domain.Identity{}, false
	}
	return domain.Identity{UserID: sess.UserID, Role: sess.Role}, true
}

func (s *Service) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// RunSweeper drops expired sessions on a fixed interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.sweep(); n > 0 {
				log.Info().Str("module", "auth").Int("expired", n).Msg("sessions swept")
			}
		}
	}
}

func (s *Service) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for token, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, token)
			n++
		}
	}
	return n
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Package auth holds the client's credentials and decides whether the
// client is authenticated. Every failed check clears all auth state.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"distill-client/internal/apperr"
	"distill-client/internal/model"
	"distill-client/internal/storage"
	"distill-client/pkg/logger"
)

const defaultCheckTimeout = 5 * time.Second

var errSuperseded = errors.New("auth state changed during check")

// Remote is the subset of the backend the auth session talks to.
type Remote interface {
	Me(ctx context.Context) (*model.User, error)
	Login(ctx context.Context, email, password string) (*model.AuthResponse, error)
	Signup(ctx context.Context, email, username, password string) (*model.AuthResponse, error)
	Logout(ctx context.Context) error
}

type Option func(*Session)

// WithCheckTimeout bounds CheckAuth's identity fetch.
func WithCheckTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.checkTimeout = d
		}
	}
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

type Session struct {
	remote       Remote
	cache        *storage.Cache
	checkTimeout time.Duration
	now          func() time.Time

	// mu also serializes cache writes so persisted state follows memory.
	mu            sync.RWMutex
	token         string
	user          *model.User
	authenticated bool
	// gen changes on every establish or clear; a check only applies its
	// outcome if gen is unchanged since it started.
	gen uint64
}

func NewSession(remote Remote, cache *storage.Cache, opts ...Option) *Session {
	s := &Session{
		remote:       remote,
		cache:        cache,
		checkTimeout: defaultCheckTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore loads a persisted token and user. The session stays
// unauthenticated until CheckAuth confirms them; an expired or malformed
// persisted token is discarded.
func (s *Session) Restore() {
	token, err := s.cache.Token()
	if err != nil {
		logger.Warnf("Failed to read persisted token: %v", err)
	}
	user, err := s.cache.User()
	if err != nil {
		logger.Warnf("Failed to read persisted user: %v", err)
	}

	if token == "" || !s.IsValid(token) {
		s.clear()
		return
	}

	s.mu.Lock()
	s.token = token
	s.user = user
	s.gen++
	s.mu.Unlock()
}

// Token returns the current bearer token, "" when none.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// IsValid reports whether token is a structurally sound JWT whose exp lies
// in the future. The signature is not checked.
func (s *Session) IsValid(token string) bool {
	exp, ok := tokenExpiry(token)
	if !ok {
		return false
	}
	return exp.After(s.now())
}

func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// User returns the authenticated user.
func (s *Session) User() (model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.authenticated || s.user == nil {
		return model.User{}, false
	}
	return *s.user, true
}

// CheckAuth confirms the current token with the backend within the check
// timeout. On success the user is cached and the session is
// authenticated; on any failure all auth state is cleared.
func (s *Session) CheckAuth(ctx context.Context) error {
	const op = "check auth"

	s.mu.RLock()
	token, gen := s.token, s.gen
	s.mu.RUnlock()

	if token == "" || !s.IsValid(token) {
		s.clearIf(gen)
		return apperr.Auth(op, errors.New("no valid token"))
	}

	ctx, cancel := context.WithTimeout(ctx, s.checkTimeout)
	defer cancel()

	type result struct {
		user *model.User
		err  error
	}
	done := make(chan result, 1)
	go func() {
		user, err := s.remote.Me(ctx)
		done <- result{user: user, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			s.clearIf(gen)
			return apperr.Auth(op, r.err)
		}
		if r.user == nil || r.user.UserID == "" {
			s.clearIf(gen)
			return apperr.Auth(op, errors.New("profile has no user id"))
		}
		if !s.establishIf(gen, token, r.user) {
			return apperr.Auth(op, errSuperseded)
		}
		return nil
	case <-ctx.Done():
		s.clearIf(gen)
		return apperr.Auth(op, fmt.Errorf("timed out after %s: %w", s.checkTimeout, ctx.Err()))
	}
}

func (s *Session) Login(ctx context.Context, email, password string) (model.User, error) {
	if email == "" || password == "" {
		return model.User{}, apperr.Validation("login", "email and password are required")
	}
	resp, err := s.remote.Login(ctx, email, password)
	if err != nil {
		return model.User{}, err
	}
	return s.accept("login", resp)
}

func (s *Session) Signup(ctx context.Context, email, username, password string) (model.User, error) {
	if email == "" || username == "" || password == "" {
		return model.User{}, apperr.Validation("signup", "email, username and password are required")
	}
	resp, err := s.remote.Signup(ctx, email, username, password)
	if err != nil {
		return model.User{}, err
	}
	return s.accept("signup", resp)
}

func (s *Session) accept(op string, resp *model.AuthResponse) (model.User, error) {
	if !s.IsValid(resp.AccessToken) {
		s.clear()
		return model.User{}, apperr.Auth(op, errors.New("server issued an invalid or expired token"))
	}
	user := resp.User
	if user.UserID == "" {
		user.UserID = Subject(resp.AccessToken)
	}
	s.establish(resp.AccessToken, &user)
	return user, nil
}

// Logout tells the backend best-effort and clears local state regardless.
func (s *Session) Logout(ctx context.Context) {
	if s.Token() != "" {
		if err := s.remote.Logout(ctx); err != nil {
			logger.Warnf("Remote logout failed: %v", err)
		}
	}
	s.clear()
}

func (s *Session) establish(token string, user *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.establishLocked(token, user)
}

// establishIf applies a check's success only if no login, logout or other
// check changed the state since gen was read.
func (s *Session) establishIf(gen uint64, token string, user *model.User) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.token != token {
		return false
	}
	s.establishLocked(token, user)
	return true
}

func (s *Session) establishLocked(token string, user *model.User) {
	s.token = token
	s.user = user
	s.authenticated = true
	s.gen++

	if err := s.cache.SaveToken(token); err != nil {
		logger.Warnf("Failed to persist token: %v", err)
	}
	if err := s.cache.SaveUser(user); err != nil {
		logger.Warnf("Failed to persist user: %v", err)
	}
}

func (s *Session) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

// clearIf clears only state the failed check was judging; a newer login
// is left alone.
func (s *Session) clearIf(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.clearLocked()
}

func (s *Session) clearLocked() {
	s.token = ""
	s.user = nil
	s.authenticated = false
	s.gen++

	if err := s.cache.ClearAuth(); err != nil {
		logger.Warnf("Failed to clear persisted auth state: %v", err)
	}
}

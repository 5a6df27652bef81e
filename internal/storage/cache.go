package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"distill-client/internal/model"
)

// Keys of the persisted client state. Each is read and written on its own
// so a corrupt value never affects its neighbours.
const (
	KeySessions      = "sessions"
	KeyActiveSession = "active_session"
	KeyPreferences   = "preferences"
	KeyAuthToken     = "auth_token"
	KeyAuthUser      = "auth_user"
)

// Cache is the typed view of the persisted client state.
type Cache struct {
	backend Backend
}

func NewCache(backend Backend) *Cache {
	return &Cache{backend: backend}
}

func (c *Cache) Backend() Backend {
	return c.backend
}

func (c *Cache) load(key string, v any) error {
	data, err := c.backend.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidData, key, err)
	}
	return nil
}

func (c *Cache) store(key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidData, key, err)
	}
	return c.backend.Put(key, data)
}

// Sessions returns the mirrored session list. A missing key is an empty
// list, not an error.
func (c *Cache) Sessions() ([]model.Session, error) {
	var sessions []model.Session
	if err := c.load(KeySessions, &sessions); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return []model.Session{}, nil
		}
		return nil, err
	}
	for i := range sessions {
		if sessions[i].Messages == nil {
			sessions[i].Messages = []model.Message{}
		}
		sessions[i].MessageCount = model.CountUserMessages(sessions[i].Messages)
	}
	return sessions, nil
}

func (c *Cache) SaveSessions(sessions []model.Session) error {
	return c.store(KeySessions, sessions)
}

// ActiveSession returns the mirrored active id, "" when none.
func (c *Cache) ActiveSession() (string, error) {
	var id string
	if err := c.load(KeyActiveSession, &id); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return "", nil
		}
		return "", err
	}
	return id, nil
}

func (c *Cache) SaveActiveSession(id string) error {
	if id == "" {
		return c.backend.Delete(KeyActiveSession)
	}
	return c.store(KeyActiveSession, id)
}

func (c *Cache) Preferences() (model.Preferences, error) {
	prefs := model.DefaultPreferences()
	if err := c.load(KeyPreferences, &prefs); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return model.DefaultPreferences(), nil
		}
		return model.DefaultPreferences(), err
	}
	return prefs, nil
}

func (c *Cache) SavePreferences(prefs model.Preferences) error {
	return c.store(KeyPreferences, prefs)
}

// Token returns the persisted bearer token, "" when none.
func (c *Cache) Token() (string, error) {
	var token string
	if err := c.load(KeyAuthToken, &token); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return "", nil
		}
		return "", err
	}
	return token, nil
}

func (c *Cache) SaveToken(token string) error {
	if token == "" {
		return c.backend.Delete(KeyAuthToken)
	}
	return c.store(KeyAuthToken, token)
}

// User returns the cached user, nil when none.
func (c *Cache) User() (*model.User, error) {
	var user model.User
	if err := c.load(KeyAuthUser, &user); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (c *Cache) SaveUser(user *model.User) error {
	if user == nil {
		return c.backend.Delete(KeyAuthUser)
	}
	return c.store(KeyAuthUser, user)
}

// ClearAuth removes the token and the cached user.
func (c *Cache) ClearAuth() error {
	return errors.Join(
		c.backend.Delete(KeyAuthToken),
		c.backend.Delete(KeyAuthUser),
	)
}

// ClearSessions removes the session mirror and the active id.
func (c *Cache) ClearSessions() error {
	return errors.Join(
		c.backend.Delete(KeySessions),
		c.backend.Delete(KeyActiveSession),
	)
}

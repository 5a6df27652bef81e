package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"distill-client/internal/apperr"
	"distill-client/internal/model"
	"distill-client/internal/parser"
	"distill-client/internal/state"
	"distill-client/internal/storage"
	"distill-client/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

var errNotAuthenticated = errors.New("not authenticated")

// SessionRemote is the part of the backend that owns sessions.
type SessionRemote interface {
	CreateSession(ctx context.Context, userID, title string) (string, error)
	RenameSession(ctx context.Context, id, title string) error
	DeleteSession(ctx context.Context, id string) error
	ListSessions(ctx context.Context, userID string) ([]model.RemoteSession, error)
	ListMessages(ctx context.Context, sessionID string) ([]model.RemoteMessage, error)
}

// Identity reports the authenticated user.
type Identity interface {
	User() (model.User, bool)
}

// SessionSyncManager performs session round trips against the backend and
// reconciles their results into the store and the persistent cache. The
// store is authoritative; cache writes only mirror it.
type SessionSyncManager struct {
	remote   SessionRemote
	identity Identity
	store    *state.Store
	cache    *storage.Cache
	now      func() time.Time

	fetches singleflight.Group

	mu           sync.Mutex
	loaded       map[string]bool
	bootstrapped bool
}

func NewSessionSyncManager(remote SessionRemote, identity Identity, store *state.Store, cache *storage.Cache) *SessionSyncManager {
	return &SessionSyncManager{
		remote:   remote,
		identity: identity,
		store:    store,
		cache:    cache,
		now:      time.Now,
		loaded:   make(map[string]bool),
	}
}

// Bootstrap shows the cached list right away, then replaces it with the
// backend's. A failed remote list keeps the cached sessions, records the
// error on the store and is not returned.
func (m *SessionSyncManager) Bootstrap(ctx context.Context) error {
	m.mu.Lock()
	done := m.bootstrapped
	m.mu.Unlock()
	if done {
		return nil
	}

	m.restoreFromCache()

	user, ok := m.identity.User()
	if !ok {
		return apperr.Auth("bootstrap", errNotAuthenticated)
	}

	m.store.Dispatch(state.SetLoading{Loading: true})
	sessions, err := m.ListSessions(ctx, user.UserID)
	if err != nil {
		logger.Warnf("Session list unavailable, keeping cached sessions: %v", err)
		m.store.Dispatch(state.SetError{Message: apperr.Message(err)})
		return nil
	}

	current := m.store.Snapshot()
	kept := make(map[string][]model.Message, len(current.Sessions))
	for _, s := range current.Sessions {
		if len(s.Messages) > 0 {
			kept[s.ID] = s.Messages
		}
	}
	for i := range sessions {
		if msgs, ok := kept[sessions[i].ID]; ok {
			sessions[i].Messages = msgs
		}
	}

	m.store.Dispatch(
		state.SetSessions{Sessions: sessions},
		state.SetActive{ID: current.ActiveSessionID},
		state.SetError{},
	)
	m.mirror()

	m.mu.Lock()
	m.bootstrapped = true
	m.mu.Unlock()

	logger.Infof("Bootstrapped %d sessions for user %s", len(sessions), user.UserID)
	return nil
}

func (m *SessionSyncManager) restoreFromCache() {
	sessions, err := m.cache.Sessions()
	if err != nil {
		logger.Warnf("Ignoring cached sessions: %v", err)
		sessions = nil
	}
	active, err := m.cache.ActiveSession()
	if err != nil {
		logger.Warnf("Ignoring cached active session: %v", err)
		active = ""
	}
	if len(sessions) == 0 {
		return
	}
	m.store.Dispatch(
		state.SetSessions{Sessions: sessions},
		state.SetActive{ID: active},
	)
}

// CreateSession creates a session remotely and makes it active locally.
// Nothing changes locally when the user is unauthenticated or the remote
// call fails.
func (m *SessionSyncManager) CreateSession(ctx context.Context, title string) (model.Session, error) {
	const op = "create session"

	user, ok := m.identity.User()
	if !ok {
		return model.Session{}, apperr.Auth(op, errNotAuthenticated)
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = model.DefaultSessionTitle
	}

	id, err := m.remote.CreateSession(ctx, user.UserID, title)
	if err != nil {
		m.store.Dispatch(state.SetError{Message: apperr.Message(err)})
		return model.Session{}, err
	}

	now := m.now()
	session := model.Session{
		ID:           id,
		Title:        title,
		Messages:     []model.Message{},
		LastActivity: now,
		CreatedAt:    now,
	}
	m.store.Dispatch(state.AddSession{Session: session})

	m.mu.Lock()
	m.loaded[id] = true
	m.mu.Unlock()

	m.mirror()
	logger.Infof("Created session %s", id)
	return session, nil
}

func (m *SessionSyncManager) RenameSession(ctx context.Context, id, title string) error {
	const op = "rename session"

	title = strings.TrimSpace(title)
	if id == "" {
		return apperr.Validation(op, "session id is required")
	}
	if title == "" {
		return apperr.Validation(op, "title is required")
	}

	if err := m.remote.RenameSession(ctx, id, title); err != nil {
		m.store.Dispatch(state.SetError{Message: apperr.Message(err)})
		return err
	}

	m.store.Dispatch(state.UpdateSession{ID: id, Title: title, At: m.now()})
	m.mirror()
	return nil
}

func (m *SessionSyncManager) DeleteSession(ctx context.Context, id string) error {
	if id == "" {
		return apperr.Validation("delete session", "session id is required")
	}

	if err := m.remote.DeleteSession(ctx, id); err != nil {
		m.store.Dispatch(state.SetError{Message: apperr.Message(err)})
		return err
	}

	m.store.Dispatch(state.DeleteSession{ID: id})

	m.mu.Lock()
	delete(m.loaded, id)
	m.mu.Unlock()

	m.mirror()
	return nil
}

// ListSessions fetches the user's sessions with empty message logs.
func (m *SessionSyncManager) ListSessions(ctx context.Context, userID string) ([]model.Session, error) {
	if userID == "" {
		return nil, apperr.Validation("list sessions", "user id is required")
	}

	remote, err := m.remote.ListSessions(ctx, userID)
	if err != nil {
		return nil, err
	}

	sessions := make([]model.Session, 0, len(remote))
	for _, r := range remote {
		if r.SessionID == "" {
			continue
		}
		sessions = append(sessions, r.ToSession())
	}
	return sessions, nil
}

// FetchMessages returns a session's log as display messages. Raw assistant
// envelopes are summarized.
func (m *SessionSyncManager) FetchMessages(ctx context.Context, sessionID string) ([]model.Message, error) {
	if sessionID == "" {
		return nil, apperr.Validation("fetch messages", "session id is required")
	}

	remote, err := m.remote.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	msgs := make([]model.Message, 0, len(remote))
	for _, r := range remote {
		msg := model.Message{
			ID:        string(r.ID),
			Role:      r.Role,
			Content:   r.Content,
			Timestamp: model.ParseTimestamp(r.Timestamp),
		}
		if msg.ID == "" {
			msg.ID = uuid.New().String()
		}
		if msg.Role == model.RoleAssistant {
			msg.Content = parser.Describe(r.Content)
			msg.Type = model.TypeResponse
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// ActivateSession selects a session and, the first time an empty session
// is selected, loads its messages. Concurrent activations share one fetch.
func (m *SessionSyncManager) ActivateSession(ctx context.Context, id string) error {
	const op = "activate session"

	if id == "" {
		return apperr.Validation(op, "session id is required")
	}
	session, ok := m.store.Session(id)
	if !ok {
		return apperr.Validation(op, fmt.Sprintf("unknown session %q", id))
	}

	m.store.Dispatch(state.SetActive{ID: id})
	if err := m.cache.SaveActiveSession(id); err != nil {
		logger.Warnf("Failed to persist active session: %v", err)
	}

	m.mu.Lock()
	loaded := m.loaded[id]
	m.mu.Unlock()
	if loaded || len(session.Messages) > 0 {
		return nil
	}

	_, err, _ := m.fetches.Do(id, func() (any, error) {
		m.mu.Lock()
		loaded := m.loaded[id]
		m.mu.Unlock()
		if loaded {
			return nil, nil
		}

		msgs, err := m.FetchMessages(ctx, id)
		if err != nil {
			return nil, err
		}
		if current, ok := m.store.Session(id); ok && len(current.Messages) == 0 {
			m.store.Dispatch(state.ReplaceMessages{SessionID: id, Messages: msgs})
		}
		m.mu.Lock()
		m.loaded[id] = true
		m.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		m.store.Dispatch(state.SetError{Message: apperr.Message(err)})
		return err
	}

	m.mirror()
	return nil
}

// InvalidateMessages makes the next activation of id fetch again.
func (m *SessionSyncManager) InvalidateMessages(id string) {
	m.mu.Lock()
	delete(m.loaded, id)
	m.mu.Unlock()
}

// PushTitle sends a locally derived title to the backend. Failures are
// logged only.
func (m *SessionSyncManager) PushTitle(ctx context.Context, id, title string) {
	if id == "" || title == "" {
		return
	}
	if err := m.remote.RenameSession(ctx, id, title); err != nil {
		logger.Warnf("Failed to push title for session %s: %v", id, err)
	}
}

// Reset empties the store and the cached session keys, and re-arms
// Bootstrap.
func (m *SessionSyncManager) Reset() {
	m.store.Dispatch(state.Reset{})
	if err := m.cache.ClearSessions(); err != nil {
		logger.Warnf("Failed to clear cached sessions: %v", err)
	}

	m.mu.Lock()
	m.loaded = make(map[string]bool)
	m.bootstrapped = false
	m.mu.Unlock()
}

// mirror writes the store's sessions and active id to the cache.
func (m *SessionSyncManager) mirror() {
	snap := m.store.Snapshot()
	if err := m.cache.SaveSessions(snap.Sessions); err != nil {
		logger.Warnf("Failed to mirror sessions: %v", err)
	}
	if err := m.cache.SaveActiveSession(snap.ActiveSessionID); err != nil {
		logger.Warnf("Failed to mirror active session: %v", err)
	}
}

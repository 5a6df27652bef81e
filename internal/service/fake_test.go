package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"distill-client/internal/config"
	"distill-client/internal/handoff"
	"distill-client/internal/model"
	"distill-client/internal/state"
	"distill-client/internal/storage"
)

type fakeIdentity struct {
	user *model.User
}

func (f fakeIdentity) User() (model.User, bool) {
	if f.user == nil {
		return model.User{}, false
	}
	return *f.user, true
}

type fakeBackend struct {
	mu sync.Mutex

	nextID    int
	createErr error
	renameErr error
	deleteErr error
	listErr   error
	msgsErr   error
	queryErr  error

	sessions []model.RemoteSession
	messages map[string][]model.RemoteMessage
	reply    *model.QueryResponse
	onQuery  func()

	renames      []string
	listCalls    atomic.Int32
	msgCalls     atomic.Int32
	queries      []model.QueryRequest
	studySession chan model.StudySessionRequest
	msgDelay     time.Duration
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		messages:     make(map[string][]model.RemoteMessage),
		studySession: make(chan model.StudySessionRequest, 4),
	}
}

func (f *fakeBackend) CreateSession(ctx context.Context, userID, title string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	return fmt.Sprintf("s%d", f.nextID), nil
}

func (f *fakeBackend) RenameSession(ctx context.Context, id, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renames = append(f.renames, id+"="+title)
	return f.renameErr
}

func (f *fakeBackend) DeleteSession(ctx context.Context, id string) error {
	return f.deleteErr
}

func (f *fakeBackend) ListSessions(ctx context.Context, userID string) ([]model.RemoteSession, error) {
	f.listCalls.Add(1)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.sessions, nil
}

func (f *fakeBackend) ListMessages(ctx context.Context, sessionID string) ([]model.RemoteMessage, error) {
	f.msgCalls.Add(1)
	if f.msgDelay > 0 {
		time.Sleep(f.msgDelay)
	}
	if f.msgsErr != nil {
		return nil, f.msgsErr
	}
	return f.messages[sessionID], nil
}

func (f *fakeBackend) Query(ctx context.Context, req model.QueryRequest) (*model.QueryResponse, error) {
	f.mu.Lock()
	f.queries = append(f.queries, req)
	f.mu.Unlock()
	if f.onQuery != nil {
		f.onQuery()
	}
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.reply, nil
}

func (f *fakeBackend) CreateStudySession(ctx context.Context, req model.StudySessionRequest) error {
	f.studySession <- req
	return nil
}

func (f *fakeBackend) renameLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.renames...)
}

type harness struct {
	backend *fakeBackend
	store   *state.Store
	cache   *storage.Cache
	slot    *handoff.Slot
	sync    *SessionSyncManager
	orch    *Orchestrator
}

var testNow = time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

func newHarness(user *model.User) *harness {
	h := &harness{
		backend: newFakeBackend(),
		store:   state.NewStore(),
		cache:   storage.NewCache(storage.NewMemoryStorage()),
		slot:    handoff.NewSlot(),
	}
	identity := fakeIdentity{user: user}
	h.sync = NewSessionSyncManager(h.backend, identity, h.store, h.cache)
	h.sync.now = func() time.Time { return testNow }
	h.orch = NewOrchestrator(h.sync, h.backend, identity, h.store, h.slot, config.ConversationConfig{
		TitleMaxRunes:       50,
		RecordStudySessions: true,
	})
	h.orch.now = func() time.Time { return testNow }
	return h
}

func alice() *model.User {
	return &model.User{UserID: "u1", Username: "alice"}
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"distill-client/internal/apperr"
	"distill-client/internal/config"
	"distill-client/internal/handoff"
	"distill-client/internal/model"
	"distill-client/internal/parser"
	"distill-client/internal/state"
	"distill-client/pkg/logger"

	"github.com/google/uuid"
)

const studySessionTimeout = 10 * time.Second

// QueryRemote is the part of the backend that answers user turns.
type QueryRemote interface {
	Query(ctx context.Context, req model.QueryRequest) (*model.QueryResponse, error)
	CreateStudySession(ctx context.Context, req model.StudySessionRequest) error
}

// Liveness tells a running turn whether its caller still wants the result.
// A nil *Liveness is always alive.
type Liveness struct {
	dead atomic.Bool
}

func NewLiveness() *Liveness {
	return &Liveness{}
}

// Kill marks the caller gone. Turns in flight discard their results.
func (l *Liveness) Kill() {
	if l != nil {
		l.dead.Store(true)
	}
}

func (l *Liveness) Alive() bool {
	return l == nil || !l.dead.Load()
}

type TurnState string

const (
	TurnClassified TurnState = "classified"
	TurnAppended   TurnState = "appended"
	TurnFailed     TurnState = "failed"
	TurnDiscarded  TurnState = "discarded"
)

// TurnResult describes how a turn ended. Route is set for classified turns;
// Message is the assistant message appended, if any.
type TurnResult struct {
	State     TurnState
	SessionID string
	Route     model.HandoffKind
	Message   *model.Message
}

// Orchestrator runs user turns: it records the user message, queries the
// backend and routes the reply to the session log or the handoff slot.
// Turns run one at a time.
type Orchestrator struct {
	sessions *SessionSyncManager
	remote   QueryRemote
	identity Identity
	store    *state.Store
	slot     *handoff.Slot
	parser   *parser.Parser
	cfg      config.ConversationConfig
	now      func() time.Time

	mu sync.Mutex
}

func NewOrchestrator(sessions *SessionSyncManager, remote QueryRemote, identity Identity, store *state.Store, slot *handoff.Slot, cfg config.ConversationConfig) *Orchestrator {
	return &Orchestrator{
		sessions: sessions,
		remote:   remote,
		identity: identity,
		store:    store,
		slot:     slot,
		parser:   parser.New(),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Submit runs one turn for text in the active session, creating a session
// first when none is active. Errors from the backend leave an error message
// in the log and are returned with a TurnFailed result.
func (o *Orchestrator) Submit(ctx context.Context, text string, live *Liveness) (TurnResult, error) {
	const op = "submit"

	text = strings.TrimSpace(text)
	if text == "" {
		return TurnResult{}, apperr.Validation(op, "message is empty")
	}
	user, ok := o.identity.User()
	if !ok {
		return TurnResult{}, apperr.Auth(op, errNotAuthenticated)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	session, ok := o.store.Active()
	if !ok {
		created, err := o.sessions.CreateSession(ctx, model.DefaultSessionTitle)
		if err != nil {
			return TurnResult{State: TurnFailed}, err
		}
		session = created
	}
	sessionID := session.ID

	st := o.store.Dispatch(state.AppendMessages{
		SessionID: sessionID,
		Messages: []model.Message{{
			ID:        uuid.New().String(),
			Role:      model.RoleUser,
			Content:   text,
			Timestamp: o.now(),
		}},
		At:            o.now(),
		TitleMaxRunes: o.cfg.TitleMaxRunes,
	})
	o.sessions.mirror()
	if title := titleOf(st, sessionID); title != session.Title {
		o.sessions.PushTitle(ctx, sessionID, title)
	}

	resp, err := o.remote.Query(ctx, model.QueryRequest{
		UserID:    user.UserID,
		SessionID: sessionID,
		Text:      text,
	})
	if err == nil && (resp == nil || strings.TrimSpace(resp.Type) == "" || len(resp.Body) == 0) {
		err = apperr.Parse("query", errors.New("invalid response format from server"))
	}
	if err != nil {
		if !live.Alive() {
			return TurnResult{State: TurnDiscarded, SessionID: sessionID}, err
		}
		msg := o.appendAssistant(sessionID, model.Message{
			Content: fmt.Sprintf("Sorry, I encountered an error: %s. Please try again.", apperr.Message(err)),
			Type:    model.TypeError,
		})
		logger.Errorf("Turn in session %s failed: %v", sessionID, err)
		return TurnResult{State: TurnFailed, SessionID: sessionID, Message: &msg}, err
	}

	if !live.Alive() {
		logger.Debugf("Discarding reply for session %s: caller gone", sessionID)
		return TurnResult{State: TurnDiscarded, SessionID: sessionID}, nil
	}

	res := o.parser.ParseEnvelope(resp.Type, resp.Name, resp.Body)
	if res.Structured() {
		h := model.Handoff{
			Kind:       res.HandoffKind(),
			SessionID:  sessionID,
			Quiz:       res.Quiz,
			Flashcards: res.Flashcards,
			ProducedAt: o.now(),
		}
		o.slot.Put(h)
		if o.cfg.RecordStudySessions {
			o.recordStudySession(user.UserID, h, res.Body)
		}
		logger.Infof("Routed %s from session %s (strategy %s)", h.Kind, sessionID, res.Strategy)
		return TurnResult{State: TurnClassified, SessionID: sessionID, Route: h.Kind}, nil
	}

	msg := o.appendAssistant(sessionID, model.Message{
		Content: res.Text,
		Type:    res.MessageType(),
	})
	return TurnResult{State: TurnAppended, SessionID: sessionID, Message: &msg}, nil
}

func (o *Orchestrator) appendAssistant(sessionID string, msg model.Message) model.Message {
	msg.ID = uuid.New().String()
	msg.Role = model.RoleAssistant
	msg.Timestamp = o.now()
	o.store.Dispatch(state.AppendMessages{
		SessionID:     sessionID,
		Messages:      []model.Message{msg},
		At:            msg.Timestamp,
		TitleMaxRunes: o.cfg.TitleMaxRunes,
	})
	o.sessions.mirror()
	return msg
}

// recordStudySession saves a generated set on the backend without holding
// up the turn. The backend stores the body as sent and knows flashcard sets
// as "flashnotes".
func (o *Orchestrator) recordStudySession(userID string, h model.Handoff, body json.RawMessage) {
	var typ, name string
	switch h.Kind {
	case model.HandoffQuiz:
		typ, name = model.TypeQuiz, h.Quiz.Name
	case model.HandoffFlashcards:
		typ, name = model.TypeFlashnotes, h.Flashcards.Name
	default:
		return
	}
	if !json.Valid(body) {
		logger.Warnf("Not recording %s study session: body is not JSON", typ)
		return
	}

	req := model.StudySessionRequest{
		SessionID: h.SessionID,
		UserID:    userID,
		Type:      typ,
		Name:      name,
		Content:   body,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), studySessionTimeout)
		defer cancel()
		if err := o.remote.CreateStudySession(ctx, req); err != nil {
			logger.Warnf("Failed to record %s study session: %v", req.Type, err)
		}
	}()
}

func titleOf(st state.State, id string) string {
	for _, s := range st.Sessions {
		if s.ID == id {
			return s.Title
		}
	}
	return ""
}

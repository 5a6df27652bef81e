// Package state holds the in-memory session list and the reducer that is
// the only way to change it.
package state

import (
	"strings"
	"time"

	"distill-client/internal/model"
)

const defaultTitleMaxRunes = 50

// State is an immutable snapshot. Reduce never mutates a State it is given;
// slices it touches are copied and the rest is shared read-only.
type State struct {
	Sessions        []model.Session `json:"sessions"`
	ActiveSessionID string          `json:"active_session_id"`
	Loading         bool            `json:"loading"`
	Error           string          `json:"error,omitempty"`
}

// Action is one of the transitions below.
type Action interface {
	isAction()
}

// SetSessions replaces the whole list.
type SetSessions struct {
	Sessions []model.Session
}

// AddSession prepends a session and makes it active.
type AddSession struct {
	Session model.Session
}

// UpdateSession retitles a session. An empty Title leaves it unchanged.
type UpdateSession struct {
	ID    string
	Title string
	At    time.Time
}

type DeleteSession struct {
	ID string
}

// SetActive selects a session; an empty ID clears the selection.
type SetActive struct {
	ID string
}

// AppendMessages adds messages to a session log. While the session still
// has the default title it is derived from the first user message,
// truncated to TitleMaxRunes (50 when zero).
type AppendMessages struct {
	SessionID     string
	Messages      []model.Message
	At            time.Time
	TitleMaxRunes int
}

// ReplaceMessages swaps a session's log for a freshly fetched one.
type ReplaceMessages struct {
	SessionID string
	Messages  []model.Message
}

type SetLoading struct {
	Loading bool
}

// SetError records a user-visible failure and ends any loading phase. An
// empty Message clears the error.
type SetError struct {
	Message string
}

// Reset returns to the empty state.
type Reset struct{}

func (SetSessions) isAction()     {}
func (AddSession) isAction()      {}
func (UpdateSession) isAction()   {}
func (DeleteSession) isAction()   {}
func (SetActive) isAction()       {}
func (AppendMessages) isAction()  {}
func (ReplaceMessages) isAction() {}
func (SetLoading) isAction()      {}
func (SetError) isAction()        {}
func (Reset) isAction()           {}

// Reduce applies a to s and returns the next snapshot. It performs no I/O
// and never fails: actions naming unknown sessions return s unchanged.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case SetSessions:
		next := s
		next.Sessions = normalize(a.Sessions)
		if indexOf(next.Sessions, next.ActiveSessionID) < 0 {
			next.ActiveSessionID = ""
		}
		return next

	case AddSession:
		session := normalizeOne(a.Session)
		sessions := make([]model.Session, 0, len(s.Sessions)+1)
		sessions = append(sessions, session)
		for _, existing := range s.Sessions {
			if existing.ID != session.ID {
				sessions = append(sessions, existing)
			}
		}
		next := s
		next.Sessions = sessions
		next.ActiveSessionID = session.ID
		return next

	case UpdateSession:
		i := indexOf(s.Sessions, a.ID)
		if i < 0 {
			return s
		}
		next := s
		next.Sessions = copySessions(s.Sessions)
		updated := next.Sessions[i]
		if a.Title != "" {
			updated.Title = a.Title
		}
		updated.MessageCount = model.CountUserMessages(updated.Messages)
		updated.LastActivity = a.At
		next.Sessions[i] = updated
		return next

	case DeleteSession:
		i := indexOf(s.Sessions, a.ID)
		if i < 0 {
			return s
		}
		sessions := make([]model.Session, 0, len(s.Sessions)-1)
		sessions = append(sessions, s.Sessions[:i]...)
		sessions = append(sessions, s.Sessions[i+1:]...)
		next := s
		next.Sessions = sessions
		if s.ActiveSessionID == a.ID {
			next.ActiveSessionID = ""
			if len(sessions) > 0 {
				next.ActiveSessionID = sessions[0].ID
			}
		}
		return next

	case SetActive:
		if a.ID != "" && indexOf(s.Sessions, a.ID) < 0 {
			return s
		}
		next := s
		next.ActiveSessionID = a.ID
		return next

	case AppendMessages:
		i := indexOf(s.Sessions, a.SessionID)
		if i < 0 || len(a.Messages) == 0 {
			return s
		}
		next := s
		next.Sessions = copySessions(s.Sessions)
		updated := next.Sessions[i]

		msgs := make([]model.Message, 0, len(updated.Messages)+len(a.Messages))
		msgs = append(msgs, updated.Messages...)
		msgs = append(msgs, a.Messages...)
		updated.Messages = msgs

		if updated.Title == model.DefaultSessionTitle || updated.Title == "" {
			if first, ok := firstUserContent(msgs); ok {
				limit := a.TitleMaxRunes
				if limit <= 0 {
					limit = defaultTitleMaxRunes
				}
				updated.Title = model.TruncateTitle(first, limit)
			}
		}
		updated.MessageCount = model.CountUserMessages(msgs)
		updated.LastActivity = a.At
		next.Sessions[i] = updated
		return next

	case ReplaceMessages:
		i := indexOf(s.Sessions, a.SessionID)
		if i < 0 {
			return s
		}
		next := s
		next.Sessions = copySessions(s.Sessions)
		updated := next.Sessions[i]
		updated.Messages = make([]model.Message, len(a.Messages))
		copy(updated.Messages, a.Messages)
		updated.MessageCount = model.CountUserMessages(updated.Messages)
		if n := len(updated.Messages); n > 0 && updated.Messages[n-1].Timestamp.After(updated.LastActivity) {
			updated.LastActivity = updated.Messages[n-1].Timestamp
		}
		next.Sessions[i] = updated
		return next

	case SetLoading:
		next := s
		next.Loading = a.Loading
		return next

	case SetError:
		next := s
		next.Error = a.Message
		next.Loading = false
		return next

	case Reset:
		return State{Sessions: []model.Session{}}
	}

	return s
}

func indexOf(sessions []model.Session, id string) int {
	if id == "" {
		return -1
	}
	for i := range sessions {
		if sessions[i].ID == id {
			return i
		}
	}
	return -1
}

func copySessions(sessions []model.Session) []model.Session {
	out := make([]model.Session, len(sessions))
	copy(out, sessions)
	return out
}

func normalize(sessions []model.Session) []model.Session {
	out := make([]model.Session, len(sessions))
	for i, session := range sessions {
		out[i] = normalizeOne(session)
	}
	return out
}

func normalizeOne(session model.Session) model.Session {
	session = session.Clone()
	if session.Title == "" {
		session.Title = model.DefaultSessionTitle
	}
	session.MessageCount = model.CountUserMessages(session.Messages)
	return session
}

func firstUserContent(msgs []model.Message) (string, bool) {
	for _, m := range msgs {
		if m.Role == model.RoleUser && strings.TrimSpace(m.Content) != "" {
			return m.Content, true
		}
	}
	return "", false
}

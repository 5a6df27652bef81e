package model

import "encoding/json"

type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	User        User   `json:"user"`
}

type CreateSessionResponse struct {
	SessionID FlexString `json:"session_id"`
}

type RemoteSession struct {
	SessionID    FlexString `json:"session_id"`
	Title        string     `json:"title"`
	Topic        string     `json:"topic"`
	CreatedAt    string     `json:"created_at"`
	MessageCount int        `json:"message_count"`
}

// ToSession maps a listed session to a local shell with an empty log.
func (r RemoteSession) ToSession() Session {
	title := r.Title
	if title == "" {
		title = r.Topic
	}
	if title == "" {
		title = DefaultSessionTitle
	}
	created := ParseTimestamp(r.CreatedAt)
	return Session{
		ID:           string(r.SessionID),
		Title:        title,
		Messages:     []Message{},
		MessageCount: 0,
		LastActivity: created,
		CreatedAt:    created,
	}
}

type RemoteMessage struct {
	ID        FlexString `json:"id"`
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Timestamp string     `json:"timestamp"`
}

// QueryResponse is the envelope returned by the query endpoint. Body is kept
// raw because it may be a string, an object or an array.
type QueryResponse struct {
	Type string          `json:"type"`
	Name string          `json:"name,omitempty"`
	Body json.RawMessage `json:"body"`
}

// TurnResponse is what the local bridge returns for a chat submission.
type TurnResponse struct {
	State     string      `json:"state"`
	SessionID string      `json:"session_id"`
	Route     HandoffKind `json:"route,omitempty"`
	Message   *Message    `json:"message,omitempty"`
	Error     string      `json:"error,omitempty"`
}

type SessionResponse struct {
	SessionID    string `json:"session_id"`
	Title        string `json:"title"`
	MessageCount int    `json:"message_count"`
	Active       bool   `json:"active"`
}

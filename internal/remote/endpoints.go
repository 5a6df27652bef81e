package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"distill-client/internal/apperr"
	"distill-client/internal/model"
)

func (c *Client) Login(ctx context.Context, email, password string) (*model.AuthResponse, error) {
	var out model.AuthResponse
	err := c.do(ctx, "login", http.MethodPost, "/auth/login", nil,
		model.LoginRequest{Email: email, Password: password}, &out)
	if err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, apperr.Auth("login", errors.New("no access token in response"))
	}
	return &out, nil
}

func (c *Client) Signup(ctx context.Context, email, username, password string) (*model.AuthResponse, error) {
	var out model.AuthResponse
	err := c.do(ctx, "signup", http.MethodPost, "/auth/signup", nil,
		model.SignupRequest{Email: email, Username: username, Password: password}, &out)
	if err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, apperr.Auth("signup", errors.New("no access token in response"))
	}
	return &out, nil
}

// Me fetches the authenticated user. Retried.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var out model.User
	err := c.withRetry(ctx, "fetch profile", func() error {
		return c.do(ctx, "fetch profile", http.MethodGet, "/auth/me", nil, nil, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, "logout", http.MethodPost, "/auth/logout", nil, nil, nil)
}

// CreateSession returns the remote-assigned id.
func (c *Client) CreateSession(ctx context.Context, userID, title string) (string, error) {
	var out model.CreateSessionResponse
	err := c.do(ctx, "create session", http.MethodPost, "/sessions", nil,
		model.CreateSessionRequest{UserID: userID, Title: title}, &out)
	if err != nil {
		return "", err
	}
	if out.SessionID == "" {
		return "", apperr.Parse("create session", errors.New("no session_id in response"))
	}
	return string(out.SessionID), nil
}

// sessionPath builds /sessions/{id}[/suffix] with id escaped as a single
// path segment.
func sessionPath(op, id, suffix string) (string, error) {
	if id == "" || id == "." || id == ".." {
		return "", apperr.Validation(op, fmt.Sprintf("invalid session id %q", id))
	}
	return "/sessions/" + url.PathEscape(id) + suffix, nil
}

func (c *Client) RenameSession(ctx context.Context, id, title string) error {
	relPath, err := sessionPath("rename session", id, "")
	if err != nil {
		return err
	}
	return c.do(ctx, "rename session", http.MethodPatch, relPath, nil,
		model.RenameSessionRequest{Title: title}, nil)
}

func (c *Client) DeleteSession(ctx context.Context, id string) error {
	relPath, err := sessionPath("delete session", id, "")
	if err != nil {
		return err
	}
	return c.do(ctx, "delete session", http.MethodDelete, relPath, nil, nil, nil)
}

// ListSessions returns the user's sessions. Retried.
func (c *Client) ListSessions(ctx context.Context, userID string) ([]model.RemoteSession, error) {
	query := url.Values{"user_id": {userID}}
	var out []model.RemoteSession
	err := c.withRetry(ctx, "list sessions", func() error {
		out = nil
		return c.do(ctx, "list sessions", http.MethodGet, "/sessions", query, nil, &out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListMessages returns a session's stored messages. Retried.
func (c *Client) ListMessages(ctx context.Context, sessionID string) ([]model.RemoteMessage, error) {
	var out []model.RemoteMessage
	relPath, err := sessionPath("list messages", sessionID, "/messages")
	if err != nil {
		return nil, err
	}
	err = c.withRetry(ctx, "list messages", func() error {
		out = nil
		return c.do(ctx, "list messages", http.MethodGet, relPath, nil, nil, &out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Query sends one user turn. The reply must carry both type and body.
func (c *Client) Query(ctx context.Context, req model.QueryRequest) (*model.QueryResponse, error) {
	var out model.QueryResponse
	if err := c.do(ctx, "query", http.MethodPost, "/query", nil, req, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Type) == "" || !hasBody(out.Body) {
		return nil, apperr.Parse("query", errors.New("invalid response format from server"))
	}
	return &out, nil
}

// CreateStudySession records a generated quiz or flashcard set.
func (c *Client) CreateStudySession(ctx context.Context, req model.StudySessionRequest) error {
	return c.do(ctx, "create study session", http.MethodPost, "/study-sessions/create", nil, req, nil)
}

func hasBody(raw json.RawMessage) bool {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", `""`:
		return false
	}
	return true
}

package model

import "encoding/json"

// Remote request bodies.

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignupRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type CreateSessionRequest struct {
	UserID string `json:"user_id"`
	Title  string `json:"title"`
}

type RenameSessionRequest struct {
	Title string `json:"title"`
}

type QueryRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

type StudySessionRequest struct {
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id"`
	Type      string          `json:"type"`
	Name      string          `json:"name"`
	Content   json.RawMessage `json:"content"`
}

// Local bridge request bodies.

type ChatRequest struct {
	Message string `json:"message" binding:"required"`
}

type TitleRequest struct {
	Title string `json:"title"`
}

type CredentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Username string `json:"username"`
	Password string `json:"password" binding:"required"`
}

package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"distill-client/internal/apperr"
	"distill-client/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Options{
		BaseURL:        srv.URL + "/api",
		Timeout:        2 * time.Second,
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := New(Options{BaseURL: "not a url"})
	assert.Error(t, err)
}

func TestBearerHeaderAndPathJoin(t *testing.T) {
	var gotAuth, gotPath, gotQuery string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("user_id")
		json.NewEncoder(w).Encode([]map[string]any{
			{"session_id": "s1", "topic": "Cells", "created_at": "2025-01-02T03:04:05.123456"},
			{"session_id": 7, "title": "Numbers"},
		})
	}))

	_, err := c.ListSessions(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, gotAuth)

	c.SetTokenSource(staticToken("tok"))
	sessions, err := c.ListSessions(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "/api/sessions", gotPath)
	assert.Equal(t, "u1", gotQuery)
	require.Len(t, sessions, 2)

	first := sessions[0].ToSession()
	assert.Equal(t, "s1", first.ID)
	assert.Equal(t, "Cells", first.Title)
	assert.Equal(t, 2025, first.CreatedAt.Year())
	assert.Equal(t, "7", sessions[1].ToSession().ID)
}

func TestReadsRetryOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := c.ListMessages(context.Background(), "s1")

	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNetwork))
	assert.Equal(t, int32(3), calls.Load())
}

func TestReadsRecoverAfterTransientFailure(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(model.User{UserID: "u1", Username: "ada"})
	}))

	user, err := c.Me(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "u1", user.UserID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"Session not found"}`))
	}))

	_, err := c.ListMessages(context.Background(), "missing")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Session not found")
	assert.Equal(t, int32(1), calls.Load())
}

func TestMutationsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.CreateSession(context.Background(), "u1", "New Chat")
	require.Error(t, err)
	require.Error(t, c.RenameSession(context.Background(), "s1", "x"))
	require.Error(t, c.DeleteSession(context.Background(), "s1"))

	assert.Equal(t, int32(3), calls.Load())
}

func TestUnauthorizedIsAuthError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Could not validate credentials"}`))
	}))

	_, err := c.Me(context.Background())

	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindAuth))
	assert.Contains(t, err.Error(), "Could not validate credentials")
}

func TestCreateAndRenameRequests(t *testing.T) {
	var method, path string
	var body map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		body = nil
		json.NewDecoder(r.Body).Decode(&body)
		if r.Method == http.MethodPost {
			w.Write([]byte(`{"session_id":"new-id","success":true}`))
		}
	}))

	id, err := c.CreateSession(context.Background(), "u1", "New Chat")
	require.NoError(t, err)
	assert.Equal(t, "new-id", id)
	assert.Equal(t, "u1", body["user_id"])

	require.NoError(t, c.RenameSession(context.Background(), "s9", "Biology"))
	assert.Equal(t, http.MethodPatch, method)
	assert.Equal(t, "/api/sessions/s9", path)
	assert.Equal(t, "Biology", body["title"])
}

func TestQueryValidatesShape(t *testing.T) {
	reply := `{"type":"response"}`
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(reply))
	}))

	_, err := c.Query(context.Background(), model.QueryRequest{UserID: "u1", SessionID: "s1", Text: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid response format")

	reply = `{"type":"quiz","name":"Cells","body":[{"question":"Q"}]}`
	out, err := c.Query(context.Background(), model.QueryRequest{UserID: "u1", SessionID: "s1", Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "quiz", out.Type)
	assert.Equal(t, "Cells", out.Name)
	assert.JSONEq(t, `[{"question":"Q"}]`, string(out.Body))
}

func TestResponseSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"user_id":"u1","username":"` + string(make([]byte, 64)) + `"}`))
	}))
	t.Cleanup(srv.Close)

	c, err := New(Options{BaseURL: srv.URL, MaxRetries: 1, MaxResponseBytes: 32})
	require.NoError(t, err)

	_, err = c.Me(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	c, err := New(Options{BaseURL: srv.URL, MaxRetries: 3, RetryBaseDelay: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = c.ListSessions(ctx, "u1")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSessionIDIsOneEscapedSegment(t *testing.T) {
	var calls atomic.Int32
	var rawPath, method string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		method, rawPath = r.Method, r.URL.EscapedPath()
		w.Write([]byte(`[]`))
	}))

	require.NoError(t, c.DeleteSession(context.Background(), "a/../../auth/logout"))
	assert.Equal(t, http.MethodDelete, method)
	assert.Equal(t, "/api/sessions/a%2F..%2F..%2Fauth%2Flogout", rawPath)

	_, err := c.ListMessages(context.Background(), "x?y")
	require.NoError(t, err)
	assert.Equal(t, "/api/sessions/x%3Fy/messages", rawPath)

	for _, id := range []string{"", ".", ".."} {
		err := c.RenameSession(context.Background(), id, "t")
		assert.True(t, apperr.IsKind(err, apperr.KindValidation), id)
	}
	assert.EqualValues(t, 2, calls.Load())
}

// Package handler is the local HTTP bridge the rendering layer talks to.
package handler

import (
	"context"
	"net/http"
	"time"

	"distill-client/internal/apperr"
	"distill-client/internal/auth"
	"distill-client/internal/handoff"
	"distill-client/internal/model"
	"distill-client/internal/service"
	"distill-client/internal/state"
	"distill-client/internal/storage"
	"distill-client/internal/utils"
	"distill-client/pkg/logger"

	"github.com/gin-gonic/gin"
)

const heartbeatInterval = 30 * time.Second

type BridgeHandler struct {
	auth     *auth.Session
	sessions *service.SessionSyncManager
	orch     *service.Orchestrator
	store    *state.Store
	slot     *handoff.Slot
	cache    *storage.Cache
	events   *hub
}

func NewBridgeHandler(
	authSession *auth.Session,
	sessions *service.SessionSyncManager,
	orch *service.Orchestrator,
	store *state.Store,
	slot *handoff.Slot,
	cache *storage.Cache,
) *BridgeHandler {
	h := &BridgeHandler{
		auth:     authSession,
		sessions: sessions,
		orch:     orch,
		store:    store,
		slot:     slot,
		cache:    cache,
		events:   newHub(),
	}
	store.Subscribe(h.events.publishState)
	slot.OnPut(h.events.publishHandoff)
	return h
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := http.StatusBadGateway
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindAuth:
		status = http.StatusUnauthorized
	}
	c.JSON(status, gin.H{"error": apperr.Message(err)})
}

// RequireAuth rejects requests until the auth session is confirmed.
func (h *BridgeHandler) RequireAuth(c *gin.Context) {
	if !h.auth.IsAuthenticated() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	c.Next()
}

func (h *BridgeHandler) Login(c *gin.Context) {
	var req model.CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	h.afterLogin(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *BridgeHandler) Signup(c *gin.Context) {
	var req model.CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.auth.Signup(c.Request.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	h.afterLogin(c.Request.Context())
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

func (h *BridgeHandler) afterLogin(ctx context.Context) {
	h.sessions.Reset()
	if err := h.sessions.Bootstrap(ctx); err != nil {
		logger.Warnf("Bootstrap after login failed: %v", err)
	}
}

func (h *BridgeHandler) Logout(c *gin.Context) {
	h.auth.Logout(c.Request.Context())
	h.sessions.Reset()
	for _, kind := range h.slot.Pending() {
		h.slot.Dismiss(kind)
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (h *BridgeHandler) GetState(c *gin.Context) {
	resp := gin.H{
		"authenticated": h.auth.IsAuthenticated(),
		"state":         h.store.Snapshot(),
		"pending":       h.slot.Pending(),
	}
	if user, ok := h.auth.User(); ok {
		resp["user"] = user
	}
	c.JSON(http.StatusOK, resp)
}

// Events streams store snapshots and handoff notices until the client
// disconnects.
func (h *BridgeHandler) Events(c *gin.Context) {
	ch, cancel := h.events.subscribe()
	defer cancel()

	sse := utils.NewSSEWriter(c.Writer)
	if err := sse.WriteJSON("state", h.store.Snapshot()); err != nil {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case ev := <-ch:
			if err := sse.WriteJSON(ev.Name, ev.Data); err != nil {
				logger.Warnf("Failed to write %s event: %v", ev.Name, err)
				return
			}
		case <-heartbeat.C:
			if err := sse.WriteJSON("heartbeat", gin.H{"timestamp": time.Now().Unix()}); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *BridgeHandler) CreateSession(c *gin.Context) {
	var req model.TitleRequest
	// An empty body is allowed and yields the default title.
	if err := c.ShouldBindJSON(&req); err != nil {
		req.Title = ""
	}

	session, err := h.sessions.CreateSession(c.Request.Context(), req.Title)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSessionResponse(session, true))
}

func (h *BridgeHandler) RenameSession(c *gin.Context) {
	var req model.TitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := c.Param("id")
	if err := h.sessions.RenameSession(c.Request.Context(), id, req.Title); err != nil {
		writeError(c, err)
		return
	}
	session, _ := h.store.Session(id)
	c.JSON(http.StatusOK, toSessionResponse(session, h.store.Snapshot().ActiveSessionID == id))
}

func (h *BridgeHandler) DeleteSession(c *gin.Context) {
	if err := h.sessions.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":           "Session deleted successfully",
		"active_session_id": h.store.Snapshot().ActiveSessionID,
	})
}

func (h *BridgeHandler) ActivateSession(c *gin.Context) {
	id := c.Param("id")
	if err := h.sessions.ActivateSession(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	session, _ := h.store.Session(id)
	c.JSON(http.StatusOK, gin.H{
		"session_id": id,
		"messages":   session.Messages,
	})
}

func (h *BridgeHandler) GetMessages(c *gin.Context) {
	id := c.Param("id")
	session, ok := h.store.Session(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": id,
		"messages":   session.Messages,
	})
}

// Chat runs one turn. A client that disconnects mid-turn has its result
// discarded.
func (h *BridgeHandler) Chat(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	live := service.NewLiveness()
	reqCtx := c.Request.Context()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-reqCtx.Done():
			live.Kill()
		case <-done:
		}
	}()

	// The turn keeps its own context so a disconnect only discards it.
	res, err := h.orch.Submit(context.WithoutCancel(reqCtx), req.Message, live)
	resp := model.TurnResponse{
		State:     string(res.State),
		SessionID: res.SessionID,
		Route:     res.Route,
		Message:   res.Message,
	}
	if err != nil {
		if res.State == "" {
			writeError(c, err)
			return
		}
		resp.Error = apperr.Message(err)
		c.JSON(http.StatusBadGateway, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BridgeHandler) TakeHandoff(c *gin.Context) {
	kind := model.HandoffKind(c.Param("kind"))
	if !kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown handoff kind"})
		return
	}
	got, ok := h.slot.Take(kind)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "nothing pending"})
		return
	}
	c.JSON(http.StatusOK, got)
}

func (h *BridgeHandler) DismissHandoff(c *gin.Context) {
	kind := model.HandoffKind(c.Param("kind"))
	if !kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown handoff kind"})
		return
	}
	h.slot.Dismiss(kind)
	c.Status(http.StatusNoContent)
}

func (h *BridgeHandler) GetPreferences(c *gin.Context) {
	prefs, err := h.cache.Preferences()
	if err != nil {
		logger.Warnf("Ignoring stored preferences: %v", err)
		prefs = model.DefaultPreferences()
	}
	c.JSON(http.StatusOK, prefs)
}

func (h *BridgeHandler) UpdatePreferences(c *gin.Context) {
	prefs := model.DefaultPreferences()
	if err := c.ShouldBindJSON(&prefs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.cache.SavePreferences(prefs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, prefs)
}

func toSessionResponse(s model.Session, active bool) model.SessionResponse {
	return model.SessionResponse{
		SessionID:    s.ID,
		Title:        s.Title,
		MessageCount: s.MessageCount,
		Active:       active,
	}
}

package main

import (
	"context"
	"fmt"

	"distill-client/internal/auth"
	"distill-client/internal/config"
	"distill-client/internal/handoff"
	"distill-client/internal/remote"
	"distill-client/internal/service"
	"distill-client/internal/state"
	"distill-client/internal/storage"
	"distill-client/pkg/logger"
)

// app wires the client's components together.
type app struct {
	cfg      *config.Config
	backend  storage.Backend
	cache    *storage.Cache
	client   *remote.Client
	auth     *auth.Session
	store    *state.Store
	slot     *handoff.Slot
	sessions *service.SessionSyncManager
	orch     *service.Orchestrator
}

func newApp(cfg *config.Config) (*app, error) {
	backend := storage.Open(cfg.Storage)
	cache := storage.NewCache(backend)

	client, err := remote.NewFromConfig(cfg.Remote)
	if err != nil {
		backend.Close()
		return nil, err
	}

	authSession := auth.NewSession(client, cache, auth.WithCheckTimeout(cfg.Auth.CheckTimeout))
	client.SetTokenSource(authSession)

	store := state.NewStore()
	slot := handoff.NewSlot()
	sessions := service.NewSessionSyncManager(client, authSession, store, cache)
	orch := service.NewOrchestrator(sessions, client, authSession, store, slot, cfg.Conversation)

	return &app{
		cfg:      cfg,
		backend:  backend,
		cache:    cache,
		client:   client,
		auth:     authSession,
		store:    store,
		slot:     slot,
		sessions: sessions,
		orch:     orch,
	}, nil
}

// start restores persisted credentials, confirms them and loads sessions.
// requireAuth turns an unconfirmed session into an error.
func (a *app) start(ctx context.Context, requireAuth bool) error {
	a.auth.Restore()
	if err := a.auth.CheckAuth(ctx); err != nil {
		if requireAuth {
			return fmt.Errorf("not logged in, run the login command first: %w", err)
		}
		logger.Warnf("Starting unauthenticated: %v", err)
		return nil
	}
	return a.sessions.Bootstrap(ctx)
}

func (a *app) close() {
	if err := a.backend.Close(); err != nil {
		logger.Errorf("Failed to close storage: %v", err)
	}
}

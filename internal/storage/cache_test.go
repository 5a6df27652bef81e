package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"distill-client/internal/config"
	"distill-client/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheSessionsRecomputeMessageCount(t *testing.T) {
	c := NewCache(NewMemoryStorage())

	sessions := []model.Session{{
		ID:    "s1",
		Title: "Cells",
		Messages: []model.Message{
			{ID: "m1", Role: model.RoleUser, Content: "what is a cell"},
			{ID: "m2", Role: model.RoleAssistant, Content: "a unit"},
			{ID: "m3", Role: model.RoleUser, Content: "more"},
		},
		MessageCount: 99,
		CreatedAt:    time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}}
	require.NoError(t, c.SaveSessions(sessions))

	got, err := c.Sessions()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].MessageCount)
	assert.True(t, got[0].CreatedAt.Equal(sessions[0].CreatedAt))
}

func TestCacheMissingKeysAreEmpty(t *testing.T) {
	c := NewCache(NewMemoryStorage())

	sessions, err := c.Sessions()
	require.NoError(t, err)
	assert.Empty(t, sessions)

	active, err := c.ActiveSession()
	require.NoError(t, err)
	assert.Empty(t, active)

	token, err := c.Token()
	require.NoError(t, err)
	assert.Empty(t, token)

	user, err := c.User()
	require.NoError(t, err)
	assert.Nil(t, user)

	prefs, err := c.Preferences()
	require.NoError(t, err)
	assert.Equal(t, model.DefaultPreferences(), prefs)
}

func TestCacheKeysAreIndependent(t *testing.T) {
	backend := NewMemoryStorage()
	c := NewCache(backend)

	require.NoError(t, c.SaveActiveSession("s1"))
	require.NoError(t, c.SaveToken("tok"))
	require.NoError(t, backend.Put(KeySessions, []byte(`{not json`)))

	_, err := c.Sessions()
	assert.ErrorIs(t, err, ErrInvalidData)

	active, err := c.ActiveSession()
	require.NoError(t, err)
	assert.Equal(t, "s1", active)

	token, err := c.Token()
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
}

func TestCacheClearAuth(t *testing.T) {
	c := NewCache(NewMemoryStorage())
	require.NoError(t, c.SaveToken("tok"))
	require.NoError(t, c.SaveUser(&model.User{UserID: "u1", Username: "ada"}))
	require.NoError(t, c.SavePreferences(model.Preferences{DarkMode: true, ActiveTab: "quiz"}))

	require.NoError(t, c.ClearAuth())

	token, _ := c.Token()
	user, _ := c.User()
	prefs, _ := c.Preferences()
	assert.Empty(t, token)
	assert.Nil(t, user)
	assert.True(t, prefs.DarkMode)
}

func TestCacheEmptyValuesDeleteKeys(t *testing.T) {
	backend := NewMemoryStorage()
	c := NewCache(backend)

	require.NoError(t, c.SaveActiveSession("s1"))
	require.NoError(t, c.SaveActiveSession(""))

	_, err := backend.Get(KeyActiveSession)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestOpenFallsBackToMemory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain-file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	// A data dir nested under a regular file cannot be created.
	got := Open(config.StorageConfig{Type: "disk", DataDir: filepath.Join(file, "data")})
	_, ok := got.(*MemoryStorage)
	assert.True(t, ok)

	got = Open(config.StorageConfig{Type: "memory"})
	_, ok = got.(*MemoryStorage)
	assert.True(t, ok)
}

package storage

import (
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()

	dir := t.TempDir()
	all := map[string]Backend{
		"memory": NewMemoryStorage(),
		"disk":   NewDiskStorage(filepath.Join(dir, "disk"), 2),
		"sqlite": NewSQLiteStorage(filepath.Join(dir, "sqlite", "kv.db")),
	}
	for name, b := range all {
		require.NoError(t, b.Init(), name)
		t.Cleanup(func() { b.Close() })
	}
	return all
}

func TestBackendRoundTrip(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := b.Get("missing")
			assert.ErrorIs(t, err, ErrKeyNotFound)

			require.NoError(t, b.Put("alpha", []byte(`{"a":1}`)))
			require.NoError(t, b.Put("beta", []byte(`"b"`)))
			require.NoError(t, b.Put("alpha", []byte(`{"a":2}`)))

			got, err := b.Get("alpha")
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":2}`, string(got))

			keys, err := b.Keys()
			require.NoError(t, err)
			assert.Equal(t, []string{"alpha", "beta"}, keys)

			require.NoError(t, b.Delete("alpha"))
			require.NoError(t, b.Delete("alpha"))
			_, err = b.Get("alpha")
			assert.ErrorIs(t, err, ErrKeyNotFound)
		})
	}
}

func TestBackendRejectsInvalidKeys(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := b.Put("../escape", []byte(`1`))
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

func TestBackendReturnsCopies(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			value := []byte(`"x"`)
			require.NoError(t, b.Put("k", value))
			value[1] = 'y'

			got, err := b.Get("k")
			require.NoError(t, err)
			got[1] = 'z'

			again, err := b.Get("k")
			require.NoError(t, err)
			assert.Equal(t, `"x"`, string(again))
		})
	}
}

func TestDiskStorageSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	first := NewDiskStorage(dir, 1)
	require.NoError(t, first.Init())
	require.NoError(t, first.Put("one", []byte(`1`)))
	require.NoError(t, first.Put("two", []byte(`2`)))
	assert.LessOrEqual(t, len(first.cache), 1)
	require.NoError(t, first.Close())

	second := NewDiskStorage(dir, 1)
	require.NoError(t, second.Init())
	got, err := second.Get("one")
	require.NoError(t, err)
	assert.Equal(t, "1", string(got))
}

func TestDiskStorageBackup(t *testing.T) {
	dir := t.TempDir()
	d := NewDiskStorage(dir, 4)
	require.NoError(t, d.Init())
	require.NoError(t, d.Put("sessions", []byte(`[]`)))

	require.NoError(t, d.Backup())

	matches, err := filepath.Glob(filepath.Join(dir, "backup", "backup_*", "sessions.json"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestSQLiteStorageSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")

	first := NewSQLiteStorage(path)
	require.NoError(t, first.Init())
	require.NoError(t, first.Put("token", []byte(`"abc"`)))
	require.NoError(t, first.Close())

	second := NewSQLiteStorage(path)
	require.NoError(t, second.Init())
	defer second.Close()

	got, err := second.Get("token")
	require.NoError(t, err)
	assert.Equal(t, `"abc"`, string(got))
}

func TestDiskStorageReadsNeverCacheStaleValues(t *testing.T) {
	d := NewDiskStorage(t.TempDir(), 4)
	require.NoError(t, d.Init())
	require.NoError(t, d.Put("counter", []byte("0")))

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				d.mu.Lock()
				delete(d.cache, "counter")
				d.mu.Unlock()
				_, _ = d.Get("counter")
			}
		}()
	}

	for i := 1; i <= 500; i++ {
		want := strconv.Itoa(i)
		require.NoError(t, d.Put("counter", []byte(want)))
		got, err := d.Get("counter")
		require.NoError(t, err)
		if !assert.Equal(t, want, string(got)) {
			break
		}
	}
	close(done)
	wg.Wait()
}

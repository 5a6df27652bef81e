package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"distill-client/pkg/logger"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func validateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// DiskStorage keeps one JSON file per key under dataDir/entries, with a
// bounded in-memory read cache.
type DiskStorage struct {
	dataDir   string
	mu        sync.RWMutex
	cache     map[string]cacheEntry
	cacheSize int
	// writes counts Puts and Deletes; a file read only fills the cache if
	// no write happened while it ran.
	writes uint64
}

type cacheEntry struct {
	value    []byte
	loadedAt time.Time
}

func NewDiskStorage(dataDir string, cacheSize int) *DiskStorage {
	if cacheSize <= 0 {
		cacheSize = 16
	}
	return &DiskStorage{
		dataDir:   dataDir,
		cache:     make(map[string]cacheEntry),
		cacheSize: cacheSize,
	}
}

func (d *DiskStorage) Init() error {
	if err := d.createDirectories(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	logger.Infof("Disk storage initialized at %s", d.dataDir)
	return nil
}

func (d *DiskStorage) createDirectories() error {
	dirs := []string{
		d.dataDir,
		filepath.Join(d.dataDir, "entries"),
		filepath.Join(d.dataDir, "backup"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return nil
}

func (d *DiskStorage) entryPath(key string) string {
	return filepath.Join(d.dataDir, "entries", key+".json")
}

func (d *DiskStorage) Get(key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	d.mu.RLock()
	entry, ok := d.cache[key]
	writes := d.writes
	d.mu.RUnlock()
	if ok {
		return cloneBytes(entry.value), nil
	}

	data, err := os.ReadFile(d.entryPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if entry, ok := d.cache[key]; ok {
		return cloneBytes(entry.value), nil
	}
	if d.writes != writes {
		return cloneBytes(data), nil
	}
	d.cache[key] = cacheEntry{value: data, loadedAt: time.Now()}
	d.evictCache()

	return cloneBytes(data), nil
}

func (d *DiskStorage) Put(key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	path := d.entryPath(key)
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, value, 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	d.writes++
	d.cache[key] = cacheEntry{value: cloneBytes(value), loadedAt: time.Now()}
	d.evictCache()
	return nil
}

func (d *DiskStorage) Delete(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.writes++
	delete(d.cache, key)
	if err := os.Remove(d.entryPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}
	return nil
}

func (d *DiskStorage) Keys() ([]string, error) {
	files, err := os.ReadDir(filepath.Join(d.dataDir, "entries"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	keys := make([]string, 0, len(files))
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(keys)
	return keys, nil
}

// evictCache drops the oldest entries once the cache exceeds its size.
// Callers hold d.mu.
func (d *DiskStorage) evictCache() {
	if len(d.cache) <= d.cacheSize {
		return
	}

	type aged struct {
		key      string
		loadedAt time.Time
	}

	entries := make([]aged, 0, len(d.cache))
	for key, entry := range d.cache {
		entries = append(entries, aged{key: key, loadedAt: entry.loadedAt})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].loadedAt.Before(entries[j].loadedAt)
	})

	toEvict := len(d.cache) - d.cacheSize
	for i := 0; i < toEvict; i++ {
		delete(d.cache, entries[i].key)
	}
}

func (d *DiskStorage) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cache = make(map[string]cacheEntry)
	return nil
}

func (d *DiskStorage) Backup() error {
	backupDir := filepath.Join(d.dataDir, "backup", fmt.Sprintf("backup_%d", time.Now().UnixNano()))

	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if err := copyDir(filepath.Join(d.dataDir, "entries"), backupDir); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	logger.Infof("Backup completed: %s", backupDir)
	return nil
}

func copyDir(src, dst string) error {
	files, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	for _, file := range files {
		if file.IsDir() || strings.HasSuffix(file.Name(), ".tmp") {
			continue
		}
		if err := copyFile(filepath.Join(src, file.Name()), filepath.Join(dst, file.Name())); err != nil {
			return err
		}
	}

	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	return os.WriteFile(dst, data, 0644)
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

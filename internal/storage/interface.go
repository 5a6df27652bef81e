package storage

// Backend is a flat key/value store for the client's persisted state.
// Values are opaque JSON documents; every key is independent of the others.
type Backend interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	Keys() ([]string, error)

	Init() error
	Close() error
	Backup() error
}

// Package persist holds the key-value stores that back browser history.
package persist

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"pkt.systems/pslog"
)

// DefaultNamespace names the preferences file or table partition used for
// browser state.
const DefaultNamespace = "browser_history"

// KV is a string-set key-value store.
type KV interface {
	// GetStringSet returns the values stored under key. A missing key yields
	// an empty set and no error.
	GetStringSet(key string) ([]string, error)
	// PutStringSet replaces the values stored under key.
	PutStringSet(key string, values []string) error
}

// Backend selects a KV implementation.
type Backend string

const (
	// BackendSQLite stores sets in a sqlite database.
	BackendSQLite Backend = "sqlite"
	// BackendFile stores sets in a JSON file.
	BackendFile Backend = "file"
	// BackendMemory keeps sets in process memory only.
	BackendMemory Backend = "memory"
)

// Options configures Open.
type Options struct {
	Backend   Backend
	Dir       string
	Path      string
	Namespace string
	Logger    pslog.Logger
}

// Opened is a KV that may hold resources.
type Opened interface {
	KV
	Close() error
}

// Open constructs the configured backend.
func Open(opts Options) (Opened, error) {
	namespace := strings.TrimSpace(opts.Namespace)
	if namespace == "" {
		namespace = DefaultNamespace
	}
	switch Backend(strings.ToLower(strings.TrimSpace(string(opts.Backend)))) {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile:
		path := opts.Path
		if strings.TrimSpace(path) == "" {
			if strings.TrimSpace(opts.Dir) == "" {
				return nil, errors.New("state directory is required")
			}
			path = filepath.Join(opts.Dir, sanitize(namespace)+".json")
		}
		return NewFileStoreWithLogger(path, opts.Logger)
	case BackendSQLite, "":
		path := opts.Path
		if strings.TrimSpace(path) == "" {
			if strings.TrimSpace(opts.Dir) == "" {
				return nil, errors.New("state directory is required")
			}
			path = filepath.Join(opts.Dir, "webtabs.db")
		}
		return OpenSQLiteStore(path, namespace, opts.Logger)
	default:
		return nil, fmt.Errorf("unknown history backend %q", opts.Backend)
	}
}

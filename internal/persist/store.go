package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"pkt.systems/pslog"
)

var errCorruptDocument = errors.New("corrupt state document")

// FileStore persists string sets to a single JSON document.
type FileStore struct {
	path string
	log  pslog.Logger
	mu   sync.Mutex
}

// NewFileStore constructs a file-backed store at path.
func NewFileStore(path string) (*FileStore, error) {
	return NewFileStoreWithLogger(path, nil)
}

// NewFileStoreWithLogger constructs a file-backed store with logging.
func NewFileStoreWithLogger(path string, logger pslog.Logger) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("state path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_file", path)
	}
	return &FileStore{path: path, log: logger}, nil
}

// GetStringSet reads the set stored under key.
func (s *FileStore) GetStringSet(key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	values := doc[key]
	if s.log != nil {
		s.log.Debug("state load ok", "key", key, "values", len(values))
	}
	return append([]string(nil), values...), nil
}

// PutStringSet replaces the set stored under key. The document is rewritten
// through a temporary file so readers never see a partial write.
func (s *FileStore) PutStringSet(key string, values []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readLocked()
	if errors.Is(err, errCorruptDocument) {
		if err := s.quarantineLocked(); err != nil {
			s.warn("state save failed", key, err)
			return err
		}
		doc = make(map[string][]string)
	} else if err != nil {
		return err
	}
	if len(values) == 0 {
		delete(doc, key)
	} else {
		doc[key] = dedupe(values)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		s.warn("state save failed", key, err)
		return err
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		s.warn("state save failed", key, err)
		return err
	}
	if s.log != nil {
		s.log.Trace("state save ok", "key", key, "values", len(values))
	}
	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) readLocked() (map[string][]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.log != nil {
				s.log.Debug("state load miss")
			}
			return make(map[string][]string), nil
		}
		s.warn("state load failed", "", err)
		return nil, err
	}
	doc := make(map[string][]string)
	if len(strings.TrimSpace(string(data))) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		s.warn("state load failed", "", err)
		return nil, fmt.Errorf("%w: %v", errCorruptDocument, err)
	}
	return doc, nil
}

// quarantineLocked moves an unreadable document aside so the next save
// starts fresh without destroying what was there.
func (s *FileStore) quarantineLocked() error {
	aside := fmt.Sprintf("%s.corrupt-%s", s.path, time.Now().UTC().Format("20060102T150405.000000000"))
	if err := os.Rename(s.path, aside); err != nil {
		return err
	}
	if s.log != nil {
		s.log.Warn("state corrupt document moved aside", "moved_to", aside)
	}
	return nil
}

func (s *FileStore) warn(msg, key string, err error) {
	if s.log == nil {
		return
	}
	if key != "" {
		s.log.Warn(msg, "key", key, "err", err)
		return
	}
	s.log.Warn(msg, "err", err)
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "state-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func sanitize(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	return b.String()
}

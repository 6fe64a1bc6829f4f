package persist

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pkt.systems/pslog"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv_sets (
	namespace TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (namespace, key, value)
)`

// SQLiteStore persists string sets as rows of a sqlite table.
type SQLiteStore struct {
	db        *sql.DB
	namespace string
	log       pslog.Logger
}

// OpenSQLiteStore opens (and creates when missing) the database at path.
// Use ":memory:" for a throwaway database.
func OpenSQLiteStore(path, namespace string, logger pslog.Logger) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if logger != nil {
		logger = logger.With("state_db", path, "namespace", namespace)
	}
	return &SQLiteStore{db: db, namespace: namespace, log: logger}, nil
}

// GetStringSet returns every value stored under key.
func (s *SQLiteStore) GetStringSet(key string) ([]string, error) {
	rows, err := s.db.Query("SELECT value FROM kv_sets WHERE namespace = ? AND key = ?", s.namespace, key)
	if err != nil {
		if s.log != nil {
			s.log.Warn("state load failed", "key", key, "err", err)
		}
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()
	var values []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	if s.log != nil {
		s.log.Debug("state load ok", "key", key, "values", len(values))
	}
	return values, nil
}

// PutStringSet replaces the set under key in one transaction.
func (s *SQLiteStore) PutStringSet(key string, values []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return s.fail(key, fmt.Errorf("begin: %w", err))
	}
	if _, err := tx.Exec("DELETE FROM kv_sets WHERE namespace = ? AND key = ?", s.namespace, key); err != nil {
		_ = tx.Rollback()
		return s.fail(key, fmt.Errorf("delete: %w", err))
	}
	stmt, err := tx.Prepare("INSERT OR IGNORE INTO kv_sets (namespace, key, value) VALUES (?, ?, ?)")
	if err != nil {
		_ = tx.Rollback()
		return s.fail(key, fmt.Errorf("prepare: %w", err))
	}
	defer stmt.Close()
	for _, value := range values {
		if _, err := stmt.Exec(s.namespace, key, value); err != nil {
			_ = tx.Rollback()
			return s.fail(key, fmt.Errorf("insert: %w", err))
		}
	}
	if err := tx.Commit(); err != nil {
		return s.fail(key, fmt.Errorf("commit: %w", err))
	}
	if s.log != nil {
		s.log.Trace("state save ok", "key", key, "values", len(values))
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) fail(key string, err error) error {
	if s.log != nil {
		s.log.Warn("state save failed", "key", key, "err", err)
	}
	return err
}

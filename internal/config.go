package internal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	_ "modernc.org/sqlite"
)

// Configuration keys.
const (
	KeyCertificates = "certificates"
	KeyServers      = "servers"
)

// settingRecord is one row of the settings table.
type settingRecord struct {
	Key   string         `db:"key"`
	Value types.JSONText `db:"value"`
}

// ConfigStore is the persisted CLI configuration: a flat key/value table
// whose values are JSON documents. Every read and write goes to the
// database, so separate processes sharing a file see each other's changes.
type ConfigStore struct {
	*sqlx.DB
	path string
}

// DefaultConfigPath returns the configuration database path under the user's
// configuration directory.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating user config directory: %w", err)
	}
	return filepath.Join(dir, "sailor", "config.db"), nil
}

// OpenConfigStore opens (creating if needed) the configuration database at
// path. An empty path opens a private in-memory store.
func OpenConfigStore(path string) (*ConfigStore, error) {
	// Pin to a single connection. For :memory: every connection would be a
	// separate database; for files it serializes read-modify-write cycles
	// within the process. PRAGMAs are set via the DSN so they apply to
	// reconnections.
	dsn := "file::memory:?_pragma=temp_store(2)&_pragma=journal_mode(off)"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating config directory: %w", err)
		}
		dsn = "file:" + (&url.URL{Path: path}).EscapedPath() + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening config database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &ConfigStore{DB: db, path: path}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing config schema: %w", err)
	}

	slog.Debug("config store opened", "path", path)
	return store, nil
}

// Path returns the database path, or "" for an in-memory store.
func (s *ConfigStore) Path() string {
	return s.path
}

func (s *ConfigStore) initSchema() error {
	_, err := s.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating settings table: %w", err)
	}
	return nil
}

// Get decodes the value stored under key into v. It reports false, leaving v
// untouched, when the key has never been set.
func (s *ConfigStore) Get(key string, v any) (bool, error) {
	var rec settingRecord
	err := s.DB.Get(&rec, "SELECT key, value FROM settings WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading setting %q: %w", key, err)
	}
	if err := rec.Value.Unmarshal(v); err != nil {
		return false, fmt.Errorf("decoding setting %q: %w", key, err)
	}
	return true, nil
}

// Set stores v as JSON under key, replacing any previous value.
func (s *ConfigStore) Set(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding setting %q: %w", key, err)
	}
	_, err = s.NamedExec(`
		INSERT INTO settings (key, value) VALUES (:key, :value)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, settingRecord{Key: key, Value: types.JSONText(data)})
	if err != nil {
		return fmt.Errorf("writing setting %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *ConfigStore) Delete(key string) error {
	if _, err := s.Exec("DELETE FROM settings WHERE key = ?", key); err != nil {
		return fmt.Errorf("deleting setting %q: %w", key, err)
	}
	return nil
}

// Fingerprints returns the trusted certificate fingerprints in stored order.
func (s *ConfigStore) Fingerprints() ([]string, error) {
	fps := []string{}
	if _, err := s.Get(KeyCertificates, &fps); err != nil {
		return nil, err
	}
	return fps, nil
}

// SetFingerprints replaces the trusted certificate fingerprints.
func (s *ConfigStore) SetFingerprints(fingerprints []string) error {
	if fingerprints == nil {
		fingerprints = []string{}
	}
	return s.Set(KeyCertificates, fingerprints)
}

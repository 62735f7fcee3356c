package infra

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/focusd/notif_mon/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const (
	prefsDBName   = "prefs.db"
	schemaVersion = "1"
)

// EncryptedPreferenceStore implements domain.PreferenceStore using a
// SQLCipher encrypted SQLite database in the data directory.
type EncryptedPreferenceStore struct {
	db     *sql.DB
	dbPath string
}

// NewEncryptedPreferenceStore opens (or creates) the encrypted preference database.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedPreferenceStore(dataDir string, key []byte) (*EncryptedPreferenceStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, prefsDBName)
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096&_busy_timeout=5000",
		dbPath, hex.EncodeToString(key))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}
	// Single connection: every write is serialised and visible to the next read.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	s := &EncryptedPreferenceStore{db: db, dbPath: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// OpenEncryptedPreferenceStore ensures the key in dataDir and opens the store.
func OpenEncryptedPreferenceStore(dataDir string) (*EncryptedPreferenceStore, error) {
	key, err := EnsureKey(NewFileKeyProvider(dataDir))
	if err != nil {
		return nil, fmt.Errorf("failed to load encryption key: %w", err)
	}
	return NewEncryptedPreferenceStore(dataDir, key)
}

func (s *EncryptedPreferenceStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS bool_prefs (
		key TEXT PRIMARY KEY,
		value INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS set_prefs (
		key TEXT NOT NULL,
		member TEXT NOT NULL,
		PRIMARY KEY (key, member)
	);

	CREATE TABLE IF NOT EXISTS set_keys (
		key TEXT PRIMARY KEY,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT OR IGNORE INTO meta (key, value) VALUES ('schema_version', ?)`, schemaVersion)
	return err
}

// GetBool returns the stored flag or def when the key was never written.
func (s *EncryptedPreferenceStore) GetBool(key string, def bool) (bool, error) {
	var v bool
	err := s.db.QueryRow(`SELECT value FROM bool_prefs WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("failed to read %q: %w", key, err)
	}
	return v, nil
}

// PutBool upserts a flag.
func (s *EncryptedPreferenceStore) PutBool(key string, value bool) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO bool_prefs (key, value, updated_at) VALUES (?, ?, ?)`,
		key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return nil
}

// GetStringSet returns the members stored under key in ascending order.
func (s *EncryptedPreferenceStore) GetStringSet(key string) ([]string, error) {
	rows, err := s.db.Query(`SELECT member FROM set_prefs WHERE key = ? ORDER BY member`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", key, err)
	}
	defer rows.Close()

	members := []string{}
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("failed to scan %q: %w", key, err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// PutStringSet replaces the set under key in one transaction.
func (s *EncryptedPreferenceStore) PutStringSet(key string, members []string) error {
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM set_prefs WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to clear %q: %w", key, err)
	}
	for _, m := range members {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO set_prefs (key, member) VALUES (?, ?)`, key, m); err != nil {
			return fmt.Errorf("failed to write %q: %w", key, err)
		}
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO set_keys (key, updated_at) VALUES (?, ?)`,
		key, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return tx.Commit()
}

// Path returns the database file path.
func (s *EncryptedPreferenceStore) Path() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *EncryptedPreferenceStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Ensure EncryptedPreferenceStore implements domain.PreferenceStore.
var _ domain.PreferenceStore = (*EncryptedPreferenceStore)(nil)

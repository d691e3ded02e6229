package local

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/ferryd/ferry/internal/backend"
)

// schemaVersion is the current store schema version.
const schemaVersion = 1

// Store is the daemon's persistent state: sessions, document metadata,
// per-user memory, and the notification log.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the state database under dir.
func OpenStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	dbPath := filepath.Join(dir, "ferry.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create version table: %w", err)
	}

	var version int
	err = tx.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		version = 0
	} else if err != nil {
		return fmt.Errorf("query schema version: %w", err)
	}

	if version < 1 {
		stmts := []string{
			`CREATE TABLE IF NOT EXISTS sessions (
				user TEXT NOT NULL,
				name TEXT NOT NULL,
				created_at TEXT NOT NULL,
				last_seen_at TEXT NOT NULL,
				PRIMARY KEY (user, name)
			)`,
			`CREATE TABLE IF NOT EXISTS documents (
				id TEXT PRIMARY KEY,
				user TEXT NOT NULL,
				name TEXT NOT NULL,
				path TEXT NOT NULL,
				size INTEGER NOT NULL,
				uploaded_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_documents_user ON documents(user, uploaded_at)`,
			`CREATE TABLE IF NOT EXISTS memory (
				user TEXT PRIMARY KEY,
				content TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS notifications (
				id TEXT PRIMARY KEY,
				user TEXT NOT NULL,
				session TEXT NOT NULL,
				message TEXT NOT NULL,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user, created_at)`,
		}
		for _, stmt := range stmts {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("create tables: %w", err)
			}
		}
	}

	if _, err := tx.Exec("DELETE FROM schema_version"); err != nil {
		return fmt.Errorf("clear schema version: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// newID generates a ULID for store records.
func (s *Store) newID() string {
	return ulid.Make().String()
}

// TouchSession records activity on a user/session pair, creating it on first
// sight.
func (s *Store) TouchSession(user, session string) error {
	ts := now()
	_, err := s.db.Exec(`
		INSERT INTO sessions (user, name, created_at, last_seen_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user, name) DO UPDATE SET last_seen_at = excluded.last_seen_at
	`, user, session, ts, ts)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// ListSessions returns the session names for a user, most recent first.
func (s *Store) ListSessions(user string) ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM sessions WHERE user = ? ORDER BY last_seen_at DESC", user)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, name)
	}
	return sessions, rows.Err()
}

// ListSessionsInfo returns session details for a user, most recent first.
func (s *Store) ListSessionsInfo(user string) ([]backend.SessionInfo, error) {
	rows, err := s.db.Query(`
		SELECT name, created_at, last_seen_at FROM sessions
		WHERE user = ? ORDER BY last_seen_at DESC
	`, user)
	if err != nil {
		return nil, fmt.Errorf("list sessions info: %w", err)
	}
	defer func() { _ = rows.Close() }()

	info := []backend.SessionInfo{}
	for rows.Next() {
		var si backend.SessionInfo
		if err := rows.Scan(&si.Name, &si.CreatedAt, &si.LastSeenAt); err != nil {
			return nil, fmt.Errorf("scan session info: %w", err)
		}
		info = append(info, si)
	}
	return info, rows.Err()
}

// AddDocument records an uploaded document and returns its ID.
func (s *Store) AddDocument(user, name, path string, size int64) (string, error) {
	id := s.newID()
	_, err := s.db.Exec(`
		INSERT INTO documents (id, user, name, path, size, uploaded_at) VALUES (?, ?, ?, ?, ?, ?)
	`, id, user, name, path, size, now())
	if err != nil {
		return "", fmt.Errorf("add document: %w", err)
	}
	return id, nil
}

// ListDocuments returns document metadata for a user, most recent first.
func (s *Store) ListDocuments(user string) ([]backend.DocumentInfo, error) {
	rows, err := s.db.Query(`
		SELECT id, name, path, size, uploaded_at FROM documents
		WHERE user = ? ORDER BY uploaded_at DESC
	`, user)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	docs := []backend.DocumentInfo{}
	for rows.Next() {
		var d backend.DocumentInfo
		if err := rows.Scan(&d.ID, &d.Name, &d.Path, &d.Size, &d.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// GetMemory returns the user's persistent memory, "" when unset.
func (s *Store) GetMemory(user string) (string, error) {
	var content string
	err := s.db.QueryRow("SELECT content FROM memory WHERE user = ?", user).Scan(&content)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get memory: %w", err)
	}
	return content, nil
}

// SetMemory stores memory for a user and returns it.
func (s *Store) SetMemory(user, content string) (string, error) {
	_, err := s.db.Exec(`
		INSERT INTO memory (user, content, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at
	`, user, content, now())
	if err != nil {
		return "", fmt.Errorf("set memory: %w", err)
	}
	return content, nil
}

// ResetMemory clears the user's memory and returns the empty default.
func (s *Store) ResetMemory(user string) (string, error) {
	if _, err := s.db.Exec("DELETE FROM memory WHERE user = ?", user); err != nil {
		return "", fmt.Errorf("reset memory: %w", err)
	}
	return "", nil
}

// AddNotification appends one notification to the log.
func (s *Store) AddNotification(user, session, message string) error {
	_, err := s.db.Exec(`
		INSERT INTO notifications (id, user, session, message, created_at) VALUES (?, ?, ?, ?, ?)
	`, s.newID(), user, session, message, now())
	if err != nil {
		return fmt.Errorf("add notification: %w", err)
	}
	return nil
}

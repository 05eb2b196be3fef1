package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when no artifact exists for the requested key.
var ErrNotFound = errors.New("artifact not found")

// SQLiteStore implements Store on a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and
// initializes the schema. Parent directories are created if they do not
// exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS models (
		project_id TEXT NOT NULL,
		backend_id TEXT NOT NULL,
		format TEXT NOT NULL,
		blob BLOB NOT NULL,
		modified_at TIMESTAMP NOT NULL,
		PRIMARY KEY (project_id, backend_id)
	);

	CREATE TABLE IF NOT EXISTS ensembles (
		project_id TEXT PRIMARY KEY,
		blob BLOB NOT NULL,
		modified_at TIMESTAMP NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveModel upserts a backend snapshot.
func (s *SQLiteStore) SaveModel(projectID, backendID, format string, blob []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO models (project_id, backend_id, format, blob, modified_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(project_id, backend_id) DO UPDATE SET
			format = excluded.format,
			blob = excluded.blob,
			modified_at = excluded.modified_at`,
		projectID, backendID, format, blob, time.Now(),
	)
	return err
}

// LoadModel returns a backend snapshot, or ErrNotFound.
func (s *SQLiteStore) LoadModel(projectID, backendID string) (*Model, error) {
	m := Model{ProjectID: projectID, BackendID: backendID}
	err := s.db.QueryRow(
		`SELECT format, blob, modified_at FROM models
		 WHERE project_id = ? AND backend_id = ?`,
		projectID, backendID,
	).Scan(&m.Format, &m.Blob, &m.ModifiedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("model %s/%s: %w", projectID, backendID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// SaveEnsemble upserts a project's serialized ensemble weight vector.
func (s *SQLiteStore) SaveEnsemble(projectID string, blob []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO ensembles (project_id, blob, modified_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(project_id) DO UPDATE SET
			blob = excluded.blob,
			modified_at = excluded.modified_at`,
		projectID, blob, time.Now(),
	)
	return err
}

// LoadEnsemble returns a project's weight vector blob, or ErrNotFound.
func (s *SQLiteStore) LoadEnsemble(projectID string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRow(
		`SELECT blob FROM ensembles WHERE project_id = ?`, projectID,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("ensemble %s: %w", projectID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return blob, nil
}

// DeleteProject removes every artifact stored for the project.
func (s *SQLiteStore) DeleteProject(projectID string) error {
	if _, err := s.db.Exec(`DELETE FROM models WHERE project_id = ?`, projectID); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM ensembles WHERE project_id = ?`, projectID)
	return err
}

// ModifiedAt returns the most recent artifact write for the project, or
// the zero time when nothing is stored.
func (s *SQLiteStore) ModifiedAt(projectID string) (time.Time, error) {
	var latest time.Time
	queries := []string{
		`SELECT modified_at FROM models WHERE project_id = ? ORDER BY modified_at DESC LIMIT 1`,
		`SELECT modified_at FROM ensembles WHERE project_id = ?`,
	}
	for _, q := range queries {
		var ts time.Time
		err := s.db.QueryRow(q, projectID).Scan(&ts)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return time.Time{}, err
		}
		if ts.After(latest) {
			latest = ts
		}
	}
	return latest, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

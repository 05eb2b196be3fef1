// Package storage persists learned model state: per-backend snapshot blobs
// and per-project ensemble weight vectors, keyed by project and backend
// identifier.
package storage

import "time"

// Model is one persisted backend snapshot.
type Model struct {
	ProjectID  string
	BackendID  string
	Format     string
	Blob       []byte
	ModifiedAt time.Time
}

// Store defines model artifact persistence. ErrNotFound distinguishes
// "never trained" from real storage failures.
type Store interface {
	SaveModel(projectID, backendID, format string, blob []byte) error
	LoadModel(projectID, backendID string) (*Model, error)
	SaveEnsemble(projectID string, blob []byte) error
	LoadEnsemble(projectID string) ([]byte, error)
	// DeleteProject removes every artifact the project has stored.
	DeleteProject(projectID string) error
	// ModifiedAt returns the most recent artifact write for the project,
	// or the zero time when nothing is stored.
	ModifiedAt(projectID string) (time.Time, error)
	Close() error
}

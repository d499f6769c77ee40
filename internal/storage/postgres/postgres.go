// Package postgres implements the storage.Backend interface on a Postgres
// database through the GORM backend. When Postgres cannot be reached the
// session is recorded to a local SQLite file instead.
package postgres

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/surveyor-hil/asvsim/internal/config"
	"github.com/surveyor-hil/asvsim/internal/database"
	"github.com/surveyor-hil/asvsim/internal/logging"
	gormstorage "github.com/surveyor-hil/asvsim/internal/storage/gorm"
	"github.com/surveyor-hil/asvsim/pkg/core"
)

// Dependencies holds all dependencies for the Postgres storage backend.
type Dependencies struct {
	DB         config.DBConfig
	LogManager *logging.SlogManager
	// Logger receives connection diagnostics.
	Logger zerolog.Logger
	// FallbackPath is the SQLite file used when Postgres is unreachable.
	FallbackPath string
}

// Backend implements storage.Backend on Postgres with queue-based batch writes.
type Backend struct {
	*gormstorage.Backend
	deps    Dependencies
	manager *database.Manager
}

// New creates a new Postgres storage backend. The connection is made by Init.
func New(deps Dependencies) *Backend {
	return &Backend{deps: deps}
}

// Init connects, migrates the schema and starts the writer.
func (b *Backend) Init() error {
	b.manager = database.NewManager(b.deps.DB, b.deps.FallbackPath, b.deps.Logger)
	if err := b.manager.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:         b.manager.DB(),
		LogManager: b.deps.LogManager,
	})
	return b.Backend.Init()
}

// Local reports whether the backend fell back to SQLite.
func (b *Backend) Local() bool {
	return b.manager != nil && b.manager.Local()
}

// Close flushes the writer and closes the connection pool.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	if err := b.Backend.Close(); err != nil {
		return err
	}
	return b.manager.Close()
}

// StartSession records the session row.
func (b *Backend) StartSession(s *core.Session) error {
	if b.Backend == nil {
		return gormstorage.ErrNoDB
	}
	return b.Backend.StartSession(s)
}

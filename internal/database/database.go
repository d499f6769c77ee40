// Package database opens the gorm connections used by the SQL storage
// backends and prepares their schema.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/surveyor-hil/asvsim/internal/config"
	"github.com/surveyor-hil/asvsim/internal/model"
)

var ErrNotConnected = errors.New("database not connected")

// sqlitePragmas trade durability for write speed. Recordings are dumped
// to disk explicitly, so a crash loses at most one dump interval.
var sqlitePragmas = []string{
	"PRAGMA user_version = 1",
	"PRAGMA journal_mode = MEMORY",
	"PRAGMA synchronous = OFF",
	"PRAGMA cache_size = -32000",
	"PRAGMA temp_store = MEMORY",
}

// Manager connects to Postgres and falls back to a local SQLite file when
// the server cannot be reached.
type Manager struct {
	cfg      config.DBConfig
	fallback string
	log      zerolog.Logger

	db    *gorm.DB
	pool  *sql.DB
	local bool
}

// NewManager prepares a manager. fallbackPath is the SQLite file used when
// Postgres is unreachable; empty keeps the fallback in memory.
func NewManager(cfg config.DBConfig, fallbackPath string, log zerolog.Logger) *Manager {
	return &Manager{cfg: cfg, fallback: fallbackPath, log: log}
}

func (m *Manager) Connect() error {
	db, err := OpenPostgres(m.cfg)
	if err == nil {
		err = m.adopt(db)
	}
	if err == nil {
		err = m.pool.Ping()
	}
	if err != nil {
		m.log.Warn().Err(err).Str("host", m.cfg.Host).Msg("Postgres unavailable, recording to SQLite")
		return m.connectLocal()
	}
	m.pool.SetMaxOpenConns(10)
	m.log.Info().Str("host", m.cfg.Host).Str("database", m.cfg.Database).Msg("Connected to Postgres")
	return nil
}

func (m *Manager) connectLocal() error {
	if m.pool != nil {
		m.pool.Close()
	}
	db, err := OpenSQLite(m.fallback)
	if err != nil {
		return fmt.Errorf("open SQLite fallback: %w", err)
	}
	if err := m.adopt(db); err != nil {
		return err
	}
	m.local = true
	where := m.fallback
	if where == "" {
		where = ":memory:"
	}
	m.log.Info().Str("path", where).Msg("Using local SQLite")
	return nil
}

func (m *Manager) adopt(db *gorm.DB) error {
	pool, err := db.DB()
	if err != nil {
		return err
	}
	m.db, m.pool = db, pool
	return nil
}

// DB is nil until Connect succeeds.
func (m *Manager) DB() *gorm.DB { return m.db }

// Local reports whether Connect fell back to SQLite.
func (m *Manager) Local() bool { return m.local }

func (m *Manager) Migrate() error {
	if m.db == nil {
		return ErrNotConnected
	}
	m.log.Debug().Str("dialect", m.db.Name()).Msg("Migrating schema")
	return Migrate(m.db)
}

func (m *Manager) Close() error {
	if m.pool == nil {
		return nil
	}
	pool := m.pool
	m.db, m.pool = nil, nil
	return pool.Close()
}

func postgresDSN(cfg config.DBConfig) string {
	parts := []string{
		"host=" + cfg.Host,
		"port=" + cfg.Port,
		"user=" + cfg.Username,
		"password=" + cfg.Password,
		"dbname=" + cfg.Database,
		"sslmode=disable",
	}
	return strings.Join(parts, " ")
}

func OpenPostgres(cfg config.DBConfig) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  postgresDSN(cfg),
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        10000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
}

// OpenSQLite opens the database file at path, or a private in-memory
// database when path is empty.
func OpenSQLite(path string) (*gorm.DB, error) {
	dsn := path
	if path == "" {
		dsn = "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        2000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if path == "" {
		// an in-memory database lives only while a connection holds it
		pool, err := db.DB()
		if err != nil {
			return nil, err
		}
		pool.SetMaxOpenConns(1)
		pool.SetConnMaxLifetime(0)
		pool.SetConnMaxIdleTime(0)
	}

	for _, p := range sqlitePragmas {
		if err := db.Exec(p).Error; err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return db, nil
}

// Migrate creates or updates the recording tables. Geometry columns hold
// WKB, so Postgres needs no PostGIS.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Snapshot copies db into a fresh SQLite file at path with VACUUM INTO,
// replacing any earlier snapshot.
func Snapshot(db *gorm.DB, path string) error {
	switch {
	case path == "":
		return errors.New("snapshot: no path")
	case strings.ContainsRune(path, '\''):
		return fmt.Errorf("snapshot: path %q contains a quote", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	// VACUUM INTO refuses an existing target
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := db.Exec("VACUUM INTO '" + path + "'").Error; err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return nil
}

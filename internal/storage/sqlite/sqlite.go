// Package sqlitestorage records a session into an in-memory SQLite
// database through the GORM backend and snapshots it to disk, both on a
// timer and when the session ends.
package sqlitestorage

import (
	"fmt"
	"sync"
	"time"

	"github.com/surveyor-hil/asvsim/internal/config"
	"github.com/surveyor-hil/asvsim/internal/database"
	"github.com/surveyor-hil/asvsim/internal/logging"
	gormstorage "github.com/surveyor-hil/asvsim/internal/storage/gorm"
)

const logFunction = "sqlite:dump"

type Backend struct {
	*gormstorage.Backend
	cfg config.SQLiteConfig
	log *logging.SlogManager

	quit      chan struct{}
	closeOnce sync.Once
	ticking   sync.WaitGroup
}

// New opens the in-memory database. A nil logManager logs to slog.Default.
func New(cfg config.SQLiteConfig, logManager *logging.SlogManager) (*Backend, error) {
	db, err := database.OpenSQLite("")
	if err != nil {
		return nil, fmt.Errorf("open in-memory SQLite: %w", err)
	}
	if logManager == nil {
		logManager = logging.NewSlogManager()
	}
	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{DB: db, LogManager: logManager}),
		cfg:     cfg,
		log:     logManager,
		quit:    make(chan struct{}),
	}, nil
}

// Init migrates the schema and starts periodic snapshots when both a path
// and an interval are configured.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}
	if b.cfg.DumpPath == "" || b.cfg.DumpInterval <= 0 {
		return nil
	}
	b.ticking.Add(1)
	go func() {
		defer b.ticking.Done()
		t := time.NewTicker(b.cfg.DumpInterval)
		defer t.Stop()
		for {
			select {
			case <-b.quit:
				return
			case <-t.C:
				b.Dump()
			}
		}
	}()
	return nil
}

// EndSession flushes the session and takes a final snapshot.
func (b *Backend) EndSession() error {
	if err := b.Backend.EndSession(); err != nil {
		return err
	}
	return b.Dump()
}

// Dump snapshots the database to DumpPath. Without a path it does nothing.
func (b *Backend) Dump() error {
	if b.cfg.DumpPath == "" {
		return nil
	}
	began := time.Now()
	if err := database.Snapshot(b.DB(), b.cfg.DumpPath); err != nil {
		b.log.WriteLog(logFunction, err.Error(), "ERROR")
		return err
	}
	b.log.WriteLog(logFunction, fmt.Sprintf("wrote %s in %s", b.cfg.DumpPath, time.Since(began)), "DEBUG")
	return nil
}

// Close stops the snapshot timer, flushes the writer and drops the
// in-memory database. Later calls do nothing.
func (b *Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.quit)
		b.ticking.Wait()
		if err = b.Backend.Close(); err != nil {
			return
		}
		pool, perr := b.DB().DB()
		if perr != nil {
			err = perr
			return
		}
		err = pool.Close()
	})
	return err
}

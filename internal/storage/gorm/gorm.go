// Package gormstorage implements the storage.Backend interface on GORM with
// internal queues and a background DB writer goroutine. The SQLite and
// Postgres backends embed it and only differ in how the connection is made.
package gormstorage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/surveyor-hil/asvsim/internal/database"
	"github.com/surveyor-hil/asvsim/internal/logging"
	"github.com/surveyor-hil/asvsim/internal/model"
	"github.com/surveyor-hil/asvsim/internal/model/convert"
	"github.com/surveyor-hil/asvsim/internal/queue"
	"github.com/surveyor-hil/asvsim/pkg/core"
)

// DefaultFlushInterval is how often queued rows are written.
const DefaultFlushInterval = 2 * time.Second

var (
	// ErrNoDB is returned by Init when no connection was provided.
	ErrNoDB = errors.New("no database connection")
	// ErrNoSession is returned when recording outside a session.
	ErrNoSession = errors.New("no active session")
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	LogManager    *logging.SlogManager
	FlushInterval time.Duration
}

// queues holds the write queues for batch DB insertion.
type queues struct {
	Telemetry     *queue.Queue[model.TelemetryPoint]
	MissionEvents *queue.Queue[model.MissionEvent]
}

func newQueues() *queues {
	return &queues{
		Telemetry:     queue.New[model.TelemetryPoint](0),
		MissionEvents: queue.New[model.MissionEvent](0),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps   Dependencies
	queues *queues

	mu        sync.Mutex
	sessionID string
	// writeMu serializes flushes between the writer goroutine and EndSession.
	writeMu sync.Mutex

	stopChan chan struct{}
	done     chan struct{}
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	return &Backend{
		deps:   deps,
		queues: newQueues(),
	}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return ErrNoDB
	}

	log := b.deps.LogManager
	log.WriteLog("setupDB", fmt.Sprintf("Migrating schema on %s", b.deps.DB.Name()), "INFO")
	if err := database.Migrate(b.deps.DB); err != nil {
		log.WriteLog("setupDB", err.Error(), "ERROR")
		return fmt.Errorf("failed to setup DB: %w", err)
	}
	log.WriteLog("setupDB", "Database setup complete", "INFO")

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writerLoop()
	return nil
}

// Close stops the DB writer goroutine after a final flush.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	close(b.stopChan)
	<-b.done
	b.stopChan = nil
	return nil
}

// StartSession inserts the session row synchronously so queued rows can
// reference it.
func (b *Backend) StartSession(s *core.Session) error {
	row, err := convert.CoreToSession(*s)
	if err != nil {
		return err
	}
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	b.mu.Lock()
	b.sessionID = s.ID
	b.mu.Unlock()
	return nil
}

// EndSession writes everything queued and stamps the session end time.
func (b *Backend) EndSession() error {
	b.mu.Lock()
	id := b.sessionID
	b.sessionID = ""
	b.mu.Unlock()
	if id == "" {
		return ErrNoSession
	}

	if err := b.flush(id); err != nil {
		return err
	}
	err := b.deps.DB.Model(&model.Session{}).
		Where("id = ?", id).
		Update("end_time", time.Now().UTC()).Error
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

func (b *Backend) currentSession() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessionID
}

// RecordTelemetry converts and queues a telemetry frame.
func (b *Backend) RecordTelemetry(t *core.Telemetry) error {
	if b.currentSession() == "" {
		return ErrNoSession
	}
	row, err := convert.CoreToTelemetryPoint(*t)
	if err != nil {
		return err
	}
	return b.queues.Telemetry.Push(row)
}

// RecordMissionEvent converts and queues a mission event.
func (b *Backend) RecordMissionEvent(e *core.MissionEvent) error {
	if b.currentSession() == "" {
		return ErrNoSession
	}
	row, err := convert.CoreToMissionEvent(*e)
	if err != nil {
		return err
	}
	return b.queues.MissionEvents.Push(row)
}

// Pending is the number of rows waiting for the writer.
func (b *Backend) Pending() int {
	return b.queues.Telemetry.Len() + b.queues.MissionEvents.Len()
}

// Track returns the recorded frames of a session in tick order.
func (b *Backend) Track(sessionID string) ([]core.Telemetry, error) {
	var rows []model.TelemetryPoint
	if err := b.deps.DB.Where("session_id = ?", sessionID).Order("tick").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.Telemetry, len(rows))
	for i, r := range rows {
		out[i] = convert.TelemetryPointToCore(r)
	}
	return out, nil
}

// MissionEvents returns the recorded events of a session in time order.
func (b *Backend) MissionEvents(sessionID string) ([]core.MissionEvent, error) {
	var rows []model.MissionEvent
	if err := b.deps.DB.Where("session_id = ?", sessionID).Order("time, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.MissionEvent, len(rows))
	for i, r := range rows {
		out[i] = convert.MissionEventToCore(r)
	}
	return out, nil
}

// Session loads a session row.
func (b *Backend) Session(id string) (core.Session, error) {
	var row model.Session
	if err := b.deps.DB.First(&row, "id = ?", id).Error; err != nil {
		return core.Session{}, err
	}
	return convert.SessionToCore(row), nil
}

// writeQueue writes all items from a queue to the database in a transaction.
// On failure the items go back on the queue for the next cycle.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log func(string, string, string), prepare func([]T)) error {
	items := q.Drain()
	if len(items) == 0 {
		return nil
	}
	if prepare != nil {
		prepare(items)
	}

	tx := db.Begin()
	if err := tx.Create(&items).Error; err != nil {
		log(":DB:WRITER:", fmt.Sprintf("Error creating %s: %v", name, err), "ERROR")
		tx.Rollback()
		if pushErr := q.Push(items...); pushErr != nil {
			log(":DB:WRITER:", fmt.Sprintf("Dropped %d %s: %v", len(items), name, pushErr), "ERROR")
		}
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}
	return nil
}

// flush drains both queues. Rows without a session id get sessionID.
func (b *Backend) flush(sessionID string) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	log := b.deps.LogManager.WriteLog
	err := writeQueue(b.deps.DB, b.queues.Telemetry, "telemetry points", log, func(items []model.TelemetryPoint) {
		for i := range items {
			if items[i].SessionID == "" {
				items[i].SessionID = sessionID
			}
		}
	})
	evErr := writeQueue(b.deps.DB, b.queues.MissionEvents, "mission events", log, func(items []model.MissionEvent) {
		for i := range items {
			if items[i].SessionID == "" {
				items[i].SessionID = sessionID
			}
		}
	})
	return errors.Join(err, evErr)
}

// writerLoop periodically drains the queues into the DB.
func (b *Backend) writerLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			if err := b.flush(b.currentSession()); err != nil {
				b.deps.LogManager.WriteLog(":DB:WRITER:", fmt.Sprintf("Final flush failed: %v", err), "ERROR")
			}
			return
		case <-ticker.C:
			// errors are logged by writeQueue and retried next cycle
			_ = b.flush(b.currentSession())
		}
	}
}

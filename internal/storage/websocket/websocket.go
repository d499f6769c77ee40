// Package websocket streams a session to a telemetry ingest server as JSON
// envelopes. Session start and end wait for the server's ack. Frames and
// mission events are fire-and-forget.
package websocket

import (
	"log/slog"
	"sync"

	"github.com/surveyor-hil/asvsim/internal/config"
	"github.com/surveyor-hil/asvsim/pkg/core"
	"github.com/surveyor-hil/asvsim/pkg/streaming"
)

// Backend implements storage.Backend. It leaves no file behind, so it is
// not Uploadable.
type Backend struct {
	cfg  config.WebSocketConfig
	link *link

	mu        sync.Mutex
	sessionID string
}

// New returns an unconnected backend. A nil logger uses slog.Default.
func New(cfg config.WebSocketConfig, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		cfg:  cfg,
		link: newLink(logger.With("component", "websocket")),
	}
}

func (b *Backend) Init() error {
	return b.link.open(b.cfg.URL, b.cfg.Secret)
}

func (b *Backend) Close() error {
	return b.link.close()
}

func (b *Backend) StartSession(s *core.Session) error {
	data, err := streaming.Encode(streaming.TypeStartSession, streaming.StartSessionPayload{Session: s})
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.sessionID = s.ID
	b.mu.Unlock()

	b.link.setSession(data)
	return b.link.sendAndWait(data, streaming.TypeStartSession, ackTimeout)
}

func (b *Backend) EndSession() error {
	b.mu.Lock()
	id := b.sessionID
	b.sessionID = ""
	b.mu.Unlock()

	data, err := streaming.Encode(streaming.TypeEndSession, streaming.EndSessionPayload{SessionID: id})
	if err != nil {
		return err
	}
	defer b.link.setSession(nil)
	return b.link.sendAndWait(data, streaming.TypeEndSession, ackTimeout)
}

func (b *Backend) RecordTelemetry(t *core.Telemetry) error {
	return b.stream(streaming.TypeTelemetry, t)
}

func (b *Backend) RecordMissionEvent(e *core.MissionEvent) error {
	return b.stream(streaming.TypeMissionEvent, e)
}

// stream queues a message. A full outbox drops it without error.
func (b *Backend) stream(msgType string, payload any) error {
	data, err := streaming.Encode(msgType, payload)
	if err != nil {
		return err
	}
	b.link.send(data)
	return nil
}

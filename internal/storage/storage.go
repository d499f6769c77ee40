// Package storage defines the recording backends for simulator sessions.
package storage

import "github.com/surveyor-hil/asvsim/pkg/core"

// Backend records one simulator session. Init is called once before
// StartSession; Record calls arrive only between StartSession and
// EndSession.
type Backend interface {
	Init() error
	StartSession(s *core.Session) error
	RecordTelemetry(t *core.Telemetry) error
	RecordMissionEvent(e *core.MissionEvent) error
	EndSession() error
	Close() error
}

// Uploadable backends leave a file behind at EndSession that can be sent
// to the recording archive.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}

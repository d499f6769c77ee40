package core

import "time"

// UploadMetadata describes an exported session for the archive service.
type UploadMetadata struct {
	SessionID string
	StartTime time.Time
	Duration  float64 // seconds
	Frames    int
	Tag       string
}

// Package streaming defines the JSON messages the websocket backend sends
// to a telemetry ingest server. Every message is an Envelope whose payload
// depends on its type. The server answers start_session and end_session
// with an Ack naming the type it received.
package streaming

import (
	"encoding/json"
	"fmt"

	"github.com/surveyor-hil/asvsim/pkg/core"
)

const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeTelemetry    = "telemetry"
	TypeMissionEvent = "mission_event"
	TypeAck          = "ack"
)

type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type AckMessage struct {
	Type string `json:"type"`
	For  string `json:"for"`
}

type StartSessionPayload struct {
	Session *core.Session `json:"session"`
}

type EndSessionPayload struct {
	SessionID string `json:"sessionId"`
}

// Encode wraps payload in an Envelope of the given type.
func Encode(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msgType, err)
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

// DecodeAck parses an ack. ok is false for any other message.
func DecodeAck(data []byte) (ack AckMessage, ok bool) {
	if err := json.Unmarshal(data, &ack); err != nil || ack.Type != TypeAck {
		return AckMessage{}, false
	}
	return ack, true
}

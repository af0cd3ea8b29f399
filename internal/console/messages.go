// Package console is the hearthd admin console: a WebSocket endpoint that
// accepts line commands against the stored documents and entity catalog.
// Meant for operators poking at a live install, not for the editor UI.
package console

import "encoding/json"

// ClientMessage is the envelope for all client-to-server messages.
type ClientMessage struct {
	Type string          `json:"type"` // "execute", "ping"
	ID   string          `json:"id"`   // client-assigned request ID
	Data json.RawMessage `json:"data,omitempty"`
}

// ExecuteData is the payload for "execute" messages.
type ExecuteData struct {
	Command string `json:"command"`
}

// ServerMessage is the envelope for all server-to-client messages.
type ServerMessage struct {
	Type      string `json:"type"`                 // "session", "result", "error", "pong"
	RequestID string `json:"request_id,omitempty"` // echoes the client ID
	Data      any    `json:"data,omitempty"`
}

// SessionData is sent once after the upgrade.
type SessionData struct {
	SessionID string   `json:"session_id"`
	Commands  []string `json:"commands"`
}

// ResultData carries a successful command result.
type ResultData struct {
	Value   any    `json:"value,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorData carries a failed command.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

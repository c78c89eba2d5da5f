// Package gateway accepts long-lived WebSocket connections, keeps them alive
// with periodic pings, and hands inbound questions to the orchestrator
// paired with their connection handle.
package gateway

import "time"

// Frame is the wire unit on the client channel, in both directions.
type Frame struct {
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

const (
	FrameConnected = "connected"
	FramePing      = "ping"
	FramePong      = "pong"
	FrameProgress  = "progress"
	FrameResult    = "result"
	FrameError     = "error"
	FrameMessage   = "message"
)

// NewFrame stamps a frame with the current local time.
func NewFrame(frameType, sessionID, message string) Frame {
	return Frame{
		Type:      frameType,
		Message:   message,
		SessionID: sessionID,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

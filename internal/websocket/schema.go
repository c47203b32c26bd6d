package websocket

import "github.com/stemsi/exstem-proctor/internal/alert"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing Action = "ping"
)

// ClientMessage is the only frame a client sends on the alert stream.
type ClientMessage struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventConnected Event = "connected"
	EventAlert     Event = "alert"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

type ConnectedResponse struct {
	Event     Event  `json:"event"`
	SessionID string `json:"session_id"`
}

// AlertResponse carries one face-detection alert of the session.
type AlertResponse struct {
	Event Event       `json:"event"`
	Alert alert.Alert `json:"alert"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

package transport

import (
	"encoding/json"
	"time"
)

// MessageType discriminates websocket frames in both directions.
type MessageType string

const (
	// Client to server.
	TypeHello    MessageType = "hello"
	TypeJoin     MessageType = "join"
	TypeLeave    MessageType = "leave"
	TypeAction   MessageType = "action"
	TypeTimeBank MessageType = "time_bank"
	TypeState    MessageType = "state"

	// Server to client.
	TypeWelcome  MessageType = "welcome"
	TypeEvent    MessageType = "event"
	TypeSnapshot MessageType = "snapshot"
	TypeRejected MessageType = "rejected"
	TypeError    MessageType = "error"
)

// Message is the websocket frame envelope.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage wraps a payload in an envelope stamped with now.
func NewMessage(t MessageType, data any) (*Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{Type: t, Data: raw, Timestamp: time.Now()}, nil
}

// Client to server payloads.

// HelloData identifies the connecting player.
type HelloData struct {
	PlayerName string `json:"playerName"`
	Token      string `json:"token,omitempty"`
}

// JoinData seats the player at a table session.
type JoinData struct {
	SessionID string `json:"sessionId"`
	Seat      int    `json:"seat"`
	BuyIn     int    `json:"buyIn"`
}

// LeaveData stands the player up.
type LeaveData struct {
	SessionID string `json:"sessionId"`
}

// ActionData is one betting decision. Timestamp is when the client
// decided; the server rejects actions that are too old.
type ActionData struct {
	SessionID string    `json:"sessionId"`
	Action    string    `json:"action"`
	Amount    int       `json:"amount,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TimeBankData asks for the player's time bank on the running clock.
type TimeBankData struct {
	SessionID string `json:"sessionId"`
}

// StateData requests a fresh table snapshot.
type StateData struct {
	SessionID string `json:"sessionId"`
}

// Server to client payloads.

// WelcomeData acknowledges a hello.
type WelcomeData struct {
	PlayerID string `json:"playerId"`
}

// EventData wraps an orchestrator event for the wire.
type EventData struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

// RejectedData tells the client why an action did not apply.
type RejectedData struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// ErrorData reports a request failure outside hand play.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

package upstream

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrIdleTimeout   = errors.New("no message within connection timeout")
	ErrAlreadyClosed = errors.New("already closed")
)

// TimestampedMessage wraps raw message data with its receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from the WebSocket
	ReceivedAt time.Time // Local timestamp when the read returned
}

// ClientConfig configures a single WebSocket connection.
type ClientConfig struct {
	URI               string        // Venue WebSocket URL
	PingInterval      time.Duration // Interval between outgoing pings
	PingTimeout       time.Duration // Write deadline for control frames
	ConnectionTimeout time.Duration // Max silence before ErrIdleTimeout
	WriteTimeout      time.Duration // Write deadline for data frames
	BufferSize        int           // Message channel buffer size
}

// subscribeCommand is the venue's outbound control frame. Keys is omitted
// for subscribeNewToken.
type subscribeCommand struct {
	Method string   `json:"method"`
	Keys   []string `json:"keys,omitempty"`
}

const (
	methodSubscribeNewToken   = "subscribeNewToken"
	methodSubscribeTokenTrade = "subscribeTokenTrade"
)

// tradeWire is the venue's inbound event frame. Frames without txType are
// control acks and are ignored.
type tradeWire struct {
	TxType                string  `json:"txType"`
	Mint                  string  `json:"mint"`
	TraderPublicKey       string  `json:"traderPublicKey"`
	SolAmount             float64 `json:"solAmount"`
	VSolInBondingCurve    float64 `json:"vSolInBondingCurve"`
	VTokensInBondingCurve float64 `json:"vTokensInBondingCurve"`
}

// StreamStatus describes one connection for the health surface.
type StreamStatus struct {
	Connected      bool      `json:"connected"`
	ConnectedSince time.Time `json:"connected_since,omitzero"`
	ReconnectCount int       `json:"reconnect_count"`
}

// Status is the manager's view of both streams.
type Status struct {
	Trade         StreamStatus `json:"trade"`
	NewToken      StreamStatus `json:"new_token"`
	LastMessageAt time.Time    `json:"last_message_at,omitzero"`
	LastError     string       `json:"last_error,omitempty"`
}

// TokenSource lists the tokens whose trades must be subscribed when the
// trade stream (re)connects.
type TokenSource interface {
	ActiveTokens() []string
}

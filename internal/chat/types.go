// Package chat orchestrates conversational turns between the farmer and
// the remote agent.
package chat

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrTurnInFlight = errors.New("a turn is already in flight")
	ErrEmptyInput   = errors.New("empty turn input")
	ErrTurnFailed   = errors.New("turn failed")
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in the conversation transcript. Assistant messages
// may carry a spoken reply as a base64 audio payload.
type Message struct {
	ID           string
	Role         Role
	Text         string
	CreatedAt    time.Time
	HasAudio     bool
	AudioPayload string
}

// TurnPhase is the lifecycle phase of the current turn.
type TurnPhase string

const (
	TurnIdle             TurnPhase = "idle"
	TurnDispatching      TurnPhase = "dispatching"
	TurnAwaitingResponse TurnPhase = "awaiting_response"
	TurnApplyingResponse TurnPhase = "applying_response"
)

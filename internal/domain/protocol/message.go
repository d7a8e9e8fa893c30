// Package protocol defines the typed message protocol spoken between the
// host and embedded game content.
//
// Messages originate in the embedded surface (guest -> host) except for
// PARENT_READY, which the host sends down once its listener is attached.
package protocol

import (
	"errors"
	"time"

	"github.com/bytedance/sonic"
)

// Type enumerates protocol message types.
type Type string

const (
	// Guest -> host.
	TypeReady          Type = "GAME_READY"
	TypeStarted        Type = "GAME_STARTED"
	TypeScoreUpdate    Type = "SCORE_UPDATE"
	TypeTimeUpdate     Type = "TIME_UPDATE"
	TypeProgressUpdate Type = "PROGRESS_UPDATE"
	TypeCompleted      Type = "GAME_COMPLETED"

	// Host -> guest handshake.
	TypeParentReady Type = "PARENT_READY"
)

// ErrMalformed marks messages that fail shape validation: missing type,
// unknown type, or absent payload object.
var ErrMalformed = errors.New("malformed protocol message")

// Payload carries the optional numeric fields of a message. Pointers
// distinguish "absent" from zero.
type Payload struct {
	Score     *int     `json:"score,omitempty"`
	TimeSpent *int     `json:"timeSpent,omitempty"`
	Progress  *float64 `json:"progress,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"`
}

// Message is one protocol event.
type Message struct {
	Type    Type    `json:"type"`
	Payload Payload `json:"payload"`
}

// envelope is the decode target; a nil Payload means the key was absent.
type envelope struct {
	Type    Type     `json:"type"`
	Payload *Payload `json:"payload"`
}

var guestTypes = map[Type]bool{
	TypeReady:          true,
	TypeStarted:        true,
	TypeScoreUpdate:    true,
	TypeTimeUpdate:     true,
	TypeProgressUpdate: true,
	TypeCompleted:      true,
}

// Decode parses and validates a guest message. Unknown or host-only types
// and missing payloads are rejected with ErrMalformed.
func Decode(data []byte) (*Message, error) {
	var env envelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		return nil, ErrMalformed
	}
	if !guestTypes[env.Type] {
		return nil, ErrMalformed
	}
	if env.Payload == nil {
		return nil, ErrMalformed
	}
	return &Message{Type: env.Type, Payload: *env.Payload}, nil
}

// Encode serializes a message for transport.
func Encode(m *Message) ([]byte, error) {
	return sonic.Marshal(m)
}

// ParentReady builds the host->guest handshake message.
func ParentReady(now time.Time) *Message {
	return &Message{
		Type:    TypeParentReady,
		Payload: Payload{Timestamp: now.UnixMilli()},
	}
}

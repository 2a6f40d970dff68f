package ipc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dooshek/gamecoach/internal/types"
)

var (
	// ErrClosed is returned once the connection to the peer is gone
	ErrClosed = errors.New("ipc connection closed")
	// ErrUnknownSurface is returned when a process attaches with an id the host never issued
	ErrUnknownSurface = errors.New("unknown surface id")
	// ErrUnknownOp is returned for requests the host does not serve
	ErrUnknownOp = errors.New("unknown operation")
	// ErrUnavailable is returned when the host runs without the component an op needs
	ErrUnavailable = errors.New("operation not available on this host")
	// ErrPrimaryAttached is returned when a live primary surface already holds the role
	ErrPrimaryAttached = errors.New("a primary surface is already attached")
)

// MessageType separates requests, their responses and unsolicited pushes
type MessageType string

const (
	TypeRequest  MessageType = "request"
	TypeResponse MessageType = "response"
	TypePush     MessageType = "push"
)

// Request operations
const (
	OpStateGet          = "state.get"
	OpStateSubscribe    = "state.subscribe"
	OpSetGameState      = "state.set-game-state"
	OpSetAnalyzing      = "state.set-analyzing"
	OpSetLastAnalysis   = "state.set-last-analysis"
	OpSetSettings       = "state.set-settings"
	OpSetOverlayVisible = "state.set-overlay-visible"
	OpOverlayShow       = "overlay.show"
	OpOverlayHide       = "overlay.hide"
	OpAnalysisStart     = "analysis.start"
	OpAnalysisStop      = "analysis.stop"
	OpSourcesList       = "sources.list"
	OpSurfaceAttach     = "surface.attach"
	OpSurfaceReady      = "surface.ready"
)

// Push operations
const (
	PushStateUpdated  = "state.updated"
	PushSurfaceRaise  = "surface.raise"
	PushSurfaceBounds = "surface.bounds"
	PushSurfaceClose  = "surface.close"
)

// Message is the single envelope carried over the WebSocket
type Message struct {
	Type    MessageType     `json:"type"`
	ID      string          `json:"id,omitempty"`
	Op      string          `json:"op"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Decode unmarshals the payload into v
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", m.Op)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%s: invalid payload: %w", m.Op, err)
	}
	return nil
}

func newMessage(typ MessageType, id, op string, payload any) (Message, error) {
	msg := Message{Type: typ, ID: id, Op: op}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return msg, fmt.Errorf("failed to encode %s payload: %w", op, err)
		}
		msg.Payload = raw
	}
	return msg, nil
}

func newPush(op string, payload any) (Message, error) {
	return newMessage(TypePush, "", op, payload)
}

type boolPayload struct {
	Value bool `json:"value"`
}

type advicePayload struct {
	Advice *types.Advice `json:"advice"`
}

// AttachPayload identifies a surface process to the host
type AttachPayload struct {
	Role types.Role `json:"role"`
	ID   string     `json:"id,omitempty"`
}

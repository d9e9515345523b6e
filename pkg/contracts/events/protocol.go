// Package events defines the WebSocket message contract. Every frame the
// server pushes is a Message; clients never send anything but pings.
package events

import (
	"encoding/json"
	"time"
)

// Message types pushed over the socket.
const (
	TypeConnection        = "connection"
	TypeShockAlert        = "shock_alert"
	TypeSignalComputed    = "signal_computed"
	TypeStudyCompleted    = "study_completed"
	TypePropagationUpdate = "propagation_update"
	TypeError             = "error"
)

// Message is the single frame shape on the wire.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	TraceID   string          `json:"trace_id,omitempty"`
}

// NewMessage wraps a payload in a frame, stamping it with the current
// time. Marshal errors surface to the caller; a frame with a payload
// that cannot be encoded must not reach the hub.
func NewMessage(msgType string, payload any, traceID string) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:      msgType,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
		TraceID:   traceID,
	}, nil
}

// ConnectionPayload greets a newly connected client.
type ConnectionPayload struct {
	Status   string `json:"status"`
	ClientID string `json:"client_id"`
}

// SignalComputedPayload announces a freshly computed (or recomputed)
// signal, shock or not.
type SignalComputedPayload struct {
	SignalID      string    `json:"signal_id"`
	EventID       string    `json:"event_id"`
	TransformID   string    `json:"transform_id"`
	TransformName string    `json:"transform_name"`
	Value         float64   `json:"value"`
	ZScore        *float64  `json:"z_score,omitempty"`
	IsShock       bool      `json:"is_shock"`
	Timestamp     time.Time `json:"timestamp"`
}

// ShockAlertPayload announces a detected shock.
type ShockAlertPayload struct {
	SignalID      string    `json:"signal_id"`
	EventID       string    `json:"event_id"`
	TransformID   string    `json:"transform_id"`
	TransformName string    `json:"transform_name"`
	Node          string    `json:"node"`
	Value         float64   `json:"value"`
	ZScore        *float64  `json:"z_score,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// StudyCompletedPayload announces a finished causal test run.
type StudyCompletedPayload struct {
	ResultID        string  `json:"result_id"`
	TransformID     string  `json:"transform_id"`
	TargetNode      string  `json:"target_node"`
	IsCausal        bool    `json:"is_causal"`
	ConfidenceLevel string  `json:"confidence_level"`
	Coefficient     float64 `json:"coefficient"`
	PValue          float64 `json:"p_value"`
}

// ErrorPayload tells a client its inbound frame was not understood. The
// protocol is push-only; anything beyond pings earns one of these.
type ErrorPayload struct {
	Message string `json:"message"`
}

// PropagationUpdatePayload announces a monitor state change.
type PropagationUpdatePayload struct {
	ResultID   string   `json:"result_id"`
	SignalID   string   `json:"signal_id"`
	SourceNode string   `json:"source_node"`
	TargetNode string   `json:"target_node"`
	Status     string   `json:"status"`
	Matched    *bool    `json:"matched,omitempty"`
	Change     *float64 `json:"change,omitempty"`
}

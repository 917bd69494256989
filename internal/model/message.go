package model

import (
	"encoding/json"
	"fmt"
)

// MessageType discriminates the payload carried by a Message.
type MessageType string

const (
	MessageSignal  MessageType = "Signal"
	MessageUpdate  MessageType = "Update"
	MessageHistory MessageType = "History"
	MessageStats   MessageType = "Stats"
)

// Message is the unit carried by the broadcast bus and sent to subscribers.
// Exactly one payload field is set, matching Type.
type Message struct {
	Type    MessageType
	Signal  *Signal
	Update  *SignalUpdate
	History []Signal
	Stats   *Stats
}

// NewSignalMessage wraps a signal.
func NewSignalMessage(s Signal) Message {
	return Message{Type: MessageSignal, Signal: &s}
}

// NewUpdateMessage wraps a signal update.
func NewUpdateMessage(u SignalUpdate) Message {
	return Message{Type: MessageUpdate, Update: &u}
}

// NewHistoryMessage wraps a batch of recent signals. A nil batch is sent as an empty list.
func NewHistoryMessage(signals []Signal) Message {
	if signals == nil {
		signals = []Signal{}
	}
	return Message{Type: MessageHistory, History: signals}
}

// NewStatsMessage wraps a stats snapshot.
func NewStatsMessage(s Stats) Message {
	return Message{Type: MessageStats, Stats: &s}
}

type envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalJSON encodes the message as {"type": ..., "payload": ...}.
func (m Message) MarshalJSON() ([]byte, error) {
	var payload any
	switch m.Type {
	case MessageSignal:
		payload = m.Signal
	case MessageUpdate:
		payload = m.Update
	case MessageHistory:
		payload = m.History
	case MessageStats:
		payload = m.Stats
	default:
		return nil, fmt.Errorf("unknown message type %q", m.Type)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: m.Type, Payload: raw})
}

// UnmarshalJSON decodes the {"type", "payload"} envelope.
func (m *Message) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	out := Message{Type: env.Type}
	var target any
	switch env.Type {
	case MessageSignal:
		out.Signal = &Signal{}
		target = out.Signal
	case MessageUpdate:
		out.Update = &SignalUpdate{}
		target = out.Update
	case MessageHistory:
		target = &out.History
	case MessageStats:
		out.Stats = &Stats{}
		target = out.Stats
	default:
		return fmt.Errorf("unknown message type %q", env.Type)
	}
	if err := json.Unmarshal(env.Payload, target); err != nil {
		return fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	*m = out
	return nil
}

package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxRetries is the redelivery budget for a newly built message.
const DefaultMaxRetries = 3

// Message is the wire envelope. Exactly one JSON object per frame, six
// fields in fixed order; serialization round-trips all fields exactly.
type Message struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Data       map[string]any `json:"data"`
	Timestamp  float64        `json:"timestamp"`
	RetryCount int            `json:"retry_count"`
	MaxRetries int            `json:"max_retries"`
}

// NewMessage builds an envelope with a generated id and the current time.
func NewMessage(msgType string, data map[string]any) *Message {
	return &Message{
		ID:         uuid.New().String(),
		Type:       msgType,
		Data:       data,
		Timestamp:  now(),
		MaxRetries: DefaultMaxRetries,
	}
}

// ToJSON serializes the envelope. Field order is fixed by the struct
// definition, so output is deterministic for a given message.
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage decodes a raw frame. It is fail-soft: malformed JSON or a
// missing type yields nil rather than an error, so a bad frame can never
// take down the caller. A missing id or timestamp is filled in.
func ParseMessage(raw []byte) *Message {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	if m.Type == "" {
		return nil
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Timestamp == 0 {
		m.Timestamp = now()
	}
	return &m
}

// now returns the current time as float seconds since the epoch, the
// envelope's timestamp representation.
func now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

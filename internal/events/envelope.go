package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the unit published on the bus and fanned out to rooms.
// Exclude names users that must not receive this envelope (typically the
// originator of a typing event).
type Envelope struct {
	Type       Type            `json:"type"`
	ChatID     uuid.UUID       `json:"chat_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Exclude    []uuid.UUID     `json:"exclude,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

func NewEnvelope(t Type, chatID uuid.UUID, payload interface{}, exclude ...uuid.UUID) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Type:       t,
		ChatID:     chatID,
		OccurredAt: time.Now(),
		Exclude:    exclude,
		Payload:    data,
	}, nil
}

package events

import (
	"encoding/json"
	"fmt"
	"time"
)

type envelope struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	OccurredAt int64                  `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload"`
}

// Marshal encodes an event for a bus. The timestamp keeps millisecond precision.
func Marshal(event Event) ([]byte, error) {
	data, err := json.Marshal(envelope{
		ID:         event.EventID(),
		Type:       event.EventType(),
		OccurredAt: event.Timestamp().UnixMilli(),
		Payload:    event.Payload(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

func Unmarshal(data []byte) (BaseEvent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return BaseEvent{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if env.Payload == nil {
		env.Payload = make(map[string]interface{})
	}
	return BaseEvent{
		ID:         env.ID,
		Type:       env.Type,
		Data:       env.Payload,
		OccurredAt: time.UnixMilli(env.OccurredAt),
	}, nil
}

package event

import (
	"encoding/json"
	"fmt"
)

type wireEvent struct {
	Name       string          `json:"name"`
	Topics     []string        `json:"topics"`
	Payload    json.RawMessage `json:"payload"`
	Membership []Membership    `json:"membership,omitempty"`
}

// Marshal encodes an event for transport between instances.
func Marshal(evt Event) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s failed: %w", evt.Name, err)
	}
	return data, nil
}

// Unmarshal decodes an event produced by Marshal. The payload stays as raw
// JSON so it can be forwarded to sockets without a second round trip.
func Unmarshal(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("unmarshal event failed: %w", err)
	}
	if w.Name == "" || len(w.Topics) == 0 {
		return Event{}, fmt.Errorf("event is missing name or topics")
	}
	return Event{Name: w.Name, Topics: w.Topics, Payload: w.Payload, Membership: w.Membership}, nil
}

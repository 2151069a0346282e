package eventbus

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Event is a named notification carried by the bus.
type Event struct {
	Name      string
	Payload   map[string]any
	Source    string
	Timestamp time.Time
}

// NewEvent builds an event stamped with the current time.
func NewEvent(name string, payload map[string]any) Event {
	return Event{Name: name, Payload: payload, Timestamp: time.Now()}
}

// NewEventFrom builds an event whose payload is the JSON object form of v.
func NewEventFrom(name string, v any) (Event, error) {
	payload, err := PayloadOf(v)
	if err != nil {
		return Event{}, err
	}
	return NewEvent(name, payload), nil
}

// PayloadOf converts a payload struct into its map form.
func PayloadOf(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("payload is not an object: %w", err)
	}
	return out, nil
}

// Decode fills v from the event payload.
func (e Event) Decode(v any) error {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Name, err)
	}
	return nil
}

// Text returns a string payload field or "".
func (e Event) Text(key string) string {
	if v, ok := e.Payload[key].(string); ok {
		return v
	}
	return ""
}

// Number returns a numeric payload field or 0.
func (e Event) Number(key string) float64 {
	switch v := e.Payload[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

type wireEvent struct {
	Name      string         `json:"name"`
	Payload   map[string]any `json:"payload"`
	Source    string         `json:"source,omitempty"`
	Timestamp float64        `json:"timestamp"`
}

// MarshalJSON encodes the timestamp as fractional epoch seconds.
func (e Event) MarshalJSON() ([]byte, error) {
	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	return json.Marshal(wireEvent{
		Name:      e.Name,
		Payload:   payload,
		Source:    e.Source,
		Timestamp: float64(e.Timestamp.UnixNano()) / float64(time.Second),
	})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Name == "" {
		return fmt.Errorf("event name missing")
	}
	e.Name = w.Name
	e.Payload = w.Payload
	e.Source = w.Source
	if w.Timestamp > 0 {
		sec, frac := math.Modf(w.Timestamp)
		e.Timestamp = time.Unix(int64(sec), int64(frac*float64(time.Second)))
	} else {
		e.Timestamp = time.Time{}
	}
	return nil
}

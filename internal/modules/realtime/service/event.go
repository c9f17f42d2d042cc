package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type EventType string

const (
	EventNewComment      EventType = "new_comment"
	EventUpdateComment   EventType = "update_comment"
	EventDeleteComment   EventType = "delete_comment"
	EventCommentActivity EventType = "comment_activity"
	EventActiveUsers     EventType = "active_users"
	EventCounterUpdate   EventType = "counter_update"
	EventTyping          EventType = "typing"
	EventPing            EventType = "ping"
	EventPong            EventType = "pong"
	EventError           EventType = "error"
)

// Event is an outbound frame. Data must encode to a JSON object; its fields
// are flattened next to type and timestamp on the wire.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      any
}

func NewEvent(t EventType, data any) Event {
	return Event{Type: t, Data: data}
}

// TopicForPost names the live channel of a post.
func TopicForPost(postID uint) string {
	return fmt.Sprintf("post:%d", postID)
}

// CounterUpdatePayload is the data of counter_update, sent after a toggle
// or a repair that changed stored values.
type CounterUpdatePayload struct {
	TargetType string           `json:"target_type"`
	TargetID   uint             `json:"target_id"`
	PostID     uint             `json:"post_id"`
	Counts     map[string]int64 `json:"counts"`
}

type eventHeader struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// MarshalJSON flattens the payload fields next to type and timestamp. A
// payload field named type or timestamp is dropped, so a frame carries only
// the server's values.
func (e Event) MarshalJSON() ([]byte, error) {
	head := eventHeader{Type: e.Type, Timestamp: e.Timestamp.UTC()}
	if e.Data == nil {
		return json.Marshal(head)
	}

	body, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	body = bytes.TrimSpace(body)
	if len(body) < 2 || body[0] != '{' {
		return nil, errors.New("event data must encode to a JSON object")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage, 2)
	}
	if fields["type"], err = json.Marshal(head.Type); err != nil {
		return nil, err
	}
	if fields["timestamp"], err = json.Marshal(head.Timestamp); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// UnmarshalJSON decodes a flattened frame; Data becomes a map of the
// remaining fields.
func (e *Event) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}

	var head eventHeader
	if raw, ok := fields["type"]; ok {
		if err := json.Unmarshal(raw, &head.Type); err != nil {
			return err
		}
	}
	if raw, ok := fields["timestamp"]; ok {
		if err := json.Unmarshal(raw, &head.Timestamp); err != nil {
			return err
		}
	}
	delete(fields, "type")
	delete(fields, "timestamp")

	data := make(map[string]any, len(fields))
	for k, raw := range fields {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		data[k] = v
	}

	e.Type = head.Type
	e.Timestamp = head.Timestamp
	e.Data = data
	return nil
}

// Message is an event as queued for a subscriber, encoded once per publish.
type Message struct {
	Topic   string
	Type    EventType
	Payload []byte
}

// Encode stamps ts onto ev and encodes it for delivery on topic.
func Encode(topic string, ev Event, ts time.Time) (Message, error) {
	ev.Timestamp = ts
	payload, err := json.Marshal(ev)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	return Message{Topic: topic, Type: ev.Type, Payload: payload}, nil
}

// Package wire defines the JSON frames exchanged on a realtime connection.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event names. Inbound events are sent by clients, outbound by the relay.
const (
	EventJoin        = "join"
	EventEditDelta   = "edit-delta"
	EventSave        = "save"
	EventTitleUpdate = "title-update"
	EventGetDocument = "get-document"
	EventLeave       = "leave"

	EventLoadDocument    = "load-document"
	EventUpdateUserList  = "update-user-list"
	EventApplySavedState = "apply-saved-state"
	EventTitleChanged    = "title-changed"
)

// legacy names emitted by older editor clients
var aliases = map[string]string{
	"join-room":    EventJoin,
	"send-changes": EventEditDelta,
	"save-changes": EventSave,
	"update-title": EventTitleUpdate,
	"leave-room":   EventLeave,
}

var ErrMalformed = errors.New("malformed frame")

// Message is a single frame: {"event": ..., "data": ...}. Data is kept raw
// so opaque editor payloads pass through byte-for-byte.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinRequest is the join payload. UserName is accepted for legacy clients.
type JoinRequest struct {
	Name     string `json:"name"`
	UserName string `json:"userName,omitempty"`
	RoomID   string `json:"roomId"`
}

// DisplayName returns Name, falling back to the legacy userName field.
func (j JoinRequest) DisplayName() string {
	if j.Name != "" {
		return j.Name
	}
	return j.UserName
}

type TitleUpdate struct {
	RoomID   string `json:"roomId"`
	NewTitle string `json:"newTitle"`
}

// UserEntry is one row of the update-user-list payload.
type UserEntry struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Decode parses an inbound frame and normalizes legacy event names.
func Decode(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if m.Event == "" {
		return Message{}, fmt.Errorf("%w: missing event", ErrMalformed)
	}
	if canonical, ok := aliases[m.Event]; ok {
		m.Event = canonical
	}
	return m, nil
}

// Encode builds an outbound frame around a payload that still needs marshaling.
func Encode(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return EncodeRaw(event, data)
}

// EncodeRaw builds an outbound frame around an already-serialized payload.
// The payload bytes are copied verbatim (no compaction or HTML escaping).
func EncodeRaw(event string, data json.RawMessage) ([]byte, error) {
	if len(data) == 0 {
		data = json.RawMessage("null")
	} else if !json.Valid(data) {
		return nil, fmt.Errorf("%w: %s payload is not valid JSON", ErrMalformed, event)
	}
	name, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	frame := make([]byte, 0, len(name)+len(data)+20)
	frame = append(frame, `{"event":`...)
	frame = append(frame, name...)
	frame = append(frame, `,"data":`...)
	frame = append(frame, data...)
	frame = append(frame, '}')
	return frame, nil
}

// Bind unmarshals the frame payload into v.
func (m Message) Bind(v interface{}) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%w: %s without payload", ErrMalformed, m.Event)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, m.Event, err)
	}
	return nil
}

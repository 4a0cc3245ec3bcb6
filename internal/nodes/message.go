package nodes

import (
	"strings"

	"github.com/google/uuid"
)

// Message is the flow message exchanged with the host. Keys follow the
// flow conventions: payload, topic, item, _msgid.
type Message map[string]any

// NewMessage creates a message with a fresh _msgid.
func NewMessage() Message {
	return Message{"_msgid": uuid.NewString()}
}

// ID returns the message id, assigning one if missing.
func (m Message) ID() string {
	if id, ok := m["_msgid"].(string); ok && id != "" {
		return id
	}
	id := uuid.NewString()
	m["_msgid"] = id
	return id
}

// Lookup resolves a dotted property path such as "payload.state".
func (m Message) Lookup(path string) (any, bool) {
	var cur any = map[string]any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			if msg, isMsg := cur.(Message); isMsg {
				obj = msg
			} else {
				return nil, false
			}
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the property at path if it is a non-empty string.
func (m Message) String(path string) string {
	v, ok := m.Lookup(path)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

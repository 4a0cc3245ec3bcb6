package openhab

import "encoding/json"

// EventType is the openHAB event type of an item event.
type EventType string

// Item event types forwarded as domain events.
const (
	ItemStateEvent        EventType = "ItemStateEvent"
	ItemStateChangedEvent EventType = "ItemStateChangedEvent"
	ItemCommandEvent      EventType = "ItemCommandEvent"
)

// ItemEventTypes lists every forwarded event type.
var ItemEventTypes = []EventType{ItemCommandEvent, ItemStateEvent, ItemStateChangedEvent}

// Valid reports whether t is one of the forwarded item event types.
func (t EventType) Valid() bool {
	switch t {
	case ItemStateEvent, ItemStateChangedEvent, ItemCommandEvent:
		return true
	}
	return false
}

// ConnectionState is a controller lifecycle state.
type ConnectionState string

// Connection states. Warning is published when openHAB answers the
// initial state refresh with 503 and a retry is pending.
const (
	StateDisconnected ConnectionState = "Disconnected"
	StateConnecting   ConnectionState = "Connecting"
	StateConnected    ConnectionState = "Connected"
	StateError        ConnectionState = "Error"
	StateWarning      ConnectionState = "Warning"
)

// Event is anything published on a Router.
type Event interface {
	event()
}

// DomainEvent is one parsed item event. State is the inner payload's
// value rendered as a string; Payload is the decoded inner payload.
type DomainEvent struct {
	Item    string          `json:"item"`
	Type    EventType       `json:"type"`
	State   string          `json:"state"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ConnectionEvent reports a controller lifecycle change.
type ConnectionEvent struct {
	State   ConnectionState `json:"state"`
	Message string          `json:"message,omitempty"`
}

// RawEvent carries the undecoded stream message for diagnostic consumers.
// Item is empty when the message could not be attributed to an item.
type RawEvent struct {
	Item string          `json:"item,omitempty"`
	Data json.RawMessage `json:"data"`
}

func (DomainEvent) event()     {}
func (ConnectionEvent) event() {}
func (RawEvent) event()        {}

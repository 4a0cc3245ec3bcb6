package nodes

import "github.com/nerrad567/openhab-bridge/internal/openhab"

// StatusKind classifies a node status.
type StatusKind string

// Status kinds.
const (
	StatusIdle              StatusKind = "Idle"
	StatusConnecting        StatusKind = "Connecting"
	StatusConnected         StatusKind = "Connected"
	StatusDisconnected      StatusKind = "Disconnected"
	StatusCurrentState      StatusKind = "CurrentState"
	StatusNoPayload         StatusKind = "NoPayload"
	StatusNoTopic           StatusKind = "NoTopic"
	StatusOK                StatusKind = "OK"
	StatusWarning           StatusKind = "Warning"
	StatusError             StatusKind = "Error"
	StatusArmed             StatusKind = "Armed"
	StatusDisarmed          StatusKind = "Disarmed"
	StatusTriggered         StatusKind = "Triggered"
	StatusTriggeredDisarmed StatusKind = "TriggeredDisarmed"
)

var defaultText = map[StatusKind]string{
	StatusConnecting:        "Connecting",
	StatusConnected:         "Connected",
	StatusDisconnected:      "Disconnected",
	StatusNoPayload:         "No payload specified",
	StatusNoTopic:           "No topic specified",
	StatusOK:                "Ok",
	StatusWarning:           "Warning",
	StatusError:             "Error",
	StatusArmed:             "Armed",
	StatusDisarmed:          "Disarmed",
	StatusTriggered:         "Triggered",
	StatusTriggeredDisarmed: "Triggered (disarmed)",
}

// Status is what a node shows to the host.
type Status struct {
	Kind StatusKind `json:"kind"`
	Text string     `json:"text,omitempty"`
}

// LifecycleKinds are the controller states most nodes hide in favour of
// their current value.
var LifecycleKinds = []StatusKind{StatusConnecting, StatusConnected, StatusDisconnected}

// Project maps kind to the status to display. Hidden kinds clear the
// status. An empty text falls back to the kind's default text.
func Project(kind StatusKind, text string, hidden ...StatusKind) Status {
	for _, h := range hidden {
		if h == kind {
			return Status{Kind: StatusIdle}
		}
	}
	if text == "" {
		text = defaultText[kind]
	}
	return Status{Kind: kind, Text: text}
}

func connectionKind(state openhab.ConnectionState) StatusKind {
	switch state {
	case openhab.StateConnecting:
		return StatusConnecting
	case openhab.StateConnected:
		return StatusConnected
	case openhab.StateDisconnected:
		return StatusDisconnected
	case openhab.StateWarning:
		return StatusWarning
	default:
		return StatusError
	}
}

package nodes

import (
	"encoding/json"

	"github.com/nerrad567/openhab-bridge/internal/openhab"
)

// RelaySettings configure an in node.
type RelaySettings struct {
	Items []string `yaml:"items"`
	// EventTypes filters the forwarded events; empty means all.
	EventTypes       []string `yaml:"event_types"`
	OutputAtStartup  bool     `yaml:"output_at_startup"`
	StoreStateInFlow bool     `yaml:"store_state_in_flow"`
	// OHTimestamp formats message timestamps in openHAB's local form
	// instead of epoch milliseconds.
	OHTimestamp bool `yaml:"oh_timestamp"`
}

// Relay forwards item events on port 0 and raw events on port 1.
//
// The first event seen for an item after startup only sets the state
// unless OutputAtStartup is set. "null" states are skipped entirely.
type Relay struct {
	base
	cfg     RelaySettings
	forward map[openhab.EventType]bool
	seen    map[string]bool
}

// NewRelay attaches a relay.
func NewRelay(deps Deps, cfg RelaySettings) *Relay {
	r := &Relay{
		base:    newBase("in", deps, LifecycleKinds...),
		cfg:     cfg,
		forward: make(map[openhab.EventType]bool),
		seen:    make(map[string]bool),
	}
	for _, t := range cfg.EventTypes {
		r.forward[openhab.EventType(t)] = true
	}
	if len(r.forward) == 0 {
		for _, t := range openhab.ItemEventTypes {
			r.forward[t] = true
		}
	}

	r.status(StatusConnecting, "")
	r.watchConnection()
	for _, item := range cfg.Items {
		r.subscribeItem(item, r.onEvent, openhab.ItemEventTypes...)
		r.subscribe(openhab.ItemRawTopic(item), r.onRaw)
	}
	return r
}

func isNullState(s string) bool {
	return s == "null" || s == "NULL"
}

func (r *Relay) onEvent(ev openhab.DomainEvent) {
	if isNullState(ev.State) {
		return
	}

	if r.seen[ev.Item] || r.cfg.OutputAtStartup {
		if r.forward[ev.Type] {
			msg := NewMessage()
			msg["payload"] = ev.State
			msg["data"] = decodeJSON(ev.Payload)
			msg["item"] = ev.Item
			msg["event"] = string(ev.Type)
			msg["timestamp"] = r.timestamp(r.cfg.OHTimestamp)
			r.emit(0, msg)
		}
	}
	r.seen[ev.Item] = true

	r.currentState(ev.State)
	if r.cfg.StoreStateInFlow {
		r.storeFlow(ev.Item+"_state", ev.State)
	}
}

func (r *Relay) onRaw(ev openhab.Event) {
	raw, ok := ev.(openhab.RawEvent)
	if !ok {
		return
	}
	msg := NewMessage()
	msg["payload"] = decodeJSON(raw.Data)
	msg["item"] = raw.Item
	msg["event"] = "RawEvent"
	r.emit(1, msg)
}

// Input is ignored; relays only emit.
func (r *Relay) Input(Message) {}

// Close implements Node.
func (r *Relay) Close() {
	r.close()
}

// decodeJSON returns raw decoded into plain values, or as a string when
// it is not JSON.
func decodeJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

package nodes

import (
	"encoding/json"
	"regexp"

	"github.com/nerrad567/openhab-bridge/internal/openhab"
)

// MonitorSettings configure an events node.
type MonitorSettings struct {
	// Items limits output to events of these items; empty passes all.
	Items     []string `yaml:"items"`
	BusPrefix string   `yaml:"bus_prefix"`
}

// Monitor emits every raw bus event, decoded, on port 0. It needs raw
// events enabled on the controller.
type Monitor struct {
	base
	items   map[string]bool
	topicRe *regexp.Regexp
}

// NewMonitor attaches an events node.
func NewMonitor(deps Deps, cfg MonitorSettings) *Monitor {
	prefix := cfg.BusPrefix
	if prefix == "" {
		prefix = "smarthome"
	}
	m := &Monitor{
		base:    newBase("events", deps, LifecycleKinds...),
		items:   make(map[string]bool),
		topicRe: regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `/(?:items|things)/([^/]+)`),
	}
	for _, it := range cfg.Items {
		if it != "" {
			m.items[it] = true
		}
	}
	m.status(StatusConnecting, "")
	m.watchConnection()
	m.subscribe(openhab.RawTopic(), m.onRaw)
	return m
}

func (m *Monitor) onRaw(ev openhab.Event) {
	raw, ok := ev.(openhab.RawEvent)
	if !ok {
		return
	}

	var env struct {
		Topic   string `json:"topic"`
		Payload any    `json:"payload"`
		Type    string `json:"type"`
	}
	if err := json.Unmarshal(raw.Data, &env); err != nil {
		m.status(StatusError, "Unexpected Error : "+err.Error())
		return
	}
	if s, isString := env.Payload.(string); isString {
		env.Payload = decodeJSON(json.RawMessage(s))
	}

	if len(m.items) > 0 {
		match := m.topicRe.FindStringSubmatch(env.Topic)
		if match == nil || !m.items[match[1]] {
			return
		}
	}

	msg := NewMessage()
	msg["topic"] = env.Topic
	msg["payload"] = env.Payload
	msg["type"] = env.Type
	m.emit(0, msg)
}

// Input is ignored.
func (m *Monitor) Input(Message) {}

// Close implements Node.
func (m *Monitor) Close() {
	m.close()
}

package nodes

import (
	"fmt"
	"time"

	"github.com/nerrad567/openhab-bridge/internal/openhab"
)

// FilterBoth passes every state to the outputs.
const FilterBoth = "BOTH"

// SensorSettings configure a sensor node.
type SensorSettings struct {
	Item string `yaml:"item"`
	// TriggerState is the item state that counts as triggered.
	TriggerState string `yaml:"trigger_state"`

	// ArmItem, when set, arms the sensor while it holds ArmState.
	// Otherwise Armed is fixed.
	ArmItem  string `yaml:"arm_item"`
	ArmState string `yaml:"arm_state"`
	Armed    bool   `yaml:"armed"`

	// Filter is BOTH or the single state passed to the outputs.
	Filter string `yaml:"filter"`

	// Interval re-emits every Interval Unit while the item stays
	// triggered. Zero disables repeats.
	Interval int    `yaml:"interval"`
	Unit     string `yaml:"unit"`
}

// DefaultSensorSettings are applied before decoding configuration.
func DefaultSensorSettings() SensorSettings {
	return SensorSettings{
		TriggerState: "ON",
		ArmState:     "ON",
		Armed:        true,
		Filter:       FilterBoth,
		Unit:         "s",
	}
}

// Sensor tracks an item and an armed flag.
//
// A state change that passes the filter is emitted on port 1 and, while
// armed, on port 0. The status is the product of armed and triggered.
type Sensor struct {
	base
	cfg      SensorSettings
	interval time.Duration

	state  string
	known  bool
	armed  bool
	repeat openhab.Timer
}

// NewSensor attaches a sensor node.
func NewSensor(deps Deps, cfg SensorSettings) (*Sensor, error) {
	if cfg.Item == "" {
		return nil, fmt.Errorf("%w: sensor item is required", ErrInvalidSettings)
	}
	interval, err := unitDuration(cfg.Interval, cfg.Unit)
	if err != nil {
		return nil, err
	}
	if cfg.Filter == "" {
		cfg.Filter = FilterBoth
	}
	if cfg.TriggerState == "" {
		cfg.TriggerState = "ON"
	}
	if cfg.ArmState == "" {
		cfg.ArmState = "ON"
	}

	s := &Sensor{
		base:     newBase("sensor", deps, LifecycleKinds...),
		cfg:      cfg,
		interval: interval,
		armed:    cfg.Armed && cfg.ArmItem == "",
	}
	s.restore = s.refreshStatus
	s.refreshStatus()
	s.watchConnection()
	s.subscribeItem(cfg.Item, s.onState, openhab.ItemStateEvent, openhab.ItemStateChangedEvent)
	if cfg.ArmItem != "" {
		s.subscribeItem(cfg.ArmItem, s.onArm, openhab.ItemStateEvent, openhab.ItemStateChangedEvent)
	}
	return s, nil
}

func (s *Sensor) triggered() bool {
	return s.known && s.state == s.cfg.TriggerState
}

func (s *Sensor) passes() bool {
	return s.cfg.Filter == FilterBoth || s.state == s.cfg.Filter
}

func (s *Sensor) onState(ev openhab.DomainEvent) {
	if isNullState(ev.State) || (s.known && ev.State == s.state) {
		return
	}
	s.state, s.known = ev.State, true

	s.stopRepeat()
	if s.passes() {
		s.output(false)
		if s.interval > 0 && s.triggered() {
			s.scheduleRepeat()
		}
	}
	s.refreshStatus()
}

func (s *Sensor) onArm(ev openhab.DomainEvent) {
	armed := ev.State == s.cfg.ArmState
	if armed == s.armed {
		return
	}
	s.armed = armed
	s.refreshStatus()
}

func (s *Sensor) output(repeat bool) {
	msg := NewMessage()
	msg["payload"] = s.state
	msg["item"] = s.cfg.Item
	msg["armed"] = s.armed
	msg["repeat"] = repeat

	if s.armed {
		s.emit(0, msg)
		all := NewMessage()
		for k, v := range msg {
			if k != "_msgid" {
				all[k] = v
			}
		}
		s.emit(1, all)
		return
	}
	s.emit(1, msg)
}

func (s *Sensor) scheduleRepeat() {
	s.repeat = s.afterFunc(s.interval, func() {
		s.repeat = nil
		if !s.triggered() || !s.passes() {
			return
		}
		s.output(true)
		s.scheduleRepeat()
	})
}

func (s *Sensor) stopRepeat() {
	if s.repeat != nil {
		s.repeat.Stop()
		s.repeat = nil
	}
}

func (s *Sensor) refreshStatus() {
	kind := s.Kind()
	text := ""
	switch kind {
	case StatusTriggered:
		text = "Triggered: " + s.state
	case StatusTriggeredDisarmed:
		text = "Triggered (disarmed): " + s.state
	}
	s.status(kind, text)
}

// Kind returns the current status kind.
func (s *Sensor) Kind() StatusKind {
	switch {
	case s.armed && s.triggered():
		return StatusTriggered
	case s.triggered():
		return StatusTriggeredDisarmed
	case s.armed:
		return StatusArmed
	default:
		return StatusDisarmed
	}
}

// Input is ignored.
func (s *Sensor) Input(Message) {}

// Close implements Node.
func (s *Sensor) Close() {
	s.stopRepeat()
	s.close()
}

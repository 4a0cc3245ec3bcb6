package nodes

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/openhab-bridge/internal/openhab"
)

// Arm modes of a trigger.
const (
	ArmArmed    = "armed"
	ArmDisarmed = "disarmed"
	ArmItem     = "item"
)

// TriggerSettings configure a trigger node.
type TriggerSettings struct {
	Item       string      `yaml:"item"`
	Conditions []Condition `yaml:"conditions"`
	Logic      string      `yaml:"logic"`

	// AdditionalConditions test flow or global variables, joined with
	// AdditionalLogic (AND by default). AdditionalFrequency is
	// FrequencyFirst (default) or FrequencyAlways.
	AdditionalConditions []VariableCondition `yaml:"additional_conditions"`
	AdditionalLogic      string              `yaml:"additional_logic"`
	AdditionalFrequency  string              `yaml:"additional_frequency"`

	// OHTimestamp formats message timestamps in openHAB's local form
	// instead of epoch milliseconds.
	OHTimestamp bool `yaml:"oh_timestamp"`

	// Timer mode ends the trigger at the first expiry after the
	// conditions stopped holding; the timer restarts while they hold.
	Timer   bool   `yaml:"timer"`
	Timeout int    `yaml:"timeout"`
	Unit    string `yaml:"unit"`

	Arm            string `yaml:"arm"`
	ArmItem        string `yaml:"arm_item"`
	ArmState       string `yaml:"arm_state"`
	InputArmDisarm bool   `yaml:"input_arm_disarm"`

	// CommandItem receives StartPayload and EndPayload with
	// CommandTopic (ItemCommand or ItemUpdate) when set.
	CommandItem  string `yaml:"command_item"`
	CommandTopic string `yaml:"command_topic"`
	StartPayload string `yaml:"start_payload"`
	EndPayload   string `yaml:"end_payload"`
}

// Trigger emits a start message on port 0 when its conditions begin to
// hold while armed and an end message on port 1 when they stop.
//
// Start is edge-triggered. Additional conditions gate the start edge
// (FrequencyFirst) or every evaluation (FrequencyAlways). Disarming
// cancels the timer and clears the triggered state without an end
// message.
type Trigger struct {
	base
	cfg     TriggerSettings
	timeout time.Duration

	state     string
	known     bool
	armed     bool
	triggered bool
	timer     openhab.Timer
}

// NewTrigger attaches a trigger node.
func NewTrigger(deps Deps, cfg TriggerSettings) (*Trigger, error) {
	if cfg.Item == "" {
		return nil, fmt.Errorf("%w: trigger item is required", ErrInvalidSettings)
	}
	if len(cfg.Conditions) == 0 {
		return nil, fmt.Errorf("%w: trigger needs at least one condition", ErrInvalidSettings)
	}
	for _, c := range cfg.Conditions {
		if err := c.validate(); err != nil {
			return nil, err
		}
	}
	for _, c := range cfg.AdditionalConditions {
		if err := c.validate(); err != nil {
			return nil, err
		}
	}
	var err error
	if cfg.Logic, err = parseLogic(cfg.Logic, LogicOR); err != nil {
		return nil, err
	}
	if cfg.AdditionalLogic, err = parseLogic(cfg.AdditionalLogic, LogicAND); err != nil {
		return nil, err
	}
	switch cfg.AdditionalFrequency {
	case "":
		cfg.AdditionalFrequency = FrequencyFirst
	case FrequencyFirst, FrequencyAlways:
	default:
		return nil, fmt.Errorf("%w: unknown additional frequency %q", ErrInvalidSettings, cfg.AdditionalFrequency)
	}
	if cfg.Arm == "" {
		cfg.Arm = ArmArmed
	}
	if cfg.ArmState == "" {
		cfg.ArmState = "ON"
	}
	switch cfg.Arm {
	case ArmArmed, ArmDisarmed:
	case ArmItem:
		if cfg.ArmItem == "" {
			return nil, fmt.Errorf("%w: arm item is required in item arm mode", ErrInvalidSettings)
		}
	default:
		return nil, fmt.Errorf("%w: unknown arm mode %q", ErrInvalidSettings, cfg.Arm)
	}

	timeout, err := unitDuration(cfg.Timeout, cfg.Unit)
	if err != nil {
		return nil, err
	}
	if cfg.Timer && timeout <= 0 {
		return nil, fmt.Errorf("%w: timer mode needs a positive timeout", ErrInvalidSettings)
	}

	t := &Trigger{
		base:    newBase("trigger", deps, LifecycleKinds...),
		cfg:     cfg,
		timeout: timeout,
		armed:   cfg.Arm == ArmArmed,
	}
	t.restore = t.refreshStatus
	t.refreshStatus()
	t.watchConnection()
	t.subscribeItem(cfg.Item, t.onState, openhab.ItemStateEvent, openhab.ItemStateChangedEvent)
	if cfg.Arm == ArmItem {
		t.subscribeItem(cfg.ArmItem, t.onArmItem, openhab.ItemStateEvent, openhab.ItemStateChangedEvent)
	}
	return t, nil
}

// holds reports whether the trigger conditions hold, and the additional
// conditions too when they are checked always.
func (t *Trigger) holds() bool {
	if !t.known || !evaluate(t.cfg.Conditions, t.cfg.Logic, t.state) {
		return false
	}
	return t.cfg.AdditionalFrequency != FrequencyAlways || t.additionalHold()
}

// additionalHold evaluates the variable conditions. None configured
// always holds.
func (t *Trigger) additionalHold() bool {
	conds := t.cfg.AdditionalConditions
	if len(conds) == 0 {
		return true
	}
	return join(len(conds), t.cfg.AdditionalLogic, func(i int) bool {
		return t.variableHolds(conds[i])
	})
}

// variableHolds fails when either side is unset.
func (t *Trigger) variableHolds(vc VariableCondition) bool {
	v, ok := t.lookup(vc.Scope, vc.Variable)
	if !ok {
		return false
	}
	left := openhab.FormatPayload(v)

	c := Condition{Comparator: vc.Comparator, Type: vc.Type, Value: vc.Value}
	switch vc.Type {
	case TypeFlow, TypeGlobal:
		rv, ok := t.lookup(vc.Type, vc.Value)
		if !ok {
			return false
		}
		c.Type, c.Value = "", openhab.FormatPayload(rv)
	case TypePayload:
		c.Type, c.Value = "", t.state
	}
	return c.Holds(left)
}

func (t *Trigger) onState(ev openhab.DomainEvent) {
	if isNullState(ev.State) {
		return
	}
	t.state, t.known = ev.State, true
	t.evaluate()
}

func (t *Trigger) evaluate() {
	if !t.armed {
		t.refreshStatus()
		return
	}

	switch holds := t.holds(); {
	case holds && !t.triggered:
		if t.cfg.AdditionalFrequency == FrequencyFirst && !t.additionalHold() {
			t.logger.Debug("additional conditions not met", "node", t.deps.ID, "state", t.state)
			break
		}
		t.triggered = true
		t.output(0, "start", t.cfg.StartPayload)
		if t.cfg.Timer {
			t.startTimer()
		}
	case !holds && t.triggered && !t.cfg.Timer:
		t.end()
	}
	t.refreshStatus()
}

func (t *Trigger) startTimer() {
	t.timer = t.afterFunc(t.timeout, t.expire)
}

func (t *Trigger) expire() {
	t.timer = nil
	if !t.triggered {
		return
	}
	if t.holds() {
		t.startTimer()
		return
	}
	t.end()
	t.refreshStatus()
}

func (t *Trigger) end() {
	t.triggered = false
	t.output(1, "end", t.cfg.EndPayload)
}

func (t *Trigger) stopTimer() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *Trigger) output(port int, phase, payload string) {
	msg := NewMessage()
	msg["payload"] = t.state
	msg["item"] = t.cfg.Item
	msg["event"] = phase
	msg["timestamp"] = t.timestamp(t.cfg.OHTimestamp)
	t.emit(port, msg)

	if t.cfg.CommandItem != "" && payload != "" {
		topic := t.cfg.CommandTopic
		if topic == "" {
			topic = openhab.TopicItemCommand
		}
		t.send(t.cfg.CommandItem, openhab.ParseCommandKind(topic), payload, func(res openhab.Result) {
			if !res.OK() {
				t.status(StatusError, fmt.Sprintf("%v", res.Err))
			}
		})
	}
}

// SetArmed arms or disarms the trigger. Arming re-evaluates the last
// state, so a condition that already holds starts the trigger.
func (t *Trigger) SetArmed(armed bool) {
	if armed == t.armed {
		return
	}
	t.armed = armed
	if !armed {
		t.stopTimer()
		t.triggered = false
		t.refreshStatus()
		return
	}
	t.evaluate()
}

func (t *Trigger) onArmItem(ev openhab.DomainEvent) {
	t.SetArmed(ev.State == t.cfg.ArmState)
}

// Input arms or disarms when InputArmDisarm is set. The payload is
// "arm"/"disarm", "ON"/"OFF" or a boolean.
func (t *Trigger) Input(msg Message) {
	t.guard("input", func() {
		if !t.cfg.InputArmDisarm {
			return
		}
		switch v := msg["payload"].(type) {
		case bool:
			t.SetArmed(v)
		case string:
			switch strings.ToLower(v) {
			case "arm", "on", "true":
				t.SetArmed(true)
			case "disarm", "off", "false":
				t.SetArmed(false)
			default:
				t.logger.Warn("ignoring arm input", "node", t.deps.ID, "payload", v)
			}
		}
	})
}

// Kind returns the current status kind.
func (t *Trigger) Kind() StatusKind {
	switch {
	case t.armed && t.triggered:
		return StatusTriggered
	case t.armed:
		return StatusArmed
	default:
		return StatusDisarmed
	}
}

func (t *Trigger) refreshStatus() {
	text := ""
	if t.known {
		text = string(t.Kind()) + ": " + t.state
	}
	t.status(t.Kind(), text)
}

// Close implements Node.
func (t *Trigger) Close() {
	t.stopTimer()
	t.close()
}

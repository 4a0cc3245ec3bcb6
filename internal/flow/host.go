package flow

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/openhab-bridge/internal/infrastructure/config"
	"github.com/nerrad567/openhab-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/openhab-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/openhab-bridge/internal/nodes"
	"github.com/nerrad567/openhab-bridge/internal/openhab"
	"github.com/nerrad567/openhab-bridge/internal/store"
)

// Broadcast channels used for live viewers.
const (
	ChannelItemEvent  = "item.event"
	ChannelConnection = "controller.connection"
	ChannelNodeStatus = "node.status"
	ChannelNodeOutput = "node.output"
)

// Logger is the logging surface used by the host.
type Logger = openhab.Logger

// MQTTClient is the broker surface the host needs. *mqtt.Client satisfies it.
type MQTTClient interface {
	PublishDefault(topic string, payload []byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// History records item events. *influxdb.Client satisfies it.
type History interface {
	WriteItemState(s influxdb.ItemState)
}

// Broadcaster fans events out to live viewers.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Metrics receives controller and node counters. *metrics.Metrics
// satisfies it.
type Metrics interface {
	openhab.Instrumentation
	ObserveNodeOutput(nodeID, nodeType, port string)
}

// Deps configures a Host. Only Controllers is required; every other
// collaborator is optional.
type Deps struct {
	Controllers []config.ControllerConfig
	Nodes       []config.NodeConfig

	Store   store.Store
	MQTT    MQTTClient
	Topics  mqtt.Topics
	QoS     byte
	History History
	Hub     Broadcaster
	Metrics Metrics
	Logger  Logger

	// ControllerOptions adjusts each controller's options before it is
	// built. Tests use it to inject fake transports and executors.
	ControllerOptions func(*openhab.Options)
	// Now defaults to time.Now.
	Now func() time.Time
}

// NodeView is a snapshot of one hosted node.
type NodeView struct {
	ID         string       `json:"id"`
	Type       string       `json:"type"`
	Name       string       `json:"name,omitempty"`
	Controller string       `json:"controller"`
	Status     nodes.Status `json:"status"`
}

type hostedNode struct {
	cfg  config.NodeConfig
	ctrl *openhab.Controller
	node nodes.Node
}

// Host owns the controllers and nodes of one bridge.
//
// Lifecycle: New builds everything, Start connects the controllers and
// subscribes node inputs, Stop tears down in reverse order.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
//   - Node state lives on the owning controller's executor; the host
//     only posts to it.
type Host struct {
	deps   Deps
	logger Logger

	// Fixed after New; read without mu.
	controllers []*openhab.Controller
	byName      map[string]*openhab.Controller
	nodes       []*hostedNode
	byID        map[string]*hostedNode

	mu       sync.RWMutex
	statuses map[string]nodes.Status // last status per node id
	started  bool
	stopped  bool
}

// New builds every controller and node. Nothing connects until Start.
func New(deps Deps) (*Host, error) {
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	if deps.Store == nil {
		deps.Store = store.NewMemory()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	h := &Host{
		deps:     deps,
		logger:   deps.Logger,
		byName:   make(map[string]*openhab.Controller),
		byID:     make(map[string]*hostedNode),
		statuses: make(map[string]nodes.Status),
	}

	pool := openhab.NewDirectoryPool()
	for _, cc := range deps.Controllers {
		if _, dup := h.byName[cc.Name]; dup {
			return nil, fmt.Errorf("%w: controller %q", ErrDuplicate, cc.Name)
		}
		opts := openhab.Options{
			Config:      cc,
			Directories: pool,
			Store:       deps.Store,
			Logger:      deps.Logger,
		}
		if deps.Metrics != nil {
			opts.Metrics = deps.Metrics
		}
		if deps.ControllerOptions != nil {
			deps.ControllerOptions(&opts)
		}
		ctrl, err := openhab.NewController(opts)
		if err != nil {
			return nil, err
		}
		ctrl.AddTap(h.tap(ctrl.Name()))
		h.controllers = append(h.controllers, ctrl)
		h.byName[ctrl.Name()] = ctrl
	}

	for _, nc := range deps.Nodes {
		if err := h.addNode(nc); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Host) addNode(nc config.NodeConfig) error {
	if _, dup := h.byID[nc.ID]; dup {
		return fmt.Errorf("%w: node %q", ErrDuplicate, nc.ID)
	}
	ctrl, ok := h.byName[nc.Controller]
	if !ok {
		return fmt.Errorf("%w: node %q uses %q", ErrUnknownController, nc.ID, nc.Controller)
	}

	hn := &hostedNode{cfg: nc, ctrl: ctrl}
	node, err := nodes.New(nc, nodes.Deps{
		ID:         nc.ID,
		FlowID:     nc.Flow,
		Controller: ctrl,
		Output:     h.output(nc),
		Status:     h.status(nc),
		Store:      h.deps.Store,
		Logger:     h.deps.Logger,
		Now:        h.deps.Now,
	})
	if err != nil {
		return fmt.Errorf("node %q: %w", nc.ID, err)
	}
	hn.node = node

	h.nodes = append(h.nodes, hn)
	h.byID[nc.ID] = hn
	return nil
}

// Start subscribes to node input topics and connects every controller.
func (h *Host) Start() error {
	h.mu.Lock()
	if h.started || h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.started = true
	h.mu.Unlock()

	if h.deps.MQTT != nil && len(h.nodes) > 0 {
		topic := h.deps.Topics.AllNodeInputs()
		if err := h.deps.MQTT.Subscribe(topic, h.deps.QoS, h.handleInput); err != nil {
			return fmt.Errorf("subscribing to node inputs: %w", err)
		}
	}

	for _, ctrl := range h.controllers {
		ctrl.Start()
	}
	h.logger.Info("flow host started", "controllers", len(h.controllers), "nodes", len(h.nodes))
	return nil
}

// Stop closes every node on its executor, then stops the controllers.
func (h *Host) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	started := h.started
	h.mu.Unlock()

	if started && h.deps.MQTT != nil && len(h.nodes) > 0 {
		if err := h.deps.MQTT.Unsubscribe(h.deps.Topics.AllNodeInputs()); err != nil {
			h.logger.Warn("unsubscribing node inputs failed", "error", err)
		}
	}

	for _, hn := range h.nodes {
		hn.ctrl.Post(hn.node.Close)
	}
	for _, ctrl := range h.controllers {
		ctrl.Stop()
	}
	h.logger.Info("flow host stopped")
}

// Controllers returns the hosted controllers in configuration order.
func (h *Host) Controllers() []*openhab.Controller {
	out := make([]*openhab.Controller, len(h.controllers))
	copy(out, h.controllers)
	return out
}

// Controller looks up a controller by name.
func (h *Host) Controller(name string) (*openhab.Controller, bool) {
	c, ok := h.byName[name]
	return c, ok
}

// Nodes returns a snapshot of every hosted node in configuration order.
func (h *Host) Nodes() []NodeView {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]NodeView, 0, len(h.nodes))
	for _, hn := range h.nodes {
		out = append(out, NodeView{
			ID:         hn.cfg.ID,
			Type:       hn.cfg.Type,
			Name:       hn.cfg.Name,
			Controller: hn.cfg.Controller,
			Status:     h.statuses[hn.cfg.ID],
		})
	}
	return out
}

// Inject delivers msg to a node on its controller executor. A message
// without an id gets one.
func (h *Host) Inject(nodeID string, msg nodes.Message) error {
	h.mu.RLock()
	stopped := h.stopped
	h.mu.RUnlock()
	if stopped {
		return ErrStopped
	}

	hn, ok := h.byID[nodeID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNode, nodeID)
	}
	if msg == nil {
		msg = nodes.NewMessage()
	}
	msg.ID()
	hn.ctrl.Post(func() { hn.node.Input(msg) })
	return nil
}

// handleInput decodes a node input publication. A JSON object becomes
// the message; anything else becomes its payload.
func (h *Host) handleInput(topic string, payload []byte) error {
	id, ok := h.deps.Topics.ParseNodeInput(topic)
	if !ok {
		return nil
	}

	msg := nodes.NewMessage()
	var obj map[string]any
	if err := json.Unmarshal(payload, &obj); err == nil && obj != nil {
		for k, v := range obj {
			msg[k] = v
		}
	} else {
		msg["payload"] = string(payload)
	}

	if err := h.Inject(id, msg); err != nil {
		h.logger.Warn("dropping node input", "topic", topic, "error", err)
	}
	return nil
}

func (h *Host) output(nc config.NodeConfig) func(int, nodes.Message) {
	return func(port int, msg nodes.Message) {
		if h.deps.Metrics != nil {
			h.deps.Metrics.ObserveNodeOutput(nc.ID, nc.Type, strconv.Itoa(port))
		}
		if h.deps.Hub != nil {
			h.deps.Hub.Broadcast(ChannelNodeOutput, map[string]any{
				"node":    nc.ID,
				"port":    port,
				"message": msg,
			})
		}

		if h.deps.MQTT == nil {
			h.logger.Debug("node output", "node", nc.ID, "port", port, "msgid", msg.ID())
			return
		}
		data, err := json.Marshal(msg)
		if err != nil {
			h.logger.Error("encoding node output failed", "node", nc.ID, "error", err)
			return
		}
		if err := h.deps.MQTT.PublishDefault(h.deps.Topics.NodeOutput(nc.ID, port), data, false); err != nil {
			h.logger.Warn("publishing node output failed", "node", nc.ID, "port", port, "error", err)
		}
	}
}

func (h *Host) status(nc config.NodeConfig) func(nodes.Status) {
	return func(st nodes.Status) {
		h.mu.Lock()
		h.statuses[nc.ID] = st
		h.mu.Unlock()

		if h.deps.Hub != nil {
			h.deps.Hub.Broadcast(ChannelNodeStatus, NodeView{
				ID:         nc.ID,
				Type:       nc.Type,
				Name:       nc.Name,
				Controller: nc.Controller,
				Status:     st,
			})
		}
		if h.deps.MQTT == nil {
			return
		}
		data, err := json.Marshal(st)
		if err != nil {
			return
		}
		if err := h.deps.MQTT.PublishDefault(h.deps.Topics.NodeStatus(nc.ID), data, true); err != nil {
			h.logger.Debug("publishing node status failed", "node", nc.ID, "error", err)
		}
	}
}

// tap observes every event a controller dispatches. It runs on the
// controller executor.
func (h *Host) tap(controller string) func(openhab.Event) {
	return func(ev openhab.Event) {
		switch e := ev.(type) {
		case openhab.DomainEvent:
			if h.deps.History != nil {
				h.deps.History.WriteItemState(influxdb.ItemState{
					Controller: controller,
					Item:       e.Item,
					EventType:  string(e.Type),
					State:      e.State,
					Time:       h.deps.Now(),
				})
			}
			if h.deps.Hub != nil {
				h.deps.Hub.Broadcast(ChannelItemEvent, map[string]any{
					"controller": controller,
					"item":       e.Item,
					"type":       e.Type,
					"state":      e.State,
				})
			}
		case openhab.ConnectionEvent:
			if h.deps.Hub != nil {
				h.deps.Hub.Broadcast(ChannelConnection, map[string]any{
					"controller": controller,
					"state":      e.State,
					"message":    e.Message,
				})
			}
		}
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

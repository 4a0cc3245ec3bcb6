package flow_test

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/nerrad567/openhab-bridge/internal/flow"
	"github.com/nerrad567/openhab-bridge/internal/infrastructure/config"
	"github.com/nerrad567/openhab-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/openhab-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/openhab-bridge/internal/nodes"
	"github.com/nerrad567/openhab-bridge/internal/openhab"
	"github.com/nerrad567/openhab-bridge/internal/openhab/openhabtest"
)

const base = "http://oh:8080"

type publication struct {
	topic    string
	payload  string
	retained bool
}

type fakeMQTT struct {
	mu           sync.Mutex
	published    []publication
	handlers     map[string]mqtt.MessageHandler
	unsubscribed []string
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{handlers: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeMQTT) PublishDefault(topic string, payload []byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publication{topic, string(payload), retained})
	return nil
}

func (f *fakeMQTT) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeMQTT) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, topic)
	delete(f.handlers, topic)
	return nil
}

func (f *fakeMQTT) deliver(t *testing.T, filter, topic, payload string) {
	t.Helper()
	f.mu.Lock()
	h, ok := f.handlers[filter]
	f.mu.Unlock()
	require.True(t, ok, "no subscription for %s", filter)
	require.NoError(t, h(topic, []byte(payload)))
}

func (f *fakeMQTT) on(topic string) []publication {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []publication
	for _, p := range f.published {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

type fakeHub struct {
	mu     sync.Mutex
	events map[string][]any
}

func (h *fakeHub) Broadcast(channel string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.events == nil {
		h.events = make(map[string][]any)
	}
	h.events[channel] = append(h.events[channel], payload)
}

func (h *fakeHub) count(channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events[channel])
}

type fakeHistory struct {
	states []influxdb.ItemState
}

func (f *fakeHistory) WriteItemState(s influxdb.ItemState) {
	f.states = append(f.states, s)
}

type fakeMetrics struct {
	outputs []string
}

func (fakeMetrics) ObserveEvent(string, string)        {}
func (fakeMetrics) ObserveConnection(string, string)   {}
func (fakeMetrics) ObserveParseError(string)           {}
func (fakeMetrics) ObserveRequest(string, string, bool) {}
func (m *fakeMetrics) ObserveNodeOutput(nodeID, _, port string) {
	m.outputs = append(m.outputs, nodeID+":"+port)
}

type harness struct {
	host      *flow.Host
	exec      *openhabtest.Executor
	requester *openhabtest.Requester
	dialer    *openhabtest.Dialer
	mqtt      *fakeMQTT
	hub       *fakeHub
	history   *fakeHistory
	metrics   *fakeMetrics
	topics    mqtt.Topics
}

func decodeNodes(t *testing.T, src string) []config.NodeConfig {
	t.Helper()
	var out []config.NodeConfig
	require.NoError(t, yaml.Unmarshal([]byte(src), &out))
	return out
}

func newHarness(t *testing.T, nodesYAML string) *harness {
	t.Helper()

	h := &harness{
		exec:      openhabtest.NewExecutor(),
		requester: openhabtest.NewRequester(),
		dialer:    openhabtest.NewDialer(),
		mqtt:      newFakeMQTT(),
		hub:       &fakeHub{},
		history:   &fakeHistory{},
		metrics:   &fakeMetrics{},
		topics:    mqtt.Topics{Prefix: "ohbridge"},
	}
	h.requester.ReplyItems(base, openhabtest.ItemList())

	host, err := flow.New(flow.Deps{
		Controllers: []config.ControllerConfig{{Name: "home", Host: "oh", Port: "8080"}},
		Nodes:       decodeNodes(t, nodesYAML),
		MQTT:        h.mqtt,
		Topics:      h.topics,
		History:     h.history,
		Hub:         h.hub,
		Metrics:     h.metrics,
		ControllerOptions: func(o *openhab.Options) {
			o.Executor = h.exec
			o.Requester = h.requester
			o.Dialer = h.dialer
		},
	})
	require.NoError(t, err)
	h.host = host
	return h
}

func (h *harness) start(t *testing.T) *openhabtest.Stream {
	t.Helper()
	require.NoError(t, h.host.Start())
	h.exec.Drain()
	s := h.dialer.Last()
	require.NotNil(t, s)
	s.Open()
	h.exec.Drain()
	require.True(t, h.exec.Await(time.Second))
	return s
}

const relayNodes = `
- id: relay1
  type: in
  controller: home
  settings:
    items: [Light]
    output_at_startup: true
`

const outNodes = `
- id: out1
  type: out
  controller: home
  settings:
    item: Light
    topic: ItemCommand
    payload: payload
    payload_type: msg
`

func TestNew_Errors(t *testing.T) {
	ctrls := []config.ControllerConfig{{Name: "home", Host: "oh"}}

	_, err := flow.New(flow.Deps{Controllers: append(ctrls, ctrls[0])})
	assert.ErrorIs(t, err, flow.ErrDuplicate)

	_, err = flow.New(flow.Deps{
		Controllers: ctrls,
		Nodes:       decodeNodes(t, "- {id: a, type: in, controller: away}\n"),
	})
	assert.ErrorIs(t, err, flow.ErrUnknownController)

	_, err = flow.New(flow.Deps{
		Controllers: ctrls,
		Nodes:       decodeNodes(t, "- {id: a, type: get, controller: home}\n- {id: a, type: get, controller: home}\n"),
	})
	assert.ErrorIs(t, err, flow.ErrDuplicate)

	_, err = flow.New(flow.Deps{
		Controllers: ctrls,
		Nodes:       decodeNodes(t, "- {id: a, type: dimmer, controller: home}\n"),
	})
	assert.ErrorIs(t, err, nodes.ErrUnknownType)

	_, err = flow.New(flow.Deps{Controllers: []config.ControllerConfig{{Name: "home"}}})
	assert.ErrorIs(t, err, openhab.ErrInvalidConfig)
}

func TestHost_Lookup(t *testing.T) {
	h := newHarness(t, relayNodes)

	ctrl, ok := h.host.Controller("home")
	require.True(t, ok)
	assert.Equal(t, "home", ctrl.Name())
	_, ok = h.host.Controller("away")
	assert.False(t, ok)
	assert.Len(t, h.host.Controllers(), 1)

	views := h.host.Nodes()
	require.Len(t, views, 1)
	assert.Equal(t, "relay1", views[0].ID)
	assert.Equal(t, "in", views[0].Type)
	assert.Equal(t, nodes.StatusIdle, views[0].Status.Kind)
}

func TestHost_RelayOutputIsPublished(t *testing.T) {
	h := newHarness(t, relayNodes)
	s := h.start(t)

	s.Message(openhabtest.ItemMessage("Light", "ItemStateChangedEvent", "ON"))
	h.exec.Drain()

	outs := h.mqtt.on(h.topics.NodeOutput("relay1", 0))
	require.Len(t, outs, 1)
	assert.False(t, outs[0].retained)
	assert.Contains(t, outs[0].payload, `"payload":"ON"`)
	assert.Contains(t, outs[0].payload, `"item":"Light"`)
	assert.Equal(t, []string{"relay1:0"}, h.metrics.outputs)
	assert.Equal(t, 1, h.hub.count(flow.ChannelNodeOutput))

	require.Len(t, h.history.states, 1)
	assert.Equal(t, influxdb.ItemState{
		Controller: "home",
		Item:       "Light",
		EventType:  "ItemStateChangedEvent",
		State:      "ON",
		Time:       h.history.states[0].Time,
	}, h.history.states[0])
	assert.Equal(t, 1, h.hub.count(flow.ChannelItemEvent))
}

func TestHost_StatusIsRetained(t *testing.T) {
	h := newHarness(t, relayNodes)
	s := h.start(t)

	s.Message(openhabtest.ItemMessage("Light", "ItemStateEvent", "OFF"))
	h.exec.Drain()

	statuses := h.mqtt.on(h.topics.NodeStatus("relay1"))
	require.NotEmpty(t, statuses)
	last := statuses[len(statuses)-1]
	assert.True(t, last.retained)
	assert.JSONEq(t, `{"kind":"CurrentState","text":"State: OFF"}`, last.payload)

	assert.Equal(t, nodes.StatusCurrentState, h.host.Nodes()[0].Status.Kind)
	assert.Positive(t, h.hub.count(flow.ChannelConnection))
}

func TestHost_InputFromMQTTSendsCommand(t *testing.T) {
	h := newHarness(t, outNodes)
	h.start(t)

	h.mqtt.deliver(t, h.topics.AllNodeInputs(), h.topics.NodeInput("out1"), `{"payload":"OFF"}`)
	h.exec.Drain()
	require.True(t, h.exec.Await(time.Second))

	h.mqtt.deliver(t, h.topics.AllNodeInputs(), h.topics.NodeInput("out1"), `ON`)
	h.exec.Drain()
	require.True(t, h.exec.Await(time.Second))

	calls := h.requester.CallsTo(http.MethodPost, base+"/rest/items/Light")
	require.Len(t, calls, 2)
	assert.Equal(t, "OFF", calls[0].Body)
	assert.Equal(t, "ON", calls[1].Body)
}

func TestHost_InputForUnknownNodeIsDropped(t *testing.T) {
	h := newHarness(t, outNodes)
	h.start(t)

	h.mqtt.deliver(t, h.topics.AllNodeInputs(), h.topics.NodeInput("ghost"), `{"payload":"OFF"}`)
	assert.Zero(t, h.exec.Drain())
	assert.Empty(t, h.requester.CallsTo(http.MethodPost, base+"/rest/items/Light"))
}

func TestHost_Inject(t *testing.T) {
	h := newHarness(t, outNodes)
	h.start(t)

	assert.ErrorIs(t, h.host.Inject("ghost", nil), flow.ErrUnknownNode)

	msg := nodes.Message{"payload": "ON"}
	require.NoError(t, h.host.Inject("out1", msg))
	assert.NotEmpty(t, msg.ID())
	h.exec.Drain()
	require.True(t, h.exec.Await(time.Second))
	assert.Len(t, h.requester.CallsTo(http.MethodPost, base+"/rest/items/Light"), 1)
}

func TestHost_Stop(t *testing.T) {
	h := newHarness(t, outNodes)
	s := h.start(t)

	h.host.Stop()
	h.exec.Drain()

	assert.True(t, s.Closed())
	assert.Equal(t, []string{h.topics.AllNodeInputs()}, h.mqtt.unsubscribed)
	assert.Equal(t, openhab.StateDisconnected, h.host.Controllers()[0].Status().State)
	assert.ErrorIs(t, h.host.Inject("out1", nil), flow.ErrStopped)

	// Stopping twice is a no-op.
	h.host.Stop()
	assert.Len(t, h.mqtt.unsubscribed, 1)
}

func TestHost_WithoutMQTT(t *testing.T) {
	exec := openhabtest.NewExecutor()
	dialer := openhabtest.NewDialer()
	host, err := flow.New(flow.Deps{
		Controllers: []config.ControllerConfig{{Name: "home", Host: "oh"}},
		Nodes:       decodeNodes(t, relayNodes),
		ControllerOptions: func(o *openhab.Options) {
			o.Executor = exec
			o.Dialer = dialer
			o.Requester = openhabtest.NewRequester()
		},
	})
	require.NoError(t, err)
	require.NoError(t, host.Start())
	exec.Drain()

	dialer.Last().Message(openhabtest.ItemMessage("Light", "ItemStateEvent", "ON"))
	exec.Drain()
	assert.Equal(t, nodes.StatusCurrentState, host.Nodes()[0].Status.Kind)

	host.Stop()
	exec.Drain()
}

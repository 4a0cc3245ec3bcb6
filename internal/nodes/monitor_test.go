package nodes

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/openhab-bridge/internal/openhab"
)

func rawEvent(topic, payload, typ string) openhab.RawEvent {
	b, _ := json.Marshal(map[string]string{"topic": topic, "payload": payload, "type": typ})
	return openhab.RawEvent{Data: b}
}

func TestMonitor_EmitsDecodedEvents(t *testing.T) {
	r := newRecorder()
	NewMonitor(r.deps(), MonitorSettings{})

	r.ctrl.Publish(openhab.RawTopic(), rawEvent("smarthome/items/Light/state", `{"type":"OnOff","value":"ON"}`, "ItemStateEvent"))

	require.Len(t, r.outputs[0], 1)
	msg := r.outputs[0][0]
	assert.Equal(t, "smarthome/items/Light/state", msg["topic"])
	assert.Equal(t, "ItemStateEvent", msg["type"])
	assert.Equal(t, map[string]any{"type": "OnOff", "value": "ON"}, msg["payload"])
}

func TestMonitor_ItemFilter(t *testing.T) {
	r := newRecorder()
	NewMonitor(r.deps(), MonitorSettings{Items: []string{"Light", ""}})

	r.ctrl.Publish(openhab.RawTopic(), rawEvent("smarthome/items/Door/state", `{}`, "ItemStateEvent"))
	r.ctrl.Publish(openhab.RawTopic(), rawEvent("smarthome/things/zwave1/status", `{}`, "ThingStatusInfoEvent"))
	r.ctrl.Publish(openhab.RawTopic(), rawEvent("smarthome/items/Light/command", `{}`, "ItemCommandEvent"))

	require.Len(t, r.outputs[0], 1)
	assert.Equal(t, "ItemCommandEvent", r.outputs[0][0]["type"])
}

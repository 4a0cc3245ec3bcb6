package openhab

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func streamMessage(t *testing.T, topic, eventType string, payload any) []byte {
	t.Helper()
	inner, err := json.Marshal(payload)
	require.NoError(t, err)
	data, err := json.Marshal(map[string]string{
		"topic":   topic,
		"payload": string(inner),
		"type":    eventType,
	})
	require.NoError(t, err)
	return data
}

func TestParseMessage(t *testing.T) {
	data := streamMessage(t, "smarthome/items/Light_Kitchen/statechanged", "ItemStateChangedEvent",
		map[string]string{"type": "OnOff", "value": "ON", "oldType": "OnOff", "oldValue": "OFF"})

	msg, err := ParseMessage(data, "smarthome")
	require.NoError(t, err)

	assert.True(t, msg.Forward())
	assert.Equal(t, "Light_Kitchen", msg.Item)
	assert.Equal(t, DomainEvent{
		Item:    "Light_Kitchen",
		Type:    ItemStateChangedEvent,
		State:   "ON",
		Payload: json.RawMessage(`{"oldType":"OnOff","oldValue":"OFF","type":"OnOff","value":"ON"}`),
	}, msg.Event)
}

func TestParseMessage_Values(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"string", "21.5", "21.5"},
		{"number", 12, "12"},
		{"float", 0.25, "0.25"},
		{"exponent", 1e21, "1000000000000000000000"},
		{"bool", true, "true"},
		{"null", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := streamMessage(t, "smarthome/items/X/state", "ItemStateEvent",
				map[string]any{"type": "Decimal", "value": tt.value})
			msg, err := ParseMessage(data, "smarthome")
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.Event.State)
		})
	}
}

func TestParseMessage_OtherEventTypesNotForwarded(t *testing.T) {
	data := streamMessage(t, "smarthome/items/Group1/Member/statechanged", "GroupItemStateChangedEvent",
		map[string]string{"type": "OnOff", "value": "ON"})

	msg, err := ParseMessage(data, "smarthome")
	require.NoError(t, err)
	assert.Equal(t, "Group1", msg.Item)
	assert.False(t, msg.Forward())
}

func TestParseMessage_CustomBusPrefix(t *testing.T) {
	data := streamMessage(t, "openhab/items/Temp/command", "ItemCommandEvent",
		map[string]string{"type": "Decimal", "value": "3"})

	msg, err := ParseMessage(data, "openhab")
	require.NoError(t, err)
	assert.Equal(t, "Temp", msg.Item)
	assert.Equal(t, ItemCommandEvent, msg.Event.Type)

	_, err = ParseMessage(data, "smarthome")
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestParseMessage_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{{`},
		{"payload not json", `{"topic":"smarthome/items/A/state","payload":"{bad","type":"ItemStateEvent"}`},
		{"empty payload", `{"topic":"smarthome/items/A/state","payload":"","type":"ItemStateEvent"}`},
		{"payload not an object", `{"topic":"smarthome/items/A/state","payload":"[1]","type":"ItemStateEvent"}`},
		{"missing topic", `{"payload":"{}","type":"ItemStateEvent"}`},
		{"foreign topic", `{"topic":"smarthome/things/A/status","payload":"{}","type":"ThingStatusInfoEvent"}`},
		{"empty item", `{"topic":"smarthome/items//state","payload":"{}","type":"ItemStateEvent"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMessage([]byte(tt.data), "smarthome")
			assert.ErrorIs(t, err, ErrMalformedMessage)
		})
	}
}

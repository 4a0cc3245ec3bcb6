package nodes

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/openhab-bridge/internal/openhab"
	"github.com/nerrad567/openhab-bridge/internal/store"
)

func TestOut_Resolution(t *testing.T) {
	tests := []struct {
		name     string
		cfg      OutSettings
		msg      Message
		wantItem string
		wantKind openhab.CommandKind
		want     any
	}{
		{
			name:     "static",
			cfg:      OutSettings{Item: "Light", CommandSettings: CommandSettings{Topic: "ItemCommand", TopicType: TypeCommandType, Payload: "ON", PayloadType: TypePayload}},
			msg:      Message{},
			wantItem: "Light", wantKind: openhab.Command, want: "ON",
		},
		{
			name:     "item and payload from message",
			cfg:      OutSettings{CommandSettings: CommandSettings{Topic: "ItemUpdate", TopicType: TypeString, Payload: "payload", PayloadType: TypeMessage}},
			msg:      Message{"item": "Dimmer", "payload": 40.0},
			wantItem: "Dimmer", wantKind: openhab.StateUpdate, want: 40.0,
		},
		{
			name:     "topic from message",
			cfg:      OutSettings{Item: "Light", CommandSettings: CommandSettings{Topic: "topic", TopicType: TypeMessage, Payload: "OFF"}},
			msg:      Message{"topic": "ItemCommand"},
			wantItem: "Light", wantKind: openhab.Command, want: "OFF",
		},
		{
			name:     "number",
			cfg:      OutSettings{Item: "Dimmer", CommandSettings: CommandSettings{Topic: "ItemCommand", Payload: "12.5", PayloadType: TypeNumber}},
			msg:      Message{},
			wantItem: "Dimmer", wantKind: openhab.Command, want: 12.5,
		},
		{
			name:     "date",
			cfg:      OutSettings{Item: "Stamp", CommandSettings: CommandSettings{Topic: "ItemUpdate", PayloadType: TypeDate}},
			msg:      Message{},
			wantItem: "Stamp", wantKind: openhab.StateUpdate, want: int64(1700000000000),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRecorder()
			NewOut(r.deps(), tt.cfg).Input(tt.msg)

			require.Len(t, r.ctrl.sends, 1)
			s := r.ctrl.sends[0]
			assert.Equal(t, tt.wantItem, s.item)
			assert.Equal(t, tt.wantKind, s.kind)
			assert.Equal(t, tt.want, s.payload)
		})
	}
}

func TestOut_StoredPayload(t *testing.T) {
	r := newRecorder()
	ctx := context.Background()
	require.NoError(t, r.store.Set(ctx, store.Flow("f1"), "scene", "EVENING"))
	require.NoError(t, r.store.Set(ctx, store.Global, "mode", "AWAY"))

	NewOut(r.deps(), OutSettings{Item: "Scene", CommandSettings: CommandSettings{Topic: "ItemCommand", Payload: "scene", PayloadType: TypeFlow}}).Input(Message{})
	NewOut(r.deps(), OutSettings{Item: "Mode", CommandSettings: CommandSettings{Topic: "ItemCommand", Payload: "mode", PayloadType: TypeGlobal}}).Input(Message{})

	require.Len(t, r.ctrl.sends, 2)
	assert.Equal(t, "EVENING", r.ctrl.sends[0].payload)
	assert.Equal(t, "AWAY", r.ctrl.sends[1].payload)
}

func TestOut_MissingFields(t *testing.T) {
	tests := []struct {
		name    string
		cfg     OutSettings
		msg     Message
		want    StatusKind
		wantErr error
	}{
		{"no item", OutSettings{CommandSettings: CommandSettings{Topic: "ItemCommand", Payload: "ON"}}, Message{}, StatusNoTopic, ErrNoTopic},
		{"no topic", OutSettings{Item: "Light", CommandSettings: CommandSettings{Topic: "topic", TopicType: TypeMessage, Payload: "ON"}}, Message{}, StatusNoTopic, ErrNoTopic},
		{"no payload", OutSettings{Item: "Light", CommandSettings: CommandSettings{Topic: "ItemCommand", Payload: "payload", PayloadType: TypeMessage}}, Message{}, StatusNoPayload, ErrNoPayload},
		{"missing flow key", OutSettings{Item: "Light", CommandSettings: CommandSettings{Topic: "ItemCommand", Payload: "nope", PayloadType: TypeFlow}}, Message{}, StatusNoPayload, ErrNoPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRecorder()
			NewOut(r.deps(), tt.cfg).Input(tt.msg)

			assert.Empty(t, r.ctrl.sends)
			assert.Equal(t, tt.want, r.last().Kind)

			entry, ok := r.log.find("command not sent")
			require.True(t, ok)
			assert.Equal(t, "debug", entry.level)
			assert.Equal(t, tt.wantErr, entry.arg("error"))
		})
	}
}

func TestOut_FailureStatus(t *testing.T) {
	r := newRecorder()
	r.ctrl.result = openhab.Result{Err: errors.New("response status 404")}
	NewOut(r.deps(), OutSettings{Item: "Light", CommandSettings: CommandSettings{Topic: "ItemCommand", Payload: "ON"}}).Input(Message{})

	r.ctrl.exec.Drain()
	assert.Equal(t, Status{Kind: StatusError, Text: "response status 404"}, r.last())
}

func TestOut_TracksItemState(t *testing.T) {
	r := newRecorder()
	NewOut(r.deps(), OutSettings{Item: "Light", StoreStateInFlow: true})
	assert.Equal(t, StatusIdle, r.last().Kind)

	r.ctrl.state("Light", openhab.ItemStateEvent, "ON")

	assert.Equal(t, "State: ON", r.last().Text)
	v, _ := store.GetString(context.Background(), r.store, store.Flow("f1"), "Light_state")
	assert.Equal(t, "ON", v)
}

func TestOut_LateCompletionAfterClose(t *testing.T) {
	r := newRecorder()
	r.ctrl.result = openhab.Result{Err: errors.New("late")}
	n := NewOut(r.deps(), OutSettings{Item: "Light", CommandSettings: CommandSettings{Topic: "ItemCommand", Payload: "ON"}})

	n.Input(Message{})
	n.Close()
	before := len(r.statuses)
	r.ctrl.exec.Drain()

	assert.Len(t, r.statuses, before)
}

func TestGet_EmitsItem(t *testing.T) {
	r := newRecorder()
	r.ctrl.result = openhab.Result{Status: 200, Body: []byte(`{"name":"Light","state":"ON"}`)}
	NewGet(r.deps(), GetSettings{}).Input(Message{"item": "Light", "payload": "go"})
	r.ctrl.exec.Drain()

	require.Len(t, r.ctrl.sends, 1)
	assert.Equal(t, openhab.Read, r.ctrl.sends[0].kind)

	require.Len(t, r.outputs[0], 1)
	msg := r.outputs[0][0]
	assert.Equal(t, "go", msg["payload_in"])
	assert.Equal(t, map[string]any{"name": "Light", "state": "ON"}, msg["payload"])
	assert.Equal(t, "State: ON", r.last().Text)
}

func TestGet_FailureEmitsNothing(t *testing.T) {
	r := newRecorder()
	r.ctrl.result = openhab.Result{Err: errors.New("404")}
	NewGet(r.deps(), GetSettings{Item: "Light"}).Input(Message{})
	r.ctrl.exec.Drain()

	assert.Empty(t, r.outputs[0])
}

func TestGet_NoItem(t *testing.T) {
	r := newRecorder()
	NewGet(r.deps(), GetSettings{}).Input(Message{})

	assert.Empty(t, r.ctrl.sends)
	assert.Equal(t, StatusNoTopic, r.last().Kind)
}

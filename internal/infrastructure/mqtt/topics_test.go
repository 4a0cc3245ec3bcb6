package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopics(t *testing.T) {
	tp := Topics{Prefix: "ohb"}

	assert.Equal(t, "ohb/status", tp.BridgeStatus())
	assert.Equal(t, "ohb/node/n1/out/0", tp.NodeOutput("n1", 0))
	assert.Equal(t, "ohb/node/n1/status", tp.NodeStatus("n1"))
	assert.Equal(t, "ohb/node/n1/in", tp.NodeInput("n1"))
	assert.Equal(t, "ohb/node/+/in", tp.AllNodeInputs())
}

func TestTopics_ParseNodeInput(t *testing.T) {
	tp := Topics{Prefix: "ohb"}

	tests := []struct {
		topic string
		id    string
		ok    bool
	}{
		{"ohb/node/n1/in", "n1", true},
		{"ohb/node/n1/out/0", "", false},
		{"other/node/n1/in", "", false},
		{"ohb/node//in", "", false},
		{"ohb/node/a/b/in", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			id, ok := tp.ParseNodeInput(tt.topic)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.id, id)
		})
	}
}

func TestTopics_ParseNodeOutput(t *testing.T) {
	tp := Topics{Prefix: "ohb"}

	id, port, ok := tp.ParseNodeOutput(tp.NodeOutput("relay", 1))
	assert.True(t, ok)
	assert.Equal(t, "relay", id)
	assert.Equal(t, 1, port)

	_, _, ok = tp.ParseNodeOutput("ohb/node/relay/out/x")
	assert.False(t, ok)
	_, _, ok = tp.ParseNodeOutput("ohb/node/relay/status")
	assert.False(t, ok)
}

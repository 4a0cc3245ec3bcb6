package nodes

import (
	"fmt"
	"strconv"

	"github.com/nerrad567/openhab-bridge/internal/openhab"
)

// Property types for topic and payload resolution.
const (
	TypeString      = "str"
	TypeNumber      = "num"
	TypeCommandType = "ohCommandType"
	TypePayload     = "ohPayload"
	TypeMessage     = "msg"
	TypeFlow        = "flow"
	TypeGlobal      = "global"
	TypeDate        = "date"
)

// CommandSettings resolve the command topic and payload sent on input.
// With type msg the value names a message property; with flow or global
// it names a stored key.
type CommandSettings struct {
	Topic       string `yaml:"topic"`
	TopicType   string `yaml:"topic_type"`
	Payload     string `yaml:"payload"`
	PayloadType string `yaml:"payload_type"`
}

func (b *base) resolveTopic(cs CommandSettings, msg Message) string {
	if cs.TopicType == TypeMessage {
		return msg.String(cs.Topic)
	}
	return cs.Topic
}

// resolvePayload reports false when the payload is missing.
func (b *base) resolvePayload(cs CommandSettings, msg Message) (any, bool) {
	switch cs.PayloadType {
	case TypeMessage:
		v, ok := msg.Lookup(cs.Payload)
		if !ok || v == nil {
			return nil, false
		}
		return v, true
	case TypeFlow, TypeGlobal:
		return b.lookup(cs.PayloadType, cs.Payload)
	case TypeDate:
		return b.deps.Now().UnixMilli(), true
	case TypeNumber:
		if f, err := strconv.ParseFloat(cs.Payload, 64); err == nil {
			return f, true
		}
		return cs.Payload, true
	default:
		return cs.Payload, true
	}
}

// command resolves topic and payload and sends them to item, reporting
// NoTopic or NoPayload when resolution comes up empty.
func (b *base) command(item string, cs CommandSettings, msg Message) error {
	topic := b.resolveTopic(cs, msg)
	if item == "" || topic == "" {
		b.status(StatusNoTopic, "")
		return ErrNoTopic
	}
	payload, ok := b.resolvePayload(cs, msg)
	if !ok {
		b.status(StatusNoPayload, "")
		return ErrNoPayload
	}

	b.send(item, openhab.ParseCommandKind(topic), payload, func(res openhab.Result) {
		if !res.OK() {
			b.status(StatusError, fmt.Sprintf("%v", res.Err))
		}
	})
	return nil
}

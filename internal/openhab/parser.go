package openhab

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// envelope is the data field of one stream message. Payload is itself a
// JSON document encoded as a string.
type envelope struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
	Type    string `json:"type"`
}

// ParsedMessage is the result of decoding one stream message.
type ParsedMessage struct {
	Item  string
	Type  string
	Event DomainEvent
}

// Forward reports whether the message is an item event that is routed
// as a DomainEvent. Other bus events (ItemAddedEvent,
// GroupItemStateChangedEvent, ...) are parsed but not forwarded.
func (m ParsedMessage) Forward() bool {
	return EventType(m.Type).Valid()
}

// ParseMessage decodes a stream message whose topic looks like
// "<busPrefix>/items/<item>/<verb>". Any decode failure or a topic
// without an item segment yields ErrMalformedMessage.
func ParseMessage(data []byte, busPrefix string) (ParsedMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ParsedMessage{}, fmt.Errorf("%w: envelope: %w", ErrMalformedMessage, err)
	}

	item, err := itemFromTopic(env.Topic, busPrefix)
	if err != nil {
		return ParsedMessage{}, err
	}

	inner := []byte(env.Payload)
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(inner, &fields); err != nil {
		return ParsedMessage{}, fmt.Errorf("%w: payload of %q: %w", ErrMalformedMessage, env.Topic, err)
	}

	state, err := stateValue(fields["value"])
	if err != nil {
		return ParsedMessage{}, fmt.Errorf("%w: value of %q: %w", ErrMalformedMessage, env.Topic, err)
	}

	return ParsedMessage{
		Item: item,
		Type: env.Type,
		Event: DomainEvent{
			Item:    item,
			Type:    EventType(env.Type),
			State:   state,
			Payload: json.RawMessage(inner),
		},
	}, nil
}

func itemFromTopic(topic, busPrefix string) (string, error) {
	prefix := busPrefix + "/items/"
	rest, ok := strings.CutPrefix(topic, prefix)
	if !ok {
		return "", fmt.Errorf("%w: topic %q is not under %q", ErrMalformedMessage, topic, prefix)
	}
	item, _, _ := strings.Cut(rest, "/")
	if item == "" {
		return "", fmt.Errorf("%w: topic %q has no item", ErrMalformedMessage, topic)
	}
	return item, nil
}

// stateValue renders the payload value as a string. Numbers keep their
// shortest decimal form; absent and null values become "".
func stateValue(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return "", err
	}

	switch val := v.(type) {
	case string:
		return val, nil
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64), nil
		}
		return val.String(), nil
	case bool:
		return strconv.FormatBool(val), nil
	default:
		return string(raw), nil
	}
}

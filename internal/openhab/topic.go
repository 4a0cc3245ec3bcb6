package openhab

type topicKind uint8

const (
	kindItem topicKind = iota
	kindConnection
	kindRaw
	kindItemRaw
)

// Topic is an exact routing key. There are no wildcards: a subscriber
// that wants every event type of an item subscribes once per type.
type Topic struct {
	kind      topicKind
	item      string
	eventType EventType
}

// ItemTopic is "<item>/<eventType>".
func ItemTopic(item string, t EventType) Topic {
	return Topic{kind: kindItem, item: item, eventType: t}
}

// ConnectionTopic carries ConnectionEvents for the whole controller.
func ConnectionTopic() Topic {
	return Topic{kind: kindConnection}
}

// RawTopic carries every RawEvent when raw forwarding is enabled.
func RawTopic() Topic {
	return Topic{kind: kindRaw}
}

// ItemRawTopic carries the RawEvents of one item.
func ItemRawTopic(item string) Topic {
	return Topic{kind: kindItemRaw, item: item}
}

// Item returns the item name of item-scoped topics.
func (t Topic) Item() string {
	return t.item
}

func (t Topic) String() string {
	switch t.kind {
	case kindConnection:
		return "ConnectionState"
	case kindRaw:
		return "RawEvent"
	case kindItemRaw:
		return t.item + "/RawEvent"
	default:
		return t.item + "/" + string(t.eventType)
	}
}

package openhab

import (
	"sync"
)

// Handler receives events published on a subscribed topic.
type Handler func(Event)

// Subscription identifies one Subscribe call.
type Subscription struct {
	topic Topic
	id    uint64
}

// Topic returns the subscribed topic.
func (s Subscription) Topic() Topic {
	return s.topic
}

type subscriber struct {
	id      uint64
	handler Handler
}

// Router is an ordered publish/subscribe hub keyed by Topic.
//
// Handlers of a topic run in subscription order. Publish takes a snapshot
// of the subscriber list first, so subscribing or unsubscribing from a
// handler only affects later publishes. A panicking handler is recovered
// and logged and the remaining handlers still run.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Handlers run on the publishing goroutine, which for a controller
//     is its executor. mu is never held while a handler runs.
type Router struct {
	mu     sync.Mutex
	nextID uint64                 // last Subscription id handed out
	subs   map[Topic][]subscriber // in subscription order; empty lists are deleted

	logger Logger // recovered handler panics
}

// NewRouter creates an empty router. logger may be nil.
func NewRouter(logger Logger) *Router {
	return &Router{
		subs:   make(map[Topic][]subscriber),
		logger: orNoop(logger),
	}
}

// Subscribe appends handler to topic's subscriber list.
func (r *Router) Subscribe(topic Topic, handler Handler) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	r.subs[topic] = append(r.subs[topic], subscriber{id: r.nextID, handler: handler})
	return Subscription{topic: topic, id: r.nextID}
}

// Unsubscribe removes a subscription, keeping the order of the others.
// It reports whether the subscription was still active.
func (r *Router) Unsubscribe(sub Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.subs[sub.topic]
	for i, s := range list {
		if s.id != sub.id {
			continue
		}
		// Build a new slice: in-flight snapshots keep the old backing array.
		next := make([]subscriber, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(r.subs, sub.topic)
		} else {
			r.subs[sub.topic] = next
		}
		return true
	}
	return false
}

// Publish delivers event to the current subscribers of topic and returns
// how many handlers were invoked.
func (r *Router) Publish(topic Topic, event Event) int {
	r.mu.Lock()
	snapshot := r.subs[topic]
	r.mu.Unlock()

	for _, s := range snapshot {
		r.deliver(topic, s, event)
	}
	return len(snapshot)
}

// Count returns the number of subscribers of topic.
func (r *Router) Count(topic Topic) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[topic])
}

func (r *Router) deliver(topic Topic, s subscriber, event Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("subscriber panic recovered",
				"topic", topic.String(),
				"subscription", s.id,
				"panic", rec,
			)
		}
	}()
	s.handler(event)
}

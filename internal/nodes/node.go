package nodes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/openhab-bridge/internal/openhab"
	"github.com/nerrad567/openhab-bridge/internal/store"
)

// Logger is the logging surface nodes use.
type Logger = openhab.Logger

// Controller is the part of *openhab.Controller nodes depend on.
type Controller interface {
	Subscribe(topic openhab.Topic, handler openhab.Handler) openhab.Subscription
	Unsubscribe(sub openhab.Subscription) bool
	Send(item string, kind openhab.CommandKind, payload any, done func(openhab.Result))
	AfterFunc(d time.Duration, fn func()) openhab.Timer
}

// Deps connects a node to its controller and host.
//
// The flow host builds one Deps per configured node. Output and Status
// are called on the controller executor and must not block it.
type Deps struct {
	ID     string // node id, also the node store scope
	FlowID string // selects the flow store scope

	// Controller is the openHAB connection the node subscribes to.
	Controller Controller

	// Output emits msg on port. Ports are numbered from 0.
	Output func(port int, msg Message)
	// Status publishes the visible node status.
	Status func(Status)

	// Store backs flow, global and node scoped values. Nodes that need
	// it fall back to a private in-memory store.
	Store store.Store

	Logger Logger // nil discards
	// Now defaults to time.Now.
	Now func() time.Time
}

// Node is a running consumer.
type Node interface {
	// Input delivers a message from the host. Must be called on the
	// controller executor.
	Input(msg Message)
	// Close detaches the node. Must be called on the controller executor.
	Close()
}

// base carries what every node shares: subscriptions, the closed guard,
// status projection and panic recovery.
type base struct {
	deps   Deps
	kind   string
	logger Logger
	hidden []StatusKind
	// restore, when set, redraws the node's own status in place of a
	// hidden lifecycle status.
	restore func()

	subs   []openhab.Subscription
	closed bool
}

func newBase(kind string, deps Deps, hidden ...StatusKind) base {
	if deps.Output == nil {
		deps.Output = func(int, Message) {}
	}
	if deps.Status == nil {
		deps.Status = func(Status) {}
	}
	if deps.Store == nil {
		deps.Store = store.NewMemory()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	return base{deps: deps, kind: kind, logger: logger, hidden: hidden}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// subscribe registers h and keeps the subscription for close.
func (b *base) subscribe(topic openhab.Topic, h func(openhab.Event)) {
	sub := b.deps.Controller.Subscribe(topic, func(ev openhab.Event) {
		b.guard("event "+topic.String(), func() { h(ev) })
	})
	b.subs = append(b.subs, sub)
}

// subscribeItem registers h for each of types on item.
func (b *base) subscribeItem(item string, h func(openhab.DomainEvent), types ...openhab.EventType) {
	for _, t := range types {
		b.subscribe(openhab.ItemTopic(item, t), func(ev openhab.Event) {
			if de, ok := ev.(openhab.DomainEvent); ok {
				h(de)
			}
		})
	}
}

// watchConnection drives the status from controller lifecycle events.
func (b *base) watchConnection() {
	b.subscribe(openhab.ConnectionTopic(), func(ev openhab.Event) {
		ce, ok := ev.(openhab.ConnectionEvent)
		if !ok {
			return
		}
		kind := connectionKind(ce.State)
		if b.restore != nil && Project(kind, "", b.hidden...).Kind == StatusIdle {
			b.restore()
			return
		}
		b.status(kind, ce.Message)
	})
}

// guard runs fn unless the node is closed, turning a panic into an
// Error status.
func (b *base) guard(where string, fn func()) {
	if b.closed {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("node handler panic recovered",
				"node", b.deps.ID, "type", b.kind, "where", where, "panic", r)
			b.deps.Status(Status{Kind: StatusError, Text: fmt.Sprintf("Unexpected Error: %v", r)})
		}
	}()
	fn()
}

func (b *base) status(kind StatusKind, text string) {
	b.deps.Status(Project(kind, text, b.hidden...))
}

func (b *base) currentState(state string) {
	b.status(StatusCurrentState, "State: "+state)
}

func (b *base) emit(port int, msg Message) {
	msg.ID()
	b.deps.Output(port, msg)
}

// send issues a request; done runs only while the node is open.
func (b *base) send(item string, kind openhab.CommandKind, payload any, done func(openhab.Result)) {
	b.deps.Controller.Send(item, kind, payload, func(res openhab.Result) {
		if done == nil {
			return
		}
		b.guard("completion", func() { done(res) })
	})
}

// afterFunc schedules fn on the executor; fn does not run after close.
func (b *base) afterFunc(d time.Duration, fn func()) openhab.Timer {
	return b.deps.Controller.AfterFunc(d, func() {
		b.guard("timer", fn)
	})
}

// storeFlow writes a flow-scoped value, logging failures.
func (b *base) storeFlow(key string, value any) {
	if err := b.deps.Store.Set(context.Background(), store.Flow(b.deps.FlowID), key, value); err != nil {
		b.logger.Warn("storing flow value failed", "node", b.deps.ID, "key", key, "error", err)
	}
}

// scope maps a typed-input kind (TypeFlow or TypeGlobal) to its store
// scope.
func (b *base) scope(kind string) store.Scope {
	if kind == TypeFlow {
		return store.Flow(b.deps.FlowID)
	}
	return store.Global
}

// lookup reads key from the flow or global scope. Missing keys and nil
// values report false.
func (b *base) lookup(kind, key string) (any, bool) {
	v, err := b.deps.Store.Get(context.Background(), b.scope(kind), key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			b.logger.Warn("reading stored value failed", "node", b.deps.ID, "key", key, "error", err)
		}
		return nil, false
	}
	return v, v != nil
}

// ohTimestampLayout is openHAB's local time form, without a zone.
const ohTimestampLayout = "2006-01-02T15:04:05.000"

// timestamp returns the current time for message "timestamp" fields:
// epoch milliseconds, or openHAB's local form when ohFormat is set.
func (b *base) timestamp(ohFormat bool) any {
	now := b.deps.Now()
	if ohFormat {
		return now.Local().Format(ohTimestampLayout)
	}
	return now.UnixMilli()
}

func (b *base) close() {
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		b.deps.Controller.Unsubscribe(sub)
	}
	b.subs = nil
	b.closed = true
	b.logger.Debug("node closed", "node", b.deps.ID, "type", b.kind)
}

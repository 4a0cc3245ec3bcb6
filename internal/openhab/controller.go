package openhab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/openhab-bridge/internal/infrastructure/config"
	"github.com/nerrad567/openhab-bridge/internal/store"
)

// Options configures a Controller. Only Config is required.
type Options struct {
	Config config.ControllerConfig

	// Requester issues REST calls. Defaults to an HTTPRequester.
	Requester Requester
	// Dialer opens the event stream. Defaults to an SSEDialer.
	Dialer StreamDialer
	// Executor runs every callback of the controller and its nodes.
	// When nil the controller owns a Loop started and stopped with it.
	Executor Executor
	// Directories shares item directories between controllers of the
	// same server. Defaults to a private pool.
	Directories *DirectoryPool
	// Store persists the item listing when Config.PersistItemList is set.
	Store store.Store

	Logger  Logger
	Metrics Instrumentation
}

// Status is a point-in-time view of a controller connection.
type Status struct {
	Name           string          `json:"name"`
	Host           string          `json:"host"`
	State          ConnectionState `json:"state"`
	LastError      string          `json:"last_error,omitempty"`
	Reconnects     int             `json:"reconnects"`
	Events         uint64          `json:"events"`
	ConnectedSince time.Time       `json:"connected_since,omitzero"`
}

// Controller owns the event stream of one openHAB server and routes its
// events to subscribers.
//
// Lifecycle: NewController, Start, Stop. Start dials the stream; every
// stream failure closes it, publishes Error and schedules one reconnect
// after the reconnect delay. Each successful open refreshes item states.
//
// Thread Safety: Start, Stop, Post, AfterFunc, Subscribe, Unsubscribe,
// AddTap, Status, Directory and Items are safe from any goroutine.
// Connect, Publish and Send must run on the executor. Fields below the
// executor marker are only touched from executor tasks.
type Controller struct {
	name            string        // configured controller name
	host            string        // openHAB host, used in logs and status
	base            string        // base URL including credentials
	busPrefix       string        // event bus namespace, "smarthome" by default
	allowRaw        bool          // publish RawEvents as well as domain events
	reconnectDelay  time.Duration // fixed delay before redialling a failed stream
	stateRetryDelay time.Duration // delay before retrying a 503 item listing
	requestTimeout  time.Duration // bound of every REST call

	router    *Router         // topic subscribers
	exec      Executor        // runs every callback of the controller and its nodes
	loop      *Loop           // non-nil when the controller owns exec
	dialer    StreamDialer    // opens event streams
	directory *Directory      // shared item listing cache
	sender    *sender         // REST writes and reads
	logger    Logger          // never nil
	metrics   Instrumentation // never nil

	mu     sync.RWMutex  // guards taps and status
	taps   []func(Event) // observers of every published event
	status Status        // snapshot returned by Status

	stopOnce sync.Once

	// executor
	stream     Stream // live stream, nil while disconnected
	reconnect  Timer  // pending reconnect, at most one
	refresh    Timer  // pending 503 retry of the state refresh
	refreshSeq uint64 // identifies the current state refresh
	closed     bool   // set by Stop, never cleared
}

// NewController validates opts and builds a controller. Nothing is
// dialled until Start.
//
// Parameters:
//   - opts: Config is required; nil seams get the production SSE
//     dialer, HTTP requester, a fresh Loop and a no-op logger
//
// Returns:
//   - *Controller: stopped controller
//   - error: ErrInvalidConfig for a missing name or host
func NewController(opts Options) (*Controller, error) {
	cfg := opts.Config
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("%w: controller %q: host is required", ErrInvalidConfig, cfg.Name)
	}

	logger := orNoop(opts.Logger)
	var metrics Instrumentation = noopInstrumentation{}
	if opts.Metrics != nil {
		metrics = opts.Metrics
	}

	c := &Controller{
		name:            cfg.Name,
		host:            strings.TrimSpace(cfg.Host),
		base:            BaseURL(cfg),
		busPrefix:       cfg.BusPrefix,
		allowRaw:        cfg.AllowRawEvents,
		reconnectDelay:  cfg.GetReconnectDelay(),
		stateRetryDelay: cfg.GetStateRetryDelay(),
		requestTimeout:  cfg.GetRequestTimeout(),
		router:          NewRouter(logger),
		exec:            opts.Executor,
		dialer:          opts.Dialer,
		logger:          logger,
		metrics:         metrics,
	}
	if c.busPrefix == "" {
		c.busPrefix = config.DefaultBusPrefix
	}
	if c.reconnectDelay <= 0 {
		c.reconnectDelay = config.DefaultReconnectDelay * time.Second
	}
	if c.stateRetryDelay <= 0 {
		c.stateRetryDelay = config.DefaultStateRetryDelay * time.Second
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = config.DefaultRequestTimeout * time.Second
	}

	if c.exec == nil {
		c.loop = NewLoop(logger)
		c.exec = c.loop
	}
	if c.dialer == nil {
		c.dialer = NewSSEDialer(NewHTTPClient(cfg.InsecureSkipVerify))
	}
	requester := opts.Requester
	if requester == nil {
		requester = NewHTTPRequester(NewHTTPClient(cfg.InsecureSkipVerify))
	}

	pool := opts.Directories
	if pool == nil {
		pool = NewDirectoryPool()
	}
	dirOpts := DirectoryOptions{
		Base:      c.base,
		Host:      c.host,
		Requester: requester,
		Timeout:   c.requestTimeout,
		Logger:    logger,
	}
	if cfg.PersistItemList {
		dirOpts.Store = opts.Store
	}
	c.directory = pool.Directory(dirOpts)

	c.sender = &sender{
		name:      c.name,
		base:      c.base,
		requester: requester,
		exec:      c.exec,
		timeout:   c.requestTimeout,
		reportError: func(msg string) {
			c.publishConnection(StateError, msg)
		},
		logger:  logger,
		metrics: metrics,
	}

	c.status = Status{Name: c.name, Host: c.host, State: StateDisconnected}
	return c, nil
}

// Name returns the configured controller name.
func (c *Controller) Name() string {
	return c.name
}

// Directory returns the item directory shared with other controllers of
// the same server.
func (c *Controller) Directory() *Directory {
	return c.directory
}

// Start runs the executor (when owned) and connects.
func (c *Controller) Start() {
	if c.loop != nil {
		c.loop.Start()
	}
	c.exec.Post(func() { c.Connect() })
}

// Stop closes the stream, cancels pending timers and publishes
// Disconnected. An owned executor is drained and stopped.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		c.exec.Post(c.close)
		if c.loop != nil {
			c.loop.Stop()
		}
	})
}

// Post runs fn on the controller executor.
func (c *Controller) Post(fn func()) {
	c.exec.Post(fn)
}

// AfterFunc runs fn on the controller executor after d.
func (c *Controller) AfterFunc(d time.Duration, fn func()) Timer {
	return c.exec.AfterFunc(d, fn)
}

// Subscribe registers handler for topic. Handlers run on the executor.
func (c *Controller) Subscribe(topic Topic, handler Handler) Subscription {
	return c.router.Subscribe(topic, handler)
}

// Unsubscribe removes a subscription.
func (c *Controller) Unsubscribe(sub Subscription) bool {
	return c.router.Unsubscribe(sub)
}

// Publish delivers event to the subscribers of topic. Must be called on
// the executor.
func (c *Controller) Publish(topic Topic, event Event) int {
	return c.router.Publish(topic, event)
}

// AddTap registers an observer of every DomainEvent and ConnectionEvent
// the controller publishes. Taps run on the executor and must not block.
func (c *Controller) AddTap(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.taps = append(c.taps, fn)
}

// Status returns a snapshot of the connection state.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Send issues a REST write or read for item. Must be called on the
// executor.
//
// Parameters:
//   - item: openHAB item name
//   - kind: StateUpdate (PUT .../state), Command (POST) or Read (GET)
//   - payload: rendered with FormatPayload; ignored for Read
//   - done: optional, called exactly once on the executor, with
//     ErrControllerClosed after Stop
func (c *Controller) Send(item string, kind CommandKind, payload any, done func(Result)) {
	if c.closed {
		if done != nil {
			c.exec.Post(func() { done(Result{Err: ErrControllerClosed}) })
		}
		return
	}
	c.sender.send(item, kind, payload, done)
}

// Items returns the item directory to cb on the executor. A nil
// directory means the listing is unknown.
func (c *Controller) Items(force bool, cb func(*ItemDirectory, error)) {
	if !force {
		if snap := c.directory.Cached(); snap != nil {
			c.exec.Post(func() { cb(snap, nil) })
			return
		}
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.requestTimeout)
		defer cancel()
		snap, err := c.directory.Get(ctx, force)
		c.exec.Post(func() { cb(snap, err) })
	}()
}

// Connect opens the event stream unless one is live, in which case that
// stream is returned. Must be called on the executor.
func (c *Controller) Connect() Stream {
	if c.closed {
		return nil
	}
	if c.stream != nil {
		c.logger.Debug("using existing event stream", "controller", c.name)
		return c.stream
	}

	url := EventsURL(c.base, c.busPrefix)
	c.logger.Info("connecting to event stream", "controller", c.name, "url", redact(url))
	c.publishConnection(StateConnecting, "")

	var s Stream
	s = c.dialer.Dial(url, StreamHandlers{
		OnOpen: func() {
			c.exec.Post(func() {
				if s != nil && s == c.stream {
					c.onOpen()
				}
			})
		},
		OnMessage: func(data []byte) {
			c.exec.Post(func() {
				if s != nil && s == c.stream {
					c.onMessage(data)
				}
			})
		},
		OnError: func(err error) {
			c.exec.Post(func() {
				if s != nil && s == c.stream {
					c.onError(err)
				}
			})
		},
	})
	c.stream = s
	return s
}

func (c *Controller) onOpen() {
	c.logger.Info("event stream connected", "controller", c.name)
	c.mu.Lock()
	c.status.ConnectedSince = time.Now()
	c.mu.Unlock()
	c.publishConnection(StateConnected, "")
	c.refreshStates()
}

func (c *Controller) onError(err error) {
	c.stream.Close()
	c.stream = nil
	c.cancelRefresh()

	msg := fmt.Sprintf("unable to connect: %v on %s", err, redact(EventsURL(c.base, c.busPrefix)))
	c.logger.Warn("event stream failed", "controller", c.name, "error", err,
		"retry_in", c.reconnectDelay.String())

	c.mu.Lock()
	c.status.ConnectedSince = time.Time{}
	c.status.Reconnects++
	c.mu.Unlock()

	c.publishConnection(StateError, msg)
	c.scheduleReconnect()
}

// scheduleReconnect arms the reconnect timer unless one is pending.
func (c *Controller) scheduleReconnect() {
	if c.reconnect != nil || c.closed {
		return
	}
	c.reconnect = c.exec.AfterFunc(c.reconnectDelay, func() {
		c.reconnect = nil
		c.Connect()
	})
}

func (c *Controller) onMessage(data []byte) {
	msg, err := ParseMessage(data, c.busPrefix)
	if err != nil {
		c.logger.Error("dropping stream message", "controller", c.name, "error", err)
		c.metrics.ObserveParseError(c.name)
		c.publishConnection(StateError, fmt.Sprintf("error parsing message: %v", err))
		return
	}

	if c.allowRaw {
		raw := RawEvent{Item: msg.Item, Data: json.RawMessage(data)}
		c.router.Publish(RawTopic(), raw)
		c.router.Publish(ItemRawTopic(msg.Item), raw)
	}

	if msg.Forward() {
		c.dispatch(msg.Event)
	}
}

// refreshStates fetches the item listing and publishes an ItemStateEvent
// per item so subscribers start from the current state.
func (c *Controller) refreshStates() {
	c.cancelRefresh()
	seq := c.refreshSeq

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.requestTimeout)
		defer cancel()
		snap, err := c.directory.Get(ctx, true)
		c.exec.Post(func() {
			// Stale once the stream failed or a newer refresh started.
			if c.closed || seq != c.refreshSeq {
				return
			}
			c.applyStates(snap, err)
		})
	}()
}

// cancelRefresh stops a pending 503 retry and invalidates any refresh in
// flight.
func (c *Controller) cancelRefresh() {
	c.refreshSeq++
	if c.refresh != nil {
		c.refresh.Stop()
		c.refresh = nil
	}
}

func (c *Controller) applyStates(snap *ItemDirectory, err error) {
	switch {
	case err == nil:
		for _, it := range snap.Items {
			c.dispatch(DomainEvent{
				Item:    it.Name,
				Type:    ItemStateEvent,
				State:   it.State,
				Payload: statePayload(it.State),
			})
		}
	case errors.Is(err, ErrServiceUnavailable):
		c.logger.Warn("item listing unavailable, retrying", "controller", c.name,
			"retry_in", c.stateRetryDelay.String())
		c.publishConnection(StateWarning, err.Error())
		c.refresh = c.exec.AfterFunc(c.stateRetryDelay, func() {
			c.refresh = nil
			c.refreshStates()
		})
	default:
		c.logger.Warn("item state refresh failed", "controller", c.name, "error", err)
		c.publishConnection(StateError, err.Error())
	}
}

func statePayload(state string) json.RawMessage {
	b, err := json.Marshal(struct {
		Type  EventType `json:"type"`
		Value string    `json:"value"`
	}{ItemStateEvent, state})
	if err != nil {
		return nil
	}
	return b
}

func (c *Controller) close() {
	if c.closed {
		return
	}
	c.closed = true

	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	c.cancelRefresh()
	if c.stream != nil {
		c.logger.Info("closing event stream", "controller", c.name)
		c.stream.Close()
		c.stream = nil
	}

	c.mu.Lock()
	c.status.ConnectedSince = time.Time{}
	c.mu.Unlock()
	c.publishConnection(StateDisconnected, "")
}

func (c *Controller) dispatch(ev DomainEvent) {
	c.mu.Lock()
	c.status.Events++
	c.mu.Unlock()

	c.metrics.ObserveEvent(c.name, string(ev.Type))
	c.router.Publish(ItemTopic(ev.Item, ev.Type), ev)
	c.tap(ev)
}

func (c *Controller) publishConnection(state ConnectionState, msg string) {
	c.mu.Lock()
	c.status.State = state
	if state == StateError || state == StateWarning {
		c.status.LastError = msg
	}
	c.mu.Unlock()

	c.metrics.ObserveConnection(c.name, string(state))
	ev := ConnectionEvent{State: state, Message: msg}
	c.router.Publish(ConnectionTopic(), ev)
	c.tap(ev)
}

func (c *Controller) tap(ev Event) {
	c.mu.RLock()
	taps := c.taps
	c.mu.RUnlock()

	for _, fn := range taps {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("tap panic recovered", "controller", c.name, "panic", r)
				}
			}()
			fn(ev)
		}()
	}
}

package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/openhab-bridge/internal/flow"
	"github.com/nerrad567/openhab-bridge/internal/infrastructure/config"
	"github.com/nerrad567/openhab-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/openhab-bridge/internal/nodes"
	"github.com/nerrad567/openhab-bridge/internal/openhab"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Bridge is what the API reads from and injects into. *flow.Host
// satisfies it.
type Bridge interface {
	Controller(name string) (*openhab.Controller, bool)
	Controllers() []*openhab.Controller
	Nodes() []flow.NodeView
	Inject(nodeID string, msg nodes.Message) error
}

// Broker reports MQTT connectivity. *mqtt.Client satisfies it.
type Broker interface {
	IsConnected() bool
}

// DBStats exposes connection pool statistics. *database.DB satisfies it.
type DBStats interface {
	Stats() sql.DBStats
}

// Deps holds the dependencies of the API server. Logger and Bridge are
// required.
type Deps struct {
	Config config.APIConfig
	WS     config.WebSocketConfig
	Logger *logging.Logger
	Bridge Bridge

	// Hub, if set, is used instead of a server-owned hub. The flow host
	// broadcasts on it, so it usually exists before the server.
	Hub     *Hub
	Metrics http.Handler
	MQTT    Broker
	DB      DBStats
	Version string
}

// Server is the admin HTTP server.
//
// It serves the item list endpoint, the websocket event feed and the
// JWT-protected admin routes.
//
// Thread Safety:
//   - Start and Close must not run concurrently with each other.
//   - Handlers run on net/http goroutines and only read bridge state
//     through the Bridge interface.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	bridge    Bridge       // controllers, nodes and input injection
	metrics   http.Handler // nil disables /metrics
	mqtt      Broker       // optional, for the system endpoint
	db        DBStats      // optional, for the system endpoint
	version   string
	startTime time.Time

	hub         *Hub
	externalHub bool // hub owned by the caller; Start does not run it
	tickets     *ticketStore
	server      *http.Server // nil until Start
	cancel      context.CancelFunc
}

// New creates a server. Nothing listens until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		bridge:    deps.Bridge,
		metrics:   deps.Metrics,
		mqtt:      deps.MQTT,
		db:        deps.DB,
		version:   deps.Version,
		startTime: time.Now(),
		tickets:   newTicketStore(),
	}
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
	}
	return s, nil
}

// Handler returns the routed handler with the middleware chain.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start launches the listener, the hub and ticket cleanup in the
// background. Close stops them.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}
	go s.cleanTicketsLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr, "auth", s.authEnabled())
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Close gracefully shuts down the server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server was started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

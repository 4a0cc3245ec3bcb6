// ohbridge bridges openHAB item events into flow nodes.
//
// It keeps one event stream per configured openHAB server, routes item
// events to the configured nodes and carries node traffic over MQTT. An
// admin HTTP server exposes item lists, status and a live event feed.
//
// Usage:
//
//	ohbridge                 run with $OHBRIDGE_CONFIG or configs/config.yaml
//	ohbridge token <subject> print an admin API token signed with api.jwt_secret
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	_ "github.com/nerrad567/openhab-bridge/migrations"

	"github.com/nerrad567/openhab-bridge/internal/api"
	"github.com/nerrad567/openhab-bridge/internal/flow"
	"github.com/nerrad567/openhab-bridge/internal/infrastructure/config"
	"github.com/nerrad567/openhab-bridge/internal/infrastructure/database"
	"github.com/nerrad567/openhab-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/openhab-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/openhab-bridge/internal/infrastructure/metrics"
	"github.com/nerrad567/openhab-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/openhab-bridge/internal/store"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

// tokenTTL is the lifetime of tokens printed by the token command.
const tokenTTL = 365 * 24 * time.Hour

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := printToken(os.Stdout, os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run starts every component and blocks until ctx is cancelled.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // startup wiring: each optional component adds a branch
	log := logging.Default()
	log.Info("starting ohbridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath, "controllers", len(cfg.Controllers), "nodes", len(cfg.Nodes))

	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // nothing to do on shutdown
	log.Info("logger initialised", "level", cfg.Logging.Level, "format", cfg.Logging.Format)

	var db *database.DB
	var st store.Store = store.NewMemory()
	if cfg.Context.Backend == "sqlite" {
		db, err = database.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		st = store.NewSQLite(db.DB)
		log.Info("sqlite context store ready", "path", db.Path())
	}

	m := metrics.New()

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.With("component", "mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled, node outputs are logged only")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	apiLog := log.With("component", "api")
	hub := api.NewHub(cfg.WebSocket, apiLog)

	deps := flow.Deps{
		Controllers: cfg.Controllers,
		Nodes:       cfg.Nodes,
		Store:       st,
		Topics:      mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix},
		QoS:         byte(cfg.MQTT.QoS), //nolint:gosec // validated to 0..2
		Hub:         hub,
		Metrics:     m,
		Logger:      log.With("component", "flow"),
	}
	// Assigned only when set so the interfaces stay nil.
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	if influxClient != nil {
		deps.History = influxClient
	}

	host, err := flow.New(deps)
	if err != nil {
		return fmt.Errorf("building flow host: %w", err)
	}
	if err := host.Start(); err != nil {
		return fmt.Errorf("starting flow host: %w", err)
	}
	defer host.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	if cfg.API.Enabled {
		apiDeps := api.Deps{
			Config:  cfg.API,
			WS:      cfg.WebSocket,
			Logger:  apiLog,
			Bridge:  host,
			Hub:     hub,
			Metrics: m.Handler(),
			Version: version,
		}
		if mqttClient != nil {
			apiDeps.MQTT = mqttClient
		}
		if db != nil {
			apiDeps.DB = db
		}
		srv, err := api.New(apiDeps)
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := srv.Start(gctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			return srv.Close()
		})
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("shutdown signal received, cleaning up")
	return nil
}

func getConfigPath() string {
	if path := os.Getenv("OHBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// printToken writes an admin API token for args[0] to w.
func printToken(w io.Writer, args []string) error {
	if len(args) != 1 || args[0] == "" {
		return errors.New("usage: ohbridge token <subject>")
	}
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.API.JWTSecret == "" {
		return errors.New("api.jwt_secret is not set")
	}
	token, err := api.IssueToken(cfg.API.JWTSecret, args[0], tokenTTL)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/openhab-bridge/internal/infrastructure/config"
)

// Timeouts and batching defaults for the history writer.
const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds

	// millisecondsPerSecond scales FlushInterval for the client options.
	millisecondsPerSecond = 1000
)

// Client records openHAB item events as InfluxDB v2 points.
//
// The process creates one Client at startup and the flow host hands it
// every domain event from every controller through WriteItemState.
//
// Thread Safety:
//   - All methods are safe for concurrent use; controller executors
//     write from their own goroutines.
//   - Writes never block the caller. Points are batched by the
//     underlying write API and failures arrive through SetOnError.
type Client struct {
	client   influxdb2.Client      // underlying v2 client
	writeAPI api.WriteAPI          // non-blocking, batched writer for cfg.Org/cfg.Bucket
	cfg      config.InfluxDBConfig // settings Connect was called with

	// connected is false once Close has run.
	connected bool
	mu        sync.RWMutex

	// onError receives asynchronous write failures; nil drops them.
	onError func(err error)
}

// Connect creates the client and verifies the server before any item
// history is written.
//
// Steps:
//  1. Builds the client with token auth and batching options
//  2. Pings the server within defaultConnectTimeout
//  3. Opens the non-blocking write API for the configured bucket
//  4. Starts the goroutine that forwards write errors
//
// Parameters:
//   - cfg: the influxdb section of the bridge configuration
//
// Returns:
//   - *Client: ready for WriteItemState
//   - error: ErrDisabled when cfg.Enabled is false, ErrConnectionFailed
//     when the ping fails or the server reports unhealthy
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	// #nosec G115 -- values validated above to be positive
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*millisecondsPerSecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	c := &Client{
		client:    client,
		writeAPI:  writeAPI,
		cfg:       cfg,
		connected: true,
	}
	// The write API closes this channel when the client closes.
	go c.handleWriteErrors(writeAPI.Errors())

	return c, nil
}

// handleWriteErrors forwards async write failures to the current
// onError callback.
func (c *Client) handleWriteErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()

		if callback != nil {
			callback(err)
		}
	}
}

// Close marks the client disconnected, flushes buffered points and
// closes the underlying client.
//
// Returns:
//   - error: always nil; the v2 client has no close error
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.writeAPI.Flush()
	c.client.Close()
	return nil
}

// HealthCheck actively pings the server. The process runs it once at
// startup alongside the database and MQTT checks.
//
// Parameters:
//   - ctx: bounds the ping together with defaultPingTimeout
//
// Returns:
//   - error: ErrNotConnected after Close, or the ping failure
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check failed: server not healthy")
	}
	return nil
}

// IsConnected returns the last known connection state. It does not
// contact the server; use HealthCheck for that.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SetOnError sets the callback for asynchronous write failures. The
// process logs them; writes are not retried.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

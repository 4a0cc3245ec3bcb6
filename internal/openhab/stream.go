package openhab

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/r3labs/sse/v2"
	"gopkg.in/cenkalti/backoff.v1"
)

// StreamHandlers are the callbacks of one stream. They are invoked from
// the stream's reader goroutine. OnError is called at most once, after
// which the stream is dead.
type StreamHandlers struct {
	OnOpen    func()
	OnMessage func(data []byte)
	OnError   func(err error)
}

// Stream is a live event stream handle.
type Stream interface {
	// Close ends the stream. It is safe to call more than once.
	Close()
}

// StreamDialer opens event streams.
type StreamDialer interface {
	Dial(url string, handlers StreamHandlers) Stream
}

// SSEDialer opens server-sent-event streams with r3labs/sse. The
// library's own reconnect loop is disabled: the controller owns
// reconnection.
type SSEDialer struct {
	client *http.Client
}

// NewSSEDialer creates a dialer using client for connections.
func NewSSEDialer(client *http.Client) *SSEDialer {
	if client == nil {
		client = &http.Client{}
	}
	return &SSEDialer{client: client}
}

// Dial implements StreamDialer.
func (d *SSEDialer) Dial(url string, h StreamHandlers) Stream {
	ctx, cancel := context.WithCancel(context.Background())

	client := sse.NewClient(url)
	client.Connection = d.client
	client.ReconnectStrategy = &backoff.StopBackOff{}
	client.ResponseValidator = func(_ *sse.Client, resp *http.Response) error {
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close() //nolint:errcheck // rejected stream
			return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
		}
		if h.OnOpen != nil {
			h.OnOpen()
		}
		return nil
	}

	s := &sseStream{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		err := client.SubscribeRawWithContext(ctx, func(msg *sse.Event) {
			if len(msg.Data) == 0 || ctx.Err() != nil {
				return
			}
			if h.OnMessage != nil {
				h.OnMessage(append([]byte(nil), msg.Data...))
			}
		})
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = ErrStreamClosed
		}
		if h.OnError != nil {
			h.OnError(err)
		}
	}()
	return s
}

type sseStream struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *sseStream) Close() {
	s.once.Do(s.cancel)
}

package openhabtest

import (
	"sync"
	"sync/atomic"

	"github.com/nerrad567/openhab-bridge/internal/openhab"
)

// Dialer is an openhab.StreamDialer that records dials and hands the
// resulting streams to the test.
type Dialer struct {
	mu      sync.Mutex
	streams []*Stream
}

// NewDialer creates a dialer.
func NewDialer() *Dialer {
	return &Dialer{}
}

// Dial implements openhab.StreamDialer.
func (d *Dialer) Dial(url string, h openhab.StreamHandlers) openhab.Stream {
	s := &Stream{URL: url, handlers: h}
	d.mu.Lock()
	d.streams = append(d.streams, s)
	d.mu.Unlock()
	return s
}

// Dials returns the number of streams opened.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.streams)
}

// Last returns the most recent stream, or nil.
func (d *Dialer) Last() *Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.streams) == 0 {
		return nil
	}
	return d.streams[len(d.streams)-1]
}

// Stream is a fake event stream. Its methods invoke the registered
// handlers the way a reader goroutine would.
type Stream struct {
	URL      string
	handlers openhab.StreamHandlers
	closed   atomic.Bool
}

// Close implements openhab.Stream.
func (s *Stream) Close() {
	s.closed.Store(true)
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool {
	return s.closed.Load()
}

// Open signals a successful connection.
func (s *Stream) Open() {
	s.handlers.OnOpen()
}

// Message delivers one data payload.
func (s *Stream) Message(data string) {
	s.handlers.OnMessage([]byte(data))
}

// Fail ends the stream with err.
func (s *Stream) Fail(err error) {
	s.handlers.OnError(err)
}

package openhab

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// CommandKind selects the REST operation used by Send.
type CommandKind int

const (
	// Read fetches the item (GET). Any payload is ignored.
	Read CommandKind = iota
	// StateUpdate sets the item state without triggering bindings (PUT .../state).
	StateUpdate
	// Command sends a command to the item (POST).
	Command
)

func (k CommandKind) String() string {
	switch k {
	case StateUpdate:
		return "StateUpdate"
	case Command:
		return "Command"
	default:
		return "Read"
	}
}

// Topic names used in messages to pick a command kind.
const (
	TopicItemUpdate  = "ItemUpdate"
	TopicItemCommand = "ItemCommand"
)

// ParseCommandKind maps a message topic to a kind. Anything other than
// ItemUpdate or ItemCommand reads the item.
func ParseCommandKind(topic string) CommandKind {
	switch topic {
	case TopicItemUpdate:
		return StateUpdate
	case TopicItemCommand:
		return Command
	default:
		return Read
	}
}

// Result is the single completion of a Send.
type Result struct {
	Status int
	Body   []byte
	Err    error
}

// OK reports whether the call succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// sender performs REST writes for one controller and posts completions
// onto its executor.
type sender struct {
	name      string
	base      string
	requester Requester
	exec      Executor
	timeout   time.Duration

	// reportError publishes a connection Error event; called on the executor.
	reportError func(msg string)

	logger  Logger
	metrics Instrumentation
}

func (s *sender) send(item string, kind CommandKind, payload any, done func(Result)) {
	method, url := http.MethodGet, ItemURL(s.base, item)
	body := ""
	switch kind {
	case StateUpdate:
		method, url, body = http.MethodPut, url+"/state", FormatPayload(payload)
	case Command:
		method, body = http.MethodPost, FormatPayload(payload)
	}

	s.logger.Debug("sending request", "method", method, "url", redact(url), "kind", kind.String())

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		resp, err := s.requester.Do(ctx, method, url, body)
		res := Result{Status: resp.Status, Body: resp.Body}
		switch {
		case err != nil:
			res.Err = fmt.Errorf("request error: %w on %s", err, redact(url))
		case !successStatus(resp.Status):
			res.Err = fmt.Errorf("%w: response status %d on %s", ErrUnexpectedStatus, resp.Status, redact(url))
		}

		s.exec.Post(func() {
			s.metrics.ObserveRequest(s.name, kind.String(), res.OK())
			if res.Err != nil {
				s.logger.Warn("request failed", "item", item, "kind", kind.String(), "error", res.Err)
				s.reportError(res.Err.Error())
			}
			if done != nil {
				done(res)
			}
		})
	}()
}

// fetch performs a synchronous GET and maps the status to errors. 503 is
// reported as ErrServiceUnavailable.
func fetch(ctx context.Context, r Requester, url string) ([]byte, error) {
	resp, err := r.Do(ctx, http.MethodGet, url, "")
	if err != nil {
		if errors.Is(err, ErrRequestFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	switch {
	case resp.Status == http.StatusServiceUnavailable:
		return nil, fmt.Errorf("%w: %s", ErrServiceUnavailable, redact(url))
	case !successStatus(resp.Status):
		return nil, fmt.Errorf("%w: %d on %s", ErrUnexpectedStatus, resp.Status, redact(url))
	}
	return resp.Body, nil
}

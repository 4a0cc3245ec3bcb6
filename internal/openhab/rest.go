package openhab

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxResponseBody caps REST response bodies (item listings can be large).
const maxResponseBody = 16 << 20

// Response is the outcome of one REST call.
type Response struct {
	Status int
	Body   []byte
}

// Requester issues one REST call. Implementations must be safe for
// concurrent use.
type Requester interface {
	Do(ctx context.Context, method, url, body string) (Response, error)
}

// HTTPRequester is the net/http Requester. Credentials embedded in the
// URL are sent as basic auth by the http.Client.
type HTTPRequester struct {
	client *http.Client
}

// NewHTTPRequester wraps client; a nil client uses http.DefaultClient.
func NewHTTPRequester(client *http.Client) *HTTPRequester {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRequester{client: client}
}

// Do implements Requester. openHAB expects commands and state updates as
// text/plain bodies.
func (r *HTTPRequester) Do(ctx context.Context, method, url, body string) (Response, error) {
	var reader io.Reader
	if body != "" || method == http.MethodPut || method == http.MethodPost {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "text/plain")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return Response{Status: resp.StatusCode}, fmt.Errorf("%w: reading body: %w", ErrRequestFailed, err)
	}
	return Response{Status: resp.StatusCode, Body: data}, nil
}

// NewHTTPClient builds the client shared by REST calls and the event
// stream. It carries no overall timeout because the stream is long-lived;
// REST calls are bounded by their context instead.
func NewHTTPClient(insecureSkipVerify bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = 30 * time.Second
	if insecureSkipVerify {
		// #nosec G402 -- opt-in for self-signed openHAB certificates
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{Transport: transport}
}

// successStatus reports whether openHAB accepted a call.
func successStatus(status int) bool {
	return status >= 200 && status <= 210
}

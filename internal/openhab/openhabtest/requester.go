package openhabtest

import (
	"context"
	"net/http"
	"sync"

	"github.com/nerrad567/openhab-bridge/internal/openhab"
)

// Call is one request seen by a Requester.
type Call struct {
	Method string
	URL    string
	Body   string
}

type reply struct {
	resp openhab.Response
	err  error
}

// Requester is a scripted openhab.Requester. Unscripted requests answer
// 200 with an empty body.
type Requester struct {
	mu      sync.Mutex
	replies map[string]reply
	calls   []Call
}

// NewRequester creates a requester with no scripted replies.
func NewRequester() *Requester {
	return &Requester{replies: make(map[string]reply)}
}

// Reply scripts the answer to method on url.
func (r *Requester) Reply(method, url string, status int, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies[method+" "+url] = reply{resp: openhab.Response{Status: status, Body: []byte(body)}}
}

// Fail scripts a transport error for method on url.
func (r *Requester) Fail(method, url string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies[method+" "+url] = reply{err: err}
}

// ReplyItems scripts the item listing of base.
func (r *Requester) ReplyItems(base, body string) {
	r.Reply(http.MethodGet, openhab.ItemsURL(base), http.StatusOK, body)
}

// Do implements openhab.Requester.
func (r *Requester) Do(_ context.Context, method, url, body string) (openhab.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, Call{Method: method, URL: url, Body: body})
	rep, ok := r.replies[method+" "+url]
	if !ok {
		return openhab.Response{Status: http.StatusOK}, nil
	}
	return rep.resp, rep.err
}

// Calls returns every request so far.
func (r *Requester) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CallsTo returns the requests made with method to url.
func (r *Requester) CallsTo(method, url string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Method == method && c.URL == url {
			out = append(out, c)
		}
	}
	return out
}

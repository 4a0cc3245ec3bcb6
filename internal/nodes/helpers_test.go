package nodes

import (
	"time"

	"github.com/nerrad567/openhab-bridge/internal/openhab"
	"github.com/nerrad567/openhab-bridge/internal/openhab/openhabtest"
	"github.com/nerrad567/openhab-bridge/internal/store"
)

type sent struct {
	item    string
	kind    openhab.CommandKind
	payload any
}

// fakeController routes through a real Router and records sends.
type fakeController struct {
	*openhab.Router
	exec   *openhabtest.Executor
	sends  []sent
	result openhab.Result
}

func newFakeController() *fakeController {
	return &fakeController{
		Router: openhab.NewRouter(nil),
		exec:   openhabtest.NewExecutor(),
		result: openhab.Result{Status: 200},
	}
}

func (f *fakeController) Send(item string, kind openhab.CommandKind, payload any, done func(openhab.Result)) {
	f.sends = append(f.sends, sent{item: item, kind: kind, payload: payload})
	if done != nil {
		res := f.result
		f.exec.Post(func() { done(res) })
	}
}

func (f *fakeController) AfterFunc(d time.Duration, fn func()) openhab.Timer {
	return f.exec.AfterFunc(d, fn)
}

func (f *fakeController) state(item string, t openhab.EventType, value string) {
	f.Publish(openhab.ItemTopic(item, t), openhab.DomainEvent{Item: item, Type: t, State: value})
	f.exec.Drain()
}

func (f *fakeController) connection(state openhab.ConnectionState) {
	f.Publish(openhab.ConnectionTopic(), openhab.ConnectionEvent{State: state})
}

func (f *fakeController) sendsTo(item string) []sent {
	var out []sent
	for _, s := range f.sends {
		if s.item == item {
			out = append(out, s)
		}
	}
	return out
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

// arg returns the value logged under key.
func (e logEntry) arg(key string) any {
	for i := 0; i+1 < len(e.args); i += 2 {
		if e.args[i] == key {
			return e.args[i+1]
		}
	}
	return nil
}

type captureLogger struct {
	entries []logEntry
}

func (l *captureLogger) add(level, msg string, args []any) {
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *captureLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *captureLogger) find(msg string) (logEntry, bool) {
	for _, e := range l.entries {
		if e.msg == msg {
			return e, true
		}
	}
	return logEntry{}, false
}

type recorder struct {
	ctrl     *fakeController
	log      *captureLogger
	store    store.Store
	outputs  map[int][]Message
	statuses []Status
}

func newRecorder() *recorder {
	return &recorder{
		ctrl:    newFakeController(),
		log:     &captureLogger{},
		store:   store.NewMemory(),
		outputs: make(map[int][]Message),
	}
}

func (r *recorder) deps() Deps {
	return Deps{
		ID:         "n1",
		FlowID:     "f1",
		Controller: r.ctrl,
		Output:     func(port int, msg Message) { r.outputs[port] = append(r.outputs[port], msg) },
		Status:     func(s Status) { r.statuses = append(r.statuses, s) },
		Store:      r.store,
		Logger:     r.log,
		Now:        func() time.Time { return time.UnixMilli(1700000000000) },
	}
}

func (r *recorder) last() Status {
	if len(r.statuses) == 0 {
		return Status{}
	}
	return r.statuses[len(r.statuses)-1]
}

func payloads(msgs []Message) []any {
	out := make([]any, len(msgs))
	for i, m := range msgs {
		out[i] = m["payload"]
	}
	return out
}

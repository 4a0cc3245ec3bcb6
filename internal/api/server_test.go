package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/nerrad567/openhab-bridge/internal/flow"
	"github.com/nerrad567/openhab-bridge/internal/infrastructure/config"
	"github.com/nerrad567/openhab-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/openhab-bridge/internal/infrastructure/metrics"
	"github.com/nerrad567/openhab-bridge/internal/openhab"
	"github.com/nerrad567/openhab-bridge/internal/openhab/openhabtest"
)

const (
	ohBase     = "http://oh:8080"
	testSecret = "test-secret-key-at-least-32-characters-long"
)

const testNodes = `
- id: out1
  type: out
  controller: home
  settings:
    item: Light
    topic: ItemCommand
    payload: payload
    payload_type: msg
`

type fixture struct {
	srv       *Server
	ts        *httptest.Server
	host      *flow.Host
	hub       *Hub
	exec      *openhabtest.Executor
	requester *openhabtest.Requester
}

func newFixture(t *testing.T, secret string) *fixture {
	t.Helper()

	var nodeCfgs []config.NodeConfig
	require.NoError(t, yaml.Unmarshal([]byte(testNodes), &nodeCfgs))

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")
	f := &fixture{
		exec:      openhabtest.NewExecutor(),
		requester: openhabtest.NewRequester(),
	}
	f.hub = NewHub(config.WebSocketConfig{PingInterval: 30, PongTimeout: 10}, log)

	host, err := flow.New(flow.Deps{
		Controllers: []config.ControllerConfig{{Name: "home", Host: "oh", Port: "8080"}},
		Nodes:       nodeCfgs,
		Hub:         f.hub,
		Logger:      log,
		ControllerOptions: func(o *openhab.Options) {
			o.Executor = f.exec
			o.Requester = f.requester
			o.Dialer = openhabtest.NewDialer()
		},
	})
	require.NoError(t, err)
	f.host = host

	srv, err := New(Deps{
		Config:  config.APIConfig{Host: "127.0.0.1", JWTSecret: secret},
		WS:      config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logger:  log,
		Bridge:  host,
		Hub:     f.hub,
		Metrics: metrics.New().Handler(),
		Version: "test",
	})
	require.NoError(t, err)
	f.srv = srv

	f.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(f.ts.Close)
	return f
}

func (f *fixture) get(t *testing.T, path, token string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.ts.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (f *fixture) post(t *testing.T, path, token, body string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(out)
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)

	log := logging.Default()
	_, err = New(Deps{Logger: log})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, "")
	resp, body := f.get(t, "/api/v1/health", "")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.JSONEq(t, `{"status":"ok","version":"test"}`, body)
}

func TestForceRefresh(t *testing.T) {
	tests := map[string]bool{
		"1": true, "yes": true, "true": true, "TRUE": true,
		"": false, "0": false, "no": false, "false": false, "y": false,
	}
	for in, want := range tests {
		assert.Equal(t, want, forceRefresh(in), "forceRefresh(%q)", in)
	}
}

func TestItemList(t *testing.T) {
	f := newFixture(t, testSecret)
	first := openhabtest.ItemList("Light", "ON")
	f.requester.ReplyItems(ohBase, first)

	// Open even with auth enabled.
	resp, body := f.get(t, "/openhab2/itemlist?controllerID=home", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, first, body)

	second := openhabtest.ItemList("Light", "OFF", "Temp", "20")
	f.requester.ReplyItems(ohBase, second)

	_, body = f.get(t, "/openhab2/itemlist?controllerID=home", "")
	assert.JSONEq(t, first, body, "cached list is served until forced")

	_, body = f.get(t, "/openhab2/itemlist?controllerID=home&forceRefresh=yes", "")
	assert.JSONEq(t, second, body)
	assert.Len(t, f.requester.CallsTo(http.MethodGet, openhab.ItemsURL(ohBase)), 2)
}

func TestItemList_NotFound(t *testing.T) {
	f := newFixture(t, "")

	resp, _ := f.get(t, "/openhab2/itemlist?controllerID=away", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	f.requester.Reply(http.MethodGet, openhab.ItemsURL(ohBase), http.StatusServiceUnavailable, "")
	resp, body := f.get(t, "/openhab2/itemlist?controllerID=home&forceRefresh=1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, ErrCodeNotFound)
}

func TestControllers(t *testing.T) {
	f := newFixture(t, "")

	resp, body := f.get(t, "/api/v1/controllers", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list struct {
		Controllers []ControllerView `json:"controllers"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &list))
	require.Len(t, list.Controllers, 1)
	assert.Equal(t, "home", list.Controllers[0].Name)
	assert.Equal(t, openhab.StateDisconnected, list.Controllers[0].State)
	assert.Equal(t, -1, list.Controllers[0].Items)

	f.requester.ReplyItems(ohBase, openhabtest.ItemList("Light", "ON", "Temp", "20"))
	f.get(t, "/openhab2/itemlist?controllerID=home", "")

	resp, body = f.get(t, "/api/v1/controllers/home", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var one ControllerView
	require.NoError(t, json.Unmarshal([]byte(body), &one))
	assert.Equal(t, 2, one.Items)

	resp, _ = f.get(t, "/api/v1/controllers/away", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNodes(t *testing.T) {
	f := newFixture(t, "")

	resp, body := f.get(t, "/api/v1/nodes", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"id":"out1"`)
	assert.Contains(t, body, `"controller":"home"`)
}

func TestNodeInput(t *testing.T) {
	f := newFixture(t, "")

	resp, body := f.post(t, "/api/v1/nodes/out1/input", "", `{"payload":"ON"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Contains(t, body, "_msgid")

	f.exec.Drain()
	require.True(t, f.exec.Await(time.Second))
	calls := f.requester.CallsTo(http.MethodPost, ohBase+"/rest/items/Light")
	require.Len(t, calls, 1)
	assert.Equal(t, "ON", calls[0].Body)

	resp, _ = f.post(t, "/api/v1/nodes/ghost/input", "", `{"payload":"ON"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.post(t, "/api/v1/nodes/out1/input", "", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	f.host.Stop()
	resp, _ = f.post(t, "/api/v1/nodes/out1/input", "", `{"payload":"ON"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestSystem(t *testing.T) {
	f := newFixture(t, "")

	resp, body := f.get(t, "/api/v1/system", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var m SystemMetrics
	require.NoError(t, json.Unmarshal([]byte(body), &m))
	assert.Equal(t, "test", m.Version)
	assert.Equal(t, 1, m.Controllers.Total)
	assert.Equal(t, 1, m.Controllers.ByState["Disconnected"])
	assert.Equal(t, 1, m.Nodes.ByType["out"])
	assert.Nil(t, m.MQTT)
	assert.Nil(t, m.Database)
	assert.Positive(t, m.Runtime.Goroutines)
}

func TestPrometheusMetrics(t *testing.T) {
	f := newFixture(t, "")

	resp, body := f.get(t, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "go_goroutines")
}

func TestAuth(t *testing.T) {
	f := newFixture(t, testSecret)

	resp, _ := f.get(t, "/api/v1/controllers", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := IssueToken(testSecret, "admin", time.Minute)
	require.NoError(t, err)
	resp, _ = f.get(t, "/api/v1/controllers", token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	expired, err := IssueToken(testSecret, "admin", -time.Minute)
	require.NoError(t, err)
	resp, _ = f.get(t, "/api/v1/controllers", expired)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	forged, err := IssueToken("another-secret-entirely-0123456789", "admin", time.Minute)
	require.NoError(t, err)
	resp, _ = f.get(t, "/api/v1/controllers", forged)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = f.get(t, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestParseToken(t *testing.T) {
	token, err := IssueToken(testSecret, "flow-editor", time.Minute)
	require.NoError(t, err)

	subject, err := parseToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "flow-editor", subject)

	_, err = parseToken(testSecret, "not.a.token")
	assert.ErrorIs(t, err, errInvalidToken)
}

func wsURL(ts *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws" + query
}

func readEvent(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocket_Feed(t *testing.T) {
	f := newFixture(t, "")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(f.ts, ""), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "1",
		Payload: WSSubscribePayload{Channels: []string{flow.ChannelItemEvent}},
	}))
	ack := readEvent(t, conn)
	assert.Equal(t, WSTypeResponse, ack.Type)
	assert.Equal(t, "1", ack.ID)

	f.hub.Broadcast(flow.ChannelNodeStatus, map[string]string{"id": "out1"})
	f.hub.Broadcast(flow.ChannelItemEvent, map[string]string{"item": "Light", "state": "ON"})

	ev := readEvent(t, conn)
	assert.Equal(t, WSTypeEvent, ev.Type)
	assert.Equal(t, flow.ChannelItemEvent, ev.EventType)
	assert.Equal(t, map[string]any{"item": "Light", "state": "ON"}, ev.Payload)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "2"}))
	pong := readEvent(t, conn)
	assert.Equal(t, WSTypePong, pong.Type)
}

func TestWebSocket_Ticket(t *testing.T) {
	f := newFixture(t, testSecret)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(f.ts, ""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := IssueToken(testSecret, "admin", time.Minute)
	require.NoError(t, err)
	resp, body := f.post(t, "/api/v1/auth/ws-ticket", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var issued struct {
		Ticket string `json:"ticket"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &issued))
	require.NotEmpty(t, issued.Ticket)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(f.ts, "?ticket="+issued.Ticket), nil)
	require.NoError(t, err)
	conn.Close()

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(f.ts, "?ticket="+issued.Ticket), nil)
	require.Error(t, err, "tickets are single-use")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTicketStore_Expiry(t *testing.T) {
	ts := newTicketStore()
	now := time.Now()

	ticket := ts.issue(now)
	assert.False(t, ts.consume(ticket, now.Add(2*ticketTTL)))

	ticket = ts.issue(now)
	ts.clean(now.Add(2 * ticketTTL))
	assert.False(t, ts.consume(ticket, now))
}

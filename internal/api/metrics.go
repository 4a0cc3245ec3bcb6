package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/openhab-bridge/internal/nodes"
	"github.com/nerrad567/openhab-bridge/internal/openhab"
)

// SystemMetrics is a JSON summary of the running bridge. Counters for
// scraping live on /metrics.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	MQTT          *MQTTMetrics     `json:"mqtt,omitempty"`
	Controllers   ControllerTotals `json:"controllers"`
	Nodes         NodeTotals       `json:"nodes"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// ControllerTotals counts controllers by connection state.
type ControllerTotals struct {
	Total   int            `json:"total"`
	ByState map[string]int `json:"by_state"`
	Events  uint64         `json:"events"`
}

// NodeTotals counts nodes by type and by status kind.
type NodeTotals struct {
	Total  int            `json:"total"`
	ByType map[string]int `json:"by_type"`
	ByKind map[string]int `json:"by_status"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

const bytesPerMB = 1024 * 1024

func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / bytesPerMB,
			MemoryTotalMB: float64(memStats.TotalAlloc) / bytesPerMB,
			NumGC:         memStats.NumGC,
		},
		WebSocket:   WSMetrics{ConnectedClients: s.hub.ClientCount()},
		Controllers: controllerTotals(s.bridge.Controllers()),
		Nodes:       nodeTotals(s.bridge),
	}

	if s.mqtt != nil {
		m.MQTT = &MQTTMetrics{Connected: s.mqtt.IsConnected()}
	}
	if s.db != nil {
		st := s.db.Stats()
		m.Database = &DatabaseMetrics{
			OpenConnections: st.OpenConnections,
			InUse:           st.InUse,
			Idle:            st.Idle,
			WaitCount:       st.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, m)
}

func controllerTotals(ctrls []*openhab.Controller) ControllerTotals {
	t := ControllerTotals{Total: len(ctrls), ByState: make(map[string]int)}
	for _, c := range ctrls {
		st := c.Status()
		t.ByState[string(st.State)]++
		t.Events += st.Events
	}
	return t
}

func nodeTotals(b Bridge) NodeTotals {
	views := b.Nodes()
	t := NodeTotals{Total: len(views), ByType: make(map[string]int), ByKind: make(map[string]int)}
	for _, v := range views {
		t.ByType[v.Type]++
		kind := v.Status.Kind
		if kind == "" {
			kind = nodes.StatusIdle
		}
		t.ByKind[string(kind)]++
	}
	return t
}

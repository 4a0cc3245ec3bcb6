package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// itemStateMeasurement holds one point per observed item event.
const itemStateMeasurement = "item_state"

// ItemState is one observed openHAB item event.
type ItemState struct {
	Controller string
	Item       string
	EventType  string
	State      string
	Time       time.Time
}

// WriteItemState records an item event. The write is non-blocking and
// batched; errors surface through SetOnError.
func (c *Client) WriteItemState(s ItemState) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(itemStatePoint(s))
}

// itemStatePoint always carries the raw state string; states that parse
// as numbers also get a float "value" field so they can be graphed.
func itemStatePoint(s ItemState) *write.Point {
	fields := map[string]interface{}{
		"state": s.State,
	}
	if f, err := strconv.ParseFloat(s.State, 64); err == nil {
		fields["value"] = f
	}

	ts := s.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	return write.NewPoint(
		itemStateMeasurement,
		map[string]string{
			"controller": s.Controller,
			"item":       s.Item,
			"event":      s.EventType,
		},
		fields,
		ts,
	)
}

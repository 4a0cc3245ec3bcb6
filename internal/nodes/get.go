package nodes

import "github.com/nerrad567/openhab-bridge/internal/openhab"

// GetSettings configure a get node.
type GetSettings struct {
	Item string `yaml:"item"`
}

// Get reads an item on input and emits the message with payload
// replaced by the item resource; the old payload moves to payload_in.
type Get struct {
	base
	cfg GetSettings
}

// NewGet attaches a get node.
func NewGet(deps Deps, cfg GetSettings) *Get {
	g := &Get{base: newBase("get", deps, LifecycleKinds...), cfg: cfg}
	g.status(StatusIdle, "")
	g.watchConnection()
	return g
}

// Input implements Node.
func (g *Get) Input(msg Message) {
	g.guard("input", func() {
		item := g.cfg.Item
		if item == "" {
			item = msg.String("item")
		}
		if item == "" {
			g.status(StatusNoTopic, "")
			return
		}

		g.send(item, openhab.Read, nil, func(res openhab.Result) {
			if !res.OK() {
				g.logger.Warn("reading item failed", "node", g.deps.ID, "item", item, "error", res.Err)
				return
			}
			msg["payload_in"] = msg["payload"]
			msg["payload"] = decodeJSON(res.Body)
			g.emit(0, msg)
			g.currentState(msg.String("payload.state"))
		})
	})
}

// Close implements Node.
func (g *Get) Close() {
	g.close()
}

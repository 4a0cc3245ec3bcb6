package nodes

import "github.com/nerrad567/openhab-bridge/internal/openhab"

// OutSettings configure an out node. An empty Item is taken from the
// input message's item property.
type OutSettings struct {
	Item             string `yaml:"item"`
	CommandSettings  `yaml:",inline"`
	StoreStateInFlow bool `yaml:"store_state_in_flow"`
}

// Out sends a command or state update for every input message.
type Out struct {
	base
	cfg OutSettings
}

// NewOut attaches an out node.
func NewOut(deps Deps, cfg OutSettings) *Out {
	o := &Out{base: newBase("out", deps, LifecycleKinds...), cfg: cfg}
	o.status(StatusIdle, "")
	o.watchConnection()
	if cfg.Item != "" {
		o.subscribeItem(cfg.Item, o.onState, openhab.ItemStateEvent)
	}
	return o
}

func (o *Out) onState(ev openhab.DomainEvent) {
	o.currentState(ev.State)
	if o.cfg.StoreStateInFlow {
		o.storeFlow(ev.Item+"_state", ev.State)
	}
}

// Input resolves item, topic and payload and sends them.
func (o *Out) Input(msg Message) {
	o.guard("input", func() {
		item := o.cfg.Item
		if item == "" {
			item = msg.String("item")
		}
		if err := o.command(item, o.cfg.CommandSettings, msg); err != nil {
			o.logger.Debug("command not sent", "node", o.deps.ID, "error", err)
		}
	})
}

// Close implements Node.
func (o *Out) Close() {
	o.close()
}

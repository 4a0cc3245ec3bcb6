package nodes

import (
	"context"
	"fmt"

	"github.com/nerrad567/openhab-bridge/internal/openhab"
	"github.com/nerrad567/openhab-bridge/internal/store"
)

// ProxyDirection is a bitmask of mirrored directions.
type ProxyDirection int

// Proxy directions.
const (
	ItemToProxy ProxyDirection = 1
	ProxyToItem ProxyDirection = 2
	Both                       = ItemToProxy | ProxyToItem
)

// ProxySettings configure a proxy node.
type ProxySettings struct {
	Items            []string       `yaml:"items"`
	ProxyItem        string         `yaml:"proxy_item"`
	Direction        ProxyDirection `yaml:"direction"`
	CommandSettings  `yaml:",inline"`
	StoreStateInFlow bool `yaml:"store_state_in_flow"`
}

// Proxy mirrors commands between source items and a proxy item as state
// updates.
//
// Commands on a source item update the proxy item and every other source
// (ItemToProxy); commands on the proxy item update every source
// (ProxyToItem). A target is only updated when the value differs from
// its last known state, kept in the node store scope.
type Proxy struct {
	base
	cfg   ProxySettings
	scope store.Scope
}

// NewProxy attaches a proxy node.
func NewProxy(deps Deps, cfg ProxySettings) (*Proxy, error) {
	if cfg.ProxyItem == "" {
		return nil, fmt.Errorf("%w: proxy item is required", ErrInvalidSettings)
	}
	if cfg.Direction&Both == 0 || cfg.Direction&^Both != 0 {
		return nil, fmt.Errorf("%w: proxy direction %d", ErrInvalidSettings, cfg.Direction)
	}

	p := &Proxy{
		base:  newBase("proxy", deps, LifecycleKinds...),
		cfg:   cfg,
		scope: store.Node(deps.ID),
	}
	p.status(StatusIdle, "")
	p.watchConnection()

	if cfg.Direction&ItemToProxy != 0 {
		for _, item := range cfg.Items {
			p.subscribeItem(item, p.itemCommand, openhab.ItemCommandEvent)
		}
	}
	if cfg.Direction&ProxyToItem != 0 {
		p.subscribeItem(cfg.ProxyItem, p.proxyCommand, openhab.ItemCommandEvent)
	}

	p.subscribeItem(cfg.ProxyItem, p.proxyState, openhab.ItemStateEvent)
	for _, item := range append([]string{cfg.ProxyItem}, cfg.Items...) {
		p.subscribeItem(item, p.observe, openhab.ItemStateEvent, openhab.ItemStateChangedEvent)
	}
	return p, nil
}

func (p *Proxy) itemCommand(ev openhab.DomainEvent) {
	if ev.State == "" {
		p.status(StatusNoPayload, "")
		return
	}
	p.update(p.cfg.ProxyItem, ev.State)
	for _, item := range p.cfg.Items {
		if item != ev.Item {
			p.update(item, ev.State)
		}
	}
}

func (p *Proxy) proxyCommand(ev openhab.DomainEvent) {
	if ev.State == "" {
		p.status(StatusNoPayload, "")
		return
	}
	for _, item := range p.cfg.Items {
		p.update(item, ev.State)
	}
}

func (p *Proxy) proxyState(ev openhab.DomainEvent) {
	p.currentState(ev.State)
	if p.cfg.StoreStateInFlow {
		p.storeFlow(p.cfg.ProxyItem+"_state", ev.State)
	}
}

// observe records the state the server reports for an item.
func (p *Proxy) observe(ev openhab.DomainEvent) {
	p.remember(ev.Item, ev.State)
}

// update sends a state update unless item already holds value.
func (p *Proxy) update(item, value string) {
	if last, ok := store.GetString(context.Background(), p.deps.Store, p.scope, item); ok && last == value {
		return
	}
	p.remember(item, value)
	p.send(item, openhab.StateUpdate, value, func(res openhab.Result) {
		if !res.OK() {
			p.status(StatusError, fmt.Sprintf("%v", res.Err))
		}
	})
}

func (p *Proxy) remember(item, value string) {
	if err := p.deps.Store.Set(context.Background(), p.scope, item, value); err != nil {
		p.logger.Warn("storing proxy state failed", "node", p.deps.ID, "item", item, "error", err)
	}
}

// Input sends to the proxy item like an out node.
func (p *Proxy) Input(msg Message) {
	p.guard("input", func() {
		if err := p.command(p.cfg.ProxyItem, p.cfg.CommandSettings, msg); err != nil {
			p.logger.Debug("command not sent", "node", p.deps.ID, "error", err)
		}
	})
}

// Close implements Node.
func (p *Proxy) Close() {
	p.close()
}

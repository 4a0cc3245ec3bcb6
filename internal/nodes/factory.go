package nodes

import (
	"fmt"

	"github.com/nerrad567/openhab-bridge/internal/infrastructure/config"
)

// Node type names as used in configuration.
const (
	TypeIn      = "in"
	TypeOut     = "out"
	TypeGet     = "get"
	TypeEvents  = "events"
	TypeProxy   = "proxy"
	TypeSensor  = "sensor"
	TypeTrigger = "trigger"
)

// Types lists every node type New accepts.
var Types = []string{TypeIn, TypeOut, TypeGet, TypeEvents, TypeProxy, TypeSensor, TypeTrigger}

// Ports returns the number of output ports of a node type.
func Ports(nodeType string) int {
	switch nodeType {
	case TypeIn, TypeSensor, TypeTrigger:
		return 2
	case TypeOut, TypeProxy:
		return 0
	default:
		return 1
	}
}

// New builds the node described by cfg. deps.ID and deps.FlowID default
// to the configured values.
//
// Parameters:
//   - cfg: node entry; Settings is decoded into the type's settings
//     struct
//   - deps: controller and host callbacks
//
// Returns:
//   - Node: attached and subscribed
//   - error: ErrUnknownType, or ErrInvalidSettings for settings that do
//     not decode or validate
func New(cfg config.NodeConfig, deps Deps) (Node, error) {
	if deps.ID == "" {
		deps.ID = cfg.ID
	}
	if deps.FlowID == "" {
		deps.FlowID = cfg.Flow
	}

	switch cfg.Type {
	case TypeIn:
		var s RelaySettings
		if err := decode(cfg, &s); err != nil {
			return nil, err
		}
		return NewRelay(deps, s), nil
	case TypeOut:
		var s OutSettings
		if err := decode(cfg, &s); err != nil {
			return nil, err
		}
		return NewOut(deps, s), nil
	case TypeGet:
		var s GetSettings
		if err := decode(cfg, &s); err != nil {
			return nil, err
		}
		return NewGet(deps, s), nil
	case TypeEvents:
		var s MonitorSettings
		if err := decode(cfg, &s); err != nil {
			return nil, err
		}
		return NewMonitor(deps, s), nil
	case TypeProxy:
		s := ProxySettings{Direction: Both}
		if err := decode(cfg, &s); err != nil {
			return nil, err
		}
		return NewProxy(deps, s)
	case TypeSensor:
		s := DefaultSensorSettings()
		if err := decode(cfg, &s); err != nil {
			return nil, err
		}
		return NewSensor(deps, s)
	case TypeTrigger:
		s := TriggerSettings{Unit: "s"}
		if err := decode(cfg, &s); err != nil {
			return nil, err
		}
		return NewTrigger(deps, s)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, cfg.Type)
	}
}

// decode fills out from the node settings. Absent settings leave out
// unchanged.
func decode(cfg config.NodeConfig, out any) error {
	if cfg.Settings.Kind == 0 {
		return nil
	}
	if err := cfg.Settings.Decode(out); err != nil {
		return fmt.Errorf("%w: node %s: %w", ErrInvalidSettings, cfg.ID, err)
	}
	return nil
}

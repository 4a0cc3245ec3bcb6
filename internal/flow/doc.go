// Package flow hosts controllers and the nodes attached to them.
//
// A Host builds one openhab.Controller per configured server and one node
// per configured consumer. It connects nodes to the outside world:
//
//   - node outputs and statuses are published on MQTT under the bridge
//     topic tree and broadcast to live viewers
//   - messages published on a node input topic, or injected through the
//     admin API, are delivered to the node on its controller executor
//   - item events are recorded to the state history when one is set
//
// Lifecycle:
//
//	host, err := flow.New(deps)
//	host.Start()
//	defer host.Stop()
package flow

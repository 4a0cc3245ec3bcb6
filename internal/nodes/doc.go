// Package nodes implements the consumers attached to a controller: relay
// (in), command relay (out), get, event monitor, proxy, sensor and
// trigger.
//
// Every node runs on its controller's executor. Event handlers, request
// completions, timers and Input are never concurrent for one node, so
// node state carries no locks. A node that has been closed ignores late
// completions.
//
// Nodes report to the host through Deps: Output emits a message on a
// numbered port and Status publishes the visible status.
package nodes

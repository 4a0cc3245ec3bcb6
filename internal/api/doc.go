// Package api implements the bridge's admin HTTP server.
//
// This package provides:
//   - the item list endpoint used by flow editors to offer item names
//   - controller and node status snapshots
//   - message injection into a node
//   - Prometheus metrics and a JSON runtime summary
//   - a WebSocket feed of item events, connection changes and node activity
//   - optional JWT bearer authentication with ticket-based WebSocket auth
//
// # Routes
//
//	GET  /openhab2/itemlist?controllerID=<name>&forceRefresh=true
//	GET  /metrics
//	GET  /api/v1/health
//	GET  /api/v1/system
//	GET  /api/v1/controllers
//	GET  /api/v1/controllers/{name}
//	GET  /api/v1/nodes
//	POST /api/v1/nodes/{id}/input
//	POST /api/v1/auth/ws-ticket
//	GET  /api/v1/ws
//
// Authentication is enabled when api.jwt_secret is set. Tokens are HS256
// and minted out of band (see IssueToken). The item list and health
// endpoints stay open so flow editors keep working.
package api

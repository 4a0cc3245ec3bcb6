// Package influxdb records openHAB item state history in InfluxDB v2.
//
// Every domain event observed on a controller becomes one point in the
// item_state measurement, tagged by controller, item and event type.
// Writes are batched and non-blocking.
//
//	influxdb:
//	  enabled: true
//	  url: "http://localhost:8086"
//	  token: ""          # OHBRIDGE_INFLUXDB_TOKEN
//	  org: "home"
//	  bucket: "openhab"
package influxdb

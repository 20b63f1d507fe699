// Package metric ingests people-count readings from running camera
// instances. Readings arrive over MQTT on per-device count topics, are
// written to InfluxDB in batches, and are fanned out to connected
// WebSocket clients for live dashboards.
package metric

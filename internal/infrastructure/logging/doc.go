// Package logging wraps log/slog so every countcam component logs the
// same way: structured entries, a service and version attribute on
// every line, JSON in production and text when debugging a camera
// handshake locally.
//
// Configured from the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	log := logging.New(cfg.Logging, version)
//	log.Info("transition initiated", "device_id", id, "action", action)
//
// Never log credentials: MQTT passwords, JWT secrets, and InfluxDB
// tokens stay out of log lines entirely.
package logging

// Package influxdb provides InfluxDB connectivity for countcam core.
//
// It wraps the official influxdb-client-go v2 library with countcam-specific
// patterns for connection management, count writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - People-count readings from camera instances
//   - Custom operational measurements
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "countcam",
//	    Bucket: "metrics",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Write a people-count reading
//	client.WriteCount(42, 7, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead for high-frequency count data.
package influxdb

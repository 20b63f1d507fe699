// Package api implements the HTTP REST API and WebSocket server for CountCam Core.
//
// This package provides:
//   - REST endpoints for camera CRUD, group management, and user administration
//   - Processing-state transitions with asynchronous confirmation (202 Accepted
//     plus a server-sent-event stream for observing the outcome)
//   - Count metric history backed by InfluxDB
//   - WebSocket hub for real-time state-change and live-count broadcasts
//   - JWT authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between dashboards/site tooling and the camera
// lifecycle. State transitions are dispatched to the instance manager over
// MQTT by the processing service; the API only initiates them and reports
// progress. Confirmed changes and live count readings are pushed to
// WebSocket clients via the hub.
//
// # Security
//
// Authentication uses short-lived JWT access tokens issued by /auth/login
// against the SQLite user store. WebSocket connections use single-use
// tickets to prevent token leakage in URLs. User management endpoints
// require the admin role.
//
// # Graceful Degradation
//
// The server operates without InfluxDB (count history returns 503) and
// without MQTT connectivity (transitions fail cleanly and roll back their
// pending claim); catalogue reads and WebSocket connections keep working.
package api

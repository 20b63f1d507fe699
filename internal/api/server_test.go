package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/countcam/countcam-core/internal/auth"
	"github.com/countcam/countcam-core/internal/device"
	"github.com/countcam/countcam-core/internal/infrastructure/config"
	"github.com/countcam/countcam-core/internal/infrastructure/logging"
	"github.com/countcam/countcam-core/internal/processing"
)

const testJWTSecret = "test-secret-0123456789abcdef0123"

// fakeBroker records published MQTT commands without a real connection.
type fakeBroker struct {
	mu        sync.Mutex
	published []fakeMessage
	failWith  error
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (b *fakeBroker) Publish(topic string, payload []byte, _ byte, _ bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failWith != nil {
		return b.failWith
	}
	b.published = append(b.published, fakeMessage{topic: topic, payload: payload})
	return nil
}

func (b *fakeBroker) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

func (b *fakeBroker) last() fakeMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.published) == 0 {
		return fakeMessage{}
	}
	return b.published[len(b.published)-1]
}

// testEnv bundles a fully wired server with direct repository access for
// seeding and asserting.
type testEnv struct {
	server  *Server
	handler http.Handler
	broker  *fakeBroker
	devices *device.SQLiteRepository
	groups  *device.SQLiteGroupRepository
	users   *auth.SQLiteUserRepository
}

// newTestEnv builds an API server over an in-memory database.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE devices (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			description TEXT,
			stream_url TEXT NOT NULL,
			processing_state TEXT NOT NULL DEFAULT 'INACTIVE'
				CHECK (processing_state IN ('ACTIVE', 'PAUSED', 'INACTIVE')),
			pending_update INTEGER NOT NULL DEFAULT 0,
			pending_since TEXT,
			scheduled_for_deletion INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		);

		CREATE TABLE device_groups (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			description TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		);

		CREATE TABLE device_group_members (
			group_id TEXT NOT NULL REFERENCES device_groups(id) ON DELETE CASCADE,
			device_id INTEGER NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
			added_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			PRIMARY KEY (group_id, device_id)
		);

		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'user')),
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			last_login_at TEXT
		);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create test schema: %v", err)
	}

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")

	deviceRepo := device.NewSQLiteRepository(db)
	groupRepo := device.NewSQLiteGroupRepository(db)
	userRepo := auth.NewUserRepository(db)
	broker := &fakeBroker{}
	lifecycle := processing.NewService(deviceRepo, broker, 1, log)

	srv, err := New(Deps{
		Config: config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS:     config.WebSocketConfig{MaxMessageSize: 4096, PingInterval: 30, PongTimeout: 60},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: testJWTSecret, AccessTokenTTL: 15},
		},
		Processing: config.ProcessingConfig{WatchPollInterval: 10},
		Logger:     log,
		Devices:    deviceRepo,
		Groups:     groupRepo,
		Users:      userRepo,
		Lifecycle:  lifecycle,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	// Handler tests exercise the router directly; give the server a hub so
	// broadcast wiring and metrics work without Start().
	srv.hub = NewHub(srv.wsCfg, log)
	srv.wireBroadcasts()

	return &testEnv{
		server:  srv,
		handler: srv.buildRouter(),
		broker:  broker,
		devices: deviceRepo,
		groups:  groupRepo,
		users:   userRepo,
	}
}

// seedUser creates an account with a known password and returns it.
func (e *testEnv) seedUser(t *testing.T, username, password string, role auth.Role) *auth.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	user := &auth.User{Username: username, PasswordHash: hash, Role: role}
	if err := e.users.Create(context.Background(), user); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return user
}

// token issues a JWT for the given user.
func (e *testEnv) token(t *testing.T, user *auth.User) string {
	t.Helper()
	token, err := auth.GenerateAccessToken(user, testJWTSecret, 900)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	return token
}

// adminToken seeds an admin account and returns a token for it.
func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	return e.token(t, e.seedUser(t, "admin", "correct-horse", auth.RoleAdmin))
}

// seedDevice inserts a camera in the given confirmed state.
func (e *testEnv) seedDevice(t *testing.T, name string, state device.ProcessingState) *device.Device {
	t.Helper()
	dev := &device.Device{Name: name, StreamURL: "rtsp://camera.local/stream"}
	if err := e.devices.Create(context.Background(), dev); err != nil {
		t.Fatalf("failed to seed device: %v", err)
	}
	if state != device.StateInactive {
		if err := e.devices.ForceState(context.Background(), dev.ID, state); err != nil {
			t.Fatalf("failed to set device state: %v", err)
		}
		dev.ProcessingState = state
	}
	return dev
}

// do performs a request against the router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// decode unmarshals a recorded JSON response body.
func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func TestNew_MissingDeps(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")

	if _, err := New(Deps{}); err == nil {
		t.Fatal("expected error for missing logger")
	}
	if _, err := New(Deps{Logger: log}); err == nil {
		t.Fatal("expected error for missing device repository")
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	decode(t, rec, &body)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
	if body["version"] != "test" {
		t.Errorf("expected version test, got %v", body["version"])
	}
}

func TestSystemMetrics(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "food-hall", device.StateActive)
	env.seedDevice(t, "car-park", device.StateInactive)

	rec := env.do(t, http.MethodGet, "/api/v1/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var metrics SystemMetrics
	decode(t, rec, &metrics)
	if metrics.Devices.Total != 2 {
		t.Errorf("expected 2 devices, got %d", metrics.Devices.Total)
	}
	if metrics.Devices.ByState["ACTIVE"] != 1 {
		t.Errorf("expected 1 active device, got %d", metrics.Devices.ByState["ACTIVE"])
	}
	if metrics.Runtime.Goroutines == 0 {
		t.Error("expected non-zero goroutine count")
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"list devices", http.MethodGet, "/api/v1/devices/"},
		{"list groups", http.MethodGet, "/api/v1/groups/"},
		{"list users", http.MethodGet, "/api/v1/users/"},
		{"ws ticket", http.MethodPost, "/api/v1/auth/ws-ticket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, "", nil)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
		})
	}

	t.Run("garbage token", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/devices/", "not-a-jwt", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})
}

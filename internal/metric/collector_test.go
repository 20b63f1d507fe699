package metric

import (
	"sync"
	"testing"
	"time"

	"github.com/countcam/countcam-core/internal/infrastructure/config"
	"github.com/countcam/countcam-core/internal/infrastructure/logging"
	"github.com/countcam/countcam-core/internal/infrastructure/mqtt"
)

type fakeWriter struct {
	mu       sync.Mutex
	readings []Reading
}

func (w *fakeWriter) WriteCount(deviceID int64, count int, timestamp time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.readings = append(w.readings, Reading{DeviceID: deviceID, Count: count, Timestamp: timestamp})
}

func (w *fakeWriter) all() []Reading {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Reading(nil), w.readings...)
}

type fakeSubscriber struct {
	topics map[string]mqtt.MessageHandler
}

func (s *fakeSubscriber) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	if s.topics == nil {
		s.topics = make(map[string]mqtt.MessageHandler)
	}
	s.topics[topic] = handler
	return nil
}

func newTestCollector(t *testing.T) (*Collector, *fakeWriter) {
	t.Helper()
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")
	writer := &fakeWriter{}
	return NewCollector(writer, 0, log), writer
}

func TestCollector_Start(t *testing.T) {
	c, _ := newTestCollector(t)
	sub := &fakeSubscriber{}

	if err := c.Start(sub); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, ok := sub.topics["countcam/count/+"]; !ok {
		t.Error("not subscribed to count wildcard topic")
	}
}

func TestCollector_HandleCount(t *testing.T) {
	t.Run("valid reading with timestamp", func(t *testing.T) {
		c, writer := newTestCollector(t)

		var broadcast []Reading
		c.SetBroadcast(func(r Reading) { broadcast = append(broadcast, r) })

		payload := []byte(`{"count": 17, "timestamp": "2026-08-29T09:30:00Z"}`)
		if err := c.HandleCount("countcam/count/42", payload); err != nil {
			t.Fatalf("HandleCount() error = %v", err)
		}

		readings := writer.all()
		if len(readings) != 1 {
			t.Fatalf("got %d stored readings, want 1", len(readings))
		}
		r := readings[0]
		if r.DeviceID != 42 || r.Count != 17 {
			t.Errorf("reading = %+v, want device 42 count 17", r)
		}
		want := time.Date(2026, 8, 29, 9, 30, 0, 0, time.UTC)
		if !r.Timestamp.Equal(want) {
			t.Errorf("Timestamp = %v, want %v", r.Timestamp, want)
		}

		if len(broadcast) != 1 || broadcast[0].DeviceID != 42 {
			t.Errorf("broadcast = %+v, want one reading for device 42", broadcast)
		}
	})

	t.Run("missing timestamp uses receive time", func(t *testing.T) {
		c, writer := newTestCollector(t)

		before := time.Now().UTC()
		if err := c.HandleCount("countcam/count/7", []byte(`{"count": 3}`)); err != nil {
			t.Fatalf("HandleCount() error = %v", err)
		}

		readings := writer.all()
		if len(readings) != 1 {
			t.Fatalf("got %d stored readings, want 1", len(readings))
		}
		if readings[0].Timestamp.Before(before) {
			t.Errorf("Timestamp = %v, want at or after %v", readings[0].Timestamp, before)
		}
	})

	t.Run("malformed payload is dropped", func(t *testing.T) {
		c, writer := newTestCollector(t)

		if err := c.HandleCount("countcam/count/7", []byte("not json")); err != nil {
			t.Errorf("HandleCount() error = %v, want nil for malformed payload", err)
		}
		if len(writer.all()) != 0 {
			t.Error("malformed payload was stored")
		}
	})

	t.Run("unparseable topic is dropped", func(t *testing.T) {
		c, writer := newTestCollector(t)

		if err := c.HandleCount("countcam/count/not-a-number", []byte(`{"count": 1}`)); err != nil {
			t.Errorf("HandleCount() error = %v, want nil for unparseable topic", err)
		}
		if len(writer.all()) != 0 {
			t.Error("reading without a device was stored")
		}
	})

	t.Run("negative count is dropped", func(t *testing.T) {
		c, writer := newTestCollector(t)

		if err := c.HandleCount("countcam/count/7", []byte(`{"count": -1}`)); err != nil {
			t.Errorf("HandleCount() error = %v, want nil for negative count", err)
		}
		if len(writer.all()) != 0 {
			t.Error("negative count was stored")
		}
	})

	t.Run("nil writer still broadcasts", func(t *testing.T) {
		log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")
		c := NewCollector(nil, 0, log)

		var got *Reading
		c.SetBroadcast(func(r Reading) { got = &r })

		if err := c.HandleCount("countcam/count/5", []byte(`{"count": 9}`)); err != nil {
			t.Fatalf("HandleCount() error = %v", err)
		}
		if got == nil || got.Count != 9 {
			t.Errorf("broadcast reading = %v, want count 9", got)
		}
	})
}

package mqtt

import "testing"

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name     string
		builder  func() string
		expected string
	}{
		{
			name: "CommandController",
			builder: func() string {
				return Topics{}.CommandController(42)
			},
			expected: "countcam/command/controller/42",
		},
		{
			name: "CommandGeneral",
			builder: func() string {
				return Topics{}.CommandGeneral(42)
			},
			expected: "countcam/command/general/42",
		},
		{
			name: "Ack",
			builder: func() string {
				return Topics{}.Ack(7)
			},
			expected: "countcam/ack/7",
		},
		{
			name: "Scheduler",
			builder: func() string {
				return Topics{}.Scheduler()
			},
			expected: "countcam/scheduler",
		},
		{
			name: "Count",
			builder: func() string {
				return Topics{}.Count(1001)
			},
			expected: "countcam/count/1001",
		},
		{
			name: "SystemStatus",
			builder: func() string {
				return Topics{}.SystemStatus()
			},
			expected: "countcam/system/status",
		},
		{
			name: "AllAcks",
			builder: func() string {
				return Topics{}.AllAcks()
			},
			expected: "countcam/ack/+",
		},
		{
			name: "AllCounts",
			builder: func() string {
				return Topics{}.AllCounts()
			},
			expected: "countcam/count/+",
		},
		{
			name: "AllTopics",
			builder: func() string {
				return Topics{}.AllTopics()
			},
			expected: "countcam/#",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.builder()
			if result != tt.expected {
				t.Errorf("%s() = %q, want %q", tt.name, result, tt.expected)
			}
		})
	}
}

func TestDeviceIDFromTopic(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		want    int64
		wantErr bool
	}{
		{
			name:  "ack topic",
			topic: "countcam/ack/42",
			want:  42,
		},
		{
			name:  "count topic",
			topic: "countcam/count/1001",
			want:  1001,
		},
		{
			name:    "non-numeric segment",
			topic:   "countcam/ack/camera-one",
			wantErr: true,
		},
		{
			name:    "trailing slash",
			topic:   "countcam/ack/",
			wantErr: true,
		},
		{
			name:    "no separator",
			topic:   "countcam",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DeviceIDFromTopic(tt.topic)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DeviceIDFromTopic(%q) error = %v, wantErr %v", tt.topic, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("DeviceIDFromTopic(%q) = %d, want %d", tt.topic, got, tt.want)
			}
		})
	}
}

package device

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateDevice(t *testing.T) {
	longDesc := strings.Repeat("x", maxDescriptionLength+1)

	tests := []struct {
		name    string
		device  *Device
		wantErr error
	}{
		{
			name: "valid device",
			device: &Device{
				Name:      "Entrance North",
				StreamURL: "rtsp://cam-12.local/stream",
			},
			wantErr: nil,
		},
		{
			name: "valid with state",
			device: &Device{
				Name:            "Entrance North",
				StreamURL:       "rtsp://cam-12.local/stream",
				ProcessingState: StateActive,
			},
			wantErr: nil,
		},
		{
			name:    "nil device",
			device:  nil,
			wantErr: ErrInvalidDevice,
		},
		{
			name: "empty name",
			device: &Device{
				Name:      "",
				StreamURL: "rtsp://cam-12.local/stream",
			},
			wantErr: ErrInvalidName,
		},
		{
			name: "whitespace name",
			device: &Device{
				Name:      "   ",
				StreamURL: "rtsp://cam-12.local/stream",
			},
			wantErr: ErrInvalidName,
		},
		{
			name: "name too long",
			device: &Device{
				Name:      strings.Repeat("a", maxNameLength+1),
				StreamURL: "rtsp://cam-12.local/stream",
			},
			wantErr: ErrInvalidName,
		},
		{
			name: "description too long",
			device: &Device{
				Name:        "Entrance North",
				Description: &longDesc,
				StreamURL:   "rtsp://cam-12.local/stream",
			},
			wantErr: ErrInvalidDevice,
		},
		{
			name: "missing stream url",
			device: &Device{
				Name: "Entrance North",
			},
			wantErr: ErrInvalidStreamURL,
		},
		{
			name: "invalid state",
			device: &Device{
				Name:            "Entrance North",
				StreamURL:       "rtsp://cam-12.local/stream",
				ProcessingState: ProcessingState("RUNNING"),
			},
			wantErr: ErrInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDevice(tt.device)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateDevice() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateDevice() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateStreamURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"rtsp", "rtsp://cam.local:554/stream", false},
		{"rtmp", "rtmp://cam.local/live", false},
		{"http", "http://cam.local/mjpeg", false},
		{"https", "https://cam.local/mjpeg", false},
		{"scheme case insensitive", "RTSP://cam.local/stream", false},
		{"empty", "", true},
		{"whitespace", "   ", true},
		{"unsupported scheme", "ftp://cam.local/stream", true},
		{"no scheme", "cam.local/stream", true},
		{"no host", "rtsp:///stream", true},
		{"too long", "rtsp://cam.local/" + strings.Repeat("a", maxStreamURLLength), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStreamURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateStreamURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestParseProcessingState(t *testing.T) {
	tests := []struct {
		input   string
		want    ProcessingState
		wantErr bool
	}{
		{"ACTIVE", StateActive, false},
		{"active", StateActive, false},
		{"Paused", StatePaused, false},
		{"INACTIVE", StateInactive, false},
		{"", "", true},
		{"RUNNING", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseProcessingState(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidState) {
					t.Errorf("ParseProcessingState(%q) error = %v, want ErrInvalidState", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseProcessingState(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseProcessingState(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

package serial

import (
	"strings"
	"testing"
	"time"
)

func TestValidateOptions_ValidOptions(t *testing.T) {
	opts := Options{
		ExitAfter:        time.Hour,
		ReopenAfter:      30 * time.Minute,
		LoopTimeout:      10 * time.Second,
		StopPollInterval: time.Second,
	}

	if err := ValidateOptions(&opts); err != nil {
		t.Fatalf("expected valid options, got error: %v", err)
	}
}

func TestValidateOptions_Invalid(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{"negative exit", Options{ExitAfter: -1}, "exit after cannot be negative"},
		{"negative reopen", Options{ReopenAfter: -time.Second}, "reopen after cannot be negative"},
		{"sub-second reopen", Options{ReopenAfter: time.Millisecond}, "at least 1s"},
		{"huge loop timeout", Options{LoopTimeout: time.Hour}, "loop timeout"},
		{"negative poll", Options{StopPollInterval: -time.Second}, "stop poll interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOptions(&tt.opts)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in error, got: %v", tt.want, err)
			}
		})
	}
}

func TestValidateTTY_BaudRates(t *testing.T) {
	tests := []struct {
		baudRate int
		wantErr  bool
	}{
		{9600, false},
		{19200, false},
		{38400, false},
		{57600, false},
		{115200, false},
		{1200, true},
		{230400, true},
		{0, true},
		{-9600, true},
	}

	for _, tt := range tests {
		err := ValidateTTY("/dev/ttyUSB0", tt.baudRate)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateTTY(%d) error = %v, wantErr %v", tt.baudRate, err, tt.wantErr)
		}
	}
}

func TestValidateTTY_Paths(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"/dev/ttyUSB0", false},
		{"/dev/ttyACM1", false},
		{"/dev/serial/by-id/usb-SHK_NANO_CUL_868-if00-port0", false},
		{"/dev/cu.usbserial", false},
		{"", true},
		{"/dev/../etc/passwd", true},
		{"/tmp/ttyUSB0", true},
		{"COM3", true},
	}

	for _, tt := range tests {
		err := ValidateTTY(tt.path, 38400)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateTTY(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
		}
	}
}

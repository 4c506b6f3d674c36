package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"REVOLUTE_TICK_HZ", "REVOLUTE_SUBSTEPS", "REVOLUTE_MAX_FRAMES",
		"REVOLUTE_HTTP_ADDR", "REVOLUTE_HTTP3_ADDR", "REVOLUTE_QUIC_ADDR", "REVOLUTE_LOG_LEVEL",
		"REVOLUTE_WINDOW_TITLE", "REVOLUTE_WINDOW_WIDTH", "REVOLUTE_WINDOW_HEIGHT",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.TickHz != 60 || cfg.Substeps != 4 || cfg.MaxFrames != 0 {
		t.Errorf("Unexpected simulation defaults %+v", cfg)
	}
	if cfg.HTTPAddr != ":8080" || cfg.HTTP3Addr != "" || cfg.QUICAddr != "" {
		t.Errorf("Unexpected feed defaults http=%q http3=%q quic=%q", cfg.HTTPAddr, cfg.HTTP3Addr, cfg.QUICAddr)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected log level info, got %q", cfg.LogLevel)
	}
	if cfg.WindowTitle != "RevoluteJointTest" || cfg.WindowWidth != 360 || cfg.WindowHeight != 640 {
		t.Errorf("Unexpected window defaults %q %dx%d", cfg.WindowTitle, cfg.WindowWidth, cfg.WindowHeight)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REVOLUTE_TICK_HZ", "120")
	t.Setenv("REVOLUTE_MAX_FRAMES", "300")
	t.Setenv("REVOLUTE_QUIC_ADDR", "127.0.0.1:4433")
	t.Setenv("REVOLUTE_WINDOW_WIDTH", "not-a-number")

	cfg := Load()

	if cfg.TickHz != 120 {
		t.Errorf("Expected tick rate 120, got %d", cfg.TickHz)
	}
	if cfg.MaxFrames != 300 {
		t.Errorf("Expected 300 max frames, got %d", cfg.MaxFrames)
	}
	if cfg.QUICAddr != "127.0.0.1:4433" {
		t.Errorf("Unexpected QUIC address %q", cfg.QUICAddr)
	}
	if cfg.WindowWidth != 360 {
		t.Errorf("Invalid integer should fall back to the default, got %d", cfg.WindowWidth)
	}
	if cfg.Timestep() != time.Second/120 {
		t.Errorf("Unexpected timestep %v", cfg.Timestep())
	}
}

func TestNegativeMaxFrames(t *testing.T) {
	t.Setenv("REVOLUTE_MAX_FRAMES", "-5")
	if cfg := Load(); cfg.MaxFrames != 0 {
		t.Errorf("Negative frame limit should mean unbounded, got %d", cfg.MaxFrames)
	}
}

func TestTimestepBounds(t *testing.T) {
	tests := []struct {
		hz   int
		want time.Duration
	}{
		{0, time.Second / 60},
		{-30, time.Second / 60},
		{240, time.Second / 240},
		{MaxTickHz, time.Second / MaxTickHz},
		{2_000_000_000, time.Second / MaxTickHz},
	}

	for _, tt := range tests {
		cfg := &Config{TickHz: tt.hz}
		if got := cfg.Timestep(); got != tt.want {
			t.Errorf("TickHz %d: expected timestep %v, got %v", tt.hz, tt.want, got)
		}
	}
}

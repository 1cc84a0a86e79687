package main

import (
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   slog.Level
		wantOK bool
	}{
		{"", slog.LevelInfo, true},
		{"debug", slog.LevelDebug, true},
		{" WARN ", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseLogLevel(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("parseLogLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestLoadAuthConfig(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
		enabled bool
	}{
		{"disabled by default", nil, false, false},
		{"enabled with token", map[string]string{"ORBITWATCH_AUTH_ENABLED": "true", "ORBITWATCH_AUTH_TOKEN": "s3cret"}, false, true},
		{"enabled without token", map[string]string{"ORBITWATCH_AUTH_ENABLED": "1"}, true, true},
		{"not a boolean", map[string]string{"ORBITWATCH_AUTH_ENABLED": "yes please"}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ORBITWATCH_AUTH_ENABLED", "")
			t.Setenv("ORBITWATCH_AUTH_TOKEN", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := loadAuthConfig(testLogger())
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if cfg.Enabled != tt.enabled {
				t.Errorf("Enabled = %v, want %v", cfg.Enabled, tt.enabled)
			}
		})
	}
}

func TestLoadSimConfig(t *testing.T) {
	t.Setenv("ORBITWATCH_SIM_TICK", "5")
	t.Setenv("ORBITWATCH_SIM_HORIZON", "-3")
	t.Setenv("ORBITWATCH_SIM_MAX_ALERTS", "abc")
	t.Setenv("ORBITWATCH_SIM_WORKERS", "3")
	t.Setenv("ORBITWATCH_HISTORY_LENGTH", "")
	t.Setenv("ORBITWATCH_SIM_START", "2024-04-09T12:00:00Z")

	cfg := loadSimConfig(testLogger())
	if cfg.Step != 5*time.Second {
		t.Errorf("Step = %v, want 5s", cfg.Step)
	}
	if cfg.HorizonSeconds != 7200 {
		t.Errorf("HorizonSeconds = %v, want default 7200", cfg.HorizonSeconds)
	}
	if cfg.MaxAlerts != 20 {
		t.Errorf("MaxAlerts = %d, want default 20", cfg.MaxAlerts)
	}
	if cfg.Workers != 3 || cfg.HistoryLength != 120 {
		t.Errorf("Workers/HistoryLength = %d/%d", cfg.Workers, cfg.HistoryLength)
	}
	if want := time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC); !cfg.Start.Equal(want) {
		t.Errorf("Start = %v, want %v", cfg.Start, want)
	}
}

func TestLoadTLEConfig(t *testing.T) {
	t.Setenv("ORBITWATCH_ENABLE_TLE_FETCH", "false")
	t.Setenv("ORBITWATCH_TLE_CATEGORY", "Starlink")
	t.Setenv("ORBITWATCH_TLE_SOURCE_URL", "")
	t.Setenv("ORBITWATCH_TLE_EXTRA_URLS", " https://a.example/tle , ,https://b.example/tle")
	t.Setenv("ORBITWATCH_TLE_CACHE_DIR", "/var/cache/orbitwatch")
	t.Setenv("ORBITWATCH_TLE_MAX_RECORDS", "200")
	t.Setenv("ORBITWATCH_TLE_MAX_AGE", "")
	t.Setenv("ORBITWATCH_TLE_CACHE_FILES", "")

	cfg := loadTLEConfig(testLogger())
	want := tleConfig{
		EnableFetch:     false,
		Category:        "starlink",
		ExtraSourceURLs: []string{"https://a.example/tle", "https://b.example/tle"},
		CacheDir:        "/var/cache/orbitwatch",
		MaxFiles:        5,
		MaxRecords:      200,
		MaxAge:          6 * time.Hour,
	}
	if !reflect.DeepEqual(cfg, want) {
		t.Errorf("loadTLEConfig = %+v\nwant %+v", cfg, want)
	}

	t.Setenv("ORBITWATCH_TLE_CATEGORY", "debris")
	if got := loadTLEConfig(testLogger()).Category; got != "stations" {
		t.Errorf("unknown category = %q, want stations", got)
	}
}

func TestLoadStreamConfig(t *testing.T) {
	t.Setenv("ORBITWATCH_STREAM_MAX_CONCURRENT", "0")
	t.Setenv("ORBITWATCH_STREAM_MAX_TOTAL", "50")
	t.Setenv("ORBITWATCH_STREAM_KEEPALIVE_INTERVAL", "15")

	cfg := loadStreamConfig(testLogger(), true)
	if cfg.MaxConcurrentPerIP != 10 || cfg.MaxTotal != 50 || cfg.KeepaliveInterval != 15*time.Second || !cfg.TrustProxy {
		t.Errorf("loadStreamConfig = %+v", cfg)
	}
}

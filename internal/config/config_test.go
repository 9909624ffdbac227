package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/waapi-kit/waapi-kit/internal/waapi"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "waapi.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
connection:
  host: "10.0.0.5"
  port: 8095
  call_timeout: 2s
undo:
  grace_window: 250ms
  change_topics:
    - ak.wwise.core.object.nameChanged
log:
  level: debug
  format: json
metrics:
  addr: "127.0.0.1:9464"
mock:
  event_interval: 3s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Connection.Host != "10.0.0.5" || cfg.Connection.Port != 8095 {
		t.Errorf("connection = %s:%d", cfg.Connection.Host, cfg.Connection.Port)
	}
	if cfg.Connection.CallTimeout != 2*time.Second {
		t.Errorf("call_timeout = %v", cfg.Connection.CallTimeout)
	}
	// Unset keys keep their defaults.
	if cfg.Connection.ConnectTimeout != 5*time.Second {
		t.Errorf("connect_timeout = %v, want default 5s", cfg.Connection.ConnectTimeout)
	}
	if cfg.Undo.GraceWindow != 250*time.Millisecond {
		t.Errorf("grace_window = %v", cfg.Undo.GraceWindow)
	}
	if want := []string{waapi.TopicNameChanged}; !reflect.DeepEqual(cfg.Undo.ChangeTopics, want) {
		t.Errorf("change_topics = %v, want %v", cfg.Undo.ChangeTopics, want)
	}
	if !reflect.DeepEqual(cfg.Undo.WatchedProperties, waapi.WatchedProperties()) {
		t.Errorf("watched_properties = %v, want defaults", cfg.Undo.WatchedProperties)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.Metrics.Addr != "127.0.0.1:9464" {
		t.Errorf("metrics.addr = %q", cfg.Metrics.Addr)
	}
	if cfg.Mock.EventInterval != 3*time.Second || cfg.Mock.Port != waapi.DefaultPort {
		t.Errorf("mock = %+v", cfg.Mock)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "connection:\n  host: file-host\n  port: 9000\n")
	t.Setenv("WAAPI_HOST", "env-host")
	t.Setenv("WAAPI_PORT", "9100")
	t.Setenv("WAAPI_CONNECT_TIMEOUT", "750ms")
	t.Setenv("WAAPI_GRACE_WINDOW", "1s")
	t.Setenv("WAAPI_LOG_LEVEL", "warn")
	t.Setenv("WAAPI_METRICS_ADDR", ":9999")
	t.Setenv("WAAPI_WATCHED_PROPERTIES", "Volume,Pitch")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Connection.Host != "env-host" || cfg.Connection.Port != 9100 {
		t.Errorf("connection = %s:%d, want env-host:9100", cfg.Connection.Host, cfg.Connection.Port)
	}
	if cfg.Connection.ConnectTimeout != 750*time.Millisecond {
		t.Errorf("connect_timeout = %v", cfg.Connection.ConnectTimeout)
	}
	if cfg.Undo.GraceWindow != time.Second {
		t.Errorf("grace_window = %v", cfg.Undo.GraceWindow)
	}
	if cfg.Log.Level != "warn" || cfg.Metrics.Addr != ":9999" {
		t.Errorf("log.level = %q, metrics.addr = %q", cfg.Log.Level, cfg.Metrics.Addr)
	}
	if want := []string{"Volume", "Pitch"}; !reflect.DeepEqual(cfg.Undo.WatchedProperties, want) {
		t.Errorf("watched_properties = %v, want %v", cfg.Undo.WatchedProperties, want)
	}
}

func TestLoadBadEnv(t *testing.T) {
	t.Setenv("WAAPI_PORT", "not-a-number")
	_, err := Default()
	if err == nil || !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("err = %v, want parse env error", err)
	}
}

func TestLoadOrDefault(t *testing.T) {
	for _, path := range []string{"", filepath.Join(t.TempDir(), "missing.yaml")} {
		cfg, err := LoadOrDefault(path)
		if err != nil {
			t.Fatalf("LoadOrDefault(%q): %v", path, err)
		}
		if cfg.Connection.Port != waapi.DefaultPort || cfg.Undo.GraceWindow != 600*time.Millisecond {
			t.Errorf("LoadOrDefault(%q) = %+v, want defaults", path, cfg)
		}
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"port zero", "connection:\n  port: 0\n", "connection.port"},
		{"port too high", "connection:\n  port: 70000\n", "connection.port"},
		{"zero connect timeout", "connection:\n  connect_timeout: 0s\n", "connect_timeout"},
		{"negative call timeout", "connection:\n  call_timeout: -1s\n", "call_timeout"},
		{"negative grace", "undo:\n  grace_window: -5ms\n", "grace_window"},
		{"mock port", "mock:\n  port: -1\n", "mock.port"},
		{"bad yaml", "connection: [\n", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("Load succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestClientConfig(t *testing.T) {
	cfg := defaultConfig()
	cfg.Connection.CallTimeout = 3 * time.Second
	cfg.Connection.PingInterval = 0

	wc := cfg.Client()
	if wc.CallTimeout != 3*time.Second || wc.PingInterval != 0 {
		t.Errorf("client config = %+v", wc)
	}
	if wc.Realm != waapi.DefaultRealm || wc.Endpoint != waapi.DefaultEndpoint {
		t.Errorf("realm/endpoint = %q/%q", wc.Realm, wc.Endpoint)
	}
}

package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dantte-lp/faultline/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9100")
	}

	if got := cfg.Controller.Addr(); got != "127.0.0.1:6633" {
		t.Errorf("Controller.Addr() = %q, want %q", got, "127.0.0.1:6633")
	}

	if cfg.Timing.Settle != 5*time.Second {
		t.Errorf("Timing.Settle = %v, want %v", cfg.Timing.Settle, 5*time.Second)
	}

	if cfg.Timing.ScenarioGap != 30*time.Second {
		t.Errorf("Timing.ScenarioGap = %v, want %v", cfg.Timing.ScenarioGap, 30*time.Second)
	}

	if cfg.Scenarios.Flap.Iterations != 5 {
		t.Errorf("Scenarios.Flap.Iterations = %d, want 5", cfg.Scenarios.Flap.Iterations)
	}

	if len(cfg.Scenarios.Traffic.Flows) != 3 {
		t.Errorf("Scenarios.Traffic.Flows: got %d flows, want 3", len(cfg.Scenarios.Traffic.Flows))
	}

	if cfg.Topology.Empty() {
		t.Error("Topology is empty, want built-in topology")
	}

	// Defaults must pass validation.
	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() failed validation: %v", err)
	}

	// Defaults must also describe a buildable topology.
	if len(cfg.Topology.Hosts) != 3 || len(cfg.Topology.Switches) != 3 || len(cfg.Topology.Links) != 6 {
		t.Errorf("Topology = %d hosts / %d switches / %d links, want 3/3/6",
			len(cfg.Topology.Hosts), len(cfg.Topology.Switches), len(cfg.Topology.Links))
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
log:
  level: "debug"
  format: "text"
metrics:
  addr: ":9200"
controller:
  host: "192.0.2.10"
  port: 6653
timing:
  settle: "1s"
  scenario_gap: "10s"
scenarios:
  flap:
    link_a: "s2"
    link_b: "s3"
    iterations: 2
    dwell: "500ms"
  host_failure:
    host: "h1"
    downtime: "3s"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}

	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}

	if got := cfg.Controller.Addr(); got != "192.0.2.10:6653" {
		t.Errorf("Controller.Addr() = %q, want %q", got, "192.0.2.10:6653")
	}

	if cfg.Timing.Settle != 1*time.Second {
		t.Errorf("Timing.Settle = %v, want %v", cfg.Timing.Settle, 1*time.Second)
	}

	if cfg.Timing.ScenarioGap != 10*time.Second {
		t.Errorf("Timing.ScenarioGap = %v, want %v", cfg.Timing.ScenarioGap, 10*time.Second)
	}

	if cfg.Scenarios.Flap.LinkA != "s2" || cfg.Scenarios.Flap.LinkB != "s3" {
		t.Errorf("Scenarios.Flap endpoints = %q/%q, want s2/s3",
			cfg.Scenarios.Flap.LinkA, cfg.Scenarios.Flap.LinkB)
	}

	if cfg.Scenarios.Flap.Dwell != 500*time.Millisecond {
		t.Errorf("Scenarios.Flap.Dwell = %v, want %v", cfg.Scenarios.Flap.Dwell, 500*time.Millisecond)
	}

	if cfg.Scenarios.HostFailure.Host != "h1" {
		t.Errorf("Scenarios.HostFailure.Host = %q, want %q", cfg.Scenarios.HostFailure.Host, "h1")
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	// Partial YAML: only override log.level and controller.port.
	// Everything else should inherit from defaults.
	yamlContent := `
log:
  level: "warn"
controller:
  port: 6653
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	// Overridden values.
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	if cfg.Controller.Port != 6653 {
		t.Errorf("Controller.Port = %d, want 6653", cfg.Controller.Port)
	}

	// Default values should be preserved.
	if cfg.Controller.Host != "127.0.0.1" {
		t.Errorf("Controller.Host = %q, want default %q", cfg.Controller.Host, "127.0.0.1")
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want default %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Timing.ScenarioGap != 30*time.Second {
		t.Errorf("Timing.ScenarioGap = %v, want default %v", cfg.Timing.ScenarioGap, 30*time.Second)
	}

	if cfg.Scenarios.Congestion.Bandwidth != "900M" {
		t.Errorf("Scenarios.Congestion.Bandwidth = %q, want default %q",
			cfg.Scenarios.Congestion.Bandwidth, "900M")
	}

	// Slice and struct defaults survive a partial file.
	if len(cfg.Scenarios.Traffic.Flows) != 3 {
		t.Errorf("Scenarios.Traffic.Flows: got %d flows, want default 3", len(cfg.Scenarios.Traffic.Flows))
	}

	if cfg.Topology.Empty() {
		t.Error("Topology is empty, want default topology")
	}
}

func TestLoadTopologyFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
topology:
  hosts:
    - name: "h1"
      addr: "10.1.0.1/24"
    - name: "h2"
      addr: "10.1.0.2/24"
  switches:
    - name: "s1"
      dpid: "a"
  links:
    - a: "h1"
      b: "s1"
      bandwidth_mbps: 10
    - a: "s1"
      b: "h2"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if len(cfg.Topology.Hosts) != 2 {
		t.Fatalf("Topology.Hosts: got %d, want 2", len(cfg.Topology.Hosts))
	}

	if cfg.Topology.Hosts[0].Addr != "10.1.0.1/24" {
		t.Errorf("Hosts[0].Addr = %q, want %q", cfg.Topology.Hosts[0].Addr, "10.1.0.1/24")
	}

	if len(cfg.Topology.Switches) != 1 || cfg.Topology.Switches[0].DPID != "a" {
		t.Errorf("Topology.Switches = %+v, want single switch with dpid a", cfg.Topology.Switches)
	}

	if len(cfg.Topology.Links) != 2 {
		t.Errorf("Topology.Links: got %d, want 2", len(cfg.Topology.Links))
	}
}

func TestLoadEmptyPath(t *testing.T) {
	t.Parallel()

	// An empty path means run on defaults plus environment only.
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}

	if got := cfg.Controller.Addr(); got != "127.0.0.1:6633" {
		t.Errorf("Controller.Addr() = %q, want %q", got, "127.0.0.1:6633")
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "empty controller host",
			modify: func(cfg *config.Config) {
				cfg.Controller.Host = ""
			},
			wantErr: config.ErrEmptyControllerHost,
		},
		{
			name: "zero controller port",
			modify: func(cfg *config.Config) {
				cfg.Controller.Port = 0
			},
			wantErr: config.ErrInvalidControllerPort,
		},
		{
			name: "controller port out of range",
			modify: func(cfg *config.Config) {
				cfg.Controller.Port = 70000
			},
			wantErr: config.ErrInvalidControllerPort,
		},
		{
			name: "ovsdb enabled without endpoint",
			modify: func(cfg *config.Config) {
				cfg.OVSDB.Enabled = true
				cfg.OVSDB.Endpoint = ""
			},
			wantErr: config.ErrEmptyOVSDBEndpoint,
		},
		{
			name: "negative settle",
			modify: func(cfg *config.Config) {
				cfg.Timing.Settle = -1 * time.Second
			},
			wantErr: config.ErrNegativeSettle,
		},
		{
			name: "negative scenario gap",
			modify: func(cfg *config.Config) {
				cfg.Timing.ScenarioGap = -1 * time.Second
			},
			wantErr: config.ErrNegativeScenarioGap,
		},
		{
			name: "zero flap iterations",
			modify: func(cfg *config.Config) {
				cfg.Scenarios.Flap.Iterations = 0
			},
			wantErr: config.ErrInvalidFlapIterations,
		},
		{
			name: "zero flap dwell",
			modify: func(cfg *config.Config) {
				cfg.Scenarios.Flap.Dwell = 0
			},
			wantErr: config.ErrInvalidFlapDwell,
		},
		{
			name: "empty congestion source",
			modify: func(cfg *config.Config) {
				cfg.Scenarios.Congestion.Source = ""
			},
			wantErr: config.ErrEmptyScenarioHost,
		},
		{
			name: "zero host failure downtime",
			modify: func(cfg *config.Config) {
				cfg.Scenarios.HostFailure.Downtime = 0
			},
			wantErr: config.ErrInvalidScenarioDuration,
		},
		{
			name: "flow without destination",
			modify: func(cfg *config.Config) {
				cfg.Scenarios.Traffic.Flows[1].Destination = ""
			},
			wantErr: config.ErrEmptyScenarioHost,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "Error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/faultline.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

// writeTemp creates a temporary YAML file and returns its path.
// The file is automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "faultline.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}

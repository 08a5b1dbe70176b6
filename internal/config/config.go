// Package config manages faultline configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/dantte-lp/faultline/internal/topo"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete faultline configuration.
type Config struct {
	Log        LogConfig        `koanf:"log"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Controller ControllerConfig `koanf:"controller"`
	OVSDB      OVSDBConfig      `koanf:"ovsdb"`
	Timing     TimingConfig     `koanf:"timing"`
	Scenarios  ScenariosConfig  `koanf:"scenarios"`
	Topology   topo.Spec        `koanf:"topology"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// ControllerConfig holds the OpenFlow controller the emulated switches
// connect to. The controller is an external process; faultline only waits
// for its socket to accept connections before starting the network.
type ControllerConfig struct {
	// Host is the controller's IP address.
	Host string `koanf:"host"`
	// Port is the controller's OpenFlow port.
	Port int `koanf:"port"`
	// WaitTimeout bounds how long startup waits for the controller socket.
	// Zero disables the wait.
	WaitTimeout time.Duration `koanf:"wait_timeout"`
}

// Addr returns the controller address as host:port.
func (cc ControllerConfig) Addr() string {
	return net.JoinHostPort(cc.Host, strconv.Itoa(cc.Port))
}

// OVSDBConfig holds the optional OVSDB cross-check configuration.
type OVSDBConfig struct {
	// Enabled turns the post-start bridge verification on.
	Enabled bool `koanf:"enabled"`
	// Endpoint is the OVSDB server endpoint (e.g., "unix:/var/run/openvswitch/db.sock").
	Endpoint string `koanf:"endpoint"`
}

// TimingConfig holds the delays that pace the harness.
type TimingConfig struct {
	// Settle is the delay between network start and the first
	// connectivity sweep.
	Settle time.Duration `koanf:"settle"`
	// ScenarioGap is the delay inserted before each background scenario.
	ScenarioGap time.Duration `koanf:"scenario_gap"`
}

// ScenariosConfig holds the parameters of the built-in scenario sequence.
type ScenariosConfig struct {
	Flap        FlapConfig        `koanf:"flap"`
	Congestion  CongestionConfig  `koanf:"congestion"`
	HostFailure HostFailureConfig `koanf:"host_failure"`
	Traffic     TrafficConfig     `koanf:"traffic"`
}

// FlapConfig parameterizes the link flapping scenario.
type FlapConfig struct {
	// LinkA and LinkB name the endpoints of the link to flap.
	LinkA string `koanf:"link_a"`
	LinkB string `koanf:"link_b"`
	// Iterations is the number of down/up cycles.
	Iterations int `koanf:"iterations"`
	// Dwell is how long the link stays in each state.
	Dwell time.Duration `koanf:"dwell"`
}

// CongestionConfig parameterizes the congestion scenario.
type CongestionConfig struct {
	// Source and Destination name the hosts the flood runs between.
	Source      string `koanf:"source"`
	Destination string `koanf:"destination"`
	// Bandwidth is the iperf target rate (e.g., "900M").
	Bandwidth string `koanf:"bandwidth"`
	// Duration is how long the flood lasts.
	Duration time.Duration `koanf:"duration"`
}

// HostFailureConfig parameterizes the host failure scenario.
type HostFailureConfig struct {
	// Host names the host whose interface is taken down.
	Host string `koanf:"host"`
	// Downtime is how long the interface stays down.
	Downtime time.Duration `koanf:"downtime"`
}

// TrafficConfig parameterizes the varying traffic scenario.
type TrafficConfig struct {
	// Grace is the pause between consecutive flows.
	Grace time.Duration `koanf:"grace"`
	// Flows is the ordered flow sequence.
	Flows []FlowConfig `koanf:"flows"`
}

// FlowConfig describes one traffic flow.
type FlowConfig struct {
	Source      string        `koanf:"source"`
	Destination string        `koanf:"destination"`
	Bandwidth   string        `koanf:"bandwidth"`
	Duration    time.Duration `koanf:"duration"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with the built-in topology and
// scenario sequence. The defaults reproduce a three-host, three-switch
// network driven by a local OpenFlow controller on 127.0.0.1:6633.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Controller: ControllerConfig{
			Host:        "127.0.0.1",
			Port:        6633,
			WaitTimeout: 10 * time.Second,
		},
		OVSDB: OVSDBConfig{
			Enabled:  false,
			Endpoint: "unix:/var/run/openvswitch/db.sock",
		},
		Timing: TimingConfig{
			Settle:      5 * time.Second,
			ScenarioGap: 30 * time.Second,
		},
		Scenarios: ScenariosConfig{
			Flap: FlapConfig{
				LinkA:      "s1",
				LinkB:      "s3",
				Iterations: 5,
				Dwell:      3 * time.Second,
			},
			Congestion: CongestionConfig{
				Source:      "h1",
				Destination: "h2",
				Bandwidth:   "900M",
				Duration:    20 * time.Second,
			},
			HostFailure: HostFailureConfig{
				Host:     "h3",
				Downtime: 10 * time.Second,
			},
			Traffic: TrafficConfig{
				Grace: 2 * time.Second,
				Flows: []FlowConfig{
					{Source: "h1", Destination: "h2", Bandwidth: "10M", Duration: 5 * time.Second},
					{Source: "h2", Destination: "h3", Bandwidth: "50M", Duration: 5 * time.Second},
					{Source: "h1", Destination: "h3", Bandwidth: "80M", Duration: 5 * time.Second},
				},
			},
		},
		Topology: topo.Default(),
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for faultline configuration.
// Variables are named FAULTLINE_<section>_<key>, e.g., FAULTLINE_LOG_LEVEL.
const envPrefix = "FAULTLINE_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (FAULTLINE_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults. An empty path skips the
// file layer so the harness runs with defaults alone.
//
// Environment variable mapping:
//
//	FAULTLINE_LOG_LEVEL       -> log.level
//	FAULTLINE_METRICS_ADDR    -> metrics.addr
//	FAULTLINE_CONTROLLER_HOST -> controller.host
//	FAULTLINE_CONTROLLER_PORT -> controller.port
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load defaults first.
	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	// Load YAML file on top of defaults.
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	// Load environment variable overrides on top of YAML.
	// FAULTLINE_LOG_LEVEL -> log.level (strip prefix, lowercase, _ -> .).
	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Slice and struct defaults do not survive koanf's scalar default layer.
	if len(cfg.Scenarios.Traffic.Flows) == 0 {
		cfg.Scenarios.Traffic.Flows = defaults.Scenarios.Traffic.Flows
	}
	if cfg.Topology.Empty() {
		cfg.Topology = defaults.Topology
	}

	if err := Validate(cfg); err != nil {
		if path == "" {
			return nil, fmt.Errorf("validate config: %w", err)
		}
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms FAULTLINE_LOG_LEVEL -> log.level.
// Strips the FAULTLINE_ prefix, lowercases, and replaces _ with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the scalar defaults into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"log.level":                        defaults.Log.Level,
		"log.format":                       defaults.Log.Format,
		"metrics.addr":                     defaults.Metrics.Addr,
		"metrics.path":                     defaults.Metrics.Path,
		"controller.host":                  defaults.Controller.Host,
		"controller.port":                  defaults.Controller.Port,
		"controller.wait_timeout":          defaults.Controller.WaitTimeout.String(),
		"ovsdb.enabled":                    defaults.OVSDB.Enabled,
		"ovsdb.endpoint":                   defaults.OVSDB.Endpoint,
		"timing.settle":                    defaults.Timing.Settle.String(),
		"timing.scenario_gap":              defaults.Timing.ScenarioGap.String(),
		"scenarios.flap.link_a":            defaults.Scenarios.Flap.LinkA,
		"scenarios.flap.link_b":            defaults.Scenarios.Flap.LinkB,
		"scenarios.flap.iterations":        defaults.Scenarios.Flap.Iterations,
		"scenarios.flap.dwell":             defaults.Scenarios.Flap.Dwell.String(),
		"scenarios.congestion.source":      defaults.Scenarios.Congestion.Source,
		"scenarios.congestion.destination": defaults.Scenarios.Congestion.Destination,
		"scenarios.congestion.bandwidth":   defaults.Scenarios.Congestion.Bandwidth,
		"scenarios.congestion.duration":    defaults.Scenarios.Congestion.Duration.String(),
		"scenarios.host_failure.host":      defaults.Scenarios.HostFailure.Host,
		"scenarios.host_failure.downtime":  defaults.Scenarios.HostFailure.Downtime.String(),
		"scenarios.traffic.grace":          defaults.Scenarios.Traffic.Grace.String(),
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyControllerHost indicates the controller host is empty.
	ErrEmptyControllerHost = errors.New("controller.host must not be empty")

	// ErrInvalidControllerPort indicates the controller port is out of range.
	ErrInvalidControllerPort = errors.New("controller.port must be in 1..65535")

	// ErrEmptyOVSDBEndpoint indicates the OVSDB check is enabled without an endpoint.
	ErrEmptyOVSDBEndpoint = errors.New("ovsdb.endpoint must not be empty when ovsdb.enabled is set")

	// ErrNegativeSettle indicates a negative settle delay.
	ErrNegativeSettle = errors.New("timing.settle must not be negative")

	// ErrNegativeScenarioGap indicates a negative scenario gap.
	ErrNegativeScenarioGap = errors.New("timing.scenario_gap must not be negative")

	// ErrInvalidFlapIterations indicates a non-positive flap iteration count.
	ErrInvalidFlapIterations = errors.New("scenarios.flap.iterations must be >= 1")

	// ErrInvalidFlapDwell indicates a non-positive flap dwell.
	ErrInvalidFlapDwell = errors.New("scenarios.flap.dwell must be > 0")

	// ErrEmptyScenarioHost indicates a scenario references an empty host name.
	ErrEmptyScenarioHost = errors.New("scenario host must not be empty")

	// ErrInvalidScenarioDuration indicates a non-positive scenario duration.
	ErrInvalidScenarioDuration = errors.New("scenario duration must be > 0")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Controller.Host == "" {
		return ErrEmptyControllerHost
	}

	if cfg.Controller.Port < 1 || cfg.Controller.Port > 65535 {
		return ErrInvalidControllerPort
	}

	if cfg.OVSDB.Enabled && cfg.OVSDB.Endpoint == "" {
		return ErrEmptyOVSDBEndpoint
	}

	if cfg.Timing.Settle < 0 {
		return ErrNegativeSettle
	}

	if cfg.Timing.ScenarioGap < 0 {
		return ErrNegativeScenarioGap
	}

	return validateScenarios(&cfg.Scenarios)
}

// validateScenarios checks the built-in scenario parameters.
func validateScenarios(sc *ScenariosConfig) error {
	if sc.Flap.LinkA == "" || sc.Flap.LinkB == "" {
		return fmt.Errorf("scenarios.flap: %w", ErrEmptyScenarioHost)
	}
	if sc.Flap.Iterations < 1 {
		return ErrInvalidFlapIterations
	}
	if sc.Flap.Dwell <= 0 {
		return ErrInvalidFlapDwell
	}

	if sc.Congestion.Source == "" || sc.Congestion.Destination == "" {
		return fmt.Errorf("scenarios.congestion: %w", ErrEmptyScenarioHost)
	}
	if sc.Congestion.Duration <= 0 {
		return fmt.Errorf("scenarios.congestion: %w", ErrInvalidScenarioDuration)
	}

	if sc.HostFailure.Host == "" {
		return fmt.Errorf("scenarios.host_failure: %w", ErrEmptyScenarioHost)
	}
	if sc.HostFailure.Downtime <= 0 {
		return fmt.Errorf("scenarios.host_failure: %w", ErrInvalidScenarioDuration)
	}

	for i, f := range sc.Traffic.Flows {
		if f.Source == "" || f.Destination == "" {
			return fmt.Errorf("scenarios.traffic.flows[%d]: %w", i, ErrEmptyScenarioHost)
		}
		if f.Duration <= 0 {
			return fmt.Errorf("scenarios.traffic.flows[%d]: %w", i, ErrInvalidScenarioDuration)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

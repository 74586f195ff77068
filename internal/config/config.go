// Package config handles global configuration loading using viper,
// following the pattern of the teacher's internal/config/config.go: a
// single root YAML key, mapstructure tags, environment overrides, and a
// Load(path) entry point.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"station.fm/stationd/internal/backoff"
	"station.fm/stationd/internal/control"
	"station.fm/stationd/internal/node"
	"station.fm/stationd/internal/procnode"
)

// GlobalConfig is the top-level static configuration. Maps to the
// `station:` root key in YAML.
type GlobalConfig struct {
	Control ControlConfig  `mapstructure:"control"`
	Log     LogConfig      `mapstructure:"log"`
	DataDir string         `mapstructure:"data_dir"`
	Graph   []NodeConfig   `mapstructure:"graph"`
}

// ControlConfig contains local control-plane settings (PID file path
// for the daemon, mirroring the teacher's internal/daemon pid-file
// handling).
type ControlConfig struct {
	PIDFile      string `mapstructure:"pid_file"`
	HealthSocket string `mapstructure:"health_socket"`
}

// ─── Graph / node configuration ───

// NodeConfig declares one node in the dependency graph: its identity,
// parents, tunables, backoff policy, and — for process nodes — the
// command to spawn (spec §3 NodeDescriptor + ProcessCommand, flattened
// into configuration-time data per spec.md §9 "typed configuration
// records").
type NodeConfig struct {
	ID                  string          `mapstructure:"id"`
	Parents             []string        `mapstructure:"parents"`
	Disabled            bool            `mapstructure:"disabled"`
	ReadyTimeoutSec      float64         `mapstructure:"ready_timeout_sec"`
	StopTimeoutSec       float64         `mapstructure:"stop_timeout_sec"`
	KillTimeoutSec       float64         `mapstructure:"kill_timeout_sec"`
	HealthIntervalSec    float64         `mapstructure:"health_interval_sec"`
	HealthFailThreshold  int             `mapstructure:"health_fail_threshold"`
	Backoff              BackoffConfig   `mapstructure:"backoff"`
	Process              *ProcessConfig  `mapstructure:"process"` // nil for service nodes
	Coordinator          *CoordinatorConfig `mapstructure:"coordinator"` // only meaningful for the COORDINATOR node
}

// CoordinatorConfig tunes the coordinator tick loop (SPEC_FULL.md
// supplemented feature, grounded on manager/coordinator.py's
// CoordinatorService.__init__ interval_sec/hot_window_size fields).
type CoordinatorConfig struct {
	IntervalSec   float64 `mapstructure:"interval_sec"`
	HotWindowSize int     `mapstructure:"hot_window_size"`
}

// ProcessConfig is the ProcessCommand of spec §3 as configuration data.
type ProcessConfig struct {
	Exe  string            `mapstructure:"exe"`
	Args []string          `mapstructure:"args"`
	Cwd  string            `mapstructure:"cwd"`
	Env  map[string]string `mapstructure:"env"`
}

// BackoffConfig is spec §3 BackoffPolicy as configuration data
// (seconds, to stay friendly to YAML authors; converted to
// time.Duration by ToPolicy).
type BackoffConfig struct {
	BaseSec             float64 `mapstructure:"base_sec"`
	Factor              float64 `mapstructure:"factor"`
	MaxSec              float64 `mapstructure:"max_sec"`
	JitterSec           float64 `mapstructure:"jitter_sec"`
	ResetAfterOkSec     float64 `mapstructure:"reset_after_ok_sec"`
	WindowSec           float64 `mapstructure:"window_sec"`
	MaxRestartsInWindow int     `mapstructure:"max_restarts_in_window"`
}

// ToPolicy converts the YAML-friendly seconds fields into a
// backoff.Policy, falling back to backoff.DefaultPolicy() for any field
// left at its zero value.
func (b BackoffConfig) ToPolicy() backoff.Policy {
	d := backoff.DefaultPolicy()
	if b.BaseSec > 0 {
		d.Base = secToDuration(b.BaseSec)
	}
	if b.Factor > 0 {
		d.Factor = b.Factor
	}
	if b.MaxSec > 0 {
		d.Max = secToDuration(b.MaxSec)
	}
	if b.JitterSec > 0 {
		d.Jitter = secToDuration(b.JitterSec)
	}
	if b.ResetAfterOkSec > 0 {
		d.ResetAfterOK = secToDuration(b.ResetAfterOkSec)
	}
	if b.WindowSec > 0 {
		d.Window = secToDuration(b.WindowSec)
	}
	if b.MaxRestartsInWindow > 0 {
		d.MaxRestartsInWindow = b.MaxRestartsInWindow
	}
	return d
}

func secToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// ToTunables converts a NodeConfig's timeout/threshold fields into
// node.Tunables, applying the same sensible defaults the original's
// Runnable ABC carries (ready_timeout_sec=20, stop_timeout_sec=15).
func (n NodeConfig) ToTunables() node.Tunables {
	t := node.Tunables{
		ReadyTimeout:        20 * time.Second,
		StopTimeout:         15 * time.Second,
		KillTimeout:         5 * time.Second,
		HealthFailThreshold: 3,
		Backoff:             n.Backoff.ToPolicy(),
	}
	if n.ReadyTimeoutSec > 0 {
		t.ReadyTimeout = secToDuration(n.ReadyTimeoutSec)
	}
	if n.StopTimeoutSec > 0 {
		t.StopTimeout = secToDuration(n.StopTimeoutSec)
	}
	if n.KillTimeoutSec > 0 {
		t.KillTimeout = secToDuration(n.KillTimeoutSec)
	}
	if n.HealthIntervalSec > 0 {
		t.HealthInterval = secToDuration(n.HealthIntervalSec)
	}
	if n.HealthFailThreshold > 0 {
		t.HealthFailThreshold = n.HealthFailThreshold
	}
	return t
}

// ToProcessCommand converts a ProcessConfig into a procnode.Command.
// Panics if called on a service-node NodeConfig (Process == nil); the
// caller (stationnodes.BuildDescriptors) only calls this for nodes it
// has already checked carry a Process block.
func (n NodeConfig) ToProcessCommand() procnode.Command {
	p := n.Process
	return procnode.Command{
		Exe:  p.Exe,
		Args: p.Args,
		Cwd:  p.Cwd,
		Env:  p.Env,
	}
}

// ─── Log ───

// LogConfig contains logging settings, trimmed of the teacher's
// Loki/Kafka appenders (no event bus to ship logs through in this
// domain) but otherwise identical in shape.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	Console ConsoleOutputConfig `mapstructure:"console"`
	File    FileOutputConfig    `mapstructure:"file"`
}

// ConsoleOutputConfig configures stdout log output.
type ConsoleOutputConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure
// `station: ...`.
type configRoot struct {
	Station GlobalConfig `mapstructure:"station"`
}

// Load loads configuration from path. The YAML file uses `station:` as
// root key; env vars use the STATION_ prefix (e.g.
// STATION_LOG_LEVEL), via the same "." -> "_" key replacer the teacher
// uses.
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg := root.Station

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("station.control.pid_file", "/var/run/stationd.pid")
	v.SetDefault("station.control.health_socket", "/var/run/stationd.health.sock")

	v.SetDefault("station.log.level", "info")
	v.SetDefault("station.log.format", "json")
	v.SetDefault("station.log.outputs.console.enabled", true)
	v.SetDefault("station.log.outputs.file.enabled", false)
	v.SetDefault("station.log.outputs.file.path", "/var/log/stationd/stationd.log")
	v.SetDefault("station.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("station.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("station.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("station.log.outputs.file.rotation.compress", true)

	v.SetDefault("station.data_dir", "/var/lib/stationd")

	v.SetDefault("station.graph", []map[string]any{})
}

// Validate checks structural invariants viper/mapstructure cannot
// express: every node ID is one of the closed NodeId set and no ID is
// duplicated. It does not check for a Process block on process nodes;
// stationnodes.BuildDescriptors rejects a process node without one.
// The DAG-level checks (unknown parent, cycle) are left to
// supervisor.New, which owns that validation per spec §4.6.
func (c *GlobalConfig) Validate() error {
	seen := make(map[string]bool, len(c.Graph))
	for _, n := range c.Graph {
		if seen[n.ID] {
			return fmt.Errorf("config: duplicate node id %q", n.ID)
		}
		seen[n.ID] = true
		if !isKnownNodeID(n.ID) {
			return fmt.Errorf("config: unknown node id %q", n.ID)
		}
	}
	return nil
}

func isKnownNodeID(id string) bool {
	for _, known := range control.AllNodeIds {
		if string(known) == id {
			return true
		}
	}
	return false
}

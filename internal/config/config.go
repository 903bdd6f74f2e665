// Package config provides YAML-based configuration loading for GameFleet.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vrischmann/envconfig"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30s" decode naturally.
type Duration time.Duration

// UnmarshalYAML parses a duration string or an integer number of seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if n, err := strconv.Atoi(s); err == nil {
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// D returns the wrapped time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// Config is the top-level GameFleet configuration, loaded from gamefleet.yaml.
type Config struct {
	Name         string          `yaml:"name"`
	Template     string          `yaml:"template"`
	WorkerPrefix string          `yaml:"worker_prefix"`
	DB           DBConfig        `yaml:"db"`
	Fleet        FleetConfig     `yaml:"fleet"`
	Provision    ProvisionConfig `yaml:"provision"`
	Health       HealthConfig    `yaml:"health"`
	Registry     RegistryConfig  `yaml:"registry"`
	Backup       BackupConfig    `yaml:"backup"`
	Notify       NotifyConfig    `yaml:"notify"`
	Dashboard    DashboardConfig `yaml:"dashboard"`
}

// DBConfig selects and configures the registry database backend.
type DBConfig struct {
	Driver   string `yaml:"driver"` // "sqlite" or "mysql"
	Path     string `yaml:"path"`   // sqlite file path
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
}

// FleetConfig holds the desired fleet shape and per-guest compute spec.
type FleetConfig struct {
	Workers   int `yaml:"workers"`
	VCPUs     int `yaml:"vcpus"`
	MemoryMiB int `yaml:"memory_mib"`
}

// ProvisionConfig tunes the provisioning pipeline.
type ProvisionConfig struct {
	Parallelism     int      `yaml:"parallelism"`
	StartStagger    Duration `yaml:"start_stagger"`
	ReadyTimeout    Duration `yaml:"ready_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// HealthConfig tunes the health monitor.
type HealthConfig struct {
	PollInterval     Duration `yaml:"poll_interval"`
	ProbeTimeout     Duration `yaml:"probe_timeout"`
	RetryCeiling     int      `yaml:"retry_ceiling"`
	WatchedProcess   string   `yaml:"watched_process"`
	RestartCommand   string   `yaml:"restart_command"`
	HistoryRetention int      `yaml:"history_retention"` // health records kept per instance
}

// RegistryConfig describes the external registration endpoint guests report to.
type RegistryConfig struct {
	URL             string   `yaml:"url"`
	ReportInterval  Duration `yaml:"report_interval"`
	GuestConfigPath string   `yaml:"guest_config_path"`
}

// BackupConfig holds the optional snapshot schedule (5-field cron).
type BackupConfig struct {
	Schedule string `yaml:"schedule"`
}

// NotifyConfig configures escalation alert sinks.
type NotifyConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
}

// SlackConfig holds Slack alert credentials.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// DiscordConfig holds Discord alert credentials.
type DiscordConfig struct {
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// DashboardConfig configures the read-only HTTP dashboard.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// envOverrides are environment variables applied on top of the YAML file,
// so host deployments can set secrets and paths without editing the file.
type envOverrides struct {
	DBDriver     string `envconfig:"optional"`
	DBPath       string `envconfig:"optional"`
	RegistryURL  string `envconfig:"optional"`
	Workers      int    `envconfig:"optional"`
	SlackToken   string `envconfig:"optional"`
	DiscordToken string `envconfig:"optional"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config with env overrides applied.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv merges GF_* environment variables over the YAML values.
func (c *Config) applyEnv() error {
	var ov envOverrides
	if err := envconfig.InitWithPrefix(&ov, "GF"); err != nil {
		return fmt.Errorf("config: env overrides: %w", err)
	}
	if ov.DBDriver != "" {
		c.DB.Driver = ov.DBDriver
	}
	if ov.DBPath != "" {
		c.DB.Path = ov.DBPath
	}
	if ov.RegistryURL != "" {
		c.Registry.URL = ov.RegistryURL
	}
	if ov.Workers > 0 {
		c.Fleet.Workers = ov.Workers
	}
	if ov.SlackToken != "" {
		c.Notify.Slack.BotToken = ov.SlackToken
	}
	if ov.DiscordToken != "" {
		c.Notify.Discord.BotToken = ov.DiscordToken
	}
	return nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.WorkerPrefix == "" {
		c.WorkerPrefix = "worker-"
	}
	if c.DB.Driver == "" {
		c.DB.Driver = "sqlite"
	}
	if c.DB.Path == "" {
		c.DB.Path = "gamefleet.db"
	}
	if c.DB.Host == "" {
		c.DB.Host = "127.0.0.1"
	}
	if c.DB.Port == 0 {
		c.DB.Port = 3306
	}
	if c.DB.Database == "" && c.Name != "" {
		c.DB.Database = "gamefleet_" + c.Name
	}
	if c.Fleet.Workers <= 0 {
		c.Fleet.Workers = 1
	}
	if c.Fleet.VCPUs <= 0 {
		c.Fleet.VCPUs = 2
	}
	if c.Fleet.MemoryMiB <= 0 {
		c.Fleet.MemoryMiB = 4096
	}
	if c.Provision.Parallelism <= 0 {
		c.Provision.Parallelism = 3
	}
	if c.Provision.StartStagger <= 0 {
		c.Provision.StartStagger = Duration(5 * time.Second)
	}
	if c.Provision.ReadyTimeout <= 0 {
		c.Provision.ReadyTimeout = Duration(180 * time.Second)
	}
	if c.Provision.ShutdownTimeout <= 0 {
		c.Provision.ShutdownTimeout = Duration(60 * time.Second)
	}
	if c.Health.PollInterval <= 0 {
		c.Health.PollInterval = Duration(30 * time.Second)
	}
	if c.Health.ProbeTimeout <= 0 {
		c.Health.ProbeTimeout = Duration(10 * time.Second)
	}
	if c.Health.RetryCeiling <= 0 {
		c.Health.RetryCeiling = 3
	}
	if c.Health.WatchedProcess == "" {
		c.Health.WatchedProcess = "gameclient"
	}
	if c.Health.HistoryRetention <= 0 {
		c.Health.HistoryRetention = 1000
	}
	if c.Registry.ReportInterval <= 0 {
		c.Registry.ReportInterval = Duration(30 * time.Second)
	}
	if c.Registry.GuestConfigPath == "" {
		c.Registry.GuestConfigPath = "/etc/gameclient/worker.json"
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Name == "" {
		errs = append(errs, "name is required")
	}
	if c.Template == "" {
		errs = append(errs, "template is required")
	}
	if c.DB.Driver != "sqlite" && c.DB.Driver != "mysql" {
		errs = append(errs, fmt.Sprintf("db.driver %q is not supported (sqlite or mysql)", c.DB.Driver))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InstanceName derives the deterministic guest name for an index.
func (c *Config) InstanceName(index int) string {
	return c.WorkerPrefix + strconv.Itoa(index)
}

package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Log          LogConfig          `toml:"log"`
	Engine       EngineConfig       `toml:"engine"`
	Download     DownloadConfig     `toml:"download"`
	Notification NotificationConfig `toml:"notification"`
	Database     DatabaseConfig     `toml:"database"`
	Server       ServerConfig       `toml:"server"`
}

// LogConfig controls the logger level.
type LogConfig struct {
	Level string `toml:"level"`
}

// EngineConfig describes how to reach the download engine proxy and the LRCLIB lyrics API.
type EngineConfig struct {
	BaseURL   string        `toml:"base_url"`
	LRCLibURL string        `toml:"lrclib_url"`
	Timeout   time.Duration `toml:"timeout"`
	CacheTTL  time.Duration `toml:"cache_ttl"`
}

// DownloadConfig contains background job settings.
//
// RuntimeBudget per BudgetWindow mirrors the platform limit on cumulative background work;
// GracePeriod is how long a forced stop may take before the process is terminated.
type DownloadConfig struct {
	OutputDir         string        `toml:"output_dir"`
	PollInterval      time.Duration `toml:"poll_interval"`
	RequestsPerSecond float64       `toml:"requests_per_second"`
	LeaseMaxDuration  time.Duration `toml:"lease_max_duration"`
	RuntimeBudget     time.Duration `toml:"runtime_budget"`
	BudgetWindow      time.Duration `toml:"budget_window"`
	GracePeriod       time.Duration `toml:"grace_period"`
}

// NotificationConfig describes the persistent job notification channel.
type NotificationConfig struct {
	ChannelID      string `toml:"channel_id"`
	ChannelName    string `toml:"channel_name"`
	Description    string `toml:"description"`
	NotificationID int    `toml:"notification_id"`
	ShowBadge      bool   `toml:"show_badge"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns host:port for [net/http.Server].
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values from [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects durations and limits that would make the job coordinator misbehave.
func (c *Config) Validate() error {
	d := c.Download
	switch {
	case d.LeaseMaxDuration <= 0:
		return fmt.Errorf("%w: download.lease_max_duration must be positive", ErrInvalidConfig)
	case d.GracePeriod <= 0:
		return fmt.Errorf("%w: download.grace_period must be positive", ErrInvalidConfig)
	case d.RuntimeBudget <= 0 || d.BudgetWindow <= 0:
		return fmt.Errorf("%w: download.runtime_budget and download.budget_window must be positive", ErrInvalidConfig)
	case d.RuntimeBudget > d.BudgetWindow:
		return fmt.Errorf("%w: download.runtime_budget exceeds download.budget_window", ErrInvalidConfig)
	case d.PollInterval <= 0:
		return fmt.Errorf("%w: download.poll_interval must be positive", ErrInvalidConfig)
	}
	return nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

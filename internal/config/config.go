package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/driftcache/driftcache/internal/cache"
	"github.com/driftcache/driftcache/pkg/driver"
	"github.com/driftcache/driftcache/pkg/types"
)

// Configuration represents the complete cache stack configuration
type Configuration struct {
	Instance string        `yaml:"instance"`
	Store    string        `yaml:"store"`
	Layout   LayoutConfig  `yaml:"layout"`
	Local    StoreConfig   `yaml:"local"`
	Remote   StoreConfig   `yaml:"remote"`
	Global   GlobalConfig  `yaml:"global"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// LayoutConfig represents the path layout shared by both tiers
type LayoutConfig struct {
	Root         string `yaml:"root"`
	OmitRoot     bool   `yaml:"omit_root"`
	OmitInstance bool   `yaml:"omit_instance"`
	OmitStore    bool   `yaml:"omit_store"`
}

// StoreConfig represents one storage tier
type StoreConfig struct {
	Driver  string            `yaml:"driver"`
	Path    string            `yaml:"path"`
	Options map[string]string `yaml:"options"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	LogFile       string `yaml:"log_file"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups"`
	StatusPort    int    `yaml:"status_port"`
}

// MetricsConfig represents metrics settings
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Instance: "default",
		Store:    "keyvalue",
		Layout:   LayoutConfig{},
		Local: StoreConfig{
			Driver: "local",
			Path:   "/var/cache/driftcache",
		},
		Remote: StoreConfig{},
		Global: GlobalConfig{
			LogLevel:      "INFO",
			LogFormat:     "json",
			LogFile:       "",
			LogMaxSizeMB:  100,
			LogMaxBackups: 3,
			StatusPort:    8080,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "driftcache",
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Configuration) LoadFromEnv() error {
	// Namespace settings
	if val := os.Getenv("DRIFTCACHE_INSTANCE"); val != "" {
		c.Instance = val
	}
	if val := os.Getenv("DRIFTCACHE_STORE"); val != "" {
		c.Store = val
	}
	if val := os.Getenv("DRIFTCACHE_ROOT"); val != "" {
		c.Layout.Root = val
	}

	// Tier settings
	if val := os.Getenv("DRIFTCACHE_LOCAL_DRIVER"); val != "" {
		c.Local.Driver = val
	}
	if val := os.Getenv("DRIFTCACHE_LOCAL_PATH"); val != "" {
		c.Local.Path = val
	}
	if val := os.Getenv("DRIFTCACHE_REMOTE_DRIVER"); val != "" {
		c.Remote.Driver = val
	}
	if val := os.Getenv("DRIFTCACHE_REMOTE_PATH"); val != "" {
		c.Remote.Path = val
	}

	// Global settings
	if val := os.Getenv("DRIFTCACHE_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv("DRIFTCACHE_LOG_FORMAT"); val != "" {
		c.Global.LogFormat = val
	}
	if val := os.Getenv("DRIFTCACHE_LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}
	if val := os.Getenv("DRIFTCACHE_STATUS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Global.StatusPort = port
		}
	}

	// Metrics settings
	if val := os.Getenv("DRIFTCACHE_METRICS_ENABLED"); val != "" {
		c.Metrics.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("DRIFTCACHE_METRICS_NAMESPACE"); val != "" {
		c.Metrics.Namespace = val
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	if c.Local.Driver == "" {
		return fmt.Errorf("local driver must be configured")
	}

	if c.Remote.Driver == "" {
		return fmt.Errorf("remote driver must be configured")
	}

	// Layout segments become path components on every backend.
	for name, seg := range map[string]string{
		"instance": c.Instance,
		"store":    c.Store,
		"root":     c.Layout.Root,
	} {
		if strings.ContainsAny(seg, "/\\") {
			return fmt.Errorf("%s must not contain path separators: %s", name, seg)
		}
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if c.Global.LogLevel == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if c.Global.LogFormat != "json" && c.Global.LogFormat != "text" {
		return fmt.Errorf("invalid log_format: %s (must be json or text)", c.Global.LogFormat)
	}

	if c.Global.LogFile != "" && c.Global.LogMaxSizeMB <= 0 {
		return fmt.Errorf("log_max_size_mb must be greater than 0 when log_file is set")
	}

	if c.Global.StatusPort < 0 || c.Global.StatusPort > 65535 {
		return fmt.Errorf("status_port must be between 0 and 65535")
	}

	return nil
}

// ToLayout resolves the layout both tiers place their values under.
func (c *Configuration) ToLayout() types.Layout {
	return types.Layout{
		Root:         c.Layout.Root,
		Instance:     c.Instance,
		Store:        c.Store,
		OmitRoot:     c.Layout.OmitRoot,
		OmitInstance: c.Layout.OmitInstance,
		OmitStore:    c.Layout.OmitStore,
	}
}

// ToDriverConfig assembles the driver config for the full write-back
// stack. The same layout is stamped into both tiers so a value evicted
// from one lands at the matching path in the other.
func (c *Configuration) ToDriverConfig() *driver.Config {
	layout := c.ToLayout()
	return &driver.Config{
		Type:   cache.DriverName,
		Layout: layout,
		Local:  tierConfig(c.Local, layout),
		Remote: tierConfig(c.Remote, layout),
	}
}

func tierConfig(sc StoreConfig, layout types.Layout) *driver.Config {
	return &driver.Config{
		Type:    sc.Driver,
		Path:    sc.Path,
		Layout:  layout,
		Options: sc.Options,
	}
}

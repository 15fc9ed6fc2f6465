package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	// Namespace defaults
	if cfg.Instance != "default" {
		t.Errorf("Expected Instance to be default, got %s", cfg.Instance)
	}
	if cfg.Store != "keyvalue" {
		t.Errorf("Expected Store to be keyvalue, got %s", cfg.Store)
	}

	// Tier defaults
	if cfg.Local.Driver != "local" {
		t.Errorf("Expected Local.Driver to be local, got %s", cfg.Local.Driver)
	}
	if cfg.Local.Path != "/var/cache/driftcache" {
		t.Errorf("Expected Local.Path to be /var/cache/driftcache, got %s", cfg.Local.Path)
	}
	if cfg.Remote.Driver != "" {
		t.Errorf("Expected Remote.Driver to be unset, got %s", cfg.Remote.Driver)
	}

	// Global defaults
	if cfg.Global.LogLevel != "INFO" {
		t.Errorf("Expected LogLevel to be INFO, got %s", cfg.Global.LogLevel)
	}
	if cfg.Global.LogFormat != "json" {
		t.Errorf("Expected LogFormat to be json, got %s", cfg.Global.LogFormat)
	}
	if cfg.Global.StatusPort != 8080 {
		t.Errorf("Expected StatusPort to be 8080, got %d", cfg.Global.StatusPort)
	}

	// Metrics defaults
	if !cfg.Metrics.Enabled {
		t.Error("Expected Metrics.Enabled to be true")
	}
	if cfg.Metrics.Namespace != "driftcache" {
		t.Errorf("Expected Metrics.Namespace to be driftcache, got %s", cfg.Metrics.Namespace)
	}
}

// validRemote fills in the one section NewDefault leaves empty.
func validRemote() *Configuration {
	cfg := NewDefault()
	cfg.Remote = StoreConfig{Driver: "memory"}
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  func() *Configuration
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			config:  validRemote,
			wantErr: false,
		},
		{
			name: "missing remote driver",
			config: func() *Configuration {
				return NewDefault()
			},
			wantErr: true,
			errMsg:  "remote driver must be configured",
		},
		{
			name: "missing local driver",
			config: func() *Configuration {
				cfg := validRemote()
				cfg.Local.Driver = ""
				return cfg
			},
			wantErr: true,
			errMsg:  "local driver must be configured",
		},
		{
			name: "instance with path separator",
			config: func() *Configuration {
				cfg := validRemote()
				cfg.Instance = "app/evil"
				return cfg
			},
			wantErr: true,
			errMsg:  "must not contain path separators",
		},
		{
			name: "store with backslash",
			config: func() *Configuration {
				cfg := validRemote()
				cfg.Store = `kv\evil`
				return cfg
			},
			wantErr: true,
			errMsg:  "must not contain path separators",
		},
		{
			name: "invalid log level",
			config: func() *Configuration {
				cfg := validRemote()
				cfg.Global.LogLevel = "TRACE"
				return cfg
			},
			wantErr: true,
			errMsg:  "invalid log_level",
		},
		{
			name: "invalid log format",
			config: func() *Configuration {
				cfg := validRemote()
				cfg.Global.LogFormat = "xml"
				return cfg
			},
			wantErr: true,
			errMsg:  "invalid log_format",
		},
		{
			name: "log file without max size",
			config: func() *Configuration {
				cfg := validRemote()
				cfg.Global.LogFile = "/var/log/driftcache.log"
				cfg.Global.LogMaxSizeMB = 0
				return cfg
			},
			wantErr: true,
			errMsg:  "log_max_size_mb must be greater than 0",
		},
		{
			name: "status port out of range",
			config: func() *Configuration {
				cfg := validRemote()
				cfg.Global.StatusPort = 70000
				return cfg
			},
			wantErr: true,
			errMsg:  "status_port must be between 0 and 65535",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.config()
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil && tt.errMsg != "" {
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Validate() error = %v, want error containing %v", err, tt.errMsg)
				}
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	configContent := `
instance: photos
store: thumbnails

layout:
  root: apps
  omit_store: true

local:
  driver: sqlite
  path: /tmp/driftcache.db

remote:
  driver: s3
  path: media-archive
  options:
    region: eu-central-1
    endpoint: http://localhost:9000

global:
  log_level: DEBUG
  log_format: text
  status_port: 9090

metrics:
  enabled: false
`

	err := os.WriteFile(configFile, []byte(configContent), 0600)
	if err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	cfg := NewDefault()
	err = cfg.LoadFromFile(configFile)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	// Verify loaded values
	if cfg.Instance != "photos" {
		t.Errorf("Expected Instance to be photos, got %s", cfg.Instance)
	}
	if cfg.Store != "thumbnails" {
		t.Errorf("Expected Store to be thumbnails, got %s", cfg.Store)
	}
	if cfg.Layout.Root != "apps" {
		t.Errorf("Expected Layout.Root to be apps, got %s", cfg.Layout.Root)
	}
	if !cfg.Layout.OmitStore {
		t.Error("Expected Layout.OmitStore to be true")
	}
	if cfg.Local.Driver != "sqlite" {
		t.Errorf("Expected Local.Driver to be sqlite, got %s", cfg.Local.Driver)
	}
	if cfg.Remote.Driver != "s3" {
		t.Errorf("Expected Remote.Driver to be s3, got %s", cfg.Remote.Driver)
	}
	if cfg.Remote.Path != "media-archive" {
		t.Errorf("Expected Remote.Path to be media-archive, got %s", cfg.Remote.Path)
	}
	if cfg.Remote.Options["region"] != "eu-central-1" {
		t.Errorf("Expected region option to be eu-central-1, got %s", cfg.Remote.Options["region"])
	}
	if cfg.Remote.Options["endpoint"] != "http://localhost:9000" {
		t.Errorf("Expected endpoint option to survive, got %s", cfg.Remote.Options["endpoint"])
	}
	if cfg.Global.LogLevel != "DEBUG" {
		t.Errorf("Expected LogLevel to be DEBUG, got %s", cfg.Global.LogLevel)
	}
	if cfg.Global.LogFormat != "text" {
		t.Errorf("Expected LogFormat to be text, got %s", cfg.Global.LogFormat)
	}
	if cfg.Global.StatusPort != 9090 {
		t.Errorf("Expected StatusPort to be 9090, got %d", cfg.Global.StatusPort)
	}
	if cfg.Metrics.Enabled {
		t.Error("Expected Metrics.Enabled to be false")
	}

	// Fields absent from the file keep their defaults.
	if cfg.Metrics.Namespace != "driftcache" {
		t.Errorf("Expected Metrics.Namespace default to survive, got %s", cfg.Metrics.Namespace)
	}
}

func TestLoadFromFileNonExistent(t *testing.T) {
	cfg := NewDefault()
	err := cfg.LoadFromFile("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Expected error when loading non-existent config file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	// Set up environment variables
	testEnvVars := map[string]string{
		"DRIFTCACHE_INSTANCE":        "notes",
		"DRIFTCACHE_STORE":           "attachments",
		"DRIFTCACHE_ROOT":            "team",
		"DRIFTCACHE_LOCAL_PATH":      "/mnt/fast/cache",
		"DRIFTCACHE_REMOTE_DRIVER":   "rclone",
		"DRIFTCACHE_REMOTE_PATH":     "gdrive:backup",
		"DRIFTCACHE_LOG_LEVEL":       "ERROR",
		"DRIFTCACHE_LOG_FORMAT":      "text",
		"DRIFTCACHE_STATUS_PORT":     "9191",
		"DRIFTCACHE_METRICS_ENABLED": "false",
	}

	// Set environment variables
	for key, value := range testEnvVars {
		t.Setenv(key, value)
	}

	cfg := NewDefault()
	err := cfg.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	// Verify loaded values
	if cfg.Instance != "notes" {
		t.Errorf("Expected Instance to be notes, got %s", cfg.Instance)
	}
	if cfg.Store != "attachments" {
		t.Errorf("Expected Store to be attachments, got %s", cfg.Store)
	}
	if cfg.Layout.Root != "team" {
		t.Errorf("Expected Layout.Root to be team, got %s", cfg.Layout.Root)
	}
	if cfg.Local.Path != "/mnt/fast/cache" {
		t.Errorf("Expected Local.Path to be /mnt/fast/cache, got %s", cfg.Local.Path)
	}
	if cfg.Remote.Driver != "rclone" {
		t.Errorf("Expected Remote.Driver to be rclone, got %s", cfg.Remote.Driver)
	}
	if cfg.Remote.Path != "gdrive:backup" {
		t.Errorf("Expected Remote.Path to be gdrive:backup, got %s", cfg.Remote.Path)
	}
	if cfg.Global.LogLevel != "ERROR" {
		t.Errorf("Expected LogLevel to be ERROR, got %s", cfg.Global.LogLevel)
	}
	if cfg.Global.StatusPort != 9191 {
		t.Errorf("Expected StatusPort to be 9191, got %d", cfg.Global.StatusPort)
	}
	if cfg.Metrics.Enabled {
		t.Error("Expected Metrics.Enabled to be false")
	}
}

func TestLoadFromEnvBadPort(t *testing.T) {
	t.Setenv("DRIFTCACHE_STATUS_PORT", "not-a-port")

	cfg := NewDefault()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	// Unparseable ports are ignored, keeping the default.
	if cfg.Global.StatusPort != 8080 {
		t.Errorf("Expected StatusPort to keep default 8080, got %d", cfg.Global.StatusPort)
	}
}

func TestSaveToFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "saved_config.yaml")

	cfg := validRemote()
	cfg.Instance = "photos"
	cfg.Remote.Options = map[string]string{"region": "us-west-2"}

	err := cfg.SaveToFile(configFile)
	if err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	// Verify file exists
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		t.Error("Config file was not created")
	}

	// Load the saved config and verify
	newCfg := NewDefault()
	err = newCfg.LoadFromFile(configFile)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}

	if newCfg.Instance != "photos" {
		t.Errorf("Expected Instance to be photos, got %s", newCfg.Instance)
	}
	if newCfg.Remote.Driver != "memory" {
		t.Errorf("Expected Remote.Driver to be memory, got %s", newCfg.Remote.Driver)
	}
	if newCfg.Remote.Options["region"] != "us-west-2" {
		t.Errorf("Expected region option to round-trip, got %s", newCfg.Remote.Options["region"])
	}
}

func TestSaveToFileCreateDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := NewDefault()
	err := cfg.SaveToFile(configFile)
	if err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	// Verify file exists
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		t.Error("Config file was not created")
	}

	// Verify directory was created
	if _, err := os.Stat(filepath.Dir(configFile)); os.IsNotExist(err) {
		t.Error("Config directory was not created")
	}
}

func TestToLayout(t *testing.T) {
	cfg := NewDefault()
	cfg.Instance = "photos"
	cfg.Store = "thumbnails"
	cfg.Layout.Root = "apps"
	cfg.Layout.OmitInstance = true

	layout := cfg.ToLayout()
	if layout.Root != "apps" {
		t.Errorf("Expected layout root apps, got %s", layout.Root)
	}
	if layout.Instance != "photos" {
		t.Errorf("Expected layout instance photos, got %s", layout.Instance)
	}
	if layout.Store != "thumbnails" {
		t.Errorf("Expected layout store thumbnails, got %s", layout.Store)
	}
	if !layout.OmitInstance {
		t.Error("Expected OmitInstance to carry through")
	}
	if layout.Dir() != "apps/thumbnails" {
		t.Errorf("Expected layout dir apps/thumbnails, got %s", layout.Dir())
	}
}

func TestToDriverConfig(t *testing.T) {
	cfg := validRemote()
	cfg.Instance = "photos"
	cfg.Store = "thumbnails"
	cfg.Local = StoreConfig{Driver: "local", Path: "/var/cache/driftcache"}
	cfg.Remote = StoreConfig{
		Driver:  "s3",
		Path:    "media-archive",
		Options: map[string]string{"region": "us-west-2"},
	}

	dc := cfg.ToDriverConfig()
	if dc.Type != "writeback" {
		t.Errorf("Expected driver type writeback, got %s", dc.Type)
	}
	if dc.Local == nil || dc.Remote == nil {
		t.Fatal("Expected both tier configs to be populated")
	}
	if dc.Local.Type != "local" {
		t.Errorf("Expected local tier type local, got %s", dc.Local.Type)
	}
	if dc.Local.Path != "/var/cache/driftcache" {
		t.Errorf("Expected local tier path to carry through, got %s", dc.Local.Path)
	}
	if dc.Remote.Type != "s3" {
		t.Errorf("Expected remote tier type s3, got %s", dc.Remote.Type)
	}
	if dc.Remote.Path != "media-archive" {
		t.Errorf("Expected remote tier path media-archive, got %s", dc.Remote.Path)
	}
	if dc.Remote.Options["region"] != "us-west-2" {
		t.Errorf("Expected remote options to carry through, got %v", dc.Remote.Options)
	}

	// Both tiers share one layout so migrated values keep their paths.
	if dc.Local.Layout.Instance != "photos" || dc.Remote.Layout.Instance != "photos" {
		t.Errorf("Expected layout instance stamped into both tiers, got %q and %q",
			dc.Local.Layout.Instance, dc.Remote.Layout.Instance)
	}
	if dc.Local.Layout.Store != "thumbnails" || dc.Remote.Layout.Store != "thumbnails" {
		t.Errorf("Expected layout store stamped into both tiers, got %q and %q",
			dc.Local.Layout.Store, dc.Remote.Layout.Store)
	}
}

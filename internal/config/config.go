// Package config provides typed configuration management using Viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Core     CoreConfig     `mapstructure:"core"`
	Database DatabaseConfig `mapstructure:"database"`
	Daemon   DaemonConfig   `mapstructure:"daemon"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Backup   BackupConfig   `mapstructure:"backup"`
}

// CoreConfig holds core application settings.
type CoreConfig struct {
	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`
}

// DatabaseConfig holds database settings.
type DatabaseConfig struct {
	Path        string `mapstructure:"path"`
	CacheSize   int    `mapstructure:"cache_size"`
	BusyTimeout int    `mapstructure:"busy_timeout"`
}

// DaemonConfig holds daemon settings.
type DaemonConfig struct {
	SocketPath      string        `mapstructure:"socket_path"`
	PIDFile         string        `mapstructure:"pid_file"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// NotifyConfig holds conflict notification settings.
type NotifyConfig struct {
	WebhookURL     string `mapstructure:"webhook_url"`
	WebhookHeaders string `mapstructure:"webhook_headers"`
}

// BackupConfig holds Google Cloud Storage backup settings.
type BackupConfig struct {
	Bucket          string `mapstructure:"bucket"`
	CredentialsPath string `mapstructure:"credentials_path"`
	Prefix          string `mapstructure:"prefix"`
	RetentionDays   int    `mapstructure:"retention_days"`
}

// Load loads configuration from environment and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Environment variables with PLANFAB_ prefix
	v.SetEnvPrefix("PLANFAB")
	v.AutomaticEnv()

	bindEnvVars(v)

	// Config file is optional
	if err := loadConfigFile(v); err != nil {
		_ = err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("core.data_dir", filepath.Join(DefaultHomeDir(), "data"))
	v.SetDefault("core.log_level", "info")
	v.SetDefault("core.log_json", false)

	v.SetDefault("database.cache_size", 64000)
	v.SetDefault("database.busy_timeout", 5000)

	v.SetDefault("daemon.socket_path", filepath.Join(DefaultHomeDir(), "planfab.sock"))
	v.SetDefault("daemon.pid_file", filepath.Join(DefaultHomeDir(), "planfab.pid"))
	v.SetDefault("daemon.shutdown_timeout", 10*time.Second)

	v.SetDefault("backup.prefix", "backups")
	v.SetDefault("backup.retention_days", 30)
}

// bindEnvVars binds environment variables to config keys.
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("core.data_dir", "PLANFAB_DATA_DIR")
	_ = v.BindEnv("core.log_level", "PLANFAB_LOG_LEVEL")
	_ = v.BindEnv("core.log_json", "PLANFAB_LOG_JSON")

	_ = v.BindEnv("database.path", "PLANFAB_DB_PATH")
	_ = v.BindEnv("database.cache_size", "PLANFAB_DB_CACHE_SIZE")
	_ = v.BindEnv("database.busy_timeout", "PLANFAB_DB_BUSY_TIMEOUT")

	_ = v.BindEnv("daemon.socket_path", "PLANFAB_SOCKET_PATH")
	_ = v.BindEnv("daemon.pid_file", "PLANFAB_PID_FILE")
	_ = v.BindEnv("daemon.shutdown_timeout", "PLANFAB_SHUTDOWN_TIMEOUT")

	_ = v.BindEnv("notify.webhook_url", "PLANFAB_WEBHOOK_URL")
	_ = v.BindEnv("notify.webhook_headers", "PLANFAB_WEBHOOK_HEADERS")

	_ = v.BindEnv("backup.bucket", "PLANFAB_BACKUP_BUCKET")
	_ = v.BindEnv("backup.credentials_path", "PLANFAB_BACKUP_CREDENTIALS_PATH")
	_ = v.BindEnv("backup.prefix", "PLANFAB_BACKUP_PREFIX")
	_ = v.BindEnv("backup.retention_days", "PLANFAB_BACKUP_RETENTION_DAYS")
}

// loadConfigFile loads config.yaml if it exists.
func loadConfigFile(v *viper.Viper) error {
	v.AddConfigPath(DefaultHomeDir())
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	return v.MergeInConfig()
}

// DefaultHomeDir returns the planfab home directory.
func DefaultHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".planfab"
	}
	return filepath.Join(home, ".planfab")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Core.DataDir == "" {
		return fmt.Errorf("core.data_dir must not be empty")
	}
	if c.Database.BusyTimeout < 0 {
		return fmt.Errorf("database.busy_timeout must not be negative")
	}
	if c.Backup.Bucket != "" && c.Backup.RetentionDays <= 0 {
		return fmt.Errorf("backup.retention_days must be positive")
	}
	return nil
}

// IsBackupEnabled returns true if GCS backup is configured.
func (c *Config) IsBackupEnabled() bool {
	return c.Backup.Bucket != ""
}

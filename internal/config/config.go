package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the engine's runtime configuration. Schedules and destinations
// live in their own files under DataDir; this covers paths and behavior knobs.
type Config struct {
	DataDir          string        `mapstructure:"data_dir"`
	QueueDir         string        `mapstructure:"queue_dir"`
	ManifestDir      string        `mapstructure:"manifest_dir"`
	ScratchDir       string        `mapstructure:"scratch_dir"`
	StatusDir        string        `mapstructure:"status_dir"`
	LockFile         string        `mapstructure:"lock_file"`
	SchedulesFile    string        `mapstructure:"schedules_file"`
	DestinationsFile string        `mapstructure:"destinations_file"`
	DatabaseMethod   string        `mapstructure:"database_method"`
	StatusRetention  time.Duration `mapstructure:"status_retention"`
	LogLevel         string        `mapstructure:"log_level"`
	LogFormat        string        `mapstructure:"log_format"`
	LogFile          string        `mapstructure:"log_file"`

	// Platform tool integration
	HomeRoot      string   `mapstructure:"home_root"`
	PackagerCmd   string   `mapstructure:"packager_cmd"`
	PackagerArgs  []string `mapstructure:"packager_args"`
	DBBackupCmd   string   `mapstructure:"db_backup_cmd"`
	DBBackupArgs  []string `mapstructure:"db_backup_args"`
	RestoreCmd    string   `mapstructure:"restore_cmd"`
	RestoreArgs   []string `mapstructure:"restore_args"`
	MySQLDSN      string   `mapstructure:"mysql_dsn"`
	EncryptionKey string   `mapstructure:"encryption_passphrase"`
}

const defaultDataDir = "/var/lib/hostbackup"

// Load reads configuration from the given file (optional) plus HOSTBACKUP_*
// environment variables, applying defaults for anything unset.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("data_dir", defaultDataDir)
	v.SetDefault("database_method", "packager")
	v.SetDefault("status_retention", 30*24*time.Hour)
	v.SetDefault("log_level", "normal")
	v.SetDefault("log_format", "text")
	v.SetDefault("home_root", "/home")
	v.SetDefault("packager_cmd", "/usr/local/bin/pkgacct")
	v.SetDefault("db_backup_cmd", "/usr/local/bin/dbdump")
	v.SetDefault("restore_cmd", "/usr/local/bin/restoreacct")

	v.SetEnvPrefix("HOSTBACKUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg.applyDerivedDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyDerivedDefaults fills path fields relative to DataDir when unset.
func (c *Config) applyDerivedDefaults() {
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}
	if c.QueueDir == "" {
		c.QueueDir = filepath.Join(c.DataDir, "queue")
	}
	if c.ManifestDir == "" {
		c.ManifestDir = filepath.Join(c.DataDir, "manifests")
	}
	if c.ScratchDir == "" {
		c.ScratchDir = filepath.Join(c.DataDir, "work")
	}
	if c.StatusDir == "" {
		c.StatusDir = filepath.Join(c.DataDir, "status")
	}
	if c.LockFile == "" {
		c.LockFile = filepath.Join(c.DataDir, "dispatch.lock")
	}
	if c.SchedulesFile == "" {
		c.SchedulesFile = filepath.Join(c.DataDir, "schedules.json")
	}
	if c.DestinationsFile == "" {
		c.DestinationsFile = filepath.Join(c.DataDir, "destinations.yaml")
	}
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	switch c.DatabaseMethod {
	case "packager", "hot-backup", "skip":
	default:
		return fmt.Errorf("invalid database_method %q (want packager, hot-backup or skip)", c.DatabaseMethod)
	}
	if c.StatusRetention < 0 {
		return fmt.Errorf("status_retention cannot be negative")
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log_format %q (want text or json)", c.LogFormat)
	}
	return nil
}

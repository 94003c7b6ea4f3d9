// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverXLSX     = "xlsx"
	DriverPostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	Bot      BotConfig      `mapstructure:"bot"`
	Store    StoreConfig    `mapstructure:"store"`
	Database DatabaseConfig `mapstructure:"database"`
	Backup   BackupConfig   `mapstructure:"backup"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Staff    StaffConfig    `mapstructure:"staff"`
	Summary  SummaryConfig  `mapstructure:"summary"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Cache    CacheConfig    `mapstructure:"cache"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token       string        `mapstructure:"token"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
}

// StoreConfig selects the backing store and names its sheets.
type StoreConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	Timezone string       `mapstructure:"timezone"`
	Sheets   SheetsConfig `mapstructure:"sheets"`
}

// SheetsConfig holds the sheet names inside the workbook.
type SheetsConfig struct {
	Events  string `mapstructure:"events"`
	Members string `mapstructure:"members"`
	Coaches string `mapstructure:"coaches"`
	Menu    string `mapstructure:"menu"`
	Main    string `mapstructure:"main"`
}

// DatabaseConfig holds PostgreSQL connection configuration for the
// postgres store driver.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// BackupConfig holds the backup directory and retention.
type BackupConfig struct {
	Dir      string `mapstructure:"dir"`
	Prefix   string `mapstructure:"prefix"`
	MaxFiles int    `mapstructure:"max_files"`
}

// AdminConfig holds admin user configuration.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// StaffConfig lists the Telegram users allowed to operate the ledger.
type StaffConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// SummaryConfig gates the summary view.
type SummaryConfig struct {
	PasswordHash string `mapstructure:"password_hash"`
}

// ScheduleConfig holds cron specs for background jobs. An empty spec
// disables the job.
type ScheduleConfig struct {
	Refresh string `mapstructure:"refresh"`
	Backup  string `mapstructure:"backup"`
}

// MetricsConfig holds the prometheus listener address.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// CacheConfig holds expiry for in-memory caches.
type CacheConfig struct {
	DirectoryTTL time.Duration `mapstructure:"directory_ttl"`
	FormTTL      time.Duration `mapstructure:"form_ttl"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g. BOT_TOKEN, STORE_DRIVER, BACKUP_MAX_FILES
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The file is optional, env vars can provide all config.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.poll_timeout", "10s")

	v.SetDefault("store.driver", DriverXLSX)
	v.SetDefault("store.path", "data/members.xlsx")
	v.SetDefault("store.timezone", "Asia/Taipei")
	v.SetDefault("store.sheets.events", "事件紀錄")
	v.SetDefault("store.sheets.members", "會員資料")
	v.SetDefault("store.sheets.coaches", "教練")
	v.SetDefault("store.sheets.menu", "價目表")
	v.SetDefault("store.sheets.main", "主表")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "ledger")
	v.SetDefault("database.name", "ledger")
	v.SetDefault("database.pool_size", 5)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("backup.dir", "backups")
	v.SetDefault("backup.prefix", "members")
	v.SetDefault("backup.max_files", 30)

	v.SetDefault("schedule.refresh", "0 3 * * *")
	v.SetDefault("schedule.backup", "30 3 * * *")

	v.SetDefault("cache.directory_ttl", "5m")
	v.SetDefault("cache.form_ttl", "15m")
}

// Validate rejects configurations the bot cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverXLSX:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the %s driver", DriverXLSX)
		}
	case DriverPostgres:
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.Backup.MaxFiles < 1 {
		return fmt.Errorf("backup.max_files must be at least 1, got %d", c.Backup.MaxFiles)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location returns the time zone used to stamp event dates.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Store.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid store.timezone %q: %w", c.Store.Timezone, err)
	}
	return loc, nil
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsStaff checks if a user may operate the ledger. Admins always may;
// an empty staff list admits only admins.
func (c *Config) IsStaff(userID int64) bool {
	if c.IsAdmin(userID) {
		return true
	}
	for _, id := range c.Staff.IDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Package config loads service configuration from YAML, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Session    SessionConfig    `mapstructure:"session"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Lark       LarkConfig       `mapstructure:"lark"`
	Workflow   WorkflowConfig   `mapstructure:"workflow"`
	Pagination PaginationConfig `mapstructure:"pagination"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SessionConfig holds multi-step session configuration
type SessionConfig struct {
	TTL    time.Duration `mapstructure:"ttl"`
	Prefix string        `mapstructure:"prefix"`
}

// SchedulerConfig holds completion check queue configuration
type SchedulerConfig struct {
	Queue       string `mapstructure:"queue"`
	Concurrency int    `mapstructure:"concurrency"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	AppID               string        `mapstructure:"app_id"`
	AppSecret           string        `mapstructure:"app_secret"`
	BaseURL             string        `mapstructure:"base_url"`
	VerificationToken   string        `mapstructure:"verification_token"`
	EncryptKey          string        `mapstructure:"encrypt_key"`
	ApprovalChannel     string        `mapstructure:"approval_channel"`
	APITimeout          time.Duration `mapstructure:"api_timeout"`
	SendAttempts        uint          `mapstructure:"send_attempts"`
	RetryDelay          time.Duration `mapstructure:"retry_delay"`
	RatePerSecond       float64       `mapstructure:"rate_per_second"`
	Burst               int           `mapstructure:"burst"`
	BreakerFailures     uint32        `mapstructure:"breaker_failures"`
	BreakerOpenDuration time.Duration `mapstructure:"breaker_open_duration"`
}

// WorkflowConfig holds approval workflow configuration
type WorkflowConfig struct {
	Timezone        string           `mapstructure:"timezone"`
	CompletionGrace time.Duration    `mapstructure:"completion_grace"`
	EffectTimeout   time.Duration    `mapstructure:"effect_timeout"`
	Departments     []DepartmentHead `mapstructure:"departments"`
}

// DepartmentHead names who approves trips for a department.
// A list keeps department names in their original case; viper lowercases map keys.
type DepartmentHead struct {
	Name   string `mapstructure:"name"`
	HeadID string `mapstructure:"head_id"`
}

// PaginationConfig holds listing configuration
type PaginationConfig struct {
	DefaultPageSize int `mapstructure:"default_page_size"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	OutputPath  string `mapstructure:"output_path"`
	Format      string `mapstructure:"format"`
	ServiceName string `mapstructure:"service_name"`
}

// MetricsConfig holds Prometheus configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load loads configuration from file, a .env file next to the process and environment variables.
// Values already present in the environment win over the .env file.
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Override with environment variables
	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	// Database defaults
	v.SetDefault("database.path", "data/commute.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Redis and session defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.prefix", "commute:session:")

	// Scheduler defaults
	v.SetDefault("scheduler.queue", "approvals")
	v.SetDefault("scheduler.concurrency", 5)

	// Lark defaults
	v.SetDefault("lark.api_timeout", 10*time.Second)
	v.SetDefault("lark.send_attempts", 3)
	v.SetDefault("lark.retry_delay", 200*time.Millisecond)
	v.SetDefault("lark.rate_per_second", 20)
	v.SetDefault("lark.burst", 5)
	v.SetDefault("lark.breaker_failures", 5)
	v.SetDefault("lark.breaker_open_duration", 30*time.Second)

	// Workflow defaults
	v.SetDefault("workflow.timezone", "UTC")
	v.SetDefault("workflow.completion_grace", 30*time.Minute)
	v.SetDefault("workflow.effect_timeout", 30*time.Second)
	v.SetDefault("pagination.default_page_size", 20)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.service_name", "commute-approvals")

	v.SetDefault("metrics.enabled", true)
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) error {
	// Sensitive credentials from environment
	bindings := map[string]string{
		"lark.app_id":             "LARK_APP_ID",
		"lark.app_secret":         "LARK_APP_SECRET",
		"lark.approval_channel":   "LARK_APPROVAL_CHANNEL",
		"lark.verification_token": "LARK_VERIFICATION_TOKEN",
		"lark.encrypt_key":        "LARK_ENCRYPT_KEY",
		"redis.addr":              "REDIS_ADDR",
		"redis.password":          "REDIS_PASSWORD",
		"database.path":           "DATABASE_PATH",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate Lark credentials
	if c.Lark.AppID == "" {
		return fmt.Errorf("lark.app_id is required")
	}
	if c.Lark.AppSecret == "" {
		return fmt.Errorf("lark.app_secret is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	if c.Scheduler.Concurrency <= 0 {
		return fmt.Errorf("scheduler.concurrency must be positive")
	}
	if c.Pagination.DefaultPageSize <= 0 {
		return fmt.Errorf("pagination.default_page_size must be positive")
	}
	if c.Workflow.CompletionGrace < 0 {
		return fmt.Errorf("workflow.completion_grace must not be negative")
	}
	if _, err := time.LoadLocation(c.Workflow.Timezone); err != nil {
		return fmt.Errorf("workflow.timezone: %w", err)
	}
	for i, dept := range c.Workflow.Departments {
		if strings.TrimSpace(dept.Name) == "" || strings.TrimSpace(dept.HeadID) == "" {
			return fmt.Errorf("workflow.departments[%d] needs both name and head_id", i)
		}
	}

	return nil
}

// Package container provides dependency injection and lifecycle management
// for the commute approval service following Clean Architecture principles.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Redis backs sessions and the completion queue
	Redis RedisConfig

	// Session configuration
	Session SessionConfig

	// Scheduler configuration
	Scheduler SchedulerConfig

	// Lark API configuration
	Lark LarkConfig

	// Workflow tuning
	Workflow WorkflowConfig

	// Server configuration
	Server ServerConfig

	// Metrics configuration
	Metrics MetricsConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SessionConfig holds multi-step session settings.
type SessionConfig struct {
	// TTL is how long an idle session survives
	TTL time.Duration

	// Prefix is prepended to every session key in Redis
	Prefix string
}

// SchedulerConfig holds completion check queue settings.
type SchedulerConfig struct {
	Queue       string
	Concurrency int
}

// LarkConfig holds Lark API settings.
type LarkConfig struct {
	// AppID is the Lark application ID
	AppID string

	// AppSecret is the Lark application secret
	AppSecret string

	// BaseURL overrides the open platform endpoint
	BaseURL string

	// VerificationToken and EncryptKey authenticate card callbacks; empty disables the check
	VerificationToken string
	EncryptKey        string

	// ApprovalChannel is the operations chat; empty disables channel notifications
	ApprovalChannel string

	// APITimeout is the timeout for a single API call
	APITimeout time.Duration

	SendAttempts        uint
	RetryDelay          time.Duration
	RatePerSecond       float64
	Burst               int
	BreakerFailures     uint32
	BreakerOpenDuration time.Duration
}

// WorkflowConfig holds state machine and effect settings.
type WorkflowConfig struct {
	// Timezone departure times are entered in
	Timezone string

	// CompletionGrace is added after departure before the rider is asked
	CompletionGrace time.Duration

	// EffectTimeout bounds one asynchronous side effect
	EffectTimeout time.Duration

	// DefaultPageSize is used when a listing omits size
	DefaultPageSize int

	// Departments maps department names to the head who approves their trips
	Departments map[string]string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind to
	Host string

	// Port to listen on
	Port int

	// ReadTimeout for HTTP server
	ReadTimeout time.Duration

	// WriteTimeout for HTTP server
	WriteTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/commute.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Session: SessionConfig{
			TTL:    24 * time.Hour,
			Prefix: "commute:session:",
		},
		Scheduler: SchedulerConfig{
			Queue:       "approvals",
			Concurrency: 5,
		},
		Lark: LarkConfig{
			APITimeout:          10 * time.Second,
			SendAttempts:        3,
			RetryDelay:          200 * time.Millisecond,
			RatePerSecond:       20,
			Burst:               5,
			BreakerFailures:     5,
			BreakerOpenDuration: 30 * time.Second,
		},
		Workflow: WorkflowConfig{
			Timezone:        "UTC",
			CompletionGrace: 30 * time.Minute,
			EffectTimeout:   30 * time.Second,
			DefaultPageSize: 20,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	// Validate Lark configuration
	if c.Lark.AppID == "" {
		return fmt.Errorf("lark.app_id is required")
	}
	if c.Lark.AppSecret == "" {
		return fmt.Errorf("lark.app_secret is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if c.Scheduler.Queue == "" {
		return fmt.Errorf("scheduler.queue is required")
	}
	if c.Scheduler.Concurrency <= 0 {
		return fmt.Errorf("scheduler.concurrency must be positive")
	}
	if c.Workflow.DefaultPageSize <= 0 {
		return fmt.Errorf("pagination.default_page_size must be positive")
	}
	if _, err := time.LoadLocation(c.Workflow.Timezone); err != nil {
		return fmt.Errorf("workflow.timezone: %w", err)
	}

	return nil
}

// Location returns the configured time zone, UTC when it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Workflow.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

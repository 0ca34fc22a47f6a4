package config

import (
	"github.com/garyjia/commute-approvals/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Redis: container.RedisConfig{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		},
		Session: container.SessionConfig{
			TTL:    c.Session.TTL,
			Prefix: c.Session.Prefix,
		},
		Scheduler: container.SchedulerConfig{
			Queue:       c.Scheduler.Queue,
			Concurrency: c.Scheduler.Concurrency,
		},
		Lark: container.LarkConfig{
			AppID:               c.Lark.AppID,
			AppSecret:           c.Lark.AppSecret,
			BaseURL:             c.Lark.BaseURL,
			VerificationToken:   c.Lark.VerificationToken,
			EncryptKey:          c.Lark.EncryptKey,
			ApprovalChannel:     c.Lark.ApprovalChannel,
			APITimeout:          c.Lark.APITimeout,
			SendAttempts:        c.Lark.SendAttempts,
			RetryDelay:          c.Lark.RetryDelay,
			RatePerSecond:       c.Lark.RatePerSecond,
			Burst:               c.Lark.Burst,
			BreakerFailures:     c.Lark.BreakerFailures,
			BreakerOpenDuration: c.Lark.BreakerOpenDuration,
		},
		Workflow: container.WorkflowConfig{
			Timezone:        c.Workflow.Timezone,
			CompletionGrace: c.Workflow.CompletionGrace,
			EffectTimeout:   c.Workflow.EffectTimeout,
			DefaultPageSize: c.Pagination.DefaultPageSize,
			Departments:     c.departmentHeads(),
		},
		Server: container.ServerConfig{
			Host:            c.Server.Host,
			Port:            c.Server.Port,
			ReadTimeout:     c.Server.ReadTimeout,
			WriteTimeout:    c.Server.WriteTimeout,
			ShutdownTimeout: c.Server.ShutdownTimeout,
		},
		Metrics: container.MetricsConfig{
			Enabled: c.Metrics.Enabled,
		},
	}
}

func (c *Config) departmentHeads() map[string]string {
	heads := make(map[string]string, len(c.Workflow.Departments))
	for _, dept := range c.Workflow.Departments {
		heads[dept.Name] = dept.HeadID
	}
	return heads
}

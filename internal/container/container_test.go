package container

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/garyjia/commute-approvals/internal/application/dispatcher"
	"github.com/garyjia/commute-approvals/internal/application/session"
	"github.com/garyjia/commute-approvals/internal/domain/event"
	"github.com/garyjia/commute-approvals/pkg/database"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Lark.AppID = "cli_test"
	cfg.Lark.AppSecret = "secret"
	return cfg
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"app id", func(c *Config) { c.Lark.AppID = "" }, "lark.app_id"},
		{"redis", func(c *Config) { c.Redis.Addr = "" }, "redis.addr"},
		{"concurrency", func(c *Config) { c.Scheduler.Concurrency = 0 }, "scheduler.concurrency"},
		{"timezone", func(c *Config) { c.Workflow.Timezone = "Nowhere/City" }, "workflow.timezone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestNewContainer_RejectsInvalidConfig(t *testing.T) {
	_, err := NewContainer(DefaultConfig(), zap.NewNop())
	assert.ErrorContains(t, err, "invalid config")

	_, err = NewContainer(validConfig(), nil)
	assert.Error(t, err)
}

func TestProvideDatabaseAndSeedDepartments(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	bundle, err := ProvideDatabase(&DatabaseConfig{Path: database.InMemory}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { bundle.DB.Close() })

	repos, err := ProvideRepositories(bundle.DB.DB, logger)
	require.NoError(t, err)

	require.NoError(t, SeedDepartments(ctx, repos.Departments, map[string]string{"Operations": "ou_head"}, logger))
	require.NoError(t, SeedDepartments(ctx, repos.Departments, map[string]string{"Operations": "ou_new_head"}, logger))

	dept, err := repos.Departments.GetByName(ctx, "Operations")
	require.NoError(t, err)
	require.NotNil(t, dept)
	assert.Equal(t, "ou_new_head", dept.HeadID)
}

func TestProvideServices_RegistersEffectHandlers(t *testing.T) {
	logger := zap.NewNop()
	bundle, err := ProvideDatabase(&DatabaseConfig{Path: database.InMemory}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { bundle.DB.Close() })
	repos, err := ProvideRepositories(bundle.DB.DB, logger)
	require.NoError(t, err)

	disp, err := ProvideDispatcher(&DefaultConfig().Workflow, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = disp.Close() })

	m := ProvideMetrics()
	services, err := ProvideServices(&ServiceDeps{
		Repos:      repos,
		TxManager:  bundle.TransactionMgr,
		Sessions:   session.NewStore(session.NewMemoryBackend(0)),
		Dispatcher: disp,
		Metrics:    m.Metrics,
		Workflow:   &DefaultConfig().Workflow,
		Location:   validConfig().Location(),
		Logger:     logger,
	})
	require.NoError(t, err)
	require.NotNil(t, services.Coordinator)
	require.NotNil(t, services.Reports)

	assert.Len(t, disp.ListHandlers(event.TypeNotifyRequester), 1)
	assert.Len(t, disp.ListHandlers(event.TypeScheduleCompletion), 1)
}

func TestProvideMetrics_ExposesRuntimeCollectors(t *testing.T) {
	m := ProvideMetrics()
	m.Metrics.RequestCreated("TRIP")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Metrics.RequestsCreated.WithLabelValues("TRIP")))
	families, err := m.Registry.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["go_goroutines"])
	assert.True(t, names["commute_requests_created_total"])
}

func TestConvertToZapFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	adapter := &zapLoggerAdapter{logger: zap.New(core)}

	adapter.Error("failed", "error", errors.New("boom"), "id", int64(4), 42, "ignored", "dangling")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "boom", fields["error"])
	assert.Equal(t, int64(4), fields["id"])
	assert.Len(t, fields, 2)
}

var _ dispatcher.Logger = (*dispatcherLoggerAdapter)(nil)

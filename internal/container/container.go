package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/commute-approvals/internal/application/dispatcher"
	"github.com/garyjia/commute-approvals/internal/application/port"
	"github.com/garyjia/commute-approvals/internal/application/service"
	"github.com/garyjia/commute-approvals/internal/application/session"
	"github.com/garyjia/commute-approvals/internal/infrastructure/cache"
	infraLark "github.com/garyjia/commute-approvals/internal/infrastructure/external/lark"
	"github.com/garyjia/commute-approvals/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/commute-approvals/internal/infrastructure/worker"
	httpapi "github.com/garyjia/commute-approvals/internal/interfaces/http"
	"github.com/garyjia/commute-approvals/pkg/database"
)

// Container owns the process-wide dependencies: storage, Redis, Lark,
// the effect dispatcher, the services and the completion worker.
type Container struct {
	config *Config
	logger *zap.Logger

	// Storage
	database     *database.DB
	db           *sqlite.DB
	repositories *RepositoryBundle

	// Redis
	redis        *redis.Client
	sessionCache *cache.RedisBackend
	sessions     *session.Store
	asynqClient  *asynq.Client
	scheduler    port.Scheduler

	// Lark and metrics
	lark    *LarkBundle
	metrics *MetricsBundle

	dispatcher dispatcher.Dispatcher
	services   *ServiceBundle
	cards      *infraLark.EventProcessor

	workers *worker.WorkerManager

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle holds the SQLite repositories.
type RepositoryBundle struct {
	Trips       port.TripRepository
	Routes      port.RouteRepository
	Batches     port.BatchRepository
	History     port.HistoryRepository
	Departments port.DepartmentRepository
}

// ServiceBundle holds the application services.
type ServiceBundle struct {
	Coordinator  service.ApprovalCoordinator
	Notification service.NotificationService
	Reports      service.ReportService
}

// NewContainer validates cfg. Nothing is connected until Start.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start connects storage and Redis, builds the Lark clients, the dispatcher
// and the services, then starts the completion worker. Close tears the same
// pieces down in reverse.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container")

	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("SQLite ready", zap.String("path", c.config.Database.Path))

	if err := c.initCache(); err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	c.logger.Info("Redis ready", zap.String("addr", c.config.Redis.Addr))

	if err := c.initExternalClients(); err != nil {
		return fmt.Errorf("failed to initialize external clients: %w", err)
	}

	if err := c.initDispatcher(); err != nil {
		return fmt.Errorf("failed to initialize dispatcher: %w", err)
	}

	if err := c.initServices(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := c.initWorkers(); err != nil {
		return fmt.Errorf("failed to initialize workers: %w", err)
	}

	c.ready.Store(true)
	c.logger.Info("Container started", zap.Int("workers", c.workers.GetWorkerCount()))

	return nil
}

// Close stops the worker first so no completion check runs against a closed
// database, then drains the dispatcher.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
	}

	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Drain dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("drain dispatcher: %w", err))
		}
	}

	if c.asynqClient != nil {
		if err := c.asynqClient.Close(); err != nil {
			c.logger.Error("Close asynq client", zap.Error(err))
			errs = append(errs, fmt.Errorf("close task client: %w", err))
		}
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.logger.Error("Close redis", zap.Error(err))
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}

	if c.database != nil {
		if err := c.database.Close(); err != nil {
			c.logger.Error("Close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close container: %w", err)
	}
	c.logger.Info("Container closed")
	return nil
}

// HealthChecks returns the dependency pings served on /health.
func (c *Container) HealthChecks() map[string]httpapi.HealthCheck {
	notInitialized := func(context.Context) error { return fmt.Errorf("not initialized") }

	checks := map[string]httpapi.HealthCheck{
		"database": notInitialized,
		"redis":    notInitialized,
	}
	if c.database != nil {
		checks["database"] = c.database.PingContext
	}
	if c.sessionCache != nil {
		checks["redis"] = c.sessionCache.Ping
	}
	return checks
}

// HTTPDependencies wires the HTTP adapter to the container's services.
func (c *Container) HTTPDependencies() httpapi.Dependencies {
	deps := httpapi.Dependencies{
		Coordinator:  c.services.Coordinator,
		Reports:      c.services.Reports,
		CardActions:  c.cards,
		Callbacks:    c.lark.Verifier,
		HealthChecks: c.HealthChecks(),
		Observer:     c.metrics.Metrics,
		Logger:       &zapLoggerAdapter{logger: c.logger.Named("http")},
	}
	if c.config.Metrics.Enabled {
		deps.MetricsHandler = promhttp.HandlerFor(c.metrics.Registry, promhttp.HandlerOpts{})
	}
	return deps
}

// HTTPServerConfig returns the HTTP server settings.
func (c *Container) HTTPServerConfig() httpapi.ServerConfig {
	return httpapi.ServerConfig{
		Host:            c.config.Server.Host,
		Port:            c.config.Server.Port,
		ReadTimeout:     c.config.Server.ReadTimeout,
		WriteTimeout:    c.config.Server.WriteTimeout,
		ShutdownTimeout: c.config.Server.ShutdownTimeout,
		DefaultPageSize: c.config.Workflow.DefaultPageSize,
		Location:        c.config.Location(),
	}
}

// initDatabase opens SQLite, runs migrations and seeds department heads.
func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.database = dbBundle.DB
	c.db = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(c.database.DB, c.logger)
	if err != nil {
		c.database.Close()
		return err
	}
	c.repositories = repos

	return SeedDepartments(c.ctx, repos.Departments, c.config.Workflow.Departments, c.logger)
}

// initCache connects Redis and builds the session store and scheduler on it.
func (c *Container) initCache() error {
	client, err := ProvideRedis(c.ctx, &c.config.Redis, c.logger)
	if err != nil {
		return err
	}
	c.redis = client

	c.sessions, c.sessionCache = ProvideSessionStore(client, &c.config.Session, c.logger)
	c.asynqClient, c.scheduler = ProvideScheduler(&c.config.Redis, &c.config.Scheduler, c.logger)
	return nil
}

func (c *Container) initExternalClients() error {
	larkBundle, err := ProvideLarkClients(&c.config.Lark, c.logger)
	if err != nil {
		return err
	}
	c.lark = larkBundle
	c.metrics = ProvideMetrics()
	return nil
}

func (c *Container) initDispatcher() error {
	disp, err := ProvideDispatcher(&c.config.Workflow, c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp
	return nil
}

// initServices registers the effect handlers on the dispatcher as a side effect.
func (c *Container) initServices() error {
	services, err := ProvideServices(&ServiceDeps{
		Repos:      c.repositories,
		TxManager:  c.db,
		Sessions:   c.sessions,
		Notifier:   c.lark.Messenger,
		Scheduler:  c.scheduler,
		Dispatcher: c.dispatcher,
		Metrics:    c.metrics.Metrics,
		Workflow:   &c.config.Workflow,
		Channel:    c.config.Lark.ApprovalChannel,
		Location:   c.config.Location(),
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}

	c.services = services
	c.cards = infraLark.NewEventProcessor(services.Coordinator, c.logger)
	return nil
}

func (c *Container) initWorkers() error {
	workers, err := ProvideWorkers(&WorkerDeps{
		Coordinator: c.services.Coordinator,
		Redis:       &c.config.Redis,
		Scheduler:   &c.config.Scheduler,
		Logger:      c.logger,
	})
	if err != nil {
		return err
	}
	c.workers = workers

	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("start workers: %w", err)
	}

	return nil
}

// zapLoggerAdapter serves the service and HTTP Logger interfaces.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Info(msg, fields...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Error(msg, fields...)
}

// dispatcherLoggerAdapter serves dispatcher.Logger.
type dispatcherLoggerAdapter struct {
	logger *zap.Logger
}

func (a *dispatcherLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Info(msg, fields...)
}

func (a *dispatcherLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Error(msg, fields...)
}

// convertToZapFields pairs up keysAndValues; a non-string key drops its pair.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, isErr := keysAndValues[i+1].(error); isErr {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}

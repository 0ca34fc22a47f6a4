package container

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/commute-approvals/internal/application/dispatcher"
	"github.com/garyjia/commute-approvals/internal/application/port"
	"github.com/garyjia/commute-approvals/internal/application/service"
	"github.com/garyjia/commute-approvals/internal/application/session"
	appwf "github.com/garyjia/commute-approvals/internal/application/workflow"
	"github.com/garyjia/commute-approvals/internal/domain/entity"
	"github.com/garyjia/commute-approvals/internal/infrastructure/cache"
	"github.com/garyjia/commute-approvals/internal/infrastructure/export"
	infraLark "github.com/garyjia/commute-approvals/internal/infrastructure/external/lark"
	"github.com/garyjia/commute-approvals/internal/infrastructure/metrics"
	"github.com/garyjia/commute-approvals/internal/infrastructure/persistence/repository"
	"github.com/garyjia/commute-approvals/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/commute-approvals/internal/infrastructure/scheduler"
	"github.com/garyjia/commute-approvals/internal/infrastructure/worker"
	"github.com/garyjia/commute-approvals/pkg/database"
)

// redisPingTimeout bounds the startup connectivity check
const redisPingTimeout = 5 * time.Second

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// LarkBundle holds all Lark-related components.
type LarkBundle struct {
	Client    *infraLark.SDKClient
	Messenger *infraLark.Messenger
	Verifier  *infraLark.Verifier
}

// MetricsBundle holds the collectors and the registry they are exposed from.
type MetricsBundle struct {
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
}

// ProvideDatabase opens the database, applies the embedded migrations and
// wraps the connection in a transaction manager.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(database.EmbeddedMigrations()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Trips:       repository.NewTripRepository(sqlDB, logger),
		Routes:      repository.NewRouteRepository(sqlDB, logger),
		Batches:     repository.NewBatchRepository(sqlDB, logger),
		History:     repository.NewHistoryRepository(sqlDB, logger),
		Departments: repository.NewDepartmentRepository(sqlDB, logger),
	}, nil
}

// SeedDepartments upserts the configured department heads.
func SeedDepartments(ctx context.Context, repo port.DepartmentRepository, heads map[string]string, logger *zap.Logger) error {
	for name, head := range heads {
		if err := repo.Upsert(ctx, &entity.Department{Name: name, HeadID: head}); err != nil {
			return fmt.Errorf("seed department %q: %w", name, err)
		}
	}
	if len(heads) > 0 {
		logger.Info("Departments seeded", zap.Int("count", len(heads)))
	}
	return nil
}

// ProvideRedis connects to Redis and verifies the connection.
func ProvideRedis(ctx context.Context, cfg *RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}

	logger.Info("Redis connection established", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return client, nil
}

// ProvideSessionStore builds the multi-step session store on Redis.
func ProvideSessionStore(client *redis.Client, cfg *SessionConfig, logger *zap.Logger) (*session.Store, *cache.RedisBackend) {
	backend := cache.NewRedisBackend(client, logger,
		cache.WithPrefix(cfg.Prefix),
		cache.WithTTL(cfg.TTL),
	)
	return session.NewStore(backend), backend
}

// ProvideLarkClients creates the Lark SDK client and the notifier built on it.
func ProvideLarkClients(cfg *LarkConfig, logger *zap.Logger) (*LarkBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("lark config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	client := infraLark.NewSDKClient(infraLark.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		BaseURL:   cfg.BaseURL,
	}, logger)

	messenger := infraLark.NewMessenger(client, infraLark.MessengerConfig{
		Attempts:            cfg.SendAttempts,
		RetryDelay:          cfg.RetryDelay,
		RatePerSecond:       cfg.RatePerSecond,
		Burst:               cfg.Burst,
		CallTimeout:         cfg.APITimeout,
		BreakerFailures:     cfg.BreakerFailures,
		BreakerOpenDuration: cfg.BreakerOpenDuration,
	}, logger)

	return &LarkBundle{
		Client:    client,
		Messenger: messenger,
		Verifier:  infraLark.NewVerifier(cfg.VerificationToken, cfg.EncryptKey, logger),
	}, nil
}

// ProvideMetrics registers the service collectors plus the Go runtime collectors.
func ProvideMetrics() *MetricsBundle {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &MetricsBundle{
		Metrics:  metrics.NewMetrics(registry),
		Registry: registry,
	}
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(cfg *WorkflowConfig, logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(&dispatcherLoggerAdapter{logger: logger}),
		dispatcher.WithHandlerTimeout(cfg.EffectTimeout),
	), nil
}

// redisConnOpt maps the Redis settings onto asynq's connection options
func redisConnOpt(cfg *RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// ProvideScheduler creates the asynq client and the completion scheduler on top of it.
func ProvideScheduler(redisCfg *RedisConfig, cfg *SchedulerConfig, logger *zap.Logger) (*asynq.Client, *scheduler.AsynqScheduler) {
	client := asynq.NewClient(redisConnOpt(redisCfg))
	return client, scheduler.NewAsynqScheduler(client, cfg.Queue, logger)
}

// ServiceDeps holds dependencies for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Sessions   *session.Store
	Notifier   port.Notifier
	Scheduler  port.Scheduler
	Dispatcher dispatcher.Dispatcher
	Metrics    *metrics.Metrics
	Workflow   *WorkflowConfig
	Channel    string
	Location   *time.Location
	Logger     *zap.Logger
}

// ProvideServices creates the coordinator, the effect handlers and the report service.
// The effect handlers are registered on the dispatcher before the coordinator can publish.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}

	logger := &zapLoggerAdapter{logger: deps.Logger}

	notification := service.NewNotificationService(service.NotificationDependencies{
		Trips:           deps.Repos.Trips,
		Routes:          deps.Repos.Routes,
		Batches:         deps.Repos.Batches,
		Notifier:        deps.Notifier,
		Scheduler:       deps.Scheduler,
		Logger:          logger,
		Failures:        deps.Metrics,
		ApprovalChannel: deps.Channel,
	})
	notification.Register(deps.Dispatcher)

	machine := appwf.NewRequestStateMachine(appwf.WithCompletionGrace(deps.Workflow.CompletionGrace))

	coordinator := service.NewApprovalCoordinator(service.Dependencies{
		Sessions:    deps.Sessions,
		Machine:     machine,
		Trips:       deps.Repos.Trips,
		Routes:      deps.Repos.Routes,
		Batches:     deps.Repos.Batches,
		History:     deps.Repos.History,
		Departments: deps.Repos.Departments,
		TxManager:   deps.TxManager,
		Logger:      logger,
	},
		service.WithMetrics(deps.Metrics),
		service.WithPublisher(deps.Dispatcher),
		service.WithLocation(deps.Location),
	)

	reports := service.NewReportService(deps.Repos.Trips, export.NewExcelExporter(deps.Logger), logger)

	return &ServiceBundle{
		Coordinator:  coordinator,
		Notification: notification,
		Reports:      reports,
	}, nil
}

// WorkerDeps holds dependencies for creating workers.
type WorkerDeps struct {
	Coordinator service.ApprovalCoordinator
	Redis       *RedisConfig
	Scheduler   *SchedulerConfig
	Logger      *zap.Logger
}

// ProvideWorkers creates the worker manager with the completion check consumer.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}
	if deps.Coordinator == nil {
		return nil, fmt.Errorf("coordinator is required")
	}

	manager := worker.NewWorkerManager(deps.Logger)

	server := worker.NewAsynqServer(redisConnOpt(deps.Redis), deps.Scheduler.Queue, deps.Scheduler.Concurrency, deps.Logger)
	mux := scheduler.NewServeMux(deps.Coordinator, deps.Logger)
	manager.Register(worker.NewCompletionWorker(server, mux, deps.Logger))

	return manager, nil
}

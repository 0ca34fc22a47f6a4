package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// TaskServer is the part of *asynq.Server the worker drives
type TaskServer interface {
	Start(handler asynq.Handler) error
	Shutdown()
}

// CompletionWorker processes scheduled completion checks from asynq
type CompletionWorker struct {
	server  TaskServer
	handler asynq.Handler
	logger  *zap.Logger

	mu        sync.Mutex
	isRunning bool
}

// NewCompletionWorker creates a worker serving handler on server
func NewCompletionWorker(server TaskServer, handler asynq.Handler, logger *zap.Logger) *CompletionWorker {
	return &CompletionWorker{
		server:  server,
		handler: handler,
		logger:  logger,
	}
}

// NewAsynqServer builds the asynq server backing a CompletionWorker
func NewAsynqServer(redisOpt asynq.RedisConnOpt, queue string, concurrency int, logger *zap.Logger) *asynq.Server {
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
		Logger:      logger.Sugar(),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error("Scheduled task failed", zap.String("type", task.Type()), zap.Error(err))
		}),
	})
}

// Start begins consuming tasks. asynq runs its own goroutines; ctx is not used.
func (w *CompletionWorker) Start(_ context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return fmt.Errorf("completion worker already running")
	}
	if err := w.server.Start(w.handler); err != nil {
		return fmt.Errorf("failed to start task server: %w", err)
	}

	w.isRunning = true
	w.logger.Info("CompletionWorker started")
	return nil
}

// Stop waits for in-flight tasks and shuts the server down
func (w *CompletionWorker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.isRunning {
		return nil
	}
	w.server.Shutdown()
	w.isRunning = false
	w.logger.Info("CompletionWorker stopped")
	return nil
}

// Name returns the worker name for identification
func (w *CompletionWorker) Name() string {
	return "CompletionWorker"
}

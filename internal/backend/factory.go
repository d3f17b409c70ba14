package backend

import (
	"context"
	"fmt"

	"quotesheet/internal/adapters"
	"quotesheet/internal/amqp"
	"quotesheet/internal/log"
	"quotesheet/internal/storage"
)

var (
	_ Backend = (*adapters.MemoryAdapter)(nil)
	_ Backend = (*adapters.SQLiteAdapter)(nil)
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var result *BackendResult
	var err error
	switch config.Type {
	case SQLiteBackend:
		result, err = f.createSQLiteBackend(ctx, config)
	case MemoryBackend:
		result, err = f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	f.attachNotifier(result, config)
	return result, nil
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(log.NewContext(ctx, f.logger), config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Backend: adapters.NewSQLiteAdapter(repo),
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend() (*BackendResult, error) {
	f.logger.Info("Initialized memory backend")
	return &BackendResult{
		Backend: adapters.NewMemoryAdapter(),
	}, nil
}

// attachNotifier connects the AMQP change feed when configured. A broker
// that cannot be reached leaves the feed disabled.
func (f *DefaultFactory) attachNotifier(result *BackendResult, config Config) {
	if config.AMQPURL == "" {
		return
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without change feed", log.FieldError, err)
		return
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)

	result.Notifier = client
	storeCleanup := result.Cleanup
	result.Cleanup = func() error {
		client.Close()
		if storeCleanup != nil {
			return storeCleanup()
		}
		return nil
	}
}

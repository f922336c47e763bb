package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"budget/internal/amqp"
	"budget/internal/log"
	"budget/internal/realtime"
	"budget/internal/storage"
	"budget/internal/store/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateBackend opens the configured store. When AMQP is configured the
// bridge is started: local changes are published and remote ones delivered
// to the hub until ctx is done.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	hub := realtime.NewHub(uuid.NewString())
	res := &Result{Hub: hub}
	var closers []func() error

	switch config.Type {
	case MemoryBackend:
		res.Gateway = memory.New(hub)
		f.logger.Info("Initialized memory backend")
	case SQLiteBackend, PostgresBackend:
		dialect, dsn := storage.SQLite, config.SQLiteDBPath
		if config.Type == PostgresBackend {
			dialect, dsn = storage.Postgres, config.DatabaseURL
		}
		gw, err := storage.Open(ctx, dialect, dsn, hub)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize %s backend: %w", config.Type, err)
		}
		res.Gateway, res.Pinger = gw, gw
		closers = append(closers, gw.Close)
		f.logger.Info("Initialized SQL backend", "dialect", dialect)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	if config.AMQPURL != "" {
		bridge, closeClient, err := f.startBridge(ctx, config, hub)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP bridge, continuing without it", log.FieldError, err)
		} else {
			res.Bridge = bridge
			closers = append(closers, closeClient)
		}
	}

	res.Cleanup = func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
	return res, nil
}

func (f *DefaultFactory) startBridge(ctx context.Context, config Config, hub *realtime.Hub) (*amqp.Bridge, func() error, error) {
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.QueueName())
	if err != nil {
		return nil, nil, err
	}
	bridge := amqp.NewBridge(client, hub)
	bridge.Start(ctx)
	go func() {
		if err := bridge.Consume(ctx); err != nil && !errors.Is(err, context.Canceled) {
			f.logger.Error("Change consumer stopped", log.FieldError, err)
		}
	}()

	f.logger.Info("Initialized AMQP bridge",
		"exchange", config.AMQPExchange,
		"queue", config.QueueName(),
		"origin", hub.Origin())
	return bridge, client.Close, nil
}

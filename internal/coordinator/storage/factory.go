package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MichaelOwenDyer/job-dispatch-service/internal/coordinator/core"
	"github.com/MichaelOwenDyer/job-dispatch-service/internal/shared/config"
	"github.com/MichaelOwenDyer/job-dispatch-service/internal/shared/logging"
)

const (
	JobQueueName    = "jobs"
	WorkerQueueName = "workers"
)

// Backends owns the connections shared by queues of the same kind. They are
// opened on first use and released by Close.
type Backends struct {
	cfg    config.QueueConfig
	logger logging.Logger

	mu     sync.Mutex
	redis  *goredis.Client
	sqlite *sql.DB
}

func NewBackends(cfg config.QueueConfig, logger logging.Logger) *Backends {
	return &Backends{cfg: cfg, logger: logger}
}

func (b *Backends) redisClient(ctx context.Context) (*goredis.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.redis != nil {
		return b.redis, nil
	}
	client := NewRedisClient(b.cfg.Redis)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", b.cfg.Redis.Addr, err)
	}
	b.redis = client
	return client, nil
}

func (b *Backends) sqliteDB(ctx context.Context) (*sql.DB, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sqlite != nil {
		return b.sqlite, nil
	}
	db, err := OpenSqlite(ctx, b.cfg.Sqlite.Path)
	if err != nil {
		return nil, err
	}
	b.sqlite = db
	return db, nil
}

func (b *Backends) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	if b.redis != nil {
		errs = append(errs, b.redis.Close())
		b.redis = nil
	}
	if b.sqlite != nil {
		errs = append(errs, b.sqlite.Close())
		b.sqlite = nil
	}
	return errors.Join(errs...)
}

// OpenQueue builds the queue backend for mode. name identifies the queue
// inside shared backends; file is only used by the JSON file modes.
func OpenQueue[T any](ctx context.Context, b *Backends, mode core.QueueMode, name, file string) (core.Queue[T], error) {
	switch mode {
	case core.QueueModeInMemory:
		return NewInMemoryQueue[T](), nil
	case core.QueueModeJSONFile:
		return NewJSONFileQueue[T](file, b.logger), nil
	case core.QueueModeCachedJSONFile:
		q, err := NewCachedJSONFileQueue[T](file, b.logger)
		if err != nil {
			return nil, err
		}
		return q, nil
	case core.QueueModeRedis:
		client, err := b.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return NewRedisQueue[T](client, b.cfg.Redis.KeyPrefix, name, b.logger), nil
	case core.QueueModeSqlite:
		db, err := b.sqliteDB(ctx)
		if err != nil {
			return nil, err
		}
		return NewSqliteQueue[T](db, name, b.logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownQueueMode, mode)
	}
}

// OpenQueues builds the job and worker queues from configuration.
func (b *Backends) OpenQueues(ctx context.Context) (core.JobQueue, core.WorkerQueue, error) {
	jobMode, err := core.ParseQueueMode(b.cfg.EffectiveJobMode())
	if err != nil {
		return nil, nil, fmt.Errorf("job queue: %w", err)
	}
	workerMode, err := core.ParseQueueMode(b.cfg.EffectiveWorkerMode())
	if err != nil {
		return nil, nil, fmt.Errorf("worker queue: %w", err)
	}

	jobs, err := OpenQueue[*core.Job](ctx, b, jobMode, JobQueueName, b.cfg.JobFile)
	if err != nil {
		return nil, nil, fmt.Errorf("job queue: %w", err)
	}
	workers, err := OpenQueue[core.Worker](ctx, b, workerMode, WorkerQueueName, b.cfg.WorkerFile)
	if err != nil {
		return nil, nil, fmt.Errorf("worker queue: %w", err)
	}

	b.logger.Info("Queues opened", "job_queue_mode", string(jobMode), "worker_queue_mode", string(workerMode))
	return jobs, workers, nil
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/glebarez/go-sqlite"

	"github.com/MichaelOwenDyer/job-dispatch-service/internal/coordinator/core"
	"github.com/MichaelOwenDyer/job-dispatch-service/internal/shared/logging"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS queue_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		queue TEXT NOT NULL,
		body BLOB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS queue_entries_queue_id ON queue_entries (queue, id)`,
}

// OpenSqlite opens (or creates) the queue database at path.
func OpenSqlite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create queue table: %w", err)
		}
	}
	return db, nil
}

// SqliteQueue stores entries as rows of the queue_entries table. The
// autoincrement id gives the FIFO order; name separates the queues sharing a
// database.
type SqliteQueue[T any] struct {
	db     *sql.DB
	name   string
	logger logging.Logger
}

var _ core.Queue[int] = (*SqliteQueue[int])(nil)

func NewSqliteQueue[T any](db *sql.DB, name string, logger logging.Logger) *SqliteQueue[T] {
	return &SqliteQueue[T]{db: db, name: name, logger: logger}
}

func (q *SqliteQueue[T]) PushBack(ctx context.Context, item T) (int, error) {
	body, err := json.Marshal(item)
	if err != nil {
		return 0, fmt.Errorf("sqlite queue %s: encode entry: %w", q.name, err)
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite queue %s: begin: %w", q.name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "INSERT INTO queue_entries (queue, body) VALUES (?, ?)", q.name, body); err != nil {
		return 0, fmt.Errorf("sqlite queue %s: insert: %w", q.name, err)
	}

	var n int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM queue_entries WHERE queue = ?", q.name).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite queue %s: count: %w", q.name, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite queue %s: commit: %w", q.name, err)
	}
	return n, nil
}

// PopFront deletes rows that do not decode into T and moves on to the next
// one, all inside a single transaction.
func (q *SqliteQueue[T]) PopFront(ctx context.Context) (T, bool, error) {
	var zero T

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return zero, false, fmt.Errorf("sqlite queue %s: begin: %w", q.name, err)
	}
	defer tx.Rollback()

	skipped := 0
	for {
		var (
			id   int64
			body []byte
		)
		err = tx.QueryRowContext(ctx,
			"SELECT id, body FROM queue_entries WHERE queue = ? ORDER BY id ASC LIMIT 1", q.name,
		).Scan(&id, &body)
		if errors.Is(err, sql.ErrNoRows) {
			if skipped == 0 {
				return zero, false, nil
			}
			if err := tx.Commit(); err != nil {
				return zero, false, fmt.Errorf("sqlite queue %s: commit: %w", q.name, err)
			}
			return zero, false, nil
		}
		if err != nil {
			return zero, false, fmt.Errorf("sqlite queue %s: select: %w", q.name, err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM queue_entries WHERE id = ?", id); err != nil {
			return zero, false, fmt.Errorf("sqlite queue %s: delete: %w", q.name, err)
		}

		item, err := decodeEntry[T](body)
		if err != nil {
			q.logger.Warn("Skipping undecodable queue entry", "queue", q.name, "id", id, "error", err)
			skipped++
			continue
		}

		if err := tx.Commit(); err != nil {
			return zero, false, fmt.Errorf("sqlite queue %s: commit: %w", q.name, err)
		}
		return item, true, nil
	}
}

func (q *SqliteQueue[T]) Len(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM queue_entries WHERE queue = ?", q.name).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite queue %s: count: %w", q.name, err)
	}
	return n, nil
}

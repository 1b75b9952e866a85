package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/MichaelOwenDyer/job-dispatch-service/internal/coordinator/core"
	"github.com/MichaelOwenDyer/job-dispatch-service/internal/shared/logging"
)

// JSONFileQueue keeps the whole queue in a JSON file. Every operation reads
// the file and every mutation rewrites it before returning.
type JSONFileQueue[T any] struct {
	mu     sync.Mutex
	path   string
	logger logging.Logger
}

var _ core.Queue[int] = (*JSONFileQueue[int])(nil)

func NewJSONFileQueue[T any](path string, logger logging.Logger) *JSONFileQueue[T] {
	return &JSONFileQueue[T]{path: path, logger: logger}
}

func (q *JSONFileQueue[T]) PushBack(_ context.Context, item T) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := loadFile[T](q.path, q.logger)
	if err != nil {
		return 0, err
	}
	items = append(items, item)
	if err := saveFile(q.path, items); err != nil {
		return 0, err
	}
	return len(items), nil
}

func (q *JSONFileQueue[T]) PopFront(_ context.Context) (T, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	items, err := loadFile[T](q.path, q.logger)
	if err != nil {
		return zero, false, err
	}
	if len(items) == 0 {
		return zero, false, nil
	}
	if err := saveFile(q.path, items[1:]); err != nil {
		return zero, false, err
	}
	return items[0], true, nil
}

func (q *JSONFileQueue[T]) Len(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := loadFile[T](q.path, q.logger)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// CachedJSONFileQueue mirrors the queue file in memory. The file is read once
// on construction; every mutation is written through before the mirror is
// updated.
type CachedJSONFileQueue[T any] struct {
	mu    sync.Mutex
	path  string
	items []T
}

var _ core.Queue[int] = (*CachedJSONFileQueue[int])(nil)

func NewCachedJSONFileQueue[T any](path string, logger logging.Logger) (*CachedJSONFileQueue[T], error) {
	items, err := loadFile[T](path, logger)
	if err != nil {
		return nil, err
	}
	return &CachedJSONFileQueue[T]{path: path, items: items}, nil
}

func (q *CachedJSONFileQueue[T]) PushBack(_ context.Context, item T) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	next := append(q.items[:len(q.items):len(q.items)], item)
	if err := saveFile(q.path, next); err != nil {
		return 0, err
	}
	q.items = next
	return len(q.items), nil
}

func (q *CachedJSONFileQueue[T]) PopFront(_ context.Context) (T, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false, nil
	}
	if err := saveFile(q.path, q.items[1:]); err != nil {
		return zero, false, err
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true, nil
}

func (q *CachedJSONFileQueue[T]) Len(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), nil
}

var (
	jsonNull     = []byte("null")
	errNullEntry = errors.New("null entry")
)

// decodeEntry decodes one stored entry. A JSON null is rejected since it
// would decode into a zero worker or a nil job.
func decodeEntry[T any](body []byte) (T, error) {
	var item T
	if bytes.Equal(bytes.TrimSpace(body), jsonNull) {
		return item, errNullEntry
	}
	err := json.Unmarshal(body, &item)
	return item, err
}

// loadFile reads a queue file. A missing or blank file is an empty queue.
// Entries that do not decode into T are skipped.
func loadFile[T any](path string, logger logging.Logger) ([]T, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read queue file %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrCorruptQueueFile, path, err)
	}

	items := make([]T, 0, len(raw))
	for i, r := range raw {
		item, err := decodeEntry[T](r)
		if err != nil {
			logger.Warn("Skipping undecodable queue entry", "file", path, "index", i, "error", err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// saveFile replaces the queue file atomically: the new contents go to a temp
// file in the same directory which is synced and renamed over path.
func saveFile[T any](path string, items []T) (err error) {
	if items == nil {
		items = []T{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode queue file %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write queue file %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync queue file %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close queue file %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace queue file %s: %w", path, err)
	}
	return nil
}

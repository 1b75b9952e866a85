package storage

import (
	"context"
	"sync"

	"github.com/MichaelOwenDyer/job-dispatch-service/internal/coordinator/core"
)

// InMemoryQueue keeps its entries in process memory only. Contents are lost
// when the process exits.
type InMemoryQueue[T any] struct {
	mu    sync.Mutex
	items []T
}

var _ core.Queue[int] = (*InMemoryQueue[int])(nil)

func NewInMemoryQueue[T any]() *InMemoryQueue[T] {
	return &InMemoryQueue[T]{}
}

func (q *InMemoryQueue[T]) PushBack(_ context.Context, item T) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return len(q.items), nil
}

func (q *InMemoryQueue[T]) PopFront(_ context.Context) (T, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false, nil
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return item, true, nil
}

func (q *InMemoryQueue[T]) Len(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), nil
}

package core

import (
	"context"
	"fmt"
	"strings"
)

// Queue is a FIFO store shared by the job and the worker queue.
// Implementations must be safe for concurrent use, although the matching
// engine already serializes every access. A failed PushBack or PopFront must
// leave the queue unchanged.
type Queue[T any] interface {
	// PushBack appends item and returns the queue length after the append.
	PushBack(ctx context.Context, item T) (int, error)
	// PopFront removes and returns the oldest item. ok is false when the
	// queue is empty; that is not an error.
	PopFront(ctx context.Context) (item T, ok bool, err error)
	Len(ctx context.Context) (int, error)
}

type JobQueue = Queue[*Job]

type WorkerQueue = Queue[Worker]

type QueueMode string

const (
	QueueModeInMemory       QueueMode = "InMemory"
	QueueModeJSONFile       QueueMode = "JsonFile"
	QueueModeCachedJSONFile QueueMode = "CachedJsonFile"
	QueueModeRedis          QueueMode = "Redis"
	QueueModeSqlite         QueueMode = "Sqlite"
)

var queueModes = []QueueMode{
	QueueModeInMemory,
	QueueModeJSONFile,
	QueueModeCachedJSONFile,
	QueueModeRedis,
	QueueModeSqlite,
}

// ParseQueueMode matches s against the known mode names, ignoring case.
func ParseQueueMode(s string) (QueueMode, error) {
	for _, m := range queueModes {
		if strings.EqualFold(s, string(m)) {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q (expected one of %s)", ErrUnknownQueueMode, s, QueueModeNames())
}

func QueueModeNames() string {
	names := make([]string, len(queueModes))
	for i, m := range queueModes {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

package core

import (
	"context"
	"encoding/json"
	"net/url"
)

// MatchingEngine pairs submitted jobs with registered workers in arrival order.
type MatchingEngine interface {
	SubmitJob(ctx context.Context, data json.RawMessage) (SubmitResult, error)
	RegisterWorker(ctx context.Context, callback *url.URL) (RegisterResult, error)
	Stats(ctx context.Context) (QueueStats, error)
}

// Deliverer sends an assigned job to a queued worker's callback without
// blocking the caller. report is invoked once with the delivery outcome.
type Deliverer interface {
	Deliver(worker Worker, job *Job, report func(error))
}

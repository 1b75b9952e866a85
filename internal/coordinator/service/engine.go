package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MichaelOwenDyer/job-dispatch-service/internal/coordinator/core"
	"github.com/MichaelOwenDyer/job-dispatch-service/internal/shared/logging"
	"github.com/MichaelOwenDyer/job-dispatch-service/internal/shared/telemetry"
)

// Engine matches jobs with workers. Both queues sit behind one mutex so that
// the emptiness check on one queue and the mutation of the other form a
// single step; at most one of the two queues is ever non-empty.
type Engine struct {
	mu      sync.Mutex
	jobs    core.JobQueue
	workers core.WorkerQueue

	deliverer core.Deliverer
	tracer    trace.Tracer
	logger    logging.Logger
	now       func() time.Time
}

var _ core.MatchingEngine = (*Engine)(nil)

func NewEngine(jobs core.JobQueue, workers core.WorkerQueue, deliverer core.Deliverer, logger logging.Logger) *Engine {
	return &Engine{
		jobs:      jobs,
		workers:   workers,
		deliverer: deliverer,
		tracer:    telemetry.Tracer(),
		logger:    logger,
		now:       time.Now,
	}
}

// SubmitJob hands the job to the longest-waiting worker, or queues it when no
// worker is waiting. Delivery to the worker happens after the lock is
// released and does not block the caller.
func (e *Engine) SubmitJob(ctx context.Context, data json.RawMessage) (result core.SubmitResult, err error) {
	ctx, span := e.tracer.Start(ctx, "Engine.SubmitJob")
	defer func() { endSpan(span, err) }()

	job := core.NewJob(data)
	span.SetAttributes(attribute.String("job.id", job.ID.String()))

	worker, assigned, position, err := e.matchJob(ctx, job)
	if err != nil {
		e.logger.Error("Job submission failed", "job_id", job.ID.String(), "error", err)
		return core.SubmitResult{}, err
	}

	if !assigned {
		span.SetAttributes(attribute.Bool("job.assigned", false), attribute.Int("job.position", position))
		e.logger.Info("Job submission received. No workers available, queueing...",
			"job_id", job.ID.String(),
			"position", position,
		)
		return core.SubmitResult{Position: position, Job: job}, nil
	}

	span.SetAttributes(attribute.Bool("job.assigned", true), attribute.String("worker.callback_url", worker.CallbackURL))
	e.logger.Info("Job submission received. Assigning to queued worker...",
		"job_id", job.ID.String(),
		"callback_url", worker.CallbackURL,
		"queued_seconds", int64(worker.QueuedFor(e.now()).Seconds()),
	)
	e.deliverer.Deliver(worker, job, e.deliveryReporter(worker, job))

	return core.SubmitResult{Assigned: true, Job: job}, nil
}

// matchJob and matchWorker detach from the caller's cancellation: once a pop
// has run on the backend, a client disconnect must not lose the entry.
func (e *Engine) matchJob(ctx context.Context, job *core.Job) (core.Worker, bool, int, error) {
	ctx = context.WithoutCancel(ctx)
	e.mu.Lock()
	defer e.mu.Unlock()

	worker, ok, err := e.workers.PopFront(ctx)
	if err != nil {
		return core.Worker{}, false, 0, fmt.Errorf("pop worker queue: %w", err)
	}
	if ok {
		return worker, true, 0, nil
	}

	position, err := e.jobs.PushBack(ctx, job)
	if err != nil {
		return core.Worker{}, false, 0, fmt.Errorf("push job queue: %w", err)
	}
	return core.Worker{}, false, position, nil
}

// RegisterWorker returns the oldest queued job, or queues the worker's
// callback when no job is waiting. callback must already be validated.
func (e *Engine) RegisterWorker(ctx context.Context, callback *url.URL) (result core.RegisterResult, err error) {
	ctx, span := e.tracer.Start(ctx, "Engine.RegisterWorker",
		trace.WithAttributes(attribute.String("worker.callback_url", callback.String())),
	)
	defer func() { endSpan(span, err) }()

	worker := core.NewWorker(callback.String())

	job, err := e.matchWorker(ctx, worker)
	if err != nil {
		e.logger.Error("Worker registration failed", "callback_url", worker.CallbackURL, "error", err)
		return core.RegisterResult{}, err
	}

	if job == nil {
		span.SetAttributes(attribute.Bool("worker.queued", true))
		e.logger.Info("Worker registration received. No jobs available, queueing...",
			"callback_url", worker.CallbackURL,
		)
		return core.RegisterResult{}, nil
	}

	span.SetAttributes(attribute.Bool("worker.queued", false), attribute.String("job.id", job.ID.String()))
	e.logger.Info("Worker registration received. Assigning queued job...",
		"callback_url", worker.CallbackURL,
		"job_id", job.ID.String(),
		"queued_seconds", int64(job.QueuedFor(e.now()).Seconds()),
	)
	return core.RegisterResult{Job: job}, nil
}

func (e *Engine) matchWorker(ctx context.Context, worker core.Worker) (*core.Job, error) {
	ctx = context.WithoutCancel(ctx)
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok, err := e.jobs.PopFront(ctx)
	if err != nil {
		return nil, fmt.Errorf("pop job queue: %w", err)
	}
	if ok {
		return job, nil
	}

	if _, err := e.workers.PushBack(ctx, worker); err != nil {
		return nil, fmt.Errorf("push worker queue: %w", err)
	}
	return nil, nil
}

// Stats reads both queue lengths as one consistent snapshot.
func (e *Engine) Stats(ctx context.Context) (core.QueueStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	jobs, err := e.jobs.Len(ctx)
	if err != nil {
		return core.QueueStats{}, fmt.Errorf("job queue length: %w", err)
	}
	workers, err := e.workers.Len(ctx)
	if err != nil {
		return core.QueueStats{}, fmt.Errorf("worker queue length: %w", err)
	}
	return core.QueueStats{Jobs: jobs, Workers: workers}, nil
}

func (e *Engine) deliveryReporter(worker core.Worker, job *core.Job) func(error) {
	return func(err error) {
		if err != nil {
			e.logger.Error("Failed to send job to worker, discarding...",
				"job_id", job.ID.String(),
				"callback_url", worker.CallbackURL,
				"error", err,
			)
			return
		}
		e.logger.Info("Job delivered to worker",
			"job_id", job.ID.String(),
			"callback_url", worker.CallbackURL,
		)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

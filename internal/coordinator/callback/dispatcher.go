package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MichaelOwenDyer/job-dispatch-service/internal/coordinator/core"
	"github.com/MichaelOwenDyer/job-dispatch-service/internal/shared/logging"
	"github.com/MichaelOwenDyer/job-dispatch-service/internal/shared/telemetry"
)

var (
	ErrDeliveryFailed = errors.New("callback delivery failed")
	ErrClosed         = errors.New("dispatcher closed")
)

const DefaultTimeout = 10 * time.Second

// jobEnvelope is the body sent to a worker callback, matching the
// synchronous registration response.
type jobEnvelope struct {
	Job *core.Job `json:"Job"`
}

// Dispatcher delivers jobs to worker callbacks with a single HTTP PUT each.
// Deliveries run in their own goroutines; a failed delivery is reported and
// the job is dropped.
type Dispatcher struct {
	client *http.Client
	tracer trace.Tracer
	logger logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

var _ core.Deliverer = (*Dispatcher)(nil)

func NewDispatcher(timeout time.Duration, logger logging.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		client: &http.Client{Timeout: timeout},
		tracer: telemetry.Tracer(),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (d *Dispatcher) Deliver(worker core.Worker, job *core.Job, report func(error)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		report(ErrClosed)
		return
	}

	d.wg.Go(func() {
		report(d.send(d.ctx, worker.CallbackURL, job))
	})
}

func (d *Dispatcher) send(ctx context.Context, callbackURL string, job *core.Job) (err error) {
	ctx, span := d.tracer.Start(ctx, "Dispatcher.send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("job.id", job.ID.String()),
			attribute.String("worker.callback_url", callbackURL),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	body, err := json.Marshal(jobEnvelope{Job: job})
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, callbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	d.logger.Debug("Sending job to worker", "job_id", job.ID.String(), "callback_url", callbackURL)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: worker responded %s", ErrDeliveryFailed, resp.Status)
	}
	return nil
}

// Close stops accepting deliveries and waits for in-flight ones. When ctx is
// done first, the remaining requests are cancelled and reported as failed.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return fmt.Errorf("waiting for in-flight callbacks: %w", ctx.Err())
	}
}

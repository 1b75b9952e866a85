package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/MichaelOwenDyer/job-dispatch-service/internal/coordinator/core"
	"github.com/MichaelOwenDyer/job-dispatch-service/internal/shared/logging"
)

const statsTimeout = 5 * time.Second

// HealthReporter receives the outcome of each storage probe.
type HealthReporter interface {
	SetServing(serving bool)
}

// StatsReporter periodically logs queue depths. Reading both lengths doubles
// as a storage probe whose result is forwarded to the health reporter.
type StatsReporter struct {
	schedule string
	engine   core.MatchingEngine
	health   HealthReporter
	logger   logging.Logger

	mu      sync.Mutex
	healthy bool
}

// NewStatsReporter builds a reporter running on a cron schedule such as
// "@every 1m" or "*/5 * * * *". health may be nil.
func NewStatsReporter(
	schedule string,
	engine core.MatchingEngine,
	health HealthReporter,
	logger logging.Logger,
) *StatsReporter {
	return &StatsReporter{
		schedule: schedule,
		engine:   engine,
		health:   health,
		logger:   logger,
		healthy:  true,
	}
}

// Start runs the schedule until ctx is cancelled.
func (r *StatsReporter) Start(ctx context.Context) error {
	cl := cronLogger{r.logger}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	if _, err := c.AddFunc(r.schedule, func() { r.report(ctx) }); err != nil {
		return fmt.Errorf("invalid stats schedule %q: %w", r.schedule, err)
	}

	r.logger.Info("Stats reporter started", "schedule", r.schedule)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (r *StatsReporter) report(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, statsTimeout)
	defer cancel()

	stats, err := r.engine.Stats(ctx)
	if err != nil {
		r.logger.Error("Failed to read queue lengths", "error", err)
		r.setHealthy(false)
		return
	}

	r.logger.Info("Queue depths", "jobs", stats.Jobs, "workers", stats.Workers)
	r.setHealthy(true)
}

func (r *StatsReporter) setHealthy(healthy bool) {
	r.mu.Lock()
	changed := r.healthy != healthy
	r.healthy = healthy
	r.mu.Unlock()

	if !changed {
		return
	}
	if healthy {
		r.logger.Info("Queue storage recovered")
	} else {
		r.logger.Warn("Queue storage unavailable, reporting NOT_SERVING")
	}
	if r.health != nil {
		r.health.SetServing(healthy)
	}
}

// cronLogger routes cron's own messages through the service logger.
type cronLogger struct {
	logger logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

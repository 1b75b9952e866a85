package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	grpcapi "github.com/MichaelOwenDyer/job-dispatch-service/internal/coordinator/api/grpc"
	"github.com/MichaelOwenDyer/job-dispatch-service/internal/coordinator/api/rest"
	"github.com/MichaelOwenDyer/job-dispatch-service/internal/coordinator/callback"
	"github.com/MichaelOwenDyer/job-dispatch-service/internal/coordinator/core"
	"github.com/MichaelOwenDyer/job-dispatch-service/internal/coordinator/service"
	"github.com/MichaelOwenDyer/job-dispatch-service/internal/coordinator/storage"
	"github.com/MichaelOwenDyer/job-dispatch-service/internal/shared/config"
	"github.com/MichaelOwenDyer/job-dispatch-service/internal/shared/logging"
	"github.com/MichaelOwenDyer/job-dispatch-service/internal/shared/telemetry"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dispatch HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadCoordinator(configPath, cmd.Flags())
			if err != nil {
				return err
			}

			logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return Run(ctx, cfg, logger)
		},
	}

	modes := core.QueueModeNames()
	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "path to the config file (default ./config/coordinator.yaml)")
	flags.IntP("port", "p", 2567, "port for the HTTP server")
	flags.StringP("mode", "m", string(core.QueueModeCachedJSONFile), "storage mode for both queues: "+modes)
	flags.String("job-queue-mode", "", "storage mode for the job queue, overrides --mode")
	flags.String("worker-queue-mode", "", "storage mode for the worker queue, overrides --mode")

	return cmd
}

// Run wires the coordinator together and serves until ctx is cancelled or a
// component fails.
func Run(ctx context.Context, cfg *config.CoordinatorConfig, logger logging.Logger) error {
	if cfg.Tracing.Enabled {
		shutdownTracer, err := telemetry.InitTracer(cfg.Tracing.ServiceName)
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				logger.Error("Error shutting down tracer", "error", err)
			}
		}()
	}

	backends := storage.NewBackends(cfg.Queue, logger)
	defer func() {
		if err := backends.Close(); err != nil {
			logger.Error("Error closing queue storage", "error", err)
		}
	}()

	jobs, workers, err := backends.OpenQueues(ctx)
	if err != nil {
		return fmt.Errorf("failed to open queues: %w", err)
	}

	dispatcher := callback.NewDispatcher(cfg.Callback.Timeout, logger)
	engine := service.NewEngine(jobs, workers, dispatcher, logger)
	restServer := rest.NewServer(cfg.REST, engine, logger)

	var (
		grpcServer *grpcapi.Server
		health     service.HealthReporter
	)
	if cfg.GRPC.Enabled {
		grpcServer = grpcapi.NewServer(cfg.GRPC, logger)
		health = grpcServer
	}
	reporter := service.NewStatsReporter(cfg.Stats.Schedule, engine, health, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting REST API server", "addr", restServer.Addr)
		if err := restServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("rest server: %w", err)
		}
		return nil
	})

	if grpcServer != nil {
		g.Go(func() error {
			if err := grpcServer.Start(); err != nil {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return reporter.Start(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := restServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("rest shutdown: %w", err))
		}
		if grpcServer != nil {
			grpcServer.Stop()
		}
		if err := dispatcher.Close(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})

	err = g.Wait()
	logger.Info("Server stopped")
	return err
}

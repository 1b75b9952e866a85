package cli

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MichaelOwenDyer/job-dispatch-service/internal/coordinator/core"
	"github.com/MichaelOwenDyer/job-dispatch-service/internal/shared/config"
)

type mockLogger struct{}

func (m *mockLogger) Debug(msg string, args ...any) {}
func (m *mockLogger) Info(msg string, args ...any)  {}
func (m *mockLogger) Warn(msg string, args ...any)  {}
func (m *mockLogger) Error(msg string, args ...any) {}
func (m *mockLogger) Fatal(msg string, args ...any) {}

func freePort(t *testing.T) int {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()
	return lis.Addr().(*net.TCPAddr).Port
}

func testConfig(t *testing.T) *config.CoordinatorConfig {
	dir := t.TempDir()
	return &config.CoordinatorConfig{
		REST: config.RESTConfig{
			Port:         freePort(t),
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
			IdleTimeout:  time.Second,
		},
		GRPC: config.GRPCConfig{
			Enabled:          true,
			Addr:             "127.0.0.1:0",
			KeepaliveMinTime: 30 * time.Second,
		},
		Queue: config.QueueConfig{
			Mode:       "InMemory",
			WorkerMode: "JsonFile",
			WorkerFile: filepath.Join(dir, "workers.json"),
		},
		Callback: config.CallbackConfig{Timeout: time.Second},
		Stats:    config.StatsConfig{Schedule: "@every 1m"},
	}
}

func TestRootCmd_HasServe(t *testing.T) {
	root := NewRootCmd()
	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "serve", serve.Name())

	for _, name := range []string{"config", "port", "mode", "job-queue-mode", "worker-queue-mode"} {
		assert.NotNil(t, serve.Flags().Lookup(name), "missing flag %s", name)
	}
	assert.Equal(t, "p", serve.Flags().Lookup("port").Shorthand)
	assert.Equal(t, "m", serve.Flags().Lookup("mode").Shorthand)
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, &mockLogger{}) }()

	url := "http://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.REST.Port)) + "/queues"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRun_UnknownQueueMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Queue.Mode = "Kafka"
	cfg.Queue.WorkerMode = ""

	err := Run(context.Background(), cfg, &mockLogger{})
	require.ErrorIs(t, err, core.ErrUnknownQueueMode)
}

func TestRun_InvalidStatsScheduleStopsServer(t *testing.T) {
	cfg := testConfig(t)
	cfg.GRPC.Enabled = false
	cfg.Stats.Schedule = "sometimes"

	done := make(chan error, 1)
	go func() { done <- Run(context.Background(), cfg, &mockLogger{}) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid stats schedule")
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not fail on an invalid schedule")
	}
}

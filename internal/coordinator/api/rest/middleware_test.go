package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/MichaelOwenDyer/job-dispatch-service/internal/coordinator/core"
	"github.com/MichaelOwenDyer/job-dispatch-service/internal/shared/config"
)

// mockLogger is a test logger that captures log messages
type mockLogger struct {
	mu       sync.Mutex
	messages []string
}

func newMockLogger() *mockLogger {
	return &mockLogger{
		messages: make([]string, 0),
	}
}

func (m *mockLogger) Debug(msg string, args ...any) { m.log("DEBUG", msg, args...) }
func (m *mockLogger) Info(msg string, args ...any)  { m.log("INFO", msg, args...) }
func (m *mockLogger) Warn(msg string, args ...any)  { m.log("WARN", msg, args...) }
func (m *mockLogger) Error(msg string, args ...any) { m.log("ERROR", msg, args...) }
func (m *mockLogger) Fatal(msg string, args ...any) { m.log("FATAL", msg, args...) }

func (m *mockLogger) log(level, msg string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	formatted := fmt.Sprintf("[%s] %s", level, msg)
	for i := 0; i+1 < len(args); i += 2 {
		formatted += fmt.Sprintf(" %v=%v", args[i], args[i+1])
	}
	m.messages = append(m.messages, formatted)
}

func (m *mockLogger) getOutput() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return strings.Join(m.messages, "\n")
}

// panickingEngine simulates a bug in the matching layer.
type panickingEngine struct{}

func (panickingEngine) SubmitJob(context.Context, json.RawMessage) (core.SubmitResult, error) {
	panic("queue invariant violated")
}

func (panickingEngine) RegisterWorker(context.Context, *url.URL) (core.RegisterResult, error) {
	panic("queue invariant violated")
}

func (panickingEngine) Stats(context.Context) (core.QueueStats, error) {
	panic("queue invariant violated")
}

// loggedServer serves the API routes through the same middleware chain as
// NewServer, logging into the returned logger.
func loggedServer(t *testing.T) (http.Handler, *mockLogger) {
	t.Helper()
	s := newTestServer(t, "")
	logger := newMockLogger()
	return ChainMiddleware(s.mux, LoggingMiddleware(logger), RecoveryMiddleware(logger)), logger
}

func TestLoggingMiddlewareRequestLines(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		path     string
		callback string
		body     string
		want     []string
	}{
		{
			name:     "queued worker",
			method:   http.MethodPost,
			path:     "/register-worker",
			callback: "http://robot.local/callback",
			want:     []string{"[INFO] HTTP request", "method=POST", "path=/register-worker", "status=202"},
		},
		{
			name:   "missing callback header",
			method: http.MethodPost,
			path:   "/register-worker",
			want:   []string{"[INFO] HTTP request", "path=/register-worker", "status=400"},
		},
		{
			name:   "queued job",
			method: http.MethodPost,
			path:   "/submit-job",
			body:   `{"drink":"mojito"}`,
			want:   []string{"[INFO] HTTP request", "path=/submit-job", "status=202"},
		},
		{
			name:   "invalid payload",
			method: http.MethodPost,
			path:   "/submit-job",
			body:   `{"drink":`,
			want:   []string{"path=/submit-job", "status=400"},
		},
		{
			name:   "public config",
			method: http.MethodGet,
			path:   "/public/config.json",
			want:   []string{"[DEBUG] HTTP request", "path=/public/config.json", "status=200"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, logger := loggedServer(t)

			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.callback != "" {
				req.Header.Set(core.CallbackHeader, tt.callback)
			}
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			logOutput := logger.getOutput()
			for _, want := range tt.want {
				if !strings.Contains(logOutput, want) {
					t.Errorf("Expected log to contain %q, got: %s", want, logOutput)
				}
			}
			if !strings.Contains(logOutput, fmt.Sprintf("bytes=%d", w.Body.Len())) {
				t.Errorf("Expected log to record %d response bytes, got: %s", w.Body.Len(), logOutput)
			}
		})
	}
}

func TestLoggingMiddlewareUnavailableAtWarn(t *testing.T) {
	logger := newMockLogger()
	api := NewAPI(failingEngine{}, config.RESTConfig{Port: 2567}, newMockLogger())
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)
	handler := ChainMiddleware(mux, LoggingMiddleware(logger), RecoveryMiddleware(logger))

	req := httptest.NewRequest(http.MethodGet, "/queues", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected status 503, got %d", w.Code)
	}
	logOutput := logger.getOutput()
	if !strings.Contains(logOutput, "[WARN] HTTP request") || !strings.Contains(logOutput, "status=503") {
		t.Errorf("Expected a WARN request line with status 503, got: %s", logOutput)
	}
}

func TestServerRecoversFromEnginePanic(t *testing.T) {
	logger := newMockLogger()
	srv := NewServer(config.RESTConfig{Port: 2567}, panickingEngine{}, logger)

	req := httptest.NewRequest(http.MethodPost, "/submit-job", strings.NewReader(`{"drink":"mojito"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
	assertJSONBody(t, w, `{"Error":"Internal"}`)

	logOutput := logger.getOutput()
	if !strings.Contains(logOutput, "Panic recovered") || !strings.Contains(logOutput, "queue invariant violated") {
		t.Errorf("Expected panic to be logged, got: %s", logOutput)
	}
	if !strings.Contains(logOutput, "[WARN] HTTP request") || !strings.Contains(logOutput, "status=500") {
		t.Errorf("Expected the recovered request to be logged with status 500, got: %s", logOutput)
	}
}

func TestServerRecoveryKeepsServing(t *testing.T) {
	srv := NewServer(config.RESTConfig{Port: 2567}, panickingEngine{}, newMockLogger())

	for range 2 {
		req := httptest.NewRequest(http.MethodPost, "/register-worker", nil)
		req.Header.Set(core.CallbackHeader, "http://robot.local/callback")
		w := httptest.NewRecorder()
		srv.Handler.ServeHTTP(w, req)
		if w.Code != http.StatusInternalServerError {
			t.Errorf("Expected status 500, got %d", w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/public/config.json", nil)
	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected config to still be served, got %d", w.Code)
	}
}

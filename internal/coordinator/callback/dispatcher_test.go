package callback

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MichaelOwenDyer/job-dispatch-service/internal/coordinator/core"
)

type mockLogger struct{}

func (m *mockLogger) Debug(msg string, args ...any) {}
func (m *mockLogger) Info(msg string, args ...any)  {}
func (m *mockLogger) Warn(msg string, args ...any)  {}
func (m *mockLogger) Error(msg string, args ...any) {}
func (m *mockLogger) Fatal(msg string, args ...any) {}

func deliver(t *testing.T, d *Dispatcher, callbackURL string, job *core.Job) error {
	t.Helper()
	result := make(chan error, 1)
	d.Deliver(core.NewWorker(callbackURL), job, func(err error) { result <- err })

	select {
	case err := <-result:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("delivery was never reported")
		return nil
	}
}

func TestDispatcher_DeliversJobWithPUT(t *testing.T) {
	type received struct {
		method      string
		contentType string
		body        []byte
	}
	got := make(chan received, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- received{method: r.Method, contentType: r.Header.Get("Content-Type"), body: body}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(time.Second, &mockLogger{})
	job := core.NewJob(json.RawMessage(`{"task":"pick","item":7}`))

	require.NoError(t, deliver(t, d, srv.URL+"/cb", job))

	r := <-got
	assert.Equal(t, http.MethodPut, r.method)
	assert.Equal(t, "application/json", r.contentType)

	var envelope struct {
		Job struct {
			ID          string          `json:"id"`
			Data        json.RawMessage `json:"data"`
			SubmittedAt time.Time       `json:"submitted_at"`
		} `json:"Job"`
	}
	require.NoError(t, json.Unmarshal(r.body, &envelope))
	assert.Equal(t, job.ID.String(), envelope.Job.ID)
	assert.JSONEq(t, `{"task":"pick","item":7}`, string(envelope.Job.Data))
	assert.True(t, job.SubmittedAt.Equal(envelope.Job.SubmittedAt))
}

func TestDispatcher_Non2xxIsFailure(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))
			defer srv.Close()

			d := NewDispatcher(time.Second, &mockLogger{})
			err := deliver(t, d, srv.URL, core.NewJob(json.RawMessage(`1`)))
			require.ErrorIs(t, err, ErrDeliveryFailed)
		})
	}
}

func TestDispatcher_AcceptsAny2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDispatcher(time.Second, &mockLogger{})
	require.NoError(t, deliver(t, d, srv.URL, core.NewJob(json.RawMessage(`null`))))
}

func TestDispatcher_UnreachableWorker(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	d := NewDispatcher(time.Second, &mockLogger{})
	err := deliver(t, d, addr, core.NewJob(json.RawMessage(`{}`)))
	require.ErrorIs(t, err, ErrDeliveryFailed)
}

func TestDispatcher_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	d := NewDispatcher(50*time.Millisecond, &mockLogger{})
	err := deliver(t, d, srv.URL, core.NewJob(json.RawMessage(`{}`)))
	require.ErrorIs(t, err, ErrDeliveryFailed)
}

func TestDispatcher_CloseWaitsForInFlight(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(5*time.Second, &mockLogger{})
	result := make(chan error, 1)
	d.Deliver(core.NewWorker(srv.URL), core.NewJob(json.RawMessage(`{}`)), func(err error) { result <- err })
	<-started

	require.NoError(t, d.Close(context.Background()))
	select {
	case err := <-result:
		require.NoError(t, err)
	default:
		t.Fatal("Close returned before the delivery was reported")
	}
}

func TestDispatcher_CloseCancelsAfterDeadline(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	d := NewDispatcher(5*time.Second, &mockLogger{})
	result := make(chan error, 1)
	d.Deliver(core.NewWorker(srv.URL), core.NewJob(json.RawMessage(`{}`)), func(err error) { result <- err })
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)
	require.ErrorIs(t, <-result, ErrDeliveryFailed)
}

func TestDispatcher_RejectsAfterClose(t *testing.T) {
	d := NewDispatcher(time.Second, &mockLogger{})
	require.NoError(t, d.Close(context.Background()))

	err := deliver(t, d, "http://127.0.0.1:1", core.NewJob(json.RawMessage(`{}`)))
	require.ErrorIs(t, err, ErrClosed)
}

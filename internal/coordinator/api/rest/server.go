package rest

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/MichaelOwenDyer/job-dispatch-service/internal/coordinator/core"
	"github.com/MichaelOwenDyer/job-dispatch-service/internal/shared/config"
	"github.com/MichaelOwenDyer/job-dispatch-service/internal/shared/logging"
)

const maxPayloadBytes = 1 << 20

type API struct {
	engine    core.MatchingEngine
	port      int
	publicDir string
	logger    logging.Logger
}

func NewAPI(engine core.MatchingEngine, cfg config.RESTConfig, logger logging.Logger) *API {
	return &API{
		engine:    engine,
		port:      cfg.Port,
		publicDir: cfg.PublicDir,
		logger:    logger,
	}
}

func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /register-worker", a.registerWorker)
	mux.HandleFunc("POST /submit-job", a.submitJob)
	mux.HandleFunc("GET /queues", a.queueStats)
	mux.HandleFunc("GET /public/config.json", a.publicConfig)
	if a.publicDir != "" {
		mux.Handle("GET /public/", http.StripPrefix("/public/", http.FileServer(http.Dir(a.publicDir))))
	}
}

// registerWorker handles POST /register-worker
func (a *API) registerWorker(w http.ResponseWriter, r *http.Request) {
	callback, err := core.ParseCallbackHeader(r.Header.Values(core.CallbackHeader))
	if err != nil {
		a.logger.Debug("Rejected worker registration", "error", err)
		a.respondError(w, http.StatusBadRequest, callbackErrorCode(err))
		return
	}

	result, err := a.engine.RegisterWorker(r.Context(), callback)
	if err != nil {
		a.respondError(w, http.StatusServiceUnavailable, ErrorUnavailable)
		return
	}

	if result.Queued() {
		w.Header().Set(core.CallbackHeader, "true")
		a.respondJSON(w, http.StatusAccepted, StatusQueued)
		return
	}
	a.respondJSON(w, http.StatusOK, JobResponse{Job: result.Job})
}

// submitJob handles POST /submit-job
func (a *API) submitJob(w http.ResponseWriter, r *http.Request) {
	if !isJSONContentType(r.Header.Get("Content-Type")) {
		a.logger.Debug("Rejected job submission", "content_type", r.Header.Get("Content-Type"))
		a.respondError(w, http.StatusBadRequest, ErrorInvalidPayload)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil || !json.Valid(body) {
		a.respondError(w, http.StatusBadRequest, ErrorInvalidPayload)
		return
	}

	result, err := a.engine.SubmitJob(r.Context(), json.RawMessage(body))
	if err != nil {
		a.respondError(w, http.StatusServiceUnavailable, ErrorUnavailable)
		return
	}

	if result.Assigned {
		a.respondJSON(w, http.StatusOK, StatusAssigned)
		return
	}
	a.respondJSON(w, http.StatusAccepted, QueuedJobResponse{
		Queued: QueuePosition{Position: result.Position},
	})
}

// queueStats handles GET /queues
func (a *API) queueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.engine.Stats(r.Context())
	if err != nil {
		a.respondError(w, http.StatusServiceUnavailable, ErrorUnavailable)
		return
	}
	a.respondJSON(w, http.StatusOK, QueueStatsResponse{Jobs: stats.Jobs, Workers: stats.Workers})
}

// publicConfig handles GET /public/config.json
func (a *API) publicConfig(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, http.StatusOK, PublicConfig{ServerPort: a.port})
}

func callbackErrorCode(err error) string {
	switch {
	case errors.Is(err, core.ErrCallbackMissing):
		return ErrorMissing
	case errors.Is(err, core.ErrCallbackNotAString):
		return ErrorNotAString
	default:
		return ErrorNotAURL
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

func (a *API) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	if err := writeJSON(w, statusCode, data); err != nil {
		a.logger.Warn("Failed to write response", "error", err)
	}
}

func (a *API) respondError(w http.ResponseWriter, statusCode int, code string) {
	a.respondJSON(w, statusCode, ErrorResponse{Error: code})
}

func NewServer(cfg config.RESTConfig, engine core.MatchingEngine, logger logging.Logger) *http.Server {
	api := NewAPI(engine, cfg, logger)
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)

	handler := ChainMiddleware(
		mux,
		LoggingMiddleware(logger),
		RecoveryMiddleware(logger),
	)

	return &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

// isJSONContentType accepts application/json and any +json media type.
func isJSONContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" ||
		(strings.HasPrefix(mediaType, "application/") && strings.HasSuffix(mediaType, "+json"))
}

// isPublicPath reports whether the request targets the static UI, which is
// logged at debug level only.
func isPublicPath(path string) bool {
	return strings.HasPrefix(path, "/public/")
}

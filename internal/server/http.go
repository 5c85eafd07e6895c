package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/ytchat/internal/conversation"
	"github.com/raphaelgruber/ytchat/internal/index"
	"github.com/raphaelgruber/ytchat/internal/metrics"
	"github.com/raphaelgruber/ytchat/internal/service"
	"github.com/raphaelgruber/ytchat/internal/youtube"
)

// retryAfterSeconds is advertised when the vector backend is down.
const retryAfterSeconds = 30

// defaultThreadID is used when a request carries no thread id.
const defaultThreadID = "default"

// Invoker answers a user turn.
type Invoker interface {
	Invoke(ctx context.Context, req conversation.Request) (*conversation.Response, error)
}

// IndexStatus describes the active vector backend.
type IndexStatus interface {
	Backend() string
	Durable() bool
}

// ModelInfo names the completion and embedding models reported by /health.
type ModelInfo struct {
	LLM            string
	Embedding      string
	EmbedDimension int
}

// JobRunner runs background ingestions.
type JobRunner interface {
	Submit(rawURL string) *service.Job
	Get(id string) *service.Job
}

// HTTPConfig wires the HTTP handler.
type HTTPConfig struct {
	Engine       Invoker
	Index        IndexStatus
	Jobs         JobRunner
	Models       ModelInfo
	Metrics      *metrics.Collector
	Logger       *slog.Logger
	MaxBodyBytes int64

	// OnPanic runs after a recovered handler panic has been answered.
	// The server binary uses it to shut down when FATAL_ON_PANIC is set.
	OnPanic func(recovered any)
}

type handler struct {
	cfg    HTTPConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewHTTPHandler returns the routed handler wrapped in request id, access
// logging, panic recovery and CORS middleware.
func NewHTTPHandler(cfg HTTPConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewCollector()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	h := &handler{cfg: cfg, logger: cfg.Logger, now: time.Now}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /{$}", h.root)
	mux.HandleFunc("POST /generate", h.generate)
	mux.HandleFunc("POST /ingest", h.submitIngest)
	mux.HandleFunc("GET /ingest/{id}", h.getIngest)
	mux.HandleFunc("GET /stats", h.stats)
	mux.HandleFunc("/", h.notFound)

	var next http.Handler = mux
	next = h.cors(next)
	next = h.recoverPanics(next)
	next = h.accessLog(next)
	next = h.requestID(next)
	return next
}

func (h *handler) root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Hello World"))
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	}
	if h.cfg.Index != nil {
		resp["index"] = h.cfg.Index.Backend()
		resp["durable"] = h.cfg.Index.Durable()
	}
	if m := h.cfg.Models; m.LLM != "" {
		resp["llm_model"] = m.LLM
	}
	if m := h.cfg.Models; m.Embedding != "" {
		resp["embed_model"] = m.Embedding
		resp["embed_dimension"] = m.EmbedDimension
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cfg.Metrics.Snapshot())
}

func (h *handler) notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Endpoint not found")
}

type generateRequest struct {
	Query    string   `json:"query"`
	ThreadID threadID `json:"thread_id"`
	VideoID  string   `json:"video_id"`
}

// threadID accepts a JSON string or number.
type threadID string

func (t *threadID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = threadID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("thread_id must be a string or number")
	}
	*t = threadID(n.String())
	return nil
}

func (h *handler) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "Query is required")
		return
	}
	thread := string(req.ThreadID)
	if thread == "" {
		thread = defaultThreadID
	}

	resp, err := h.cfg.Engine.Invoke(r.Context(), conversation.Request{
		ThreadID: thread,
		Query:    req.Query,
		VideoID:  req.VideoID,
	})
	if err != nil {
		h.writeInvokeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(resp.Answer))
}

func (h *handler) writeInvokeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, conversation.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "Query is required")
	case errors.Is(err, index.ErrBackendUnavailable):
		h.logger.Warn("generate failed, vector backend unavailable", "request_id", requestIDFrom(r.Context()), "error", err)
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":      "Vector database unavailable",
			"retryAfter": retryAfterSeconds,
		})
	default:
		h.logger.Error("generate failed", "request_id", requestIDFrom(r.Context()), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "Failed to generate response",
			"message": err.Error(),
		})
	}
}

type ingestRequest struct {
	URL string `json:"url"`
}

func (h *handler) submitIngest(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Jobs == nil {
		writeError(w, http.StatusNotFound, "Endpoint not found")
		return
	}
	var req ingestRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "URL is required")
		return
	}
	if _, ok := youtube.ResolveVideoID(req.URL); !ok {
		writeError(w, http.StatusBadRequest, "Invalid YouTube URL")
		return
	}

	job := h.cfg.Jobs.Submit(req.URL)
	w.Header().Set("Location", "/ingest/"+job.ID)
	writeJSON(w, http.StatusAccepted, job.Snapshot())
}

func (h *handler) getIngest(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Jobs == nil {
		writeError(w, http.StatusNotFound, "Endpoint not found")
		return
	}
	job := h.cfg.Jobs.Get(r.PathValue("id"))
	if job == nil {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

// decode reads a size-limited JSON body, answering 400 or 413 on failure.
func (h *handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// An empty body decodes as an empty request; field checks reject it.
		if errors.Is(err, io.EOF) {
			return true
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "Invalid request body",
			"message": err.Error(),
		})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type ctxKey int

const requestIDKey ctxKey = iota

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (h *handler) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestIDFrom(r.Context()),
		}
		if rec.status >= http.StatusInternalServerError {
			h.logger.Warn("http request", attrs...)
		} else {
			h.logger.Info("http request", attrs...)
		}
	})
}

func (h *handler) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			if p == http.ErrAbortHandler {
				panic(p)
			}
			h.cfg.Metrics.Inc(metrics.CounterPanicsRecovered)
			h.logger.Error("panic in http handler",
				"panic", p,
				"path", r.URL.Path,
				"request_id", requestIDFrom(r.Context()),
				"stack", string(debug.Stack()),
			)
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":   "Internal server error",
				"message": fmt.Sprint(p),
			})
			if h.cfg.OnPanic != nil {
				h.cfg.OnPanic(p)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// cors allows every origin.
func (h *handler) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

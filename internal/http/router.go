// Package httpx exposes the daemon's HTTP surface: manual triggers, GitLab
// webhooks, health and metrics.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mindriot101/dockerdeploy/internal/controller"
	"github.com/mindriot101/dockerdeploy/internal/gitlab"
	"github.com/mindriot101/dockerdeploy/internal/webhook"
)

const (
	healthCheckTimeout = 2 * time.Second
	maxWebhookBody     = 10 << 20
	rateLimitWindow    = time.Minute
)

// Sender queues messages for the controller.
type Sender interface {
	Send(msg controller.Message) error
}

// Pinger checks connectivity to the container engine.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Router.
type Options struct {
	Queue    Sender
	Policies *webhook.Store
	Docker   Pinger
	Logger   *slog.Logger
	// Limiter and RateLimitPerMinute enable per-IP limiting of /trigger and
	// /webhook. A zero limit disables it.
	Limiter            RateLimiter
	RateLimitPerMinute int
	Registerer         prometheus.Registerer
	Gatherer           prometheus.Gatherer
}

// Router exposes HTTP endpoints for the deploy daemon.
type Router struct {
	mux       *http.ServeMux
	logger    *slog.Logger
	queue     Sender
	policies  *webhook.Store
	docker    Pinger
	limiter   RateLimiter
	rateLimit int

	registerer         prometheus.Registerer
	gatherer           prometheus.Gatherer
	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

// New creates and registers handlers.
func New(opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	policies := opts.Policies
	if policies == nil {
		policies = webhook.NewStore(webhook.Policy{})
	}
	registerer := opts.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r := &Router{
		mux:        http.NewServeMux(),
		logger:     logger.With("component", "http"),
		queue:      opts.Queue,
		policies:   policies,
		docker:     opts.Docker,
		limiter:    opts.Limiter,
		rateLimit:  opts.RateLimitPerMinute,
		registerer: registerer,
		gatherer:   gatherer,
	}
	r.initMetrics()
	r.routes()
	return r
}

// ServeHTTP satisfies http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) routes() {
	r.mux.Handle("/metrics", promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{}))
	r.mux.HandleFunc("/healthz", r.instrument("/healthz", r.handleHealth))
	r.mux.HandleFunc("/trigger", r.instrument("/trigger", r.withRateLimit("/trigger", r.handleTrigger)))
	r.mux.HandleFunc("/webhook", r.instrument("/webhook", r.withRateLimit("/webhook", r.handleWebhook)))
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if r.docker == nil {
		r.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": "docker client not configured"})
		return
	}
	ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
	defer cancel()
	if err := r.docker.Ping(ctx); err != nil {
		r.logger.Warn("health check failed", "error", err)
		r.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	r.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *Router) handleTrigger(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !r.enqueue(w, controller.SourceManual) {
		return
	}
	r.logger.Info("manual trigger queued", "remote", req.RemoteAddr)
	w.WriteHeader(http.StatusNoContent)
}

// handleWebhook authorizes before reading the body so unauthenticated callers
// never reach the decoder.
func (r *Router) handleWebhook(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	policy := r.policies.Load()
	supplied := tokenHeader(req)
	if !policy.Authorize(supplied) {
		r.logger.Debug("webhook rejected", "remote", req.RemoteAddr)
		r.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	event, err := gitlab.Decode(http.MaxBytesReader(w, req.Body, maxWebhookBody))
	if err != nil {
		r.logger.Debug("invalid webhook body", "error", err)
		r.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	decision := policy.Decide(supplied, event)
	r.logger.Debug("webhook received", "kind", string(event.Kind), "decision", decision.String())
	if decision == webhook.Forward {
		if !r.enqueue(w, controller.SourceWebhook) {
			return
		}
		r.logger.Info("webhook trigger queued", "ref", event.Pipeline.ObjectAttributes.Ref, "pipeline_id", event.Pipeline.ObjectAttributes.ID)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) enqueue(w http.ResponseWriter, source controller.Source) bool {
	if r.queue == nil {
		r.writeError(w, http.StatusServiceUnavailable, "controller unavailable")
		return false
	}
	if err := r.queue.Send(controller.Trigger{Source: source}); err != nil {
		if errors.Is(err, controller.ErrQueueClosed) {
			r.writeError(w, http.StatusServiceUnavailable, "shutting down")
			return false
		}
		r.logger.Error("failed to queue trigger", "source", string(source), "error", err)
		r.writeError(w, http.StatusInternalServerError, "failed to queue trigger")
		return false
	}
	return true
}

// tokenHeader distinguishes an absent header from an empty one.
func tokenHeader(req *http.Request) *string {
	values, ok := req.Header[http.CanonicalHeaderKey(webhook.TokenHeader)]
	if !ok || len(values) == 0 {
		return nil
	}
	token := values[0]
	return &token
}

// writeJSON writes payload with status. Encoding failures can only be logged
// because the header is already sent.
func (r *Router) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.logger.Error("failed to encode response", "status", status, "error", err)
	}
}

// writeError answers with {"error": msg}. Rejected webhooks must get the same
// body whatever the reason, so callers pass fixed messages.
func (r *Router) writeError(w http.ResponseWriter, status int, msg string) {
	r.writeJSON(w, status, map[string]string{"error": msg})
}

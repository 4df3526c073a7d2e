// Package server wires config, middleware and handlers into one HTTP handler.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/attune-app/attune/pkg/api/config"
	"github.com/attune-app/attune/pkg/api/handlers"
	"github.com/attune-app/attune/pkg/api/mw"
	"github.com/attune-app/attune/pkg/api/ratelimit"
	"github.com/attune-app/attune/pkg/detect"
	"github.com/attune-app/attune/pkg/store"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	store    store.Store
	cache    *store.ComplexCache
	limiter  *ratelimit.Limiter
	detector detect.Pipeline

	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func New(cfg config.Config, st store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attune",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "attune",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
	registry.MustRegister(requests, duration)

	s := &Server{
		cfg:    cfg,
		logger: logger,
		mux:    http.NewServeMux(),
		store:  st,
		cache:  store.NewComplexCache(cfg.ComplexCacheTTL, nil),
		limiter: ratelimit.New(ratelimit.Config{
			RPS:                   cfg.LimitRPS,
			Burst:                 cfg.LimitBurst,
			MaxConcurrentRequests: cfg.LimitMaxConcurrentRequests,
		}),
		detector: buildDetector(cfg, logger),
		registry: registry,
		requests: requests,
		duration: duration,
	}

	s.routes()
	return s
}

// buildDetector picks the classifier backend from config. A nil pipeline
// leaves the classify endpoint answering 503.
func buildDetector(cfg config.Config, logger *slog.Logger) detect.Pipeline {
	if cfg.DetectBaseURL != "" {
		var opts []detect.HTTPOption
		if cfg.DetectAPIKey != "" {
			opts = append(opts, detect.WithAPIKey(cfg.DetectAPIKey))
		}
		d, err := detect.NewHTTPClient(cfg.DetectBaseURL, opts...)
		if err != nil {
			logger.Warn("detect service client disabled", "error", err)
			return nil
		}
		return d
	}
	if cfg.GeminiAPIKey != "" {
		d, err := detect.NewGeminiClassifier(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Warn("gemini classifier disabled", "error", err)
			return nil
		}
		return d
	}
	return nil
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg})
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	conversations := handlers.ConversationsHandler{
		Store:        s.store,
		Logger:       s.logger,
		MaxBodyBytes: s.cfg.MaxBodyBytes,
	}
	s.mux.Handle("/v1/conversations", conversations)
	s.mux.Handle("/v1/conversations/{id}", conversations)
	s.mux.Handle("/v1/conversations/{id}/items", handlers.DetectedItemsHandler{
		Store:        s.store,
		Logger:       s.logger,
		MaxBodyBytes: s.cfg.MaxBodyBytes,
	})

	complexes := handlers.ComplexesHandler{
		Store:        s.store,
		Cache:        s.cache,
		Logger:       s.logger,
		MaxBodyBytes: s.cfg.MaxBodyBytes,
	}
	s.mux.Handle("/v1/complexes", complexes)
	s.mux.Handle("/v1/complexes/{id}", complexes)

	s.mux.Handle("/v1/chart", handlers.ChartHandler{
		Store:  s.store,
		Cache:  s.cache,
		Logger: s.logger,
	})

	s.mux.Handle("/v1/classify", handlers.ClassifyHandler{
		Detector:     s.detector,
		Logger:       s.logger,
		MaxBodyBytes: s.cfg.MaxBodyBytes,
	})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = s.metrics(h)
	h = mw.Timeout(s.cfg.HandlerTimeout, h)
	h = mw.RateLimit(s.limiter, h)
	h = mw.Auth(s.cfg, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(sw, r)

		// ServeMux fills r.Pattern during routing; using it instead of the
		// raw path keeps label cardinality bounded for /{id} routes.
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.requests.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
		s.duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

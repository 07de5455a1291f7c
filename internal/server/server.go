// file: internal/server/server.go

// Package server exposes the data source to hosts over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chained-datasource/config"
	"chained-datasource/internal/auth"
	"chained-datasource/internal/datasource"
	"chained-datasource/internal/descriptor"
	"chained-datasource/internal/logger"
	"chained-datasource/internal/metrics"
)

// maxDescriptorBody caps a PUT /descriptors body (1MB)
const maxDescriptorBody = 1024 * 1024

// DataSource is what the server exposes over HTTP.
type DataSource interface {
	GetData(ctx context.Context) (*datasource.Data, error)
	OnConfigurationChanged(descs []descriptor.Resource) error
	Descriptors() []descriptor.Resource
	State() datasource.State
	ClientID() (auth.ClientKey, bool)
}

// Publisher distributes descriptor changes instead of applying them locally.
type Publisher interface {
	Publish(ctx context.Context, descs []descriptor.Resource) error
}

// Server is the host-facing HTTP surface.
type Server struct {
	ds         DataSource
	publisher  Publisher
	logger     *logger.Logger
	metrics    *metrics.Metrics
	cfg        *config.ServerConfig
	metricsCfg *config.MetricsConfig
	httpServer *http.Server
}

// New creates a server. publisher may be nil, in which case descriptor
// changes are applied directly to ds.
func New(ds DataSource, publisher Publisher, cfg *config.ServerConfig, metricsCfg *config.MetricsConfig, log *logger.Logger, m *metrics.Metrics) *Server {
	return &Server{
		ds:         ds,
		publisher:  publisher,
		logger:     log,
		metrics:    m,
		cfg:        cfg,
		metricsCfg: metricsCfg,
	}
}

// Handler builds the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /data", s.instrument("/data", s.handleData))
	mux.Handle("GET /descriptors", s.instrument("/descriptors", s.handleGetDescriptors))
	mux.Handle("PUT /descriptors", s.instrument("/descriptors", s.handlePutDescriptors))
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/healthz", s.handleHealth)

	if s.metrics != nil && s.metricsCfg != nil && s.metricsCfg.Enabled {
		reg := s.metrics.Registry()
		mux.Handle(s.metricsCfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			Registry:          reg,
			EnableOpenMetrics: true,
		}))
	}
	return mux
}

// Start begins serving in the background
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Address,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	go func() {
		s.logger.Info("starting HTTP server", "address", s.cfg.Address)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down, waiting for in-flight requests
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	data, err := s.ds.GetData(r.Context())
	if err != nil {
		var cfgErr *datasource.ConfigurationError
		if errors.As(err, &cfgErr) {
			s.writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleGetDescriptors(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"descriptors": s.ds.Descriptors()})
}

func (s *Server) handlePutDescriptors(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxDescriptorBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	descs, err := descriptor.Decode(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(r.Context(), descs); err != nil {
			s.writeError(w, http.StatusBadGateway, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if err := s.ds.OnConfigurationChanged(descs); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, resolved := s.ds.ClientID()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"state":            s.ds.State().String(),
		"clientIdResolved": resolved,
		"descriptors":      len(s.ds.Descriptors()),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to encode response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Warn("request failed", "status", status, "error", err)
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusRecorder captures the response status for metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(path string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		if s.metrics != nil {
			s.metrics.IncHTTPInboundRequestsTotal(path, r.Method, strconv.Itoa(rec.status))
			s.metrics.ObserveHTTPRequestDuration(path, r.Method, time.Since(start).Seconds())
		}
		s.logger.Debug("request handled",
			"path", path,
			"method", r.Method,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

package webui

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/filevars/webui/internal/config"
	"github.com/filevars/webui/internal/service"
	"github.com/filevars/webui/internal/version"
)

// ServerConfig contains configuration for the REST facade
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080" (port 0 auto-assigns)
	Addr string

	// CORSOrigins lists allowed origins; "*" allows any
	CORSOrigins []string

	// UI polling hints served by /api/ui-config
	AutoRefreshEnabled bool
	AutoRefreshSec     int

	// WriteRateLimit is the per-client budget of mutation routes in
	// requests per second; zero disables limiting
	WriteRateLimit float64
	WriteRateBurst int

	// Version info for UI display
	Version string
}

// ConfigFrom derives a ServerConfig from the process configuration.
func ConfigFrom(cfg *config.Config) ServerConfig {
	return ServerConfig{
		Addr:               cfg.HTTPAddr,
		CORSOrigins:        cfg.CORSOrigins(),
		AutoRefreshEnabled: cfg.UIAutoRefreshEnabled,
		AutoRefreshSec:     cfg.UIAutoRefresh(),
		WriteRateLimit:     cfg.WriteRateLimit,
		WriteRateBurst:     cfg.WriteRateBurst,
		Version:            version.GetVersion(),
	}
}

// Options carries the server's process-level collaborators.
type Options struct {
	Logger *slog.Logger
	// Registerer and Gatherer back the HTTP metrics and /metrics; nil
	// selects the prometheus defaults.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// Server is the REST facade over the tree store, flat cache and variable
// protocol
type Server struct {
	config     ServerConfig
	svc        *service.Services
	log        *slog.Logger
	metrics    *Metrics
	gatherer   prometheus.Gatherer
	limiter    *rateLimiter
	handler    http.Handler
	httpServer *http.Server
	listener   net.Listener
	wg         sync.WaitGroup
}

// NewServer creates a new server and builds its routes
func NewServer(cfg ServerConfig, svc *service.Services, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		config:   cfg,
		svc:      svc,
		log:      log.With("component", "webui"),
		metrics:  NewMetrics(opts.Registerer),
		gatherer: gatherer,
		limiter:  newRateLimiter(cfg.WriteRateLimit, cfg.WriteRateBurst),
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux)
	s.handler = s.withRecover(s.withRequestID(s.withAccessLog(s.withCORS(mux))))
	return s
}

// Handler returns the fully wrapped handler (tests, embedding).
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves in the background
func (s *Server) Start(ctx context.Context) error {
	var err error
	s.listener, err = net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server error", "error", err)
		}
	}()

	s.log.Info("listening", "url", s.URL())
	return nil
}

func (s *Server) setupRoutes(mux *http.ServeMux) {
	staticSubFS, err := fs.Sub(staticFS, "static")
	if err != nil {
		mux.HandleFunc("GET /", s.handleIndex)
	} else {
		mux.Handle("GET /", s.handleStatic(http.FileServer(http.FS(staticSubFS))))
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	s.route(mux, "GET /api/ping", s.handlePing)
	s.route(mux, "GET /api/health", s.handleHealth)
	s.route(mux, "GET /api/ui-config", s.handleUIConfig)
	s.mutation(mux, "POST /api/cache/refresh", s.handleCacheRefresh)

	// Group tree
	s.route(mux, "GET /api/groups", s.handleGroups)
	s.route(mux, "GET /api/groups/tree", s.handleGroupTree)
	s.route(mux, "GET /api/groups/tree/page", s.handleGroupTreePage)
	s.route(mux, "GET /api/groups/{id}/path", s.handleGroupPath)
	s.route(mux, "GET /api/groups/{id}/projects/count", s.handleGroupProjectCount)
	s.route(mux, "GET /api/groups/{id}/projects/sample", s.handleGroupProjectSample)

	// Projects
	s.route(mux, "GET /api/projects", s.handleProjects)
	s.route(mux, "GET /api/projects/{id}/environments", s.handleEnvironments)

	// Variables, same surface for both owners
	for _, owner := range []string{"groups", "projects"} {
		base := "/api/" + owner + "/{id}/variables"
		s.route(mux, "GET "+base, s.handleListVariables)
		s.route(mux, "GET "+base+"/{key}", s.handleGetVariable)
		s.mutation(mux, "DELETE "+base+"/{key}", s.handleDeleteVariable)
		s.mutation(mux, "POST "+base+"/upsert", s.handleUpsertVariable)
	}
}

// route registers an instrumented read handler.
func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, s.instrument(routeLabel(pattern), h))
}

// mutation registers an instrumented, rate limited write handler.
func (s *Server) mutation(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	label := routeLabel(pattern)
	mux.HandleFunc(pattern, s.instrument(label, s.withRateLimit(label, h)))
}

func routeLabel(pattern string) string {
	if _, path, ok := strings.Cut(pattern, " "); ok {
		return path
	}
	return pattern
}

// handleStatic serves the embedded UI; unknown /api/ paths stay JSON 404s
func (s *Server) handleStatic(fileServer http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		fileServer.ServeHTTP(w, r)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!DOCTYPE html><html><head><title>File Variables</title></head><body><p>File Variables %s: UI assets are not embedded in this build.</p></body></html>", s.config.Version)
}

// URL returns the server URL
func (s *Server) URL() string {
	if s.listener == nil {
		return ""
	}
	return fmt.Sprintf("http://%s", s.listener.Addr().String())
}

// Port returns the actual port the server is listening on
func (s *Server) Port() int {
	if s.listener == nil {
		return 0
	}
	addr := s.listener.Addr().(*net.TCPAddr)
	return addr.Port
}

// Stop gracefully stops the server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.wg.Wait()
	return nil
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/docutag/pinfetch"
	"github.com/docutag/pinfetch/metrics"
	"github.com/docutag/pinfetch/models"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Resolver is the resolution engine exposed over HTTP
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) (models.ResolvedAsset, error)
	Cache() *pinfetch.Cache
}

// Server represents the API server
type Server struct {
	resolver    Resolver
	extractor   *pinfetch.LinkExtractor
	metrics     *metrics.Metrics
	logger      *slog.Logger
	addr        string
	server      *http.Server
	mux         *http.ServeMux
	corsEnabled bool
	timeout     time.Duration
}

// Config contains server configuration
type Config struct {
	Addr           string
	CORSEnabled    bool
	RequestTimeout time.Duration // Upper bound on one resolve request
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		CORSEnabled:    true,
		RequestTimeout: 2 * time.Minute,
	}
}

// NewServer creates a new API server. m and logger may be nil.
func NewServer(config Config, resolver Resolver, extractor *pinfetch.LinkExtractor, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		resolver:    resolver,
		extractor:   extractor,
		metrics:     m,
		logger:      logger.With("component", "api"),
		addr:        config.Addr,
		mux:         http.NewServeMux(),
		corsEnabled: config.CORSEnabled,
		timeout:     config.RequestTimeout,
	}

	s.registerRoutes()

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", s.metrics.Handler())
	s.mux.HandleFunc("/api/resolve", s.handleResolve)
	s.mux.HandleFunc("/api/cache/invalidate", s.handleInvalidate)
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.middleware(s.mux), "pinfetch-api")
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// middleware applies common middleware to all routes
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.corsEnabled {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		// Skip health checks and metrics scrapes to reduce noise
		quiet := r.URL.Path == "/health" || r.URL.Path == "/metrics"
		start := time.Now()
		next.ServeHTTP(w, r)
		if !quiet {
			s.logger.Info("request completed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
		}
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "healthy",
		"cache_entries": s.resolver.Cache().Len(),
		"time":          time.Now(),
	})
}

// ResolveRequest carries free-form text containing one or more post links
type ResolveRequest struct {
	Text string `json:"text"`
}

// ResolveResult is the outcome for one link
type ResolveResult struct {
	InputURL string           `json:"input_url"`
	PageURL  string           `json:"page_url,omitempty"`
	Kind     models.MediaKind `json:"kind,omitempty"`
	AssetURL string           `json:"asset_url,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// ResolveResponse lists results in link order
type ResolveResponse struct {
	Results []ResolveResult `json:"results"`
}

// handleResolve resolves every link in the request text without downloading
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		respondError(w, http.StatusBadRequest, "text is required")
		return
	}

	links := s.extractor.Extract(req.Text)
	if len(links) == 0 {
		respondError(w, http.StatusUnprocessableEntity, "no platform links found")
		return
	}

	ctx := r.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp := ResolveResponse{Results: make([]ResolveResult, 0, len(links))}
	for _, link := range links {
		result := ResolveResult{InputURL: link}
		asset, err := s.resolver.Resolve(ctx, link)
		if err != nil {
			result.Error = err.Error()
		} else {
			result.PageURL = asset.PageURL
			result.Kind = asset.Kind
			result.AssetURL = asset.URL
		}
		resp.Results = append(resp.Results, result)
	}

	respondJSON(w, http.StatusOK, resp)
}

// InvalidateRequest names a cached input URL; an empty URL purges the cache
type InvalidateRequest struct {
	URL string `json:"url"`
}

// handleInvalidate drops resolution cache entries
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req InvalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cache := s.resolver.Cache()
	if req.URL == "" {
		n := cache.Len()
		cache.Purge()
		respondJSON(w, http.StatusOK, map[string]interface{}{"removed": n > 0, "purged": n})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"removed": cache.Invalidate(req.URL)})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

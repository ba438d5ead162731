// Package api provides the HTTP server for geckomap.
//
// It exposes the ticker resolution form endpoint, a JSON API for
// resolution and catalog search, an admin refresh trigger with a
// WebSocket progress feed, and the embedded web UI.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/seenimoa/geckomap/internal/catalog"
	"github.com/seenimoa/geckomap/internal/coingecko"
	"github.com/seenimoa/geckomap/internal/config"
	"github.com/seenimoa/geckomap/internal/infra"
	"github.com/seenimoa/geckomap/internal/logger"
	"github.com/seenimoa/geckomap/internal/resolver"
	"github.com/seenimoa/geckomap/pkg/models"
	"github.com/seenimoa/geckomap/pkg/utils"
	"github.com/seenimoa/geckomap/web"
)

// Version is reported by the health and status endpoints. The CLI
// overwrites it with the release version at startup.
var Version = "dev"

// Server is the HTTP API server.
type Server struct {
	router   chi.Router
	cfg      *config.Config
	client   *coingecko.Client
	catalog  *catalog.Catalog
	resolver *resolver.Resolver
	hub      *WSHub
	serveUI  bool // when true, serve the embedded web UI at /
}

// NewServer wires the CoinGecko client, catalog and resolver and builds
// the router.
func NewServer(cfg *config.Config) (*Server, error) {
	client := coingecko.NewClient(cfg.CoinGecko)

	cat, err := catalog.New(client, cfg.Catalog)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	srv := &Server{
		cfg:      cfg,
		client:   client,
		catalog:  cat,
		resolver: resolver.New(cat, client, cfg.Search),
		hub:      NewWSHub(),
		serveUI:  true,
	}
	srv.router = srv.buildRouter()
	return srv, nil
}

// SetServeUI controls whether the embedded web UI is served.
// Must be called before ListenAndServe.
func (s *Server) SetServeUI(enabled bool) {
	s.serveUI = enabled
	s.router = s.buildRouter()
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ListenAndServe starts the HTTP server and blocks until SIGINT/SIGTERM,
// then shuts down gracefully.
func (s *Server) ListenAndServe(addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go s.hub.Run()

	// Pay for the coin list download now rather than on the first search.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := s.catalog.Warm(ctx); err != nil {
			logger.Warn("coin snapshot warm-up failed", zap.Error(err))
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("http server listening", zap.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-done
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	return httpSrv.Shutdown(ctx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(correlationID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "X-Correlation-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealthz)

	// The form endpoint keeps its original top-level path; the web UI
	// and any existing callers post here.
	r.Post("/generate", s.handleGenerate)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/resolve", s.handleResolve)
		r.Get("/search", s.handleSearch)
		r.Post("/refresh", s.handleRefresh)
	})

	r.Get("/ws/refresh", s.handleRefreshWS)

	if s.serveUI {
		s.mountSPA(r, web.DistFS())
	}

	return r
}

// mountSPA serves the embedded web UI. Unknown paths fall back to
// index.html.
func (s *Server) mountSPA(r chi.Router, distFS fs.FS) {
	fileServer := http.FileServer(http.FS(distFS))

	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		rPath := strings.TrimPrefix(r.URL.Path, "/")
		if rPath == "" {
			rPath = "index.html"
		}

		f, err := distFS.Open(rPath)
		if err != nil {
			serveIndexHTML(w, distFS)
			return
		}
		f.Close()

		if rPath == "index.html" || strings.HasSuffix(rPath, ".html") {
			w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		}
		fileServer.ServeHTTP(w, r)
	})
}

func serveIndexHTML(w http.ResponseWriter, distFS fs.FS) {
	data, err := fs.ReadFile(distFS, "index.html")
	if err != nil {
		http.Error(w, "web UI not available", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck
}

// --- Request / Response Types ---

// APIResponse is the standard JSON envelope for /api/v1 endpoints.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// GenerateRequest is the body for POST /generate. Both fields take the
// free-form comma-separated wire format the web form submits.
type GenerateRequest struct {
	TargetTickers   string `json:"target_tickers"`
	ManualOverrides string `json:"manual_overrides,omitempty"`
}

// SearchResponse is the payload for GET /api/v1/search.
type SearchResponse struct {
	Ticker  string         `json:"ticker"`
	Matches []models.Match `json:"matches"`
}

// StatusResponse is the payload for GET /api/v1/status.
type StatusResponse struct {
	Version   string           `json:"version"`
	Upstream  string           `json:"upstream"`
	Catalog   catalog.Stats    `json:"catalog"`
	Cache     infra.CacheStats `json:"cache"`
	WSClients int              `json:"ws_clients"`
}

// --- Handlers ---

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]string{
			"status":  "ok",
			"version": Version,
		},
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	upstream := "ok"
	if _, err := s.client.Ping(ctx); err != nil {
		upstream = "unreachable"
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: StatusResponse{
			Version:   Version,
			Upstream:  upstream,
			Catalog:   s.catalog.Stats(),
			Cache:     s.client.CacheStats(),
			WSClients: s.hub.ClientCount(),
		},
	})
}

// handleGenerate is the form endpoint: tickers in, resolution rows out.
// JSON responses return the bare rows array; html/csv render the same
// rows for browsers and spreadsheets.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form body")
			return
		}
		req.TargetTickers = r.FormValue("target_tickers")
		req.ManualOverrides = r.FormValue("manual_overrides")
	}

	tickers := utils.SplitTickers(req.TargetTickers)
	if len(tickers) == 0 {
		writeError(w, http.StatusBadRequest, "target_tickers is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	rows := s.resolver.Resolve(ctx, tickers, utils.ParseOverrides(req.ManualOverrides))

	switch negotiateFormat(r) {
	case formatHTML:
		renderHTMLTable(w, rows)
	case formatCSV:
		renderCSV(w, rows)
	default:
		// Bare array, not the envelope: the original wire contract.
		writeJSON(w, http.StatusOK, rows)
	}
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	tickers := utils.SplitTickers(r.URL.Query().Get("tickers"))
	if len(tickers) == 0 {
		writeError(w, http.StatusBadRequest, "tickers query parameter is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	rows := s.resolver.Resolve(ctx, tickers, utils.ParseOverrides(r.URL.Query().Get("overrides")))

	switch negotiateFormat(r) {
	case formatHTML:
		renderHTMLTable(w, rows)
	case formatCSV:
		renderCSV(w, rows)
	default:
		writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: rows})
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := utils.CleanTicker(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q query parameter is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), time.Minute)
	defer cancel()

	matches, err := s.resolver.Search(ctx, q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if matches == nil {
		matches = []models.Match{}
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    SearchResponse{Ticker: q, Matches: matches},
	})
}

// handleRefresh starts a mapping regeneration in the background. Progress
// is streamed to /ws/refresh subscribers; concurrent triggers join the
// run already in flight.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	go s.runRefresh()

	writeJSON(w, http.StatusAccepted, APIResponse{
		Success: true,
		Data:    map[string]string{"status": "refresh started"},
	})
}

func (s *Server) runRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	m, err := s.catalog.GenerateMapping(ctx, func(p catalog.Progress) {
		s.hub.Broadcast(WSMessage{Type: "refresh_progress", Data: p})
	})
	if err != nil {
		logger.Error("mapping refresh failed", zap.Error(err))
		s.hub.Broadcast(WSMessage{Type: "refresh_error", Data: map[string]string{"error": err.Error()}})
		return
	}

	if path := s.cfg.Catalog.MappingFile; path != "" {
		if err := catalog.WriteMapping(m, path); err != nil {
			logger.Warn("refreshed mapping not persisted",
				zap.String("path", path), zap.Error(err))
		}
	}

	s.hub.Broadcast(WSMessage{Type: "refresh_complete", Data: map[string]int{"tickers": m.Len()}})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("write json response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}

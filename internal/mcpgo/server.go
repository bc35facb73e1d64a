package mcpgo

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/noot-app/nutrient-engine/internal/auth"
	"github.com/noot-app/nutrient-engine/internal/engine"
	"github.com/noot-app/nutrient-engine/internal/intake"
	"github.com/noot-app/nutrient-engine/internal/recommend"
	"github.com/noot-app/nutrient-engine/internal/types"
	"github.com/noot-app/nutrient-engine/internal/version"
)

// NutrientEngine is the set of engine operations exposed as MCP tools
type NutrientEngine interface {
	RecordMealEntry(ctx context.Context, in engine.MealEntryInput) (*engine.RecordResult, error)
	RemoveMealEntry(ctx context.Context, entryID string) error
	UpdateMealEntry(ctx context.Context, entryID string, itemType types.ItemType, itemID int64, weightG float64) (*engine.RecordResult, error)
	GetDailyIntake(ctx context.Context, userID int64, day time.Time) ([]engine.IntakeRow, error)
	GetNutrientSummary(ctx context.Context, userID int64, day time.Time) (*engine.NutrientSummary, error)
	GetNutrientSources(ctx context.Context, userID int64, day time.Time) ([]engine.CategorySources, error)
	GetFoodRecommendation(ctx context.Context, userID, foodID int64) (*recommend.FoodResult, error)
	GetDishRecommendation(ctx context.Context, userID, dishID int64) (*recommend.CompositeResult, error)
	GetDrinkRecommendation(ctx context.Context, userID, drinkID int64) (*recommend.CompositeResult, error)
	RepairDailyTotals(ctx context.Context, userID int64, day time.Time) error
	CheckDailyTotals(ctx context.Context, userID int64, day time.Time) (*intake.DriftReport, error)
	Today() time.Time
	HealthCheck(ctx context.Context) error
}

// responseRecorder wraps http.ResponseWriter to capture response details
type responseRecorder struct {
	http.ResponseWriter
	statusCode    int
	bytesWritten  int
	headerWritten bool
}

func (r *responseRecorder) WriteHeader(code int) {
	if r.headerWritten {
		return
	}
	r.statusCode = code
	r.headerWritten = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if !r.headerWritten {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.ResponseWriter.Write(data)
	r.bytesWritten += n
	return n, err
}

// Server wraps the mark3labs MCP server with authentication
type Server struct {
	mcpServer *server.MCPServer
	engine    NutrientEngine
	auth      *auth.BearerTokenAuth
	log       *slog.Logger

	// health results are cached so /health cannot hammer the database
	healthMu        sync.RWMutex
	lastHealthCheck time.Time
	lastHealthError error
}

// NewServer creates a new MCP server exposing the nutrient engine tools
func NewServer(nutrientEngine NutrientEngine, authenticator *auth.BearerTokenAuth, logger *slog.Logger) *Server {
	mcpServer := server.NewMCPServer(
		"Nutrient Engine MCP Server",
		version.Tag(),
		server.WithToolCapabilities(false), // tool set is fixed
		server.WithRecovery(),
		server.WithLogging(),
	)

	s := &Server{
		mcpServer: mcpServer,
		engine:    nutrientEngine,
		auth:      authenticator,
		log:       logger,
	}

	s.addTools()

	return s
}

// checkHealthWithCache checks health with 10-second caching
func (s *Server) checkHealthWithCache(ctx context.Context) error {
	const cacheDuration = 10 * time.Second

	s.healthMu.RLock()
	if time.Since(s.lastHealthCheck) < cacheDuration {
		err := s.lastHealthError
		s.healthMu.RUnlock()
		s.log.Debug("Health check: using cached result",
			"cached_error", err != nil,
			"cache_age", time.Since(s.lastHealthCheck))
		return err
	}
	s.healthMu.RUnlock()

	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	// another goroutine may have refreshed while we waited for the write lock
	if time.Since(s.lastHealthCheck) < cacheDuration {
		s.log.Debug("Health check: using cached result after lock",
			"cached_error", s.lastHealthError != nil,
			"cache_age", time.Since(s.lastHealthCheck))
		return s.lastHealthError
	}

	s.log.Debug("Health check: performing database check")
	err := s.engine.HealthCheck(ctx)
	s.lastHealthCheck = time.Now()
	s.lastHealthError = err

	return err
}

// Handler returns the HTTP handler serving /health and the authenticated /mcp endpoint
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// no auth on health
	mux.HandleFunc("/health", s.handleHealth)

	streamableServer := server.NewStreamableHTTPServer(
		s.mcpServer,
		server.WithEndpointPath("/mcp"),
		server.WithStateLess(true),
	)

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovery := recover(); recovery != nil {
				s.log.Error("MCP endpoint panic recovered",
					"panic", recovery,
					"method", r.Method,
					"url", r.URL.String(),
					"remote_addr", r.RemoteAddr)
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Internal Server Error"))
			}
		}()

		s.log.Debug("MCP request received",
			"method", r.Method,
			"url", r.URL.String(),
			"content_type", r.Header.Get("Content-Type"),
			"content_length", r.ContentLength,
			"remote_addr", r.RemoteAddr)

		if !s.auth.IsAuthorized(r) {
			s.auth.SetUnauthorizedHeaders(w)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Unauthorized"))
			s.log.Warn("Unauthorized MCP request", "remote_addr", r.RemoteAddr, "user_agent", r.UserAgent())
			return
		}

		recorder := &responseRecorder{ResponseWriter: w}
		streamableServer.ServeHTTP(recorder, r)

		s.log.Debug("MCP response sent",
			"status_code", recorder.statusCode,
			"response_size", recorder.bytesWritten,
			"content_type", recorder.Header().Get("Content-Type"))
	})

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := s.checkHealthWithCache(r.Context()); err != nil {
		s.log.Error("Health check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "healthy",
		"version": version.Tag(),
	})
}

// ServeHTTP serves the MCP server over HTTP with authentication until ctx is cancelled
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting MCP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info("Shutting down MCP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// ServeStdio serves the MCP server over stdio (no auth required for local use)
func (s *Server) ServeStdio() error {
	s.log.Info("Starting MCP server in stdio mode")
	return server.ServeStdio(s.mcpServer)
}

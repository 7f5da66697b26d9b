// Package main is the entry point for the deskmesh-core binary.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/deskmesh/deskmesh/internal/governance"
	"github.com/deskmesh/deskmesh/pkg/agents"
	"github.com/deskmesh/deskmesh/pkg/config"
	"github.com/deskmesh/deskmesh/pkg/logging"
	"github.com/deskmesh/deskmesh/pkg/pipeline"
	"github.com/deskmesh/deskmesh/pkg/storage"
	"github.com/deskmesh/deskmesh/pkg/telemetry"
)

const defaultConfigPath = ""

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	listenAddr := flag.String("listen", "", "Address to listen on (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	prettyLogs := flag.Bool("pretty", false, "Enable pretty console logging")
	flag.Parse()

	// Bootstrap configuration. With a config file present the provider keeps
	// watching it and pushes updates through Subscribe.
	var (
		cfg      *config.Config
		provider *config.FileProvider
		err      error
	)
	if *configPath != "" {
		provider, err = config.NewFileProvider(*configPath, slog.Default())
		if err != nil {
			slog.Error("Failed to load configuration", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = provider.Current()
	} else {
		cfg, err = config.Load("")
		if err != nil {
			slog.Error("Failed to load default configuration", "error", err)
			os.Exit(1)
		}
	}

	// CLI flags override config file values.
	if *listenAddr != "" {
		cfg.Server.Address = *listenAddr
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: *prettyLogs || cfg.Logging.Pretty,
	})
	slog.SetDefault(logger)

	logger.Info("Starting deskmesh-core", "config", *configPath, "addr", cfg.Server.Address)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: "deskmesh-core",
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Environment: cfg.Telemetry.Environment,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		logger.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	store, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Error("Failed to open storage", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage", "error", err)
		}
	}()

	metrics := telemetry.NewMetrics()

	a := &app{logger: logger, metrics: metrics}
	svc, err := buildService(cfg, store, metrics, logger)
	if err != nil {
		logger.Error("Failed to build pipeline", "error", err)
		os.Exit(1)
	}
	a.svc.Store(svc)

	if provider != nil {
		defer func() {
			if err := provider.Close(); err != nil {
				logger.Error("Failed to close config provider", "error", err)
			}
		}()
		go a.watchConfig(provider, store)
	}

	server := startServer(cfg.Server.Address, a.routes(), logger)
	metricsServer := startServer(cfg.Server.MetricsAddress, metricsMux(metrics), logger)

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Metrics server shutdown error", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("Tracing shutdown error", "error", err)
	}
}

// openStore selects and seeds the persistence backend.
func openStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		s, err := storage.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		if cfg.Seed {
			if err := storage.SeedSQLite(ctx, s); err != nil {
				_ = s.Close()
				return nil, err
			}
			logger.Info("Seeded SQLite store", "path", cfg.Path)
		}
		return s, nil
	default:
		s := storage.NewMemoryStore()
		if cfg.Seed {
			storage.SeedMemory(s)
			logger.Info("Seeded in-memory store")
		}
		return s, nil
	}
}

// buildService assembles a pipeline from the current configuration.
func buildService(cfg *config.Config, store storage.Store, metrics *telemetry.Metrics, logger *slog.Logger) (*pipeline.Service, error) {
	return pipeline.New(pipeline.Options{
		Logger:        logger,
		Metrics:       metrics,
		Directory:     store,
		KnowledgeBase: store,
		Feedback:      store,
		Notifier:      agents.NewLogNotifier(logger),
		RateLimiter:   cfg.RateLimit.LimiterConfig(),
		Input:         cfg.Safety.InputConfig(),
		Output:        cfg.Safety.OutputConfig(),
		Escalation:    cfg.Workflow.EscalationConfig(),
		SendTimeout:   cfg.Workflow.SendTimeout(),
	})
}

// app holds the running pipeline behind an atomic pointer so configuration
// reloads can swap in a rebuilt service without dropping in-flight requests.
type app struct {
	logger  *slog.Logger
	metrics *telemetry.Metrics
	svc     atomic.Pointer[pipeline.Service]
}

func (a *app) watchConfig(provider *config.FileProvider, store storage.Store) {
	updates := provider.Subscribe()
	// The first value is the configuration already in effect.
	<-updates
	for cfg := range updates {
		svc, err := buildService(cfg, store, a.metrics, a.logger)
		if err != nil {
			a.logger.Error("Failed to apply configuration update", "error", err)
			continue
		}
		a.svc.Store(svc)
		a.logger.Info("Pipeline rebuilt from configuration update")
	}
}

// queryRequest is the POST /query payload.
type queryRequest struct {
	Query     string `json:"query"`
	UserName  string `json:"user_name"`
	SessionID string `json:"session_id,omitempty"`
	TicketID  string `json:"ticket_id,omitempty"`
}

type errorResponse struct {
	Error      string   `json:"error"`
	Issues     []string `json:"issues,omitempty"`
	RiskScore  float64  `json:"risk_score,omitempty"`
	RetryAfter float64  `json:"retry_after_seconds,omitempty"`
}

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /query", a.handleQuery)
	mux.HandleFunc("GET /health", a.handleHealth)
	return otelhttp.NewHandler(mux, "deskmesh.core")
}

func (a *app) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	resp, err := a.svc.Load().Handle(r.Context(), pipeline.Request{
		Text:      req.Query,
		UserRef:   req.UserName,
		SessionID: req.SessionID,
		TicketID:  req.TicketID,
	})
	if err != nil {
		a.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *app) writeError(w http.ResponseWriter, err error) {
	var rle *governance.RateLimitError
	if errors.As(err, &rle) {
		seconds := rle.RetryAfter.Seconds()
		w.Header().Set("Retry-After", strconv.Itoa(int(seconds)+1))
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Error:      "rate limit exceeded",
			RetryAfter: seconds,
		})
		return
	}

	var ve *pipeline.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:     "input validation failed",
			Issues:    ve.Issues,
			RiskScore: ve.RiskScore,
		})
		return
	}

	a.logger.Error("Query processing failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func (a *app) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"agents": a.svc.Load().Bus().Agents(),
	})
}

func metricsMux(metrics *telemetry.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func startServer(addr string, handler http.Handler, logger *slog.Logger) *http.Server {
	server := &http.Server{
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("Failed to bind listener", "addr", addr, "error", err)
		os.Exit(1)
	}

	// Log the actual resolved address (useful when addr is :0)
	logger.Info("Server listening", "addr", listener.Addr().String())

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	return server
}

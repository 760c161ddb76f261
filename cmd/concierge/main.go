// Command concierge is the tool-invocation broker server. It routes
// model-issued tool calls from the chat backend to remote MCP integrations
// and serves health and metrics endpoints.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/conciergehq/concierge/internal/broker"
	"github.com/conciergehq/concierge/internal/config"
	"github.com/conciergehq/concierge/internal/credential"
	"github.com/conciergehq/concierge/internal/health"
	"github.com/conciergehq/concierge/internal/history"
	"github.com/conciergehq/concierge/internal/integration"
	"github.com/conciergehq/concierge/internal/mailquery"
	"github.com/conciergehq/concierge/internal/normalize"
	"github.com/conciergehq/concierge/internal/observe"
	"github.com/conciergehq/concierge/internal/tooldecl"
)

// registryRefreshInterval is how often the integration catalogue is
// re-fetched from the remote registry.
const registryRefreshInterval = time.Hour

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "concierge: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "concierge: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("concierge starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "concierge",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Storage ───────────────────────────────────────────────────────────────
	var (
		pool     *pgxpool.Pool
		resolver *credential.Resolver
		recorder *history.Recorder
	)
	if cfg.Storage.PostgresDSN != "" {
		pool, err = pgxpool.New(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			slog.Error("failed to create postgres pool", "err", err)
			return 1
		}
		defer pool.Close()

		credStore := credential.NewPostgresStore(pool)
		if err := credStore.Migrate(ctx); err != nil {
			slog.Error("credential store migration failed", "err", err)
			return 1
		}
		resolver = credential.NewResolver(credential.WithMetrics(credStore, metrics))

		histStore := history.NewPostgresStore(pool)
		if err := histStore.Migrate(ctx); err != nil {
			slog.Error("history store migration failed", "err", err)
			return 1
		}
		recorder = history.NewRecorder(histStore)

		slog.Info("postgres connected")
	} else {
		slog.Warn("storage.postgres_dsn not set; OAuth integrations are unavailable and history is not recorded")
	}

	// ── Integration catalogue ─────────────────────────────────────────────────
	registry := integration.NewRegistry(cfg.Gateway.RegistryURL, integration.Builtin())
	if err := registry.Refresh(ctx); err != nil {
		slog.Error("catalogue refresh interrupted", "err", err)
		return 1
	}
	go refreshLoop(ctx, registry, metrics)

	// ── Broker ────────────────────────────────────────────────────────────────
	zone, err := time.LoadLocation(cfg.Broker.DefaultTimezone)
	if err != nil {
		slog.Error("invalid default timezone", "zone", cfg.Broker.DefaultTimezone, "err", err)
		return 1
	}

	brokerMetrics, err := broker.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create broker metrics", "err", err)
		return 1
	}

	executor := broker.NewExecutor(broker.ExecutorConfig{
		Sessions:      broker.NewSessionManager(cfg.Gateway.BaseURL, cfg.Gateway.APIKey, broker.NewMCPDialer()),
		Credentials:   resolver,
		Normalizer:    normalize.New(zone),
		History:       recorder,
		Metrics:       brokerMetrics,
		Retries:       cfg.Broker.Retries,
		Timeout:       cfg.Broker.Timeout,
		BackoffBase:   cfg.Broker.BackoffBase,
		CacheCapacity: cfg.Broker.CacheCapacity,
		CacheTTL:      cfg.Broker.CacheTTL,
	})
	if err := registerRoutes(executor, registry, cfg); err != nil {
		slog.Error("failed to register tool routes", "err", err)
		return 1
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	checkers := []health.Checker{
		{Name: "catalogue", Check: func(context.Context) error {
			if len(registry.Descriptors()) == 0 {
				return errors.New("integration catalogue is empty")
			}
			return nil
		}},
	}
	if pool != nil {
		checkers = append(checkers, health.Checker{Name: "database", Check: pool.Ping})
	}

	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/tools", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		decls := tooldecl.Declarations(registry.Descriptors())
		if err := json.NewEncoder(w).Encode(decls); err != nil {
			observe.Logger(r.Context()).Warn("failed to encode tool declarations", "err", err)
		}
	})
	mux.HandleFunc("POST /v1/invoke", invokeHandler(executor))

	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", cfg.Server.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		slog.Error("http server error", "err", err)
		return 1
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// refreshLoop periodically re-fetches the integration catalogue until ctx is
// cancelled. Failed refreshes keep the current catalogue.
func refreshLoop(ctx context.Context, registry *integration.Registry, metrics *observe.Metrics) {
	ticker := time.NewTicker(registryRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := registry.Refresh(ctx)
			metrics.RecordRegistryRefresh(ctx, err)
		}
	}
}

// invokeRequest is the body of POST /v1/invoke.
type invokeRequest struct {
	CallerID string         `json:"caller_id"`
	Tool     string         `json:"tool"`
	Args     map[string]any `json:"args"`
}

// invokeHandler serves tool invocations for the chat runtime. Successful
// calls return the normalized display text; failures map the broker's error
// taxonomy onto HTTP statuses.
func invokeHandler(e *broker.Executor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req invokeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeInvokeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.CallerID == "" || req.Tool == "" {
			writeInvokeError(w, http.StatusBadRequest, "caller_id and tool are required")
			return
		}

		text, err := e.Execute(r.Context(), req.Tool, req.Args, req.CallerID, e.DefaultOptions())
		if err != nil {
			observe.Logger(r.Context()).Warn("invocation failed",
				"tool", req.Tool, "caller_id", req.CallerID, "err", err)
			switch {
			case errors.Is(err, broker.ErrUnknownTool):
				writeInvokeError(w, http.StatusNotFound, err.Error())
			case errors.Is(err, credential.ErrNotConnected):
				writeInvokeError(w, http.StatusForbidden, err.Error())
			case errors.Is(err, broker.ErrConfigurationMissing):
				writeInvokeError(w, http.StatusServiceUnavailable, err.Error())
			default:
				writeInvokeError(w, http.StatusBadGateway, err.Error())
			}
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": text})
	}
}

func writeInvokeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// registerRoutes binds every tool in the catalogue to its executor route.
// Integrations with absent deployment-wide configuration get a nil Config so
// their tools fail with a configuration error instead of a remote one.
func registerRoutes(e *broker.Executor, registry *integration.Registry, cfg *config.Config) error {
	for _, desc := range registry.Descriptors() {
		connCfg := connectionConfig(desc.ID, cfg)
		for _, tool := range desc.Tools {
			route := broker.Route{
				IntegrationID: desc.ID,
				Path:          desc.Path,
				RequiresAuth:  desc.Auth == integration.AuthOAuth,
				Cacheable:     cacheableTool(tool),
				Mutating:      !tool.ReadOnly,
				RecordHistory: tool.Name == "web_search_exa" || tool.Name == "search_emails",
				TransformArgs: argTransform(tool.Name),
				Config:        connCfg,
			}
			if err := e.RegisterRoute(tool.Name, route); err != nil {
				return err
			}
			slog.Debug("registered tool route",
				"tool", tool.Name, "integration", desc.ID, "cacheable", route.Cacheable)
		}
	}
	return nil
}

// cacheableTool restricts the result cache to listing and search tools.
// Status checks are read-only but must reflect the present connection state,
// so a caller who just reconnected is never shown a stale answer.
func cacheableTool(tool integration.ToolInfo) bool {
	return tool.ReadOnly && tool.Name != "check_connection_status"
}

// argTransform returns the argument rewrite applied before dispatch, or nil.
// Mailbox searches arrive as structured filters and leave as a single Gmail
// operator query.
func argTransform(toolName string) func(map[string]any) map[string]any {
	if toolName == "search_emails" {
		return mailquery.RewriteArgs
	}
	return nil
}

// connectionConfig builds the per-integration connection config factory from
// deployment-wide settings. Returns nil when the integration's settings are
// absent.
func connectionConfig(integrationID string, cfg *config.Config) func(secret string) broker.ConnectionConfig {
	switch integrationID {
	case "exa":
		key := cfg.Integrations.Search.APIKey
		if key == "" {
			return nil
		}
		return func(string) broker.ConnectionConfig {
			return broker.ConnectionConfig{"exaApiKey": key}
		}
	case "gmail":
		return oauthConnectionConfig(cfg.Integrations.Gmail)
	case "google-calendar":
		return oauthConnectionConfig(cfg.Integrations.Calendar)
	default:
		// Catalogue entries without local settings get an empty config; the
		// gateway rejects them if more is required.
		return func(string) broker.ConnectionConfig {
			return broker.ConnectionConfig{}
		}
	}
}

func oauthConnectionConfig(client config.OAuthClient) func(secret string) broker.ConnectionConfig {
	if client.ClientID == "" || client.ClientSecret == "" {
		return nil
	}
	return func(secret string) broker.ConnectionConfig {
		return broker.ConnectionConfig{
			"clientId":     client.ClientID,
			"clientSecret": client.ClientSecret,
			"refreshToken": secret,
		}
	}
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

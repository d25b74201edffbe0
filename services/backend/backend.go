// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package backend assembles the conversational-analytics API service.
//
// This package contains the Service type that wires every component of
// the backend together: the SQLite application store, the Snowflake
// warehouse client, the badger result cache, the LLM analyst, the
// query pipeline, threshold alerting, and the observability stack
// (OpenTelemetry tracing plus Prometheus metrics).
//
// # Lightweight Mode
//
// The warehouse is optional. When SNOWFLAKE_ACCOUNT is unset the
// service starts without a warehouse client; analytics endpoints
// answer 503 while /health, auth, and saved-query management keep
// working. The same applies to the LLM backend, SMTP, Slack, and
// InfluxDB: each is wired only when its configuration is present.
//
// # Enterprise Integration
//
// Service construction accepts extensions.ServiceOptions so custom
// AuthProvider / AuthzProvider / AuditLogger implementations can be
// injected. When opts is nil the service wires its own JWT provider
// backed by the store.
//
// # Usage
//
//	cfg := backend.ConfigFromEnv()
//	svc, err := backend.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/eulerianKnight/conversational-analytics/pkg/extensions"
	"github.com/eulerianKnight/conversational-analytics/services/backend/alerts"
	"github.com/eulerianKnight/conversational-analytics/services/backend/auth"
	"github.com/eulerianKnight/conversational-analytics/services/backend/cache"
	"github.com/eulerianKnight/conversational-analytics/services/backend/observability"
	"github.com/eulerianKnight/conversational-analytics/services/backend/routes"
	"github.com/eulerianKnight/conversational-analytics/services/backend/services"
	"github.com/eulerianKnight/conversational-analytics/services/backend/store"
	"github.com/eulerianKnight/conversational-analytics/services/backend/warehouse"
	"github.com/eulerianKnight/conversational-analytics/services/llm"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service is the lifecycle contract of the analytics backend.
//
// Run blocks until the HTTP server stops; it must be called at most
// once per instance. Router exposes the configured gin engine for
// integration tests that drive requests without a listener.
type Service interface {
	// Run starts the HTTP server on the configured port and blocks
	// until SIGINT/SIGTERM or error. In-flight requests are drained
	// on shutdown; background workers (alert scheduler, cache
	// janitor) are stopped when Run returns.
	Run() error

	// Router returns the underlying gin engine for testing. Callers
	// must not register additional routes.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds backend configuration options.
//
// All fields are optional; New applies defaults for zero values and
// ConfigFromEnv populates the set from the process environment.
type Config struct {
	// Port is the HTTP server port. Default: 8000 (BACKEND_PORT).
	Port int

	// LLMBackend selects the completion provider.
	// Valid values: "claude", "anthropic", "openai", "ollama".
	// Default: "claude" (LLM_BACKEND_TYPE).
	LLMBackend string

	// AppDBPath is the SQLite application store path.
	// Default: "./data/convana.db" (APP_DB_PATH).
	AppDBPath string

	// OTelEndpoint is the OpenTelemetry collector endpoint. When empty
	// tracing stays on the default no-op provider.
	OTelEndpoint string

	// OTelStdout exports spans to stdout when no collector endpoint is
	// set (OTEL_DEBUG_STDOUT). For local debugging only.
	OTelStdout bool

	// CORSOrigin is the allowed browser origin for the dashboard.
	// Default: "http://localhost:8501" (CORS_ALLOW_ORIGIN).
	CORSOrigin string

	// GinMode sets the gin framework mode ("debug", "release", "test").
	// Default: gin's own GIN_MODE handling.
	GinMode string

	// AlertsEnabled starts the background alert scheduler when a
	// warehouse is configured. Default: true.
	AlertsEnabled bool

	// Logger receives service logs. Default: slog.Default().
	Logger *slog.Logger
}

// ConfigFromEnv builds a Config from environment variables.
func ConfigFromEnv() Config {
	port := 8000
	if v := os.Getenv("BACKEND_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			port = n
		}
	}
	return Config{
		Port:          port,
		LLMBackend:    os.Getenv("LLM_BACKEND_TYPE"),
		AppDBPath:     os.Getenv("APP_DB_PATH"),
		OTelEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTelStdout:    os.Getenv("OTEL_DEBUG_STDOUT") == "true",
		CORSOrigin:    os.Getenv("CORS_ALLOW_ORIGIN"),
		GinMode:       os.Getenv("GIN_MODE"),
		AlertsEnabled: os.Getenv("ALERTS_ENABLED") != "false",
	}
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "claude"
	}
	if cfg.AppDBPath == "" {
		cfg.AppDBPath = "./data/convana.db"
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "http://localhost:8501"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// All fields are read-only after New returns; background workers own
// their internal state.
type service struct {
	config Config
	opts   extensions.ServiceOptions
	logger *slog.Logger

	router     *gin.Engine
	store      *store.Store
	wh         *warehouse.Client
	queryCache *cache.Store
	llmClient  llm.LLMClient
	pipeline   *services.Pipeline
	authSvc    *auth.Service
	evaluator  *alerts.Evaluator
	hub        *alerts.Hub
	recorder   *alerts.Recorder
	metrics    *observability.QueryMetrics

	tracerCleanup func(context.Context)
}

// New creates the backend service with the given configuration.
//
// Initialization order matters: tracing and metrics first so every
// later component can record to them, then storage, then the optional
// warehouse and LLM clients, then the pipeline and alerting built on
// top, and the router last. If opts is nil the service's own JWT auth
// provider and role authorizer are used.
//
// New fails when the store cannot be opened, the auth secret is
// missing, or a configured dependency is misconfigured. Optional
// dependencies that are simply absent (warehouse, InfluxDB, SMTP) do
// not fail construction.
func New(cfg Config, opts *extensions.ServiceOptions) (Service, error) {
	cfg = applyConfigDefaults(cfg)
	s := &service{config: cfg, logger: cfg.Logger}

	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	s.metrics = observability.InitMetrics()
	if err := initMeterBridge(); err != nil {
		// Metrics bridge failure is not fatal; promauto vectors still work.
		s.logger.Warn("OTel metric bridge unavailable", "error", err)
	}

	s.store, err = store.Open(cfg.AppDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open application store: %w", err)
	}

	if err := s.initWarehouse(); err != nil {
		s.cleanup()
		return nil, err
	}
	if err := s.initCache(); err != nil {
		s.cleanup()
		return nil, err
	}
	if err := s.initLLMClient(); err != nil {
		s.cleanup()
		return nil, err
	}
	if err := s.initAuth(opts); err != nil {
		s.cleanup()
		return nil, err
	}
	if err := s.initPipeline(); err != nil {
		s.cleanup()
		return nil, err
	}
	s.initAlerts()
	s.initRouter()

	return s, nil
}

// shutdownTimeout bounds how long in-flight requests get to finish
// after a termination signal.
const shutdownTimeout = 10 * time.Second

// Run starts the HTTP server and blocks until SIGINT/SIGTERM or a
// listener error. The alert scheduler runs for the lifetime of the
// server; cleanup closes every store and flushes the tracer on return.
func (s *service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.runContext(ctx)
}

// runContext serves until ctx is cancelled, then drains in-flight
// requests for up to shutdownTimeout.
func (s *service) runContext(ctx context.Context) error {
	defer s.cleanup()

	if s.evaluator != nil && s.config.AlertsEnabled {
		s.evaluator.Start()
		defer s.evaluator.Stop()
	}

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.logger.Info("Starting analytics backend",
		"port", s.config.Port,
		"llm_backend", s.config.LLMBackend,
		"warehouse_configured", s.wh != nil,
	)

	srv := &http.Server{Addr: addr, Handler: s.router}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Shutting down analytics backend")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Router returns the configured gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// initTracer sets up the trace exporter. With a collector endpoint
// spans go out over OTLP/gRPC; with OTelStdout they print to stdout;
// with neither the global no-op provider stays in place and span
// creation costs nothing.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	var traceExporter sdktrace.SpanExporter
	switch {
	case s.config.OTelEndpoint != "":
		conn, err := grpc.NewClient(s.config.OTelEndpoint,
			grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
		}
		traceExporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
	case s.config.OTelStdout:
		var err error
		traceExporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}
	default:
		s.logger.Info("OTel endpoint not configured, tracing disabled")
		return func(context.Context) {}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("convana-backend")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}
	return cleanup, nil
}

// initMeterBridge routes OTel instruments into the default Prometheus
// registry so instrumented dependencies surface on /metrics alongside
// the promauto vectors.
func initMeterBridge() error {
	exporter, err := otelprom.New()
	if err != nil {
		return err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	return nil
}

// initWarehouse opens the Snowflake client when an account is
// configured. An unset account selects lightweight mode.
func (s *service) initWarehouse() error {
	whCfg := warehouse.ConfigFromEnv()
	if whCfg.Account == "" {
		s.logger.Info("SNOWFLAKE_ACCOUNT not set, running in lightweight mode")
		return nil
	}
	wh, err := warehouse.Open(whCfg)
	if err != nil {
		return fmt.Errorf("failed to open warehouse client: %w", err)
	}
	s.wh = wh
	s.logger.Info("Warehouse client initialized", "account", whCfg.Account, "database", whCfg.Database)
	return nil
}

// initCache opens the badger result cache. Cache failure is fatal:
// an explicitly configured cache path that cannot be opened is a
// deployment error, not a degradation.
func (s *service) initCache() error {
	qc, err := cache.Open(cache.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("failed to open query cache: %w", err)
	}
	s.queryCache = qc
	return nil
}

// initLLMClient creates the completion client for the configured
// backend. A missing API key leaves the pipeline unavailable but the
// rest of the API up.
func (s *service) initLLMClient() error {
	os.Setenv("LLM_BACKEND_TYPE", s.config.LLMBackend)
	client, err := llm.NewFromEnv()
	if err != nil {
		s.logger.Warn("LLM client unavailable, analytics queries disabled", "error", err)
		return nil
	}
	s.llmClient = client
	return nil
}

// initAuth builds the JWT auth service and wires the extension
// providers. Injected options win over the built-in implementations.
func (s *service) initAuth(opts *extensions.ServiceOptions) error {
	authSvc, err := auth.NewService(s.store, auth.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("failed to initialize auth: %w", err)
	}
	s.authSvc = authSvc

	s.opts = extensions.DefaultOptions().
		WithAuth(authSvc).
		WithAuthz(&auth.RoleAuthorizer{}).
		WithAudit(store.NewAuditStore(s.store))
	if opts != nil {
		if opts.AuthProvider != nil {
			s.opts = s.opts.WithAuth(opts.AuthProvider)
		}
		if opts.AuthzProvider != nil {
			s.opts = s.opts.WithAuthz(opts.AuthzProvider)
		}
		if opts.AuditLogger != nil {
			s.opts = s.opts.WithAudit(opts.AuditLogger)
		}
	}
	return nil
}

// initPipeline assembles the natural-language query pipeline. Without
// an LLM client the pipeline stays nil and the query endpoint answers
// 503 through the handler's nil check.
func (s *service) initPipeline() error {
	if s.llmClient == nil {
		return nil
	}
	pipeCfg := services.Config{
		LLM:     s.llmClient,
		Cache:   s.queryCache,
		Store:   s.store,
		Metrics: s.metrics,
		Logger:  s.logger,
	}
	if s.wh != nil {
		pipeCfg.Warehouse = s.wh
	}
	pipe, err := services.NewPipeline(pipeCfg)
	if err != nil {
		return fmt.Errorf("failed to build query pipeline: %w", err)
	}
	s.pipeline = pipe
	return nil
}

// initAlerts wires the evaluator with every notification channel that
// is configured. Without a warehouse there is nothing to evaluate and
// only the websocket hub is created, so clients can still connect.
func (s *service) initAlerts() {
	s.hub = alerts.NewHub(s.metrics, s.logger)
	s.recorder = alerts.OpenRecorder(alerts.RecorderConfigFromEnv(), s.logger)

	if s.wh == nil {
		return
	}
	ev, err := alerts.NewEvaluator(alerts.Config{
		Store:    s.store,
		Runner:   s.wh,
		Notifier: alerts.NewNotifier(alerts.NotifierConfigFromEnv(), s.logger),
		Hub:      s.hub,
		Recorder: s.recorder,
		Metrics:  s.metrics,
		Interval: alerts.CheckIntervalFromEnv(),
		Logger:   s.logger,
	})
	if err != nil {
		s.logger.Warn("Alert evaluator unavailable", "error", err)
		return
	}
	s.evaluator = ev
}

// initRouter builds the gin engine and registers every route.
func (s *service) initRouter() {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("convana-backend"))

	routes.SetupRoutes(router, routes.Deps{
		Store:      s.store,
		Warehouse:  s.wh,
		Cache:      s.queryCache,
		Pipeline:   s.pipeline,
		Auth:       s.authSvc,
		Evaluator:  s.evaluator,
		Hub:        s.hub,
		Metrics:    s.metrics,
		Options:    s.opts,
		LLMBackend: s.config.LLMBackend,
		CORSOrigin: s.config.CORSOrigin,
		Logger:     s.logger,
	})
	s.router = router
}

// cleanup releases every resource the service owns. Safe to call with
// partially initialized state.
func (s *service) cleanup() {
	if s.hub != nil {
		s.hub.Close()
	}
	if s.recorder != nil {
		s.recorder.Close()
	}
	if s.queryCache != nil {
		if err := s.queryCache.Close(); err != nil {
			s.logger.Warn("failed to close query cache", "error", err)
		}
	}
	if s.wh != nil {
		if err := s.wh.Close(); err != nil {
			s.logger.Warn("failed to close warehouse client", "error", err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("failed to close application store", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// Package app wires configuration, storage, services and transport into a
// runnable application.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"tremor/internal/causal"
	"tremor/internal/config"
	"tremor/internal/exporter"
	"tremor/internal/infrastructure"
	"tremor/internal/marketdata"
	customMiddleware "tremor/internal/middleware"
	"tremor/internal/propagation"
	"tremor/internal/services"
	"tremor/internal/signals"
	"tremor/internal/storage"
	transportHTTP "tremor/internal/transport/http"
	"tremor/internal/websocket"
	"tremor/pkg/contracts"
)

// Application holds every long-lived component of the service.
type Application struct {
	Config  *config.Config
	Logger  *slog.Logger
	Server  *http.Server
	Hub     *websocket.Hub
	OTel    *infrastructure.OTelProviders
	Metrics *infrastructure.Metrics

	repo     *storage.Repository
	network  *causal.Network
	provider marketdata.Provider
	exporter *exporter.StudyExporter

	events      *services.EventService
	transforms  *services.TransformService
	signals     *services.SignalService
	studies     *services.StudyService
	propagation *services.PropagationService
}

// NewApplication builds the full dependency graph from configuration.
func NewApplication(cfg *config.Config) (*Application, error) {
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	otelProviders, err := infrastructure.InitializeOTel(logger)
	if err != nil {
		return nil, fmt.Errorf("initialize otel: %w", err)
	}
	metrics, err := infrastructure.NewMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("create metrics: %w", err)
	}

	db, err := storage.Open(cfg.Paths.DatabaseFile)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	repo := storage.NewRepository(db)

	network, err := causal.LoadNetworkCSV(cfg.Paths.NetworkCSV)
	if err != nil {
		return nil, fmt.Errorf("load causal network: %w", err)
	}
	logger.Info("causal network loaded",
		slog.Int("nodes", len(network.Nodes())),
		slog.Int("edges", network.NumEdges()))

	baselines := propagation.EmptyBaselines()
	if cfg.Paths.BaselinesFile != "" {
		baselines, err = propagation.LoadBaselines(cfg.Paths.BaselinesFile)
		if err != nil {
			return nil, fmt.Errorf("load baselines: %w", err)
		}
	}

	var provider marketdata.Provider
	provider, err = marketdata.LoadCSVDir(cfg.Paths.MarketDataDir)
	if err != nil {
		// Studies and monitor checks fail per-request until series files
		// appear; signal ingestion does not need market data.
		logger.Warn("market data unavailable, starting with empty provider",
			slog.String("dir", cfg.Paths.MarketDataDir),
			slog.String("error", err.Error()))
		provider = marketdata.NewStaticProvider()
	}

	hub := websocket.NewHub(logger)
	monitor := propagation.NewMonitor(network, baselines, provider, logger)
	factory := signals.NewFactory(logger).WithAbsoluteThreshold(cfg.Signals.AbsoluteShockThreshold)

	signalSvc := services.NewSignalService(repo, factory, monitor, hub, metrics, logger)
	studyExporter := exporter.NewStudyExporter(cfg.Paths.ExportsDir)
	app := &Application{
		Config:     cfg,
		Logger:     logger,
		Hub:        hub,
		OTel:       otelProviders,
		Metrics:    metrics,
		repo:       repo,
		network:    network,
		provider:   provider,
		exporter:   studyExporter,
		events:     services.NewEventService(repo, signalSvc, logger),
		transforms: services.NewTransformService(repo, logger),
		signals:    signalSvc,
		studies: services.NewStudyService(repo, causal.NewRunner(provider, logger),
			network, cfg.Study, hub, metrics, studyExporter, logger),
		propagation: services.NewPropagationService(repo, monitor, hub, metrics, logger),
	}

	app.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        app.buildRouter(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}
	return app, nil
}

func (a *Application) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(customMiddleware.Recoverer(a.Logger))
	r.Use(customMiddleware.SecurityHeaders)
	r.Use(customMiddleware.Compress(5))
	if a.Config.Security.EnableCORS {
		r.Use(customMiddleware.CORS(customMiddleware.CORSConfig{
			AllowedOrigins: a.Config.Security.AllowedOrigins,
		}))
	}
	if a.Config.Security.RateLimit.Enabled {
		r.Use(customMiddleware.NewRateLimiter(
			a.Config.Security.RateLimit.RPS,
			a.Config.Security.RateLimit.Burst,
			a.Logger,
		).Handler)
	}

	healthHandler := transportHTTP.NewHealthHandler(a.repo, a.network, a.Logger)
	r.Get("/healthz", healthHandler.Health)
	r.Handle("/metrics", a.OTel.PrometheusHTTP)
	r.Get("/ws", websocket.Handler(a.Hub, a.Config.WebSocket, a.Config.Security.AllowedOrigins, a.Logger))

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Mount("/events", transportHTTP.NewEventHandler(a.events, a.Logger).Routes())
		r.Mount("/transforms", transportHTTP.NewTransformHandler(a.transforms, a.Logger).Routes())
		r.Mount("/signals", transportHTTP.NewSignalHandler(a.signals, a.Logger).Routes())
		r.Mount("/network", transportHTTP.NewNetworkHandler(a.network, a.Logger).Routes())
		r.Mount("/monitor", transportHTTP.NewMonitorHandler(a.signals, a.propagation, a.transforms, a.network, a.Logger).Routes())

		r.Route("/causal-tests", func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.StudyTimeout, a.Logger))
			r.Mount("/", transportHTTP.NewCausalHandler(a.studies, a.transforms, a.exporter, a.Logger).Routes())
		})
	})

	return r
}

// Start runs the HTTP server and the websocket hub until the server stops.
func (a *Application) Start() error {
	a.Hub.Start()
	a.Logger.Info("server starting",
		slog.String("addr", a.Server.Addr),
		slog.String("version", contracts.Version))

	if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop shuts the application down gracefully: HTTP first so no new work
// arrives, then the hub and the metric pipeline.
func (a *Application) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	a.Hub.Stop()
	if err := a.OTel.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("otel shutdown: %w", err))
	}
	if err := infrastructure.CloseLogFile(); err != nil {
		errs = append(errs, fmt.Errorf("close log file: %w", err))
	}
	a.Logger.Info("application stopped")
	return errors.Join(errs...)
}

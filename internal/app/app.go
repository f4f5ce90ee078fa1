package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"chanalysis/internal/config"
	apierrors "chanalysis/internal/errors"
	"chanalysis/internal/exporter"
	"chanalysis/internal/infrastructure"
	customMiddleware "chanalysis/internal/middleware"
	"chanalysis/internal/notify"
	"chanalysis/internal/scheduler"
	"chanalysis/internal/services"
	handlers "chanalysis/internal/transport/http"
	"chanalysis/internal/validation"
	ws "chanalysis/internal/websocket"
)

const AppName = "Chananalysis - Foreign Flow Scanner"

// Set at build time with -ldflags "-X chanalysis/internal/app.Version=..."
var (
	Version   = "dev"
	Commit    = ""
	BuildTime = ""
)

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.PipelineMetrics

	Reports      *services.ReportService
	Health       *services.HealthService
	WebSocketHub *ws.Hub
	Scheduler    *scheduler.Scheduler
	Notifier     notify.Notifier
	Poller       *notify.CommandPoller

	errorHandler *apierrors.ErrorHandler
	sources      *dataSources
	cancelBg     context.CancelFunc
}

// NewApplication loads configuration and builds the application
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	return New(cfg, logger, otelProviders)
}

// New wires an application from explicit configuration
func New(cfg *config.Config, logger *slog.Logger, otelProviders *infrastructure.OTelProviders) (*Application, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if otelProviders == nil {
		return nil, apierrors.NewConfigError("OpenTelemetry providers are required", nil)
	}

	logger.Info("Application starting",
		slog.String("name", AppName),
		slog.String("version", Version))

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
		errorHandler:  apierrors.NewErrorHandler(logger, cfg.Logging.Development),
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices initializes all application services
func (a *Application) initializeServices() error {
	metrics, err := infrastructure.NewPipelineMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create pipeline metrics: %w", err)
	}
	a.Metrics = metrics

	policy, err := config.LoadPolicy(a.Config.Analysis.PolicyFile)
	if err != nil {
		return apierrors.NewConfigError("failed to load scoring policy", err)
	}

	sources, err := buildSources(a.Config.Sources, metrics, a.Logger)
	if err != nil {
		return err
	}
	a.sources = sources
	a.Logger.Info("Data sources configured", slog.Any("sources", sources.names))

	hub, err := ws.NewHub(a.Logger, a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create websocket hub: %w", err)
	}
	a.WebSocketHub = hub

	deps := services.ReportDeps{
		Source:      sources.source,
		Lister:      sources.lister,
		Collector:   sources.collector,
		Broadcaster: hub,
		Metrics:     metrics,
		Tracer:      a.OTelProviders.Tracer,
		Logger:      a.Logger,
	}
	if a.Config.Export.Dir != "" {
		if err := validation.NewFileValidator(a.Logger).ValidateOutputDirectory(a.Config.Export.Dir); err != nil {
			return apierrors.NewConfigError("invalid export.dir", err)
		}
		deps.Exporter = exporter.NewReportExporter(a.Config.Export.Dir, a.Config.Export.Format, a.Logger)
	}

	reports, err := services.NewReportService(services.ReportConfig{
		Flow:         a.Config.FlowConfig(policy),
		UniverseSize: a.Config.Analysis.UniverseSize,
		Symbols:      a.Config.Analysis.Symbols,
		Concurrency:  a.Config.Analysis.Concurrency,
	}, deps)
	if err != nil {
		return fmt.Errorf("failed to create report service: %w", err)
	}
	a.Reports = reports

	hub.SetSnapshot(func() (interface{}, bool) {
		latest, err := reports.Latest()
		if err != nil {
			return nil, false
		}
		return latest.Summary(), true
	})

	a.Notifier = a.buildNotifier()

	// a nil *Scheduler must not reach the health service as a non-nil interface
	var schedule services.ScheduleState
	if a.Config.Schedule.Enabled {
		s := scheduler.New(
			scheduler.ReportJob(reports, a.Notifier, a.Config.Telegram.WatchlistSize, metrics, a.Logger),
			a.Config.Server.RunTimeout,
			a.Logger,
		)
		for name, clock := range map[string]string{
			"morning": a.Config.Schedule.Morning,
			"evening": a.Config.Schedule.Evening,
		} {
			if clock == "" {
				continue
			}
			if err := s.AddDaily(name, clock); err != nil {
				return apierrors.NewConfigError("invalid schedule", err)
			}
		}
		a.Scheduler = s
		schedule = s
	}

	a.Health = services.NewHealthService(
		services.BuildInfo{Version: Version, Commit: Commit, BuildTime: BuildTime},
		reports,
		schedule,
		hub,
		a.Logger,
	)

	return nil
}

// buildNotifier delivers to Telegram when configured, otherwise to stdout
func (a *Application) buildNotifier() notify.Notifier {
	tg := a.Config.Telegram
	if !tg.Enabled() {
		a.Logger.Warn("Telegram not configured, reports are written to stdout")
		return notify.NewWriterNotifier("stdout", os.Stdout)
	}

	bot := notify.NewTelegramNotifier(notify.TelegramConfig{
		APIBase:  tg.APIBase,
		BotToken: tg.BotToken,
		ChatID:   tg.ChatID,
	}, a.Logger)

	if tg.Commands {
		a.Poller = notify.NewCommandPoller(bot,
			notify.Greeting(a.Config.Schedule.Morning, a.Config.Schedule.Evening),
			a.Logger)
	}

	if a.Config.Logging.Development {
		return notify.Multi{bot, notify.NewWriterNotifier("stdout", os.Stdout)}
	}
	return bot
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// Minimal middleware only: the websocket route must get an unwrapped ResponseWriter
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	r.HandleFunc("/ws", a.WebSocketHub.Handler(ws.Options{
		ReadBufferSize:  a.Config.WebSocket.ReadBufferSize,
		WriteBufferSize: a.Config.WebSocket.WriteBufferSize,
		PingPeriod:      a.Config.WebSocket.PingPeriod,
		PongWait:        a.Config.WebSocket.PongWait,
		AllowedOrigins:  a.Config.Security.AllowedOrigins,
	}))

	r.Group(func(r chi.Router) {
		// RequestID → RealIP → OTel → Logger → Recoverer
		r.Use(customMiddleware.NewOTelMiddleware(a.OTelProviders.Tracer, a.Metrics).Handler)
		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(apierrors.RecoveryMiddleware(a.errorHandler))
		r.Use(customMiddleware.SecurityHeaders)
		r.Use(customMiddleware.CORS(customMiddleware.CORSConfig{
			AllowedOrigins: a.Config.Security.AllowedOrigins,
			MaxAge:         300,
		}))

		if a.Config.Security.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
				a.errorHandler,
			).Handler)
		}

		a.setupAPIRoutes(r)
	})

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	r.NotFound(a.errorHandler.NotFound)
	r.MethodNotAllowed(a.errorHandler.MethodNotAllowed)

	a.Router = r
}

// setupAPIRoutes configures API endpoints
func (a *Application) setupAPIRoutes(r chi.Router) {
	healthHandler := handlers.NewHealthHandler(a.Health, a.Logger)
	r.Get("/", healthHandler.Root)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/health", healthHandler.HealthCheck)
		r.Get("/health/ready", healthHandler.ReadinessCheck)
		r.Get("/health/live", healthHandler.LivenessCheck)
		r.Get("/version", healthHandler.Version)

		reportHandler := handlers.NewReportHandler(a.Reports, a.Config.Server.RunTimeout, a.errorHandler, a.Logger)
		r.Mount("/report", reportHandler.Routes())
	})
}

// createServer creates the HTTP server. The write timeout covers a full
// synchronous report run.
func (a *Application) createServer() {
	writeTimeout := a.Config.Server.WriteTimeout
	if run := a.Config.Server.RunTimeout + 10*time.Second; run > writeTimeout {
		writeTimeout = run
	}

	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Start starts the background services and the HTTP server
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", AppName),
		slog.String("version", Version),
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level))

	bgCtx, cancelBg := context.WithCancel(ctx)
	a.cancelBg = cancelBg

	a.WebSocketHub.Start()

	if a.Scheduler != nil {
		if err := a.Scheduler.Start(bgCtx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		for name, next := range a.Scheduler.Next() {
			a.Logger.InfoContext(ctx, "Next scheduled report",
				slog.String("schedule", name),
				slog.Time("at", next))
		}
	}

	if a.Poller != nil {
		go func() {
			if err := a.Poller.Run(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.Logger.ErrorContext(ctx, "Command poller stopped", slog.String("error", err.Error()))
			}
		}()
	}

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			// Signal shutdown through context instead of os.Exit
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "Application started successfully",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))
	return nil
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}

	if a.Scheduler != nil {
		if err := a.Scheduler.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("scheduler stop: %w", err))
		}
	}
	if a.cancelBg != nil {
		a.cancelBg()
	}

	a.WebSocketHub.Stop()
	a.sources.close()

	if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")

	if err := infrastructure.CloseLogFile(); err != nil {
		errs = append(errs, fmt.Errorf("close log file: %w", err))
	}
	return errors.Join(errs...)
}

// Run runs the application until interrupted
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case <-sigChan:
		a.Logger.InfoContext(ctx, "Received interrupt signal")
	case <-ctx.Done():
		a.Logger.InfoContext(ctx, "Server failed, shutting down")
	}

	// ctx may already be cancelled; shutdown gets its own deadline
	return a.Stop(context.Background())
}

// RunOnce performs a single report run and delivers it, without serving HTTP
func (a *Application) RunOnce(ctx context.Context) error {
	job := scheduler.ReportJob(a.Reports, a.Notifier, a.Config.Telegram.WatchlistSize, a.Metrics, a.Logger)

	runCtx, cancel := context.WithTimeout(ctx, a.Config.Server.RunTimeout)
	defer cancel()

	err := job(runCtx)
	a.sources.close()
	return err
}

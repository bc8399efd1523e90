// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/safetrack-io/safetrack/internal/config"
	"github.com/safetrack-io/safetrack/internal/disputes"
	disputespostgres "github.com/safetrack-io/safetrack/internal/disputes/postgres"
	"github.com/safetrack-io/safetrack/internal/domain"
	"github.com/safetrack-io/safetrack/internal/identity"
	"github.com/safetrack-io/safetrack/internal/identity/jwt"
	identitypostgres "github.com/safetrack-io/safetrack/internal/identity/postgres"
	"github.com/safetrack-io/safetrack/internal/notifications"
	"github.com/safetrack-io/safetrack/internal/notifications/email"
	notificationspostgres "github.com/safetrack-io/safetrack/internal/notifications/postgres"
	"github.com/safetrack-io/safetrack/internal/notifications/webhook"
	"github.com/safetrack-io/safetrack/internal/pkg/ctxlog"
	"github.com/safetrack-io/safetrack/internal/pkg/httputil"
	"github.com/safetrack-io/safetrack/internal/pkg/metrics"
	"github.com/safetrack-io/safetrack/internal/pkg/postgres"
	"github.com/safetrack-io/safetrack/internal/rolegate"
	"github.com/safetrack-io/safetrack/internal/sla"
	slapostgres "github.com/safetrack-io/safetrack/internal/sla/postgres"
	"github.com/safetrack-io/safetrack/internal/version"
	"github.com/safetrack-io/safetrack/internal/violations"
	violationspostgres "github.com/safetrack-io/safetrack/internal/violations/postgres"
	"github.com/safetrack-io/safetrack/internal/workflow"
	workflowpostgres "github.com/safetrack-io/safetrack/internal/workflow/postgres"
)

// App represents the application instance.
type App struct {
	config             *config.Config
	logger             *slog.Logger
	db                 *pgxpool.Pool
	server             *http.Server
	metricsServer      *http.Server
	metricsCancel      context.CancelFunc
	notificationWorker *notifications.Worker
	slaScheduler       *sla.Scheduler
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if cfg.Database.MigrationsPath != "" {
		if err := runMigrations(cfg.Database); err != nil {
			db.Close()
			return nil, err
		}
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		metricsCancel: metricsCancel,
	}

	go app.collectDBMetrics(metricsCtx)

	router, worker, scheduler, err := app.setupRouter(metricsCtx)
	if err != nil {
		db.Close()
		metricsCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.notificationWorker = worker
	app.slaScheduler = scheduler

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

func runMigrations(cfg config.DatabaseConfig) error {
	migrator, err := migrate.New(fmt.Sprintf("file://%s", cfg.MigrationsPath), cfg.URL)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	defer migrator.Close()

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	// Start main server
	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.metricsCancel()

	// Stop background workers first so no new deliveries or sweeps start
	// while connections drain.
	if a.notificationWorker != nil {
		a.notificationWorker.Stop()
	}

	var errs []error

	if a.slaScheduler != nil {
		if err := a.slaScheduler.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop sla scheduler: %w", err))
		}
	}

	// Shutdown both servers in parallel
	var wg sync.WaitGroup
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	a.db.Close()

	return errors.Join(errs...)
}

func (a *App) collectDBMetrics(ctx context.Context) {
	// Collect immediately on start
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) collectQueueMetrics(ctx context.Context, repo notifications.Repository) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats, err := repo.GetQueueStats(ctx)
			if err != nil {
				slog.Error("failed to get queue stats", "error", err)
				continue
			}
			notifications.RecordQueueStats(stats)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// NotificationWorker returns the notification worker instance.
// Used in tests to access worker state. Returns nil if notifications disabled.
func (a *App) NotificationWorker() *notifications.Worker {
	return a.notificationWorker
}

func (a *App) setupRouter(ctx context.Context) (*chi.Mux, *notifications.Worker, *sla.Scheduler, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>SafeTrack API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        SwaggerUIBundle({
            url: "/api/openapi.yaml",
            dom_id: '#swagger-ui',
            presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
            layout: "BaseLayout"
        });
    </script>
</body>
</html>`))
	})

	gate, err := rolegate.New()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create role gate: %w", err)
	}

	// Setup notifications first so the workflow services can enqueue
	// transition messages.
	notificationsRepo := notificationspostgres.NewRepository(a.db)
	notificationsService := notifications.NewService(notificationsRepo)
	notificationsHandler := notifications.NewHandler(notificationsService)

	var workflowNotifier workflow.Notifier
	var violationsNotifier violations.Notifier
	var disputesNotifier disputes.Notifier
	var slaNotifier sla.Notifier
	var notificationWorker *notifications.Worker

	slog.Info("notifications configured",
		"enabled", a.config.Notifications.Enabled,
		"email_enabled", a.config.Notifications.Email.Enabled,
	)

	if a.config.Notifications.Enabled {
		// Webhook delivery is always available: the target URL is set
		// per channel by the tenant.
		webhookSender := webhook.NewSender(webhook.Config{
			Timeout:   a.config.Notifications.Webhook.Timeout,
			RateLimit: a.config.Notifications.Webhook.RateLimit,
			UserAgent: a.config.Notifications.Webhook.UserAgent,
		})

		emailSender, err := email.NewSender(email.Config{
			Enabled:      a.config.Notifications.Email.Enabled,
			SMTPHost:     a.config.Notifications.Email.SMTPHost,
			SMTPPort:     a.config.Notifications.Email.SMTPPort,
			SMTPUser:     a.config.Notifications.Email.SMTPUser,
			SMTPPassword: a.config.Notifications.Email.SMTPPassword,
			FromAddress:  a.config.Notifications.Email.FromAddress,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create email sender: %w", err)
		}

		if !a.config.Notifications.Email.Enabled {
			slog.Warn("email sender is disabled: email notifications will not be sent")
		}

		dispatcher := notifications.NewDispatcher(webhookSender, emailSender)

		renderer, err := notifications.NewRenderer()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create notification renderer: %w", err)
		}

		notifier := notifications.NewNotifier(notificationsRepo, a.config.Notifications.Retry.MaxAttempts)
		workflowNotifier = notifier
		violationsNotifier = notifier
		disputesNotifier = notifier
		slaNotifier = notifier

		workerConfig := notifications.WorkerConfig{
			BatchSize:         a.config.Notifications.Worker.BatchSize,
			PollInterval:      a.config.Notifications.Worker.PollInterval,
			InitialBackoff:    a.config.Notifications.Retry.InitialBackoff,
			MaxBackoff:        a.config.Notifications.Retry.MaxBackoff,
			BackoffMultiplier: a.config.Notifications.Retry.BackoffMultiplier,
			NumWorkers:        a.config.Notifications.Worker.NumWorkers,
		}

		notificationWorker = notifications.NewWorker(workerConfig, notificationsRepo, dispatcher, renderer)
		notificationWorker.Start(ctx)

		// Start queue metrics collection
		go a.collectQueueMetrics(ctx, notificationsRepo)
	}

	// Setup identity
	identityRepo := identitypostgres.New(a.db)
	jwtAuth, err := jwt.NewAuthenticator(jwt.Config{
		Secret:               a.config.JWT.Secret,
		Issuer:               a.config.JWT.Issuer,
		AccessTokenDuration:  a.config.JWT.AccessTokenDuration,
		RefreshTokenDuration: a.config.JWT.RefreshTokenDuration,
	}, identityRepo)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create authenticator: %w", err)
	}
	identityService := identity.NewService(identityRepo, jwtAuth, nil)
	identityHandler := identity.NewHandler(identityService, identity.CookieSettings{
		Secure:               a.config.Cookie.Secure,
		Domain:               a.config.Cookie.Domain,
		AccessTokenDuration:  a.config.JWT.AccessTokenDuration,
		RefreshTokenDuration: a.config.JWT.RefreshTokenDuration,
	})

	// Setup the incident workflow and its sub-workflows. The identity
	// service doubles as the actor directory for gate decisions.
	workflowRepo := workflowpostgres.NewRepository(a.db)
	workflowService := workflow.NewService(workflowRepo, gate, identityService, workflowNotifier)
	workflowHandler := workflow.NewHandler(workflowService)

	violationsRepo := violationspostgres.NewRepository(a.db)
	violationsService := violations.NewService(violationsRepo, gate, identityService, violationsNotifier)
	violationsHandler := violations.NewHandler(violationsService)

	disputesRepo := disputespostgres.NewRepository(a.db)
	disputesService := disputes.NewService(disputesRepo, gate, identityService, disputesNotifier)
	disputesHandler := disputes.NewHandler(disputesService)

	// Manager rejections open a dispute on behalf of the reporter.
	workflowService.SetDisputeOpener(disputesService)

	// Setup SLA escalation
	slaRepo := slapostgres.New(a.db)
	slaService := sla.NewService(slaRepo)
	slaSweeper := sla.NewSweeper(slaRepo, slaNotifier)
	slaHandler := sla.NewHandler(slaService, slaSweeper)

	var slaScheduler *sla.Scheduler
	if a.config.SLA.Enabled {
		slaScheduler, err = sla.NewScheduler(slaSweeper, a.config.SLA.SweepInterval)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create sla scheduler: %w", err)
		}
		slaScheduler.Start()
	}

	r.Route("/api/v1", func(r chi.Router) {
		identityHandler.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(identityService))

			identityHandler.RegisterProtectedRoutes(r)
			workflowHandler.RegisterRoutes(r)
			violationsHandler.RegisterRoutes(r)
			disputesHandler.RegisterRoutes(r)
			slaHandler.RegisterAlertRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(httputil.RequireRole(domain.RoleHSSEManager))
				slaHandler.RegisterRoutes(r)
				notificationsHandler.RegisterRoutes(r)
			})
		})
	})

	return r, notificationWorker, slaScheduler, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

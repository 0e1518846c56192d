package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/jordanlanch/leaddesk/config"
	"github.com/jordanlanch/leaddesk/pkg/api"
	apierrors "github.com/jordanlanch/leaddesk/pkg/api/errors"
	"github.com/jordanlanch/leaddesk/pkg/cache"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/email"
	"github.com/jordanlanch/leaddesk/pkg/export"
	"github.com/jordanlanch/leaddesk/pkg/jobs"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/metrics"
	custommiddleware "github.com/jordanlanch/leaddesk/pkg/middleware"
	"github.com/jordanlanch/leaddesk/pkg/slack"
	"github.com/jordanlanch/leaddesk/pkg/whatsapp"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "leaddesk: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "leaddesk-api")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	if zl, ok := log.(*logger.ZapLogger); ok {
		defer zl.Sync() //nolint:errcheck
	}
	apierrors.SetLogger(log)
	log.Info("configuration loaded", "environment", cfg.APIEnvironment)

	// Sentry
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			TracesSampleRate: 0.2,
			AttachStacktrace: true,
		})
		if err != nil {
			log.Warn("failed to initialize sentry", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sslCfg := &database.SSLConfig{
		Mode:         cfg.DBSSLMode,
		CertPath:     cfg.DBSSLCertPath,
		KeyPath:      cfg.DBSSLKeyPath,
		RootCertPath: cfg.DBSSLRootCertPath,
	}
	db, err := database.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, database.DefaultPoolConfig(), sslCfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx, log); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	// Redis only backs the dashboard cache and the logout blacklist.
	redisClient, err := cache.NewClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Warn("redis unavailable, running without cache", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	prometheusMetrics := metrics.New(prometheus.DefaultRegisterer)

	var slackClient slack.SlackClient
	if cfg.SlackWebhookURL != "" {
		slackClient = slack.NewWebhookClient(cfg.SlackWebhookURL)
	}

	opts := api.Options{
		Cache:            redisClient,
		DashboardTTL:     time.Duration(cfg.DashboardCacheTTLSeconds) * time.Second,
		PhoneRegion:      cfg.DefaultPhoneRegion,
		DuplicatePairCap: cfg.DuplicatePairCap,
		Slack:            slack.NewService(slackClient),
		Email:            email.NewService(cfg.EmailFrom, cfg.EmailFromName, cfg.SendGridAPIKey, log),
		Metrics:          prometheusMetrics,
	}

	wa := whatsapp.NewClient(whatsapp.Config{
		APIURL:        cfg.WhatsAppAPIURL,
		Token:         cfg.WhatsAppToken,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
	})
	if wa.Configured() {
		opts.WhatsApp = wa
	}

	if cfg.ExportArchiveBucket != "" {
		archiver, err := export.NewS3Archiver(ctx, cfg.AWSRegion, cfg.ExportArchiveBucket)
		if err != nil {
			log.Warn("export archive disabled", "bucket", cfg.ExportArchiveBucket, "error", err)
		} else {
			opts.Archiver = archiver
		}
	}

	services := api.NewServices(db, opts, log)

	e := echo.New()
	e.HideBanner = true

	globalRateLimiter := custommiddleware.NewRateLimiter(cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	defer globalRateLimiter.Close()

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				log.Warn("request failed", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency, "error", v.Error)
				return nil
			}
			log.Info("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	if cfg.SentryDSN != "" {
		e.Use(sentryecho.New(sentryecho.Options{Repanic: true}))
	}
	e.Use(prometheusMetrics.Middleware())
	e.Use(middleware.CORSWithConfig(custommiddleware.CORSConfig(cfg.CORSAllowedOrigins)))
	e.Use(custommiddleware.SecurityHeaders(custommiddleware.DefaultSecurityHeadersConfig()))
	e.Use(globalRateLimiter.RateLimitMiddleware())

	router := api.Register(e, services, api.RouterConfig{
		JWTSecret:          cfg.JWTSecret,
		JWTExpirationHours: cfg.JWTExpirationHours,
		LoginURL:           cfg.AdminLoginURL,
		Gatherer:           prometheus.DefaultGatherer,
		Logger:             log,
	})
	defer router.Close()

	var cronManager *jobs.CronManager
	if cfg.CronEnabled {
		cronManager = jobs.NewCronManager(db, services.Messages, services.Duplicates, prometheusMetrics, log)
		cronManager.SetSlack(services.Slack)
		schedules := jobs.DefaultSchedules()
		schedules.FollowUpReminders = cfg.FollowUpReminderSchedule
		schedules.DuplicateScan = cfg.DuplicateScanSchedule
		if err := cronManager.SetupJobs(schedules); err != nil {
			return fmt.Errorf("failed to schedule jobs: %w", err)
		}
		cronManager.Start()
	}

	address := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "address", address, "cron", cfg.CronEnabled, "cache", redisClient != nil)
		if err := e.Start(address); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info("shutting down server")
	if cronManager != nil {
		<-cronManager.Stop().Done()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

// Package api assembles the services and HTTP routes of the back-office.
package api

import (
	"net/http"
	"time"

	"github.com/jordanlanch/leaddesk/pkg/activity"
	"github.com/jordanlanch/leaddesk/pkg/analytics"
	"github.com/jordanlanch/leaddesk/pkg/api/handlers"
	apimw "github.com/jordanlanch/leaddesk/pkg/api/middleware"
	"github.com/jordanlanch/leaddesk/pkg/auth"
	"github.com/jordanlanch/leaddesk/pkg/bulk"
	"github.com/jordanlanch/leaddesk/pkg/cache"
	"github.com/jordanlanch/leaddesk/pkg/categories"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/duplicates"
	"github.com/jordanlanch/leaddesk/pkg/email"
	"github.com/jordanlanch/leaddesk/pkg/export"
	"github.com/jordanlanch/leaddesk/pkg/goals"
	importpkg "github.com/jordanlanch/leaddesk/pkg/import"
	"github.com/jordanlanch/leaddesk/pkg/integrations"
	"github.com/jordanlanch/leaddesk/pkg/landing"
	"github.com/jordanlanch/leaddesk/pkg/leadassignment"
	"github.com/jordanlanch/leaddesk/pkg/leads"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/messaging"
	"github.com/jordanlanch/leaddesk/pkg/metrics"
	custommw "github.com/jordanlanch/leaddesk/pkg/middleware"
	"github.com/jordanlanch/leaddesk/pkg/rules"
	"github.com/jordanlanch/leaddesk/pkg/slack"
	"github.com/jordanlanch/leaddesk/pkg/team"
	"github.com/jordanlanch/leaddesk/pkg/training"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options configure the service graph. Every pointer may be nil.
type Options struct {
	Cache            *cache.Client
	DashboardTTL     time.Duration
	PhoneRegion      string
	DuplicatePairCap int
	Archiver         export.Archiver
	Slack            *slack.Service
	Email            *email.Service
	WhatsApp         integrations.WhatsAppSender
	Metrics          *metrics.Metrics
}

// Services is the wired service graph.
type Services struct {
	DB           *database.Client
	Cache        *cache.Client
	Leads        *leads.Service
	Bulk         *bulk.Service
	Assigner     *leadassignment.Service
	Rules        *rules.Service
	Categories   *categories.Service
	Activities   *activity.Service
	Team         *team.Service
	Messages     *messaging.Service
	Landing      *landing.Service
	Goals        *goals.Service
	Training     *training.Service
	Importer     *importpkg.CSVImportService
	Exporter     *export.Service
	Duplicates   *duplicates.Service
	Analytics    *analytics.Service
	Integrations *integrations.Store
	Dispatcher   *integrations.Dispatcher
	Slack        *slack.Service
	Email        *email.Service
	Metrics      *metrics.Metrics
}

// NewServices wires every service on db.
func NewServices(db *database.Client, opts Options, log logger.Logger) *Services {
	if log == nil {
		log = logger.Nop()
	}
	assigner := leadassignment.NewService(db)
	store := integrations.NewStore(db)

	// A nil *email.Service must not become a non-nil interface.
	var mail integrations.EmailSender
	if opts.Email != nil {
		mail = opts.Email
	}

	return &Services{
		DB:           db,
		Cache:        opts.Cache,
		Leads:        leads.NewService(db),
		Bulk:         bulk.NewService(db),
		Assigner:     assigner,
		Rules:        rules.NewService(db, assigner),
		Categories:   categories.NewService(db),
		Activities:   activity.NewService(db),
		Team:         team.NewService(db),
		Messages:     messaging.NewService(db, opts.Slack, log.With("component", "messaging")),
		Landing:      landing.NewService(db),
		Goals:        goals.NewService(db),
		Training:     training.NewService(db),
		Importer:     importpkg.NewCSVImportService(db, log.With("component", "import")),
		Exporter:     export.NewService(db, opts.Archiver, log.With("component", "export")),
		Duplicates:   duplicates.NewService(db, log.With("component", "duplicates"), duplicates.Options{PairCap: opts.DuplicatePairCap, PhoneRegion: opts.PhoneRegion}),
		Analytics:    analytics.NewService(db, opts.Cache, opts.DashboardTTL, log.With("component", "analytics")),
		Integrations: store,
		Dispatcher:   integrations.NewDispatcher(db, store, opts.WhatsApp, mail, opts.Metrics, opts.PhoneRegion, log.With("component", "integrations")),
		Slack:        opts.Slack,
		Email:        opts.Email,
		Metrics:      opts.Metrics,
	}
}

// RouterConfig holds the HTTP-level settings.
type RouterConfig struct {
	JWTSecret          string
	JWTExpirationHours int
	LoginURL           string
	// LoginRateLimit is requests per minute per IP on the login endpoint.
	LoginRateLimit int
	// Gatherer backs /metrics; nil means the default registry.
	Gatherer prometheus.Gatherer
	Logger   logger.Logger
}

// Router owns the per-route rate limiters so they can be stopped.
type Router struct {
	limiters []*custommw.RateLimiter
}

// Close stops the background sweepers of the rate limiters.
func (r *Router) Close() {
	for _, l := range r.limiters {
		l.Close()
	}
}

// Register mounts every route on e.
func Register(e *echo.Echo, s *Services, cfg RouterConfig) *Router {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	if cfg.LoginRateLimit <= 0 {
		cfg.LoginRateLimit = 10
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	var blacklist *auth.TokenBlacklist
	if s.Cache != nil {
		blacklist = auth.NewTokenBlacklist(s.Cache)
	}
	loginLimiter := custommw.NewRateLimiter(cfg.LoginRateLimit, 3)
	router := &Router{limiters: []*custommw.RateLimiter{loginLimiter}}

	authHandler := handlers.NewAuthHandler(s.Team, blacklist, cfg.JWTSecret, cfg.JWTExpirationHours, s.Metrics, log.With("handler", "auth"))
	dashboardHandler := handlers.NewDashboardHandler(s.Analytics)
	leadHandler := handlers.NewLeadHandler(s.Leads, s.Assigner, s.Categories, s.Activities, s.Analytics, log.With("handler", "leads"))
	batchHandler := handlers.NewBatchHandler(s.Bulk, s.Analytics, s.Metrics, log.With("handler", "bulk"))
	transferHandler := handlers.NewTransferHandler(s.Importer, s.Exporter, s.Slack, s.Analytics, s.Metrics, log.With("handler", "transfer"))
	duplicateHandler := handlers.NewDuplicateHandler(s.Duplicates, s.Analytics, log.With("handler", "duplicates"))
	ruleHandler := handlers.NewRuleHandler(s.Rules, s.Analytics, s.Metrics, log.With("handler", "rules"))
	categoryHandler := handlers.NewCategoryHandler(s.Categories, s.Analytics)
	activityHandler := handlers.NewActivityHandler(s.Activities, log.With("handler", "activities"))
	teamHandler := handlers.NewTeamHandler(s.Team, s.Email, cfg.LoginURL, log.With("handler", "team"))
	messageHandler := handlers.NewMessageHandler(s.Messages, log.With("handler", "messages"))
	landingHandler := handlers.NewLandingHandler(s.Landing)
	referralHandler := handlers.NewReferralHandler(s.Team, s.Landing)
	goalHandler := handlers.NewGoalHandler(s.Goals)
	trainingHandler := handlers.NewTrainingHandler(s.Training)
	integrationHandler := handlers.NewIntegrationHandler(s.Integrations, s.Dispatcher, log.With("handler", "integrations"))
	healthHandler := handlers.NewHealthHandler(s.DB, s.Cache)

	// Public
	e.GET("/health", healthHandler.Check)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	e.GET("/p/:slug", landingHandler.Public)
	e.GET("/r/:token", referralHandler.Resolve)

	v1 := e.Group("/api/v1")
	v1.GET("/ping", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"message": "pong"})
	})

	authGroup := v1.Group("/auth")
	authGroup.POST("/login", authHandler.Login, loginLimiter.RateLimitMiddleware())

	jwt := apimw.JWTMiddlewareWithBlacklist(cfg.JWTSecret, blacklist, s.Team)
	authGroup.POST("/logout", authHandler.Logout, jwt)
	authGroup.GET("/me", authHandler.Me, jwt)

	// Member
	v1.GET("/inbox", messageHandler.Inbox, jwt)
	v1.GET("/inbox/unread", messageHandler.UnreadCount, jwt)
	v1.PUT("/inbox/:id/read", messageHandler.MarkRead, jwt)
	v1.DELETE("/inbox/:id", messageHandler.Delete, jwt)
	v1.GET("/announcements", messageHandler.Announcements, jwt)
	v1.GET("/training", trainingHandler.PublishedMaterials, jwt)
	v1.GET("/certificates", trainingHandler.MyCertificates, jwt)

	// Export links are opened by the browser, which cannot set headers.
	v1.GET("/admin/leads/export", transferHandler.Export,
		apimw.JWTFromQueryOrHeader(cfg.JWTSecret, blacklist, s.Team), custommw.RequireAdmin())

	// Admin
	admin := v1.Group("/admin", jwt, custommw.RequireAdmin())
	admin.GET("/dashboard", dashboardHandler.Stats)

	admin.GET("/leads", leadHandler.List)
	admin.POST("/leads", leadHandler.Create)
	admin.POST("/leads/bulk", batchHandler.Execute)
	admin.POST("/leads/import", transferHandler.Import)
	admin.GET("/leads/:id", leadHandler.Get)
	admin.PUT("/leads/:id", leadHandler.Update)
	admin.DELETE("/leads/:id", leadHandler.Delete)
	admin.PUT("/leads/:id/assign", leadHandler.Assign)
	admin.POST("/leads/:id/auto-assign", leadHandler.AutoAssign)
	admin.GET("/leads/:id/assignments", leadHandler.AssignmentHistory)
	admin.GET("/leads/:id/categories", leadHandler.Categories)
	admin.PUT("/leads/:id/categories", leadHandler.SetCategories)
	admin.GET("/leads/:id/activities", leadHandler.Activities)

	admin.GET("/duplicates", duplicateHandler.Scan)
	admin.POST("/duplicates", duplicateHandler.Action)

	admin.GET("/rules", ruleHandler.List)
	admin.POST("/rules", ruleHandler.Create)
	admin.POST("/rules/test", ruleHandler.TestConditions)
	admin.GET("/rules/:id", ruleHandler.Get)
	admin.PUT("/rules/:id", ruleHandler.Update)
	admin.DELETE("/rules/:id", ruleHandler.Delete)
	admin.POST("/rules/:id/toggle", ruleHandler.Toggle)
	admin.POST("/rules/:id/test", ruleHandler.Test)
	admin.POST("/rules/:id/apply", ruleHandler.Apply)

	admin.GET("/categories", categoryHandler.List)
	admin.POST("/categories", categoryHandler.Create)
	admin.GET("/categories/:id", categoryHandler.Get)
	admin.PUT("/categories/:id", categoryHandler.Update)
	admin.DELETE("/categories/:id", categoryHandler.Delete)

	admin.GET("/activities", activityHandler.List)
	admin.DELETE("/activities/:id", activityHandler.Delete)

	admin.GET("/team", teamHandler.List)
	admin.POST("/team", teamHandler.Create)
	admin.GET("/team/:id", teamHandler.Get)
	admin.PUT("/team/:id", teamHandler.Update)
	admin.PUT("/team/:id/status", teamHandler.SetStatus)
	admin.PUT("/team/:id/password", teamHandler.ChangePassword)
	admin.GET("/team/:id/certificates", trainingHandler.MemberCertificates)

	admin.POST("/messages", messageHandler.Send)
	admin.POST("/announcements", messageHandler.Announce)
	admin.DELETE("/announcements/:id", messageHandler.DeleteAnnouncement)

	admin.GET("/landing-pages", landingHandler.List)
	admin.POST("/landing-pages", landingHandler.Create)
	admin.GET("/landing-pages/:id", landingHandler.Get)
	admin.PUT("/landing-pages/:id", landingHandler.Update)
	admin.DELETE("/landing-pages/:id", landingHandler.Delete)

	admin.GET("/goals", goalHandler.List)
	admin.PUT("/goals", goalHandler.Set)
	admin.GET("/goals/progress", goalHandler.Progress)

	admin.GET("/training", trainingHandler.Materials)
	admin.POST("/training", trainingHandler.CreateMaterial)
	admin.GET("/training/:id", trainingHandler.GetMaterial)
	admin.PUT("/training/:id", trainingHandler.UpdateMaterial)
	admin.DELETE("/training/:id", trainingHandler.DeleteMaterial)
	admin.POST("/certificates", trainingHandler.Issue)
	admin.DELETE("/certificates/:id", trainingHandler.Revoke)

	admin.GET("/integrations", integrationHandler.List)
	admin.GET("/integrations/:provider", integrationHandler.Get)
	admin.PUT("/integrations/:provider", integrationHandler.Save)
	admin.POST("/contact", integrationHandler.Contact)

	return router
}

// Package server exposes the dashboard's HTTP surface: session auth,
// organization management and the billing lifecycle endpoints.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/smallbiznis/bizboard/internal/audit/domain"
	"github.com/smallbiznis/bizboard/internal/auth"
	"github.com/smallbiznis/bizboard/internal/authorization"
	billingdomain "github.com/smallbiznis/bizboard/internal/billing/domain"
	"github.com/smallbiznis/bizboard/internal/config"
	"github.com/smallbiznis/bizboard/internal/observability/logger"
	"github.com/smallbiznis/bizboard/internal/observability/metrics"
	organizationdomain "github.com/smallbiznis/bizboard/internal/organization/domain"
)

type ServerParam struct {
	fx.In

	Cfg config.Config
	Log *zap.Logger
	DB  *gorm.DB

	Sessions        *auth.Sessions
	OrganizationSvc organizationdomain.Service
	BillingSvc      billingdomain.Service
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
}

// Server holds the HTTP handler dependencies.
type Server struct {
	cfg config.Config
	log *zap.Logger
	db  *gorm.DB

	sessions        *auth.Sessions
	organizationSvc organizationdomain.Service
	billingSvc      billingdomain.Service
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
}

func NewServer(p ServerParam) *Server {
	return &Server{
		cfg:             p.Cfg,
		log:             p.Log.Named("server"),
		db:              p.DB,
		sessions:        p.Sessions,
		organizationSvc: p.OrganizationSvc,
		billingSvc:      p.BillingSvc,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
	}
}

// NewEngine builds the gin engine with the shared middleware stack.
func NewEngine(cfg config.Config, httpMetrics *metrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(logger.GinMiddleware(logger.MiddlewareConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	engine.Use(metrics.GinMiddleware(httpMetrics))
	return engine
}

// RegisterRoutes attaches all dashboard routes to the engine.
func (s *Server) RegisterRoutes(engine *gin.Engine) {
	engine.GET("/healthz", s.Healthz)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	engine.POST("/webhooks/stripe", s.HandleStripeWebhook)

	api := engine.Group("/api")
	api.POST("/auth/login", s.Login)
	api.POST("/auth/logout", s.Logout)

	authed := api.Group("")
	authed.Use(s.RequireSession())

	authed.GET("/me", s.Me)
	authed.POST("/organizations", s.CreateOrganization)
	authed.GET("/organizations/current", s.GetCurrentOrganization)

	billing := authed.Group("/billing")
	billing.GET("/status", s.GetBillingStatus)
	billing.GET("/history", s.ListBillingHistory)
	billing.POST("/checkout", s.InitiateCheckout)
	billing.POST("/cancel", s.CancelSubscription)
	billing.POST("/resume", s.ResumeSubscription)
	billing.POST("/change-plan", s.ChangePlan)
	billing.POST("/portal", s.CreatePortalSession)

	if !s.cfg.IsProduction() {
		api.POST("/test/cleanup", s.TestCleanup)
	}
}

// Healthz reports liveness including database reachability.
func (s *Server) Healthz(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RunHTTP starts the HTTP listener under the fx lifecycle.
func RunHTTP(lc fx.Lifecycle, cfg config.Config, engine *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down http server")
			return srv.Shutdown(ctx)
		},
	})
}

var Module = fx.Module("server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server, engine *gin.Engine) {
		s.RegisterRoutes(engine)
	}),
	fx.Invoke(RunHTTP),
)

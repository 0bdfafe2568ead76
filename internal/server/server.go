package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/hireboard/internal/addon"
	addondomain "github.com/smallbiznis/hireboard/internal/addon/domain"
	"github.com/smallbiznis/hireboard/internal/analytics"
	"github.com/smallbiznis/hireboard/internal/audit"
	auditdomain "github.com/smallbiznis/hireboard/internal/audit/domain"
	"github.com/smallbiznis/hireboard/internal/authorization"
	"github.com/smallbiznis/hireboard/internal/catalog"
	catalogdomain "github.com/smallbiznis/hireboard/internal/catalog/domain"
	"github.com/smallbiznis/hireboard/internal/config"
	"github.com/smallbiznis/hireboard/internal/credit"
	creditdomain "github.com/smallbiznis/hireboard/internal/credit/domain"
	"github.com/smallbiznis/hireboard/internal/fulfillment"
	fulfillmentdomain "github.com/smallbiznis/hireboard/internal/fulfillment/domain"
	"github.com/smallbiznis/hireboard/internal/gate"
	gatedomain "github.com/smallbiznis/hireboard/internal/gate/domain"
	"github.com/smallbiznis/hireboard/internal/job"
	jobdomain "github.com/smallbiznis/hireboard/internal/job/domain"
	"github.com/smallbiznis/hireboard/internal/observability"
	obsmiddleware "github.com/smallbiznis/hireboard/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/hireboard/internal/observability/metrics"
	obstracing "github.com/smallbiznis/hireboard/internal/observability/tracing"
	"github.com/smallbiznis/hireboard/internal/payment"
	paymentdomain "github.com/smallbiznis/hireboard/internal/payment/domain"
	"github.com/smallbiznis/hireboard/internal/providers/pdf"
	"github.com/smallbiznis/hireboard/internal/purchase"
	purchasedomain "github.com/smallbiznis/hireboard/internal/purchase/domain"
	"github.com/smallbiznis/hireboard/internal/queue"
	"github.com/smallbiznis/hireboard/internal/ratelimit"
	"github.com/smallbiznis/hireboard/internal/report"
	reportdomain "github.com/smallbiznis/hireboard/internal/report/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	catalog.Module,
	credit.Module,
	job.Module,
	addon.Module,
	purchase.Module,
	payment.Module,
	fulfillment.Module,
	gate.Module,
	report.Module,
	authorization.Module,
	ratelimit.Module,
	queue.Module,
	analytics.Module,
	pdf.Module,
	audit.Module,
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(RunHTTP),
)

func NewEngine(log *zap.Logger, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, upgradeURL string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Logger:          log.Named("http"),
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware(upgradeURL))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, log *zap.Logger, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(log, obsCfg, httpMetrics, cfg.Checkout.UpgradeURL)
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	log            *zap.Logger
	verifier       *TokenVerifier
	catalogSvc     catalogdomain.Service
	purchaseSvc    purchasedomain.Service
	creditSvc      creditdomain.Service
	jobSvc         jobdomain.Service
	gateSvc        gatedomain.Service
	addonSvc       addondomain.Service
	paymentSvc     paymentdomain.Service
	fulfillmentSvc fulfillmentdomain.Service
	reportSvc      reportdomain.Service
	authzSvc       authorization.Service
	auditSvc       auditdomain.Service
	receipts       pdf.Provider
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Log            *zap.Logger
	CatalogSvc     catalogdomain.Service
	PurchaseSvc    purchasedomain.Service
	CreditSvc      creditdomain.Service
	JobSvc         jobdomain.Service
	GateSvc        gatedomain.Service
	AddonSvc       addondomain.Service
	PaymentSvc     paymentdomain.Service
	FulfillmentSvc fulfillmentdomain.Service
	ReportSvc      reportdomain.Service
	AuthzSvc       authorization.Service `optional:"true"`
	AuditSvc       auditdomain.Service   `optional:"true"`
	Receipts       pdf.Provider          `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	receipts := p.Receipts
	if receipts == nil {
		receipts = pdf.New()
	}
	return &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		log:            p.Log.Named("http.server"),
		verifier:       NewTokenVerifier(p.Cfg.AuthJWTSecret, p.Cfg.AuthJWTIssuer),
		catalogSvc:     p.CatalogSvc,
		purchaseSvc:    p.PurchaseSvc,
		creditSvc:      p.CreditSvc,
		jobSvc:         p.JobSvc,
		gateSvc:        p.GateSvc,
		addonSvc:       p.AddonSvc,
		paymentSvc:     p.PaymentSvc,
		fulfillmentSvc: p.FulfillmentSvc,
		reportSvc:      p.ReportSvc,
		authzSvc:       p.AuthzSvc,
		auditSvc:       p.AuditSvc,
		receipts:       receipts,
	}
}

func registerRoutes(s *Server) {
	s.RegisterPublicRoutes()
	s.RegisterAPIRoutes()
	s.RegisterAdminRoutes()
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterPublicRoutes() {
	s.engine.POST("/api/payments/webhooks/:provider", s.HandlePaymentWebhook)
	s.engine.GET("/api/catalog", s.GetCatalog)
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	checkout := api.Group("/checkout")
	{
		checkout.POST("/packs", s.CreateCheckout)
		checkout.POST("/upsells", s.CreateUpsellCheckout)
	}

	purchases := api.Group("/purchases")
	{
		purchases.GET("", s.ListPurchases)
		purchases.GET("/:id", s.GetPurchase)
		purchases.GET("/:id/receipt", s.DownloadReceipt)
	}

	credits := api.Group("/credits")
	{
		credits.GET("/balance", s.GetCreditBalance)
		credits.GET("/units", s.ListCreditUnits)
	}

	jobs := api.Group("/jobs")
	{
		jobs.GET("", s.ListJobs)
		jobs.POST("", s.PublishJob)
		jobs.GET("/:id", s.GetJob)
		jobs.POST("/:id/repost", s.RepostJob)
		jobs.POST("/:id/feature", s.FeatureJob)
		jobs.POST("/:id/addons", s.ApplyAddOn)
	}

	api.GET("/addons", s.ListAddOnGrants)
}

func (s *Server) RegisterAdminRoutes() {
	admin := s.engine.Group("/admin", s.AuthRequired())

	admin.GET("/reports/summary",
		s.authorizeAction(authorization.ObjectReport, authorization.ActionReportView),
		s.GetReportSummary,
	)
	admin.GET("/reports/users/:id",
		s.authorizeAction(authorization.ObjectReport, authorization.ActionReportView),
		s.GetUserLedger,
	)
	admin.POST("/purchases/reconcile/:session_id",
		s.authorizeAction(authorization.ObjectPurchase, authorization.ActionPurchaseReconcile),
		s.ReconcilePurchase,
	)
	admin.GET("/audit-logs",
		s.authorizeAction(authorization.ObjectReport, authorization.ActionReportView),
		s.ListAuditLogs,
	)
}

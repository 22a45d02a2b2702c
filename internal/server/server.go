package server

import (
	"context"
	"net/http"
	"time"

	"github.com/airislabs/kassa/internal/billing"
	billingdomain "github.com/airislabs/kassa/internal/billing/domain"
	"github.com/airislabs/kassa/internal/catalog"
	catalogdomain "github.com/airislabs/kassa/internal/catalog/domain"
	"github.com/airislabs/kassa/internal/config"
	"github.com/airislabs/kassa/internal/leadmagnet"
	leadmagnetdomain "github.com/airislabs/kassa/internal/leadmagnet/domain"
	"github.com/airislabs/kassa/internal/observability"
	obsmiddleware "github.com/airislabs/kassa/internal/observability/logger"
	obsmetrics "github.com/airislabs/kassa/internal/observability/metrics"
	obstracing "github.com/airislabs/kassa/internal/observability/tracing"
	"github.com/airislabs/kassa/internal/payment"
	paymentdomain "github.com/airislabs/kassa/internal/payment/domain"
	"github.com/airislabs/kassa/internal/pricing"
	pricingdomain "github.com/airislabs/kassa/internal/pricing/domain"
	"github.com/airislabs/kassa/internal/usageevent"
	usageeventdomain "github.com/airislabs/kassa/internal/usageevent/domain"
	"github.com/airislabs/kassa/internal/wallet"
	walletdomain "github.com/airislabs/kassa/internal/wallet/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	wallet.Module,
	pricing.Module,
	catalog.Module,
	leadmagnet.Module,
	usageevent.Module,
	payment.Module,
	billing.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
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
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	genID         *snowflake.Node
	walletSvc     walletdomain.Service
	pricingSvc    pricingdomain.Service
	catalogSvc    catalogdomain.Service
	leadMagnetSvc leadmagnetdomain.Service
	usageSvc      usageeventdomain.Service
	paymentSvc    paymentdomain.Service
	billingSvc    billingdomain.Service
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	GenID         *snowflake.Node
	WalletSvc     walletdomain.Service
	PricingSvc    pricingdomain.Service
	CatalogSvc    catalogdomain.Service
	LeadMagnetSvc leadmagnetdomain.Service
	UsageSvc      usageeventdomain.Service
	PaymentSvc    paymentdomain.Service
	BillingSvc    billingdomain.Service
	ObsMetrics    *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		genID:         p.GenID,
		walletSvc:     p.WalletSvc,
		pricingSvc:    p.PricingSvc,
		catalogSvc:    p.CatalogSvc,
		leadMagnetSvc: p.LeadMagnetSvc,
		usageSvc:      p.UsageSvc,
		paymentSvc:    p.PaymentSvc,
		billingSvc:    p.BillingSvc,
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1", RequireUser())

	v1.GET("/wallet", s.GetWallet)
	v1.GET("/wallet/entries", s.ListLedgerEntries)
	v1.POST("/wallet/topups", s.CreateTopup)
	v1.GET("/quota", s.GetQuotaState)
	v1.GET("/usage", s.ListUsageEvents)

	v1.GET("/models", s.ListModels)
	v1.GET("/models/:id/rates", s.ListModelRates)
	v1.POST("/rates", s.CreateRateCard)

	b := v1.Group("/billing")
	b.POST("/chat/preflight", s.PreflightChat)
	b.POST("/chat/settle", s.SettleChat)
	b.POST("/units/preflight", s.PreflightUnits)
	b.POST("/units/settle", s.SettleUnits)
	b.POST("/release", s.ReleaseBillingHold)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/payments", s.HandlePaymentWebhook)
}

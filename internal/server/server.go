package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/partnerpay/internal/config"
	embeddomain "github.com/smallbiznis/partnerpay/internal/embedtoken/domain"
	folderdomain "github.com/smallbiznis/partnerpay/internal/folder/domain"
	"github.com/smallbiznis/partnerpay/internal/observability"
	obslogger "github.com/smallbiznis/partnerpay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/partnerpay/internal/observability/metrics"
	obstracing "github.com/smallbiznis/partnerpay/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/partnerpay/internal/payment/domain"
	workspacedomain "github.com/smallbiznis/partnerpay/internal/workspace/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
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

type Server struct {
	engine     *gin.Engine
	log        *zap.Logger
	paymentSvc paymentdomain.Service
	embedSvc   embeddomain.Service
	folderSvc  folderdomain.Service
	workspaces workspacedomain.Service
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Log        *zap.Logger
	PaymentSvc paymentdomain.Service
	EmbedSvc   embeddomain.Service
	FolderSvc  folderdomain.Service
	Workspaces workspacedomain.Service
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:     p.Gin,
		log:        p.Log.Named("http.server"),
		paymentSvc: p.PaymentSvc,
		embedSvc:   p.EmbedSvc,
		folderSvc:  p.FolderSvc,
		workspaces: p.Workspaces,
	}

	s.registerWebhookRoutes()
	s.registerAPIRoutes()

	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/:provider", s.HandlePaymentWebhook)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// Public token holders, no workspace header.
	api.GET("/embed/session", s.GetEmbedSession)

	ws := api.Group("", s.WorkspaceRequired())
	{
		ws.POST("/tokens/embed", s.CreateEmbedToken)
		ws.GET("/folders/:folderId", s.GetFolder)
	}
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, s *Server, shutdowner fx.Shutdowner, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log = log.Named("http.server")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
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

package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/geoinfo-winterthur/cadusage/internal/caduser"
	"github.com/geoinfo-winterthur/cadusage/internal/config"
	"github.com/geoinfo-winterthur/cadusage/internal/heartbeat"
	heartbeatdomain "github.com/geoinfo-winterthur/cadusage/internal/heartbeat/domain"
	"github.com/geoinfo-winterthur/cadusage/internal/logsink"
	"github.com/geoinfo-winterthur/cadusage/internal/observability"
	obsmiddleware "github.com/geoinfo-winterthur/cadusage/internal/observability/logger"
	obsmetrics "github.com/geoinfo-winterthur/cadusage/internal/observability/metrics"
	obstracing "github.com/geoinfo-winterthur/cadusage/internal/observability/tracing"
	"github.com/geoinfo-winterthur/cadusage/internal/organization"
	"github.com/geoinfo-winterthur/cadusage/internal/usage"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	logsink.Module,
	caduser.Module,
	organization.Module,
	usage.Module,
	heartbeat.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug: obsCfg.Debug(),
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerRoutes(s *Server) {
	s.RegisterRoutes()
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
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
	engine       *gin.Engine
	cfg          config.Config
	heartbeatSvc heartbeatdomain.Service
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	HeartbeatSvc heartbeatdomain.Service
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		heartbeatSvc: p.HeartbeatSvc,
	}
}

// RegisterRoutes wires the two public endpoints plus the catch-all the
// reverse proxy setups rely on.
func (s *Server) RegisterRoutes() {
	// Rewritten proxy paths must reach the fallback, not a redirect.
	s.engine.RedirectTrailingSlash = false
	s.engine.RedirectFixedPath = false

	s.engine.GET("/", s.health)
	s.engine.GET("/ping", s.ping)
	if alias := strings.Trim(s.cfg.HealthAlias, "/"); alias != "" {
		s.engine.GET("/"+alias, s.health)
		s.engine.GET("/"+alias+"/ping", s.ping)
	}
	s.engine.NoRoute(s.fallback)
}

package main

import (
	"context"

	"github.com/geoinfo-winterthur/cadusage/internal/clock"
	"github.com/geoinfo-winterthur/cadusage/internal/config"
	"github.com/geoinfo-winterthur/cadusage/internal/logsink"
	"github.com/geoinfo-winterthur/cadusage/internal/migration"
	"github.com/geoinfo-winterthur/cadusage/internal/observability"
	"github.com/geoinfo-winterthur/cadusage/internal/server"
	"github.com/geoinfo-winterthur/cadusage/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		db.Module,
		clock.Module,
		migration.Module,

		// The server module pulls in the heartbeat domain and its
		// repositories.
		server.Module,

		fx.Invoke(announceStartup),
	)
	app.Run()
}

func announceStartup(lc fx.Lifecycle, sink logsink.Emitter, cfg config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			sink.Info(ctx, "service started on port "+cfg.HTTPPort)
			return nil
		},
	})
}

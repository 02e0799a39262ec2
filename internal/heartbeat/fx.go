package heartbeat

import (
	"github.com/geoinfo-winterthur/cadusage/internal/heartbeat/service"
	"go.uber.org/fx"
)

var Module = fx.Module("heartbeat",
	fx.Provide(service.New),
)

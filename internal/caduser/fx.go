package caduser

import (
	"github.com/geoinfo-winterthur/cadusage/internal/caduser/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("caduser",
	fx.Provide(repository.Provide),
)

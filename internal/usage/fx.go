package usage

import (
	"github.com/geoinfo-winterthur/cadusage/internal/usage/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("usage",
	fx.Provide(repository.Provide),
)

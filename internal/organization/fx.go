package organization

import (
	"github.com/geoinfo-winterthur/cadusage/internal/organization/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("organization",
	fx.Provide(repository.Provide),
)

package modules

import (
	"github.com/orgforge/divisions/modules/division"
	"github.com/orgforge/divisions/pkg/application"
)

// BuiltInModules is the default module set registered at boot.
var BuiltInModules = []application.Module{
	division.NewModule(),
}

func Load(app application.Application, externalModules ...application.Module) error {
	return application.Load(app, append(BuiltInModules, externalModules...)...)
}

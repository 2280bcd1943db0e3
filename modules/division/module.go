package division

import (
	"embed"

	"github.com/orgforge/divisions/modules/division/infrastructure/persistence"
	"github.com/orgforge/divisions/modules/division/presentation/controllers"
	"github.com/orgforge/divisions/modules/division/services"
	"github.com/orgforge/divisions/pkg/application"
)

//go:embed infrastructure/persistence/schema/*.sql
var migrationFiles embed.FS

func NewModule() application.Module {
	return &Module{}
}

type Module struct{}

func (m *Module) Register(app application.Application) error {
	app.RegisterMigrations(&migrationFiles)

	app.RegisterServices(
		services.NewDivisionService(persistence.NewDivisionRepository(), app.EventPublisher()),
	)

	app.RegisterControllers(
		controllers.NewDivisionAPIController(app),
		controllers.NewHealthController(app),
	)

	return nil
}

func (m *Module) Name() string {
	return "division"
}

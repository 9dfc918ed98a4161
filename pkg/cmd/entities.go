package cmd

import (
	"github.com/renocrm/workflow-engine/pkg/entity"
	"github.com/renocrm/workflow-engine/pkg/persistence"
	"github.com/renocrm/workflow-engine/pkg/persistence/postgresql"
)

// entityTables maps each CRM entity type to its PostgreSQL table.
var entityTables = map[string]string{
	entity.TypeEnquiry: "enquiries",
	entity.TypeProject: "projects",
	entity.TypeLead:    "leads",
	entity.TypeClient:  "clients",
}

// updatableColumns are the attributes DATA_UPDATE steps may write, keyed by their API name.
var updatableColumns = map[string]string{
	"status":       "status",
	"stage":        "stage",
	"priority":     "priority",
	"budget":       "budget",
	"assignedToId": "assigned_to_id",
	"notes":        "notes",
}

// NewEntityRegistry reads entities from the CRM tables when the engine runs on PostgreSQL,
// and from JSON documents next to the file store otherwise.
func NewEntityRegistry(p persistence.Persistence, databaseURL string) *entity.Registry {
	registry := entity.NewRegistry()

	pg, isPostgres := p.(*postgresql.Persistence)

	for entityType, table := range entityTables {
		if isPostgres {
			registry.Register(entityType, entity.NewSQLHandler(pg.DB(), table, updatableColumns))

			continue
		}

		registry.Register(entityType, entity.NewFileHandler(databaseURL, entityType))
	}

	return registry
}

// Package repository persists workflow definitions and instances.
package repository

import (
	"context"

	"github.com/cliff-rosen/adam-bot/pkg/models"
)

// InstanceListOpts filters and paginates instance list queries.
type InstanceListOpts struct {
	// Status filters by instance status. Empty means all statuses.
	Status models.InstanceStatus
	// WorkflowID filters by definition version id. Empty means all.
	WorkflowID string
	// Limit is the maximum number of instances to return. Zero means no limit.
	Limit int
	// Offset is the number of instances to skip.
	Offset int
}

// DefinitionStore persists published graph definitions. Definitions are
// immutable: creating a definition with an existing WorkflowID publishes
// a new version and clears the previous latest flag.
type DefinitionStore interface {
	// CreateDefinition persists a new definition version.
	CreateDefinition(ctx context.Context, def *models.GraphDefinition) error
	// GetDefinition retrieves a definition version by id.
	GetDefinition(ctx context.Context, id string) (*models.GraphDefinition, error)
	// GetLatestDefinition retrieves the latest version for a workflow concept.
	GetLatestDefinition(ctx context.Context, workflowID string) (*models.GraphDefinition, error)
	// ListDefinitions returns all definition versions.
	ListDefinitions(ctx context.Context) ([]*models.GraphDefinition, error)
}

// InstanceStore persists workflow instances. SaveInstance is
// compare-and-swap on the instance Version: a save whose Version does not
// match the stored record fails with models.ErrConflict, so a resume
// racing a cancellation cannot clobber state.
type InstanceStore interface {
	// CreateInstance persists a new instance.
	CreateInstance(ctx context.Context, inst *models.WorkflowInstance) error
	// GetInstance retrieves a point-in-time copy of an instance.
	GetInstance(ctx context.Context, id string) (*models.WorkflowInstance, error)
	// SaveInstance atomically replaces an instance, bumping its Version.
	SaveInstance(ctx context.Context, inst *models.WorkflowInstance) error
	// ListInstances returns instances matching the given options.
	ListInstances(ctx context.Context, opts InstanceListOpts) ([]*models.WorkflowInstance, error)
}

// Store is the combined persistence contract implemented by the memory
// and postgres backends.
type Store interface {
	DefinitionStore
	InstanceStore
}

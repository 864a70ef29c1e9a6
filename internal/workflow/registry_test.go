package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliff-rosen/adam-bot/internal/repository"
	"github.com/cliff-rosen/adam-bot/pkg/models"
)

func registryDefinition(name, category string) *models.GraphDefinition {
	return &models.GraphDefinition{
		Name:      name,
		Category:  category,
		EntryNode: "only",
		Nodes: map[string]models.NodeDefinition{
			"only": {ID: "only", Kind: models.NodeKindExecute, Execute: &models.ExecuteSpec{Goal: "g", OutputField: "out"}},
		},
	}
}

func TestRegistryRegisterValidates(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(repository.NewMemoryStore())

	broken := registryDefinition("broken", "")
	broken.EntryNode = "ghost"
	_, err := registry.Register(ctx, broken)
	require.Error(t, err)

	var designErr *models.GraphDesignError
	assert.ErrorAs(t, err, &designErr)
}

func TestRegistryVersioningAndLatest(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(repository.NewMemoryStore())

	v1, err := registry.Register(ctx, registryDefinition("pipeline", "ops"))
	require.NoError(t, err)

	v2Def := registryDefinition("pipeline", "ops")
	v2Def.WorkflowID = v1.WorkflowID
	v2, err := registry.Register(ctx, v2Def)
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)

	latest, err := registry.Latest(ctx, v1.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, latest.ID)

	// Pinned lookups still serve the old version.
	pinned, err := registry.Get(ctx, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, pinned.Version)

	// List only shows latest versions.
	defs, err := registry.List(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, v2.ID, defs[0].ID)
}

func TestRegistryCategories(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(repository.NewMemoryStore())

	_, err := registry.Register(ctx, registryDefinition("a", "writing"))
	require.NoError(t, err)
	_, err = registry.Register(ctx, registryDefinition("b", "ops"))
	require.NoError(t, err)
	_, err = registry.Register(ctx, registryDefinition("c", "ops"))
	require.NoError(t, err)

	categories, err := registry.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ops", "writing"}, categories)

	ops, err := registry.ByCategory(ctx, "ops")
	require.NoError(t, err)
	assert.Len(t, ops, 2)
}

func TestRegistryLoadAllWarmsCache(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()

	def := registryDefinition("warm", "")
	require.NoError(t, store.CreateDefinition(ctx, def))

	registry := NewRegistry(store)
	require.NoError(t, registry.LoadAll(ctx))

	got, err := registry.Get(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, "warm", got.Name)
}

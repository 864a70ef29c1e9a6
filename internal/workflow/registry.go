package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cliff-rosen/adam-bot/internal/repository"
	"github.com/cliff-rosen/adam-bot/pkg/models"
)

// Registry is an in-process cache of published graph definitions on top
// of the definition store. Definitions are validated on the way in, so
// everything served from the registry is structurally sound.
type Registry struct {
	store repository.DefinitionStore

	mu   sync.RWMutex
	byID map[string]*models.GraphDefinition
}

// NewRegistry creates a registry backed by the given store.
func NewRegistry(store repository.DefinitionStore) *Registry {
	return &Registry{
		store: store,
		byID:  make(map[string]*models.GraphDefinition),
	}
}

// LoadAll warms the cache with every definition version in the store.
func (r *Registry) LoadAll(ctx context.Context) error {
	defs, err := r.store.ListDefinitions(ctx)
	if err != nil {
		return fmt.Errorf("load definitions: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, def := range defs {
		r.byID[def.ID] = def
	}
	return nil
}

// Register validates and publishes a definition, then caches it. Nodes
// declared without an explicit id inherit their map key.
func (r *Registry) Register(ctx context.Context, def *models.GraphDefinition) (*models.GraphDefinition, error) {
	for key, n := range def.Nodes {
		if n.ID == "" {
			n.ID = key
			def.Nodes[key] = n
		}
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if err := r.store.CreateDefinition(ctx, def); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.byID[def.ID] = def
	if def.IsLatest {
		for _, cached := range r.byID {
			if cached.WorkflowID == def.WorkflowID && cached.ID != def.ID {
				cached.IsLatest = false
			}
		}
	}
	r.mu.Unlock()
	return def, nil
}

// Get returns a definition version by id, falling back to the store on a
// cache miss.
func (r *Registry) Get(ctx context.Context, id string) (*models.GraphDefinition, error) {
	r.mu.RLock()
	def, ok := r.byID[id]
	r.mu.RUnlock()
	if ok {
		return def, nil
	}

	def, err := r.store.GetDefinition(ctx, id)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.byID[def.ID] = def
	r.mu.Unlock()
	return def, nil
}

// Latest returns the latest version for a workflow concept.
func (r *Registry) Latest(ctx context.Context, workflowID string) (*models.GraphDefinition, error) {
	r.mu.RLock()
	for _, def := range r.byID {
		if def.WorkflowID == workflowID && def.IsLatest {
			r.mu.RUnlock()
			return def, nil
		}
	}
	r.mu.RUnlock()
	return r.store.GetLatestDefinition(ctx, workflowID)
}

// List returns the latest version of every workflow concept, sorted by
// name.
func (r *Registry) List(ctx context.Context) ([]*models.GraphDefinition, error) {
	defs, err := r.store.ListDefinitions(ctx)
	if err != nil {
		return nil, err
	}

	var out []*models.GraphDefinition
	for _, def := range defs {
		if def.IsLatest {
			out = append(out, def)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ByCategory returns the latest definitions in the given category.
func (r *Registry) ByCategory(ctx context.Context, category string) ([]*models.GraphDefinition, error) {
	defs, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*models.GraphDefinition
	for _, def := range defs {
		if def.Category == category {
			out = append(out, def)
		}
	}
	return out, nil
}

// Categories returns the distinct categories across latest definitions.
func (r *Registry) Categories(ctx context.Context) ([]string, error) {
	defs, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, def := range defs {
		if def.Category != "" && !seen[def.Category] {
			seen[def.Category] = true
			out = append(out, def.Category)
		}
	}
	sort.Strings(out)
	return out, nil
}

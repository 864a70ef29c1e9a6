package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cliff-rosen/adam-bot/pkg/models"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a fully in-memory implementation of Store. Safe for
// concurrent access. Intended for unit testing and development.
type MemoryStore struct {
	mu sync.RWMutex

	definitions map[string]*models.GraphDefinition
	instances   map[string]*models.WorkflowInstance
}

// NewMemoryStore returns a new empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		definitions: make(map[string]*models.GraphDefinition),
		instances:   make(map[string]*models.WorkflowInstance),
	}
}

// CreateDefinition persists a new definition version. A definition with
// the same WorkflowID publishes the next version and clears the previous
// latest flag.
func (s *MemoryStore) CreateDefinition(_ context.Context, def *models.GraphDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if def.ID == "" {
		def.ID = uuid.New().String()
	}
	if _, exists := s.definitions[def.ID]; exists {
		return models.ErrDefinitionExists
	}
	if def.WorkflowID == "" {
		def.WorkflowID = uuid.New().String()
	}

	maxVersion := 0
	for _, existing := range s.definitions {
		if existing.WorkflowID == def.WorkflowID {
			if existing.Version > maxVersion {
				maxVersion = existing.Version
			}
			existing.IsLatest = false
		}
	}
	def.Version = maxVersion + 1
	def.IsLatest = true

	now := time.Now().UTC()
	def.CreatedAt = now
	def.UpdatedAt = now

	s.definitions[def.ID] = def
	return nil
}

// GetDefinition retrieves a definition version by id.
func (s *MemoryStore) GetDefinition(_ context.Context, id string) (*models.GraphDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.definitions[id]
	if !ok {
		return nil, models.ErrDefinitionNotFound
	}
	return def, nil
}

// GetLatestDefinition retrieves the latest version for a workflow concept.
func (s *MemoryStore) GetLatestDefinition(_ context.Context, workflowID string) (*models.GraphDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, def := range s.definitions {
		if def.WorkflowID == workflowID && def.IsLatest {
			return def, nil
		}
	}
	return nil, models.ErrDefinitionNotFound
}

// ListDefinitions returns all definition versions sorted by name, then
// version.
func (s *MemoryStore) ListDefinitions(_ context.Context) ([]*models.GraphDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.GraphDefinition, 0, len(s.definitions))
	for _, def := range s.definitions {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Version < out[j].Version
	})
	return out, nil
}

// CreateInstance persists a new instance.
func (s *MemoryStore) CreateInstance(_ context.Context, inst *models.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.instances[inst.ID] = inst.Clone()
	return nil
}

// GetInstance retrieves a point-in-time copy of an instance.
func (s *MemoryStore) GetInstance(_ context.Context, id string) (*models.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[id]
	if !ok {
		return nil, models.ErrInstanceNotFound
	}
	return inst.Clone(), nil
}

// SaveInstance replaces the stored instance if the caller's Version
// matches, then bumps the Version. A mismatch returns models.ErrConflict.
func (s *MemoryStore) SaveInstance(_ context.Context, inst *models.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.instances[inst.ID]
	if !ok {
		return models.ErrInstanceNotFound
	}
	if stored.Version != inst.Version {
		return models.ErrConflict
	}

	inst.Version++
	inst.UpdatedAt = time.Now().UTC()
	s.instances[inst.ID] = inst.Clone()
	return nil
}

// ListInstances returns instances matching the given options, newest
// first.
func (s *MemoryStore) ListInstances(_ context.Context, opts InstanceListOpts) ([]*models.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.WorkflowInstance
	for _, inst := range s.instances {
		if opts.Status != "" && inst.Status != opts.Status {
			continue
		}
		if opts.WorkflowID != "" && inst.WorkflowID != opts.WorkflowID {
			continue
		}
		out = append(out, inst.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

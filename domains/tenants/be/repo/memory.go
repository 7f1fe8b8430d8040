package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/craftline/craftline-platform/domains/tenants/be/service"
)

// MemoryRepository is a simple in-memory implementation suitable for tests
// and early development.
type MemoryRepository struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]service.Tenant
	bySlug map[string]uuid.UUID
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[uuid.UUID]service.Tenant), bySlug: make(map[string]uuid.UUID)}
}

func (r *MemoryRepository) Create(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bySlug[t.Slug]; exists {
		return service.Tenant{}, service.ErrConflictSlug
	}

	r.byID[t.ID] = cloneTenant(t)
	r.bySlug[t.Slug] = t.ID
	return t, nil
}

func (r *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (service.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byID[id]
	if !ok {
		return service.Tenant{}, service.ErrNotFound
	}
	return cloneTenant(t), nil
}

func (r *MemoryRepository) FindBySlug(ctx context.Context, slug string) (service.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.bySlug[slug]
	if !ok {
		return service.Tenant{}, service.ErrNotFound
	}
	return cloneTenant(r.byID[id]), nil
}

func (r *MemoryRepository) List(ctx context.Context, opts service.ListOptions) ([]service.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]service.Tenant, 0, len(r.byID))
	for _, t := range r.byID {
		if opts.Status != nil && t.Status != *opts.Status {
			continue
		}
		items = append(items, cloneTenant(t))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status service.Status) (service.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byID[id]
	if !ok {
		return service.Tenant{}, service.ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	r.byID[id] = t
	return cloneTenant(t), nil
}

func (r *MemoryRepository) CommitRotation(ctx context.Context, id uuid.UUID, newDB string) (service.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byID[id]
	if !ok {
		return service.Tenant{}, service.ErrNotFound
	}
	t.AllDatabases = append(append([]string(nil), t.AllDatabases...), newDB)
	t.CurrentDB = newDB
	t.UpdatedAt = time.Now().UTC()
	r.byID[id] = t
	return cloneTenant(t), nil
}

func cloneTenant(t service.Tenant) service.Tenant {
	t.AllDatabases = append([]string(nil), t.AllDatabases...)
	return t
}

var _ service.Repository = (*MemoryRepository)(nil)

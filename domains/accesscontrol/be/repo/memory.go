package repo

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/craftline/craftline-platform/domains/accesscontrol/be/service"
)

// MemoryRepository is an in-memory implementation suitable for tests.
type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]service.Configuration
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[uuid.UUID]service.Configuration)}
}

func (r *MemoryRepository) FindBucket(ctx context.Context, tenantID, companyID uuid.UUID, typ string) ([]service.Configuration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var items []service.Configuration
	for _, c := range r.byID {
		if c.TenantID == tenantID && c.CompanyID == companyID && c.Type == typ && c.IsActive {
			items = append(items, c)
		}
	}
	// Map iteration order is random on purpose: the resolver must not
	// depend on the order a store returns records.
	return items, nil
}

func (r *MemoryRepository) Save(ctx context.Context, c service.Configuration) (service.Configuration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[c.ID] = c
	return c, nil
}

var _ service.Repository = (*MemoryRepository)(nil)

package repo

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-directory/platform/go/persistence"
)

// MemoryRepository is a simple in-memory implementation suitable for tests and early development.
type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]persistence.TenantRecord
	now  func() time.Time
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[uuid.UUID]persistence.TenantRecord), now: time.Now}
}

func (r *MemoryRepository) UpsertLocalization(_ context.Context, id uuid.UUID, country *string) (persistence.TenantRecord, error) {
	if id == uuid.Nil {
		return persistence.TenantRecord{}, errors.New("tenant uuid is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := persistence.TenantRecord{UUID: id, UpdatedAt: r.now().UTC()}
	if country != nil {
		c := *country
		rec.Country = &c
	}
	r.byID[id] = rec
	return rec, nil
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (persistence.TenantRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byID[id]
	if !ok {
		return persistence.TenantRecord{}, persistence.ErrTenantNotFound
	}
	return rec, nil
}

// Ensure interface compliance.
var _ Repository = (*MemoryRepository)(nil)

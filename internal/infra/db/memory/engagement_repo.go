package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/bryanwahyu/auditportal/internal/domain/engagements"
	"github.com/bryanwahyu/auditportal/internal/domain/reviews"
)

type EngagementRepository struct {
	mu   sync.RWMutex
	rows map[string]map[string]engagements.Engagement
}

func NewEngagementRepository() *EngagementRepository {
	return &EngagementRepository{rows: map[string]map[string]engagements.Engagement{}}
}

// Register upserts by (tenant, id).
func (r *EngagementRepository) Register(ctx context.Context, e *engagements.Engagement) error {
	if e.ID == "" || e.TenantID == "" {
		return fmt.Errorf("%w: engagement id and tenant are required", reviews.ErrInvalidArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rows[e.TenantID] == nil {
		r.rows[e.TenantID] = map[string]engagements.Engagement{}
	}
	r.rows[e.TenantID][e.ID] = *e
	return nil
}

func (r *EngagementRepository) Get(ctx context.Context, tenant, id string) (*engagements.Engagement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.rows[tenant][id]
	if !ok {
		return nil, reviews.ErrNotFound
	}
	return &e, nil
}

func (r *EngagementRepository) Exists(ctx context.Context, tenant, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rows[tenant][id]
	return ok, nil
}

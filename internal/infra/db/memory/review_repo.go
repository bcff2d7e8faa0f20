package memory

import (
	"context"
	"sync"

	domain "github.com/bryanwahyu/auditportal/internal/domain/reviews"
)

// ReviewRepository keeps reviews in process memory. Every value going in or
// out is deep-copied so callers never alias stored state.
type ReviewRepository struct {
	mu   sync.RWMutex
	byID map[domain.ReviewID]*domain.AnalyticalReview
	// tenant -> engagementRef -> id
	byEngagement map[string]map[string]domain.ReviewID
}

func NewReviewRepository() *ReviewRepository {
	return &ReviewRepository{
		byID:         map[domain.ReviewID]*domain.AnalyticalReview{},
		byEngagement: map[string]map[string]domain.ReviewID{},
	}
}

func (r *ReviewRepository) Create(ctx context.Context, review *domain.AnalyticalReview) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byEngagement[review.TenantID][review.EngagementRef]; ok {
		return &domain.DuplicateError{EngagementRef: review.EngagementRef, ExistingID: id}
	}
	if _, ok := r.byID[review.ID]; ok {
		return domain.ErrConflict
	}
	review.Revision = 1
	r.byID[review.ID] = review.Clone()
	if r.byEngagement[review.TenantID] == nil {
		r.byEngagement[review.TenantID] = map[string]domain.ReviewID{}
	}
	r.byEngagement[review.TenantID][review.EngagementRef] = review.ID
	return nil
}

func (r *ReviewRepository) Find(ctx context.Context, tenant string, t domain.Target) (*domain.AnalyticalReview, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id := t.ID
	if id == "" {
		var ok bool
		if id, ok = r.byEngagement[tenant][t.EngagementRef]; !ok {
			return nil, domain.ErrNotFound
		}
	}
	stored, ok := r.byID[id]
	if !ok || stored.TenantID != tenant {
		return nil, domain.ErrNotFound
	}
	if t.EngagementRef != "" && stored.EngagementRef != t.EngagementRef {
		return nil, domain.ErrNotFound
	}
	return stored.Clone(), nil
}

func (r *ReviewRepository) Update(ctx context.Context, review *domain.AnalyticalReview, expectedRevision int64, snap *domain.VersionSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[review.ID]
	if !ok || stored.TenantID != review.TenantID {
		return domain.ErrNotFound
	}
	if stored.Revision != expectedRevision {
		return domain.ErrConflict
	}
	if snap != nil {
		for _, v := range stored.Versions {
			if v.VersionNumber == snap.VersionNumber {
				return domain.ErrConflict
			}
		}
	}
	review.Revision = expectedRevision + 1
	r.byID[review.ID] = review.Clone()
	return nil
}

func (r *ReviewRepository) Delete(ctx context.Context, tenant string, id domain.ReviewID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[id]
	if !ok || stored.TenantID != tenant {
		return domain.ErrNotFound
	}
	delete(r.byID, id)
	delete(r.byEngagement[tenant], stored.EngagementRef)
	return nil
}

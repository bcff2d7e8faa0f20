package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/bryanwahyu/auditportal/internal/domain/ai"
)

type SuggestionRepository struct {
	mu   sync.Mutex
	rows []ai.Suggestion
}

func NewSuggestionRepository() *SuggestionRepository { return &SuggestionRepository{} }

func (r *SuggestionRepository) Save(ctx context.Context, s *ai.Suggestion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	cp.Result.KeyFindings = append([]string{}, s.Result.KeyFindings...)
	r.rows = append(r.rows, cp)
	return nil
}

// ListByReview pages newest first.
func (r *SuggestionRepository) ListByReview(ctx context.Context, tenant, reviewID string, page, pageSize int) ([]*ai.Suggestion, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*ai.Suggestion
	for i := range r.rows {
		if r.rows[i].TenantID == tenant && r.rows[i].ReviewID == reviewID {
			cp := r.rows[i]
			matched = append(matched, &cp)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	out := []*ai.Suggestion{}
	start := (page - 1) * pageSize
	if start >= len(matched) {
		return out, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return append(out, matched[start:end]...), nil
}

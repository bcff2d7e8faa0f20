package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	domain "github.com/bryanwahyu/auditportal/internal/domain/ai"
)

type SuggestionRepository struct {
	db *sql.DB
}

func NewSuggestionRepository(db *sql.DB) *SuggestionRepository {
	return &SuggestionRepository{db: db}
}

// Save inserts a suggestion record
func (r *SuggestionRepository) Save(ctx context.Context, s *domain.Suggestion) error {
	const q = `
INSERT INTO ai_suggestions
  (id, tenant_id, review_id, requested_by, result_json, raw, created_at)
VALUES (?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
  result_json=VALUES(result_json), raw=VALUES(raw);
`
	result, err := json.Marshal(s.Result)
	if err != nil {
		return err
	}
	createdAt := s.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = r.db.ExecContext(ctx, q, s.ID, s.TenantID, s.ReviewID, stringOrDash(s.RequestedBy), string(result), s.Raw, createdAt.UTC())
	return err
}

// ListByReview returns a page of suggestions ordered by created_at desc
func (r *SuggestionRepository) ListByReview(ctx context.Context, tenant, reviewID string, page, pageSize int) ([]*domain.Suggestion, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	const q = `
SELECT id, tenant_id, review_id, requested_by, result_json, raw, created_at
FROM ai_suggestions
WHERE tenant_id=? AND review_id=?
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?;
`
	rows, err := r.db.QueryContext(ctx, q, tenant, reviewID, pageSize, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*domain.Suggestion{}
	for rows.Next() {
		var s domain.Suggestion
		var result []byte
		if err := rows.Scan(&s.ID, &s.TenantID, &s.ReviewID, &s.RequestedBy, &result, &s.Raw, &s.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(result, &s.Result); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

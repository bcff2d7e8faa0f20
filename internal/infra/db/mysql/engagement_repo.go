package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/bryanwahyu/auditportal/internal/domain/engagements"
	"github.com/bryanwahyu/auditportal/internal/domain/reviews"
)

type EngagementRepository struct {
	db *sql.DB
}

func NewEngagementRepository(db *sql.DB) *EngagementRepository {
	return &EngagementRepository{db: db}
}

// Register inserts or updates an engagement
func (r *EngagementRepository) Register(ctx context.Context, e *engagements.Engagement) error {
	const q = `
INSERT INTO engagements (tenant_id, id, name, client_id, fiscal_year_end, created_at)
VALUES (?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
  name=VALUES(name), client_id=VALUES(client_id), fiscal_year_end=VALUES(fiscal_year_end);
`
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q, e.TenantID, e.ID, e.Name, e.ClientID, e.FiscalYearEnd, createdAt.UTC())
	return err
}

func (r *EngagementRepository) Get(ctx context.Context, tenant, id string) (*engagements.Engagement, error) {
	const q = `
SELECT tenant_id, id, name, client_id, fiscal_year_end, created_at
FROM engagements
WHERE tenant_id=? AND id=? LIMIT 1;
`
	var e engagements.Engagement
	err := r.db.QueryRowContext(ctx, q, tenant, id).Scan(&e.TenantID, &e.ID, &e.Name, &e.ClientID, &e.FiscalYearEnd, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, reviews.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EngagementRepository) Exists(ctx context.Context, tenant, id string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM engagements WHERE tenant_id=? AND id=?`, tenant, id).Scan(&n)
	return n > 0, err
}

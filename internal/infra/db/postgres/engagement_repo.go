package postgres

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
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (tenant_id, id) DO UPDATE SET
  name=EXCLUDED.name,
  client_id=EXCLUDED.client_id,
  fiscal_year_end=EXCLUDED.fiscal_year_end;`
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
WHERE tenant_id=$1 AND id=$2;`
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
	var ok bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM engagements WHERE tenant_id=$1 AND id=$2)`, tenant, id).Scan(&ok)
	return ok, err
}

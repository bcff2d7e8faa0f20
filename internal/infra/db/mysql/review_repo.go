package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	domain "github.com/bryanwahyu/auditportal/internal/domain/reviews"
)

const engagementKey = "analytical_reviews_engagement_key"

type ReviewRepository struct {
	db *sql.DB
}

func NewReviewRepository(db *sql.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

const reviewColumns = `
id, tenant_id, engagement_ref, auditor_id, client_id, working_data, status, current_version,
submitted_at, submitted_by, reviewed_at, reviewed_by, review_comments, approved_at, approved_by,
last_edited_by, last_edited_at, created_at, updated_at, revision`

func (r *ReviewRepository) Create(ctx context.Context, review *domain.AnalyticalReview) error {
	data, err := json.Marshal(review.WorkingData)
	if err != nil {
		return fmt.Errorf("encode working data: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
INSERT INTO analytical_reviews (` + reviewColumns + `)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,1);`
	_, err = tx.ExecContext(ctx, q,
		review.ID, review.TenantID, review.EngagementRef, review.AuditorID, review.ClientID,
		string(data), review.Status, review.CurrentVersion,
		nullTime(review.SubmittedAt), review.SubmittedBy,
		nullTime(review.ReviewedAt), review.ReviewedBy, review.ReviewComments,
		nullTime(review.ApprovedAt), review.ApprovedBy,
		review.LastEditedBy, nullTime(review.LastEditedAt),
		review.CreatedAt.UTC(), review.UpdatedAt.UTC(),
	)
	if err != nil {
		if isDuplicateKey(err, engagementKey) {
			_ = tx.Rollback()
			return r.duplicate(ctx, review)
		}
		if isDuplicateKey(err, "") {
			return domain.ErrConflict
		}
		return err
	}
	for i := range review.Versions {
		if err := insertVersion(ctx, tx, review.ID, &review.Versions[i]); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	review.Revision = 1
	return nil
}

func (r *ReviewRepository) duplicate(ctx context.Context, review *domain.AnalyticalReview) error {
	var existing string
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM analytical_reviews WHERE tenant_id=? AND engagement_ref=? LIMIT 1`,
		review.TenantID, review.EngagementRef).Scan(&existing)
	if err != nil {
		return domain.ErrConflict
	}
	return &domain.DuplicateError{EngagementRef: review.EngagementRef, ExistingID: domain.ReviewID(existing)}
}

func (r *ReviewRepository) Find(ctx context.Context, tenant string, t domain.Target) (*domain.AnalyticalReview, error) {
	var row *sql.Row
	switch {
	case t.ID != "" && t.EngagementRef != "":
		row = r.db.QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM analytical_reviews WHERE tenant_id=? AND id=? AND engagement_ref=? LIMIT 1`, tenant, t.ID, t.EngagementRef)
	case t.ID != "":
		row = r.db.QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM analytical_reviews WHERE tenant_id=? AND id=? LIMIT 1`, tenant, t.ID)
	default:
		row = r.db.QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM analytical_reviews WHERE tenant_id=? AND engagement_ref=? LIMIT 1`, tenant, t.EngagementRef)
	}
	review, err := scanReview(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT version_number, data, edited_by, edited_at, change_note, ip_address
FROM analytical_review_versions
WHERE review_id=?
ORDER BY version_number ASC;`, review.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var v domain.VersionSnapshot
		var raw []byte
		if err := rows.Scan(&v.VersionNumber, &raw, &v.EditedBy, &v.EditedAt, &v.ChangeNote, &v.IPAddress); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &v.Data); err != nil {
			return nil, fmt.Errorf("decode version %d: %w", v.VersionNumber, err)
		}
		review.Versions = append(review.Versions, v)
	}
	return review, rows.Err()
}

// Update is a compare-and-swap on revision; the snapshot row goes in the same
// transaction so history and currentVersion never diverge.
func (r *ReviewRepository) Update(ctx context.Context, review *domain.AnalyticalReview, expectedRevision int64, snap *domain.VersionSnapshot) error {
	data, err := json.Marshal(review.WorkingData)
	if err != nil {
		return fmt.Errorf("encode working data: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
UPDATE analytical_reviews SET
  working_data=?, status=?, current_version=?,
  submitted_at=?, submitted_by=?, reviewed_at=?, reviewed_by=?, review_comments=?,
  approved_at=?, approved_by=?, last_edited_by=?, last_edited_at=?, updated_at=?,
  revision=revision+1
WHERE tenant_id=? AND id=? AND revision=?;`
	res, err := tx.ExecContext(ctx, q,
		string(data), review.Status, review.CurrentVersion,
		nullTime(review.SubmittedAt), review.SubmittedBy,
		nullTime(review.ReviewedAt), review.ReviewedBy, review.ReviewComments,
		nullTime(review.ApprovedAt), review.ApprovedBy,
		review.LastEditedBy, nullTime(review.LastEditedAt), review.UpdatedAt.UTC(),
		review.TenantID, review.ID, expectedRevision,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM analytical_reviews WHERE tenant_id=? AND id=?`, review.TenantID, review.ID).Scan(&count); err != nil {
			return err
		}
		if count == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrConflict
	}

	if snap != nil {
		if err := insertVersion(ctx, tx, review.ID, snap); err != nil {
			if isDuplicateKey(err, "") {
				return domain.ErrConflict
			}
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	review.Revision = expectedRevision + 1
	return nil
}

func (r *ReviewRepository) Delete(ctx context.Context, tenant string, id domain.ReviewID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM analytical_reviews WHERE tenant_id=? AND id=?`, tenant, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func insertVersion(ctx context.Context, tx *sql.Tx, id domain.ReviewID, v *domain.VersionSnapshot) error {
	data, err := json.Marshal(v.Data)
	if err != nil {
		return fmt.Errorf("encode version %d: %w", v.VersionNumber, err)
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO analytical_review_versions
  (review_id, version_number, data, edited_by, edited_at, change_note, ip_address)
VALUES (?,?,?,?,?,?,?);`,
		id, v.VersionNumber, string(data), v.EditedBy, v.EditedAt.UTC(), v.ChangeNote, v.IPAddress)
	return err
}

func scanReview(row *sql.Row) (*domain.AnalyticalReview, error) {
	var (
		rv                                          domain.AnalyticalReview
		raw                                         []byte
		submitted, reviewed, approved, lastEditedAt sql.NullTime
	)
	if err := row.Scan(
		&rv.ID, &rv.TenantID, &rv.EngagementRef, &rv.AuditorID, &rv.ClientID, &raw, &rv.Status, &rv.CurrentVersion,
		&submitted, &rv.SubmittedBy, &reviewed, &rv.ReviewedBy, &rv.ReviewComments, &approved, &rv.ApprovedBy,
		&rv.LastEditedBy, &lastEditedAt, &rv.CreatedAt, &rv.UpdatedAt, &rv.Revision,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &rv.WorkingData); err != nil {
		return nil, fmt.Errorf("decode working data: %w", err)
	}
	rv.WorkingData = rv.WorkingData.Clone()
	rv.SubmittedAt = timePtr(submitted)
	rv.ReviewedAt = timePtr(reviewed)
	rv.ApprovedAt = timePtr(approved)
	rv.LastEditedAt = timePtr(lastEditedAt)
	rv.Versions = []domain.VersionSnapshot{}
	return &rv, nil
}

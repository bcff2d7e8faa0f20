package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/auditportal/internal/domain/ai"
	"github.com/bryanwahyu/auditportal/internal/domain/engagements"
	domain "github.com/bryanwahyu/auditportal/internal/domain/reviews"
)

func openTestDB(t *testing.T) *ReviewRepository {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("set TEST_POSTGRES_DSN to run postgres integration tests")
	}
	ctx := context.Background()
	db, err := Connect(ctx, dsn)
	if err != nil {
		t.Skipf("postgres not reachable: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewReviewRepository(db)
}

func TestPostgresReviewLifecycle(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()
	tenant := "it-" + uuid.NewString()[:8]
	now := time.Now().UTC().Truncate(time.Millisecond)

	engs := NewEngagementRepository(repo.db)
	if err := engs.Register(ctx, &engagements.Engagement{ID: "eng-1", TenantID: tenant, Name: "FY26"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if ok, err := engs.Exists(ctx, tenant, "eng-1"); err != nil || !ok {
		t.Fatalf("exists = %v, %v", ok, err)
	}

	data := domain.EmptyWorkingData()
	data.Ratios = domain.Ratios{"current": domain.Number(1.5), "mix": domain.Record(map[string]domain.RatioValue{"a": domain.Text("x")})}
	r := domain.NewReview(domain.ReviewID(uuid.NewString()), tenant, "eng-1", "alice", "c", data, now)
	if err := repo.Create(ctx, r); err != nil {
		t.Fatalf("create: %v", err)
	}

	dup := domain.NewReview(domain.ReviewID(uuid.NewString()), tenant, "eng-1", "bob", "c", data, now)
	var dupErr *domain.DuplicateError
	if err := repo.Create(ctx, dup); !errors.As(err, &dupErr) || dupErr.ExistingID != r.ID {
		t.Fatalf("duplicate err = %v", err)
	}

	a, err := repo.Find(ctx, tenant, domain.ByEngagement("eng-1"))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !a.WorkingData.Ratios.Equal(data.Ratios) {
		t.Fatalf("ratios = %+v", a.WorkingData.Ratios)
	}
	b, _ := repo.Find(ctx, tenant, domain.ByID(r.ID))

	c := "A"
	snap, _ := a.ApplyUpdate(domain.Patch{Commentary: &c}, domain.EditMeta{Actor: domain.Actor{ID: "alice"}, At: now})
	if err := repo.Update(ctx, a, a.Revision, &snap); err != nil {
		t.Fatalf("update: %v", err)
	}
	snapB, _ := b.ApplyUpdate(domain.Patch{}, domain.EditMeta{At: now})
	if err := repo.Update(ctx, b, b.Revision, &snapB); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("stale update err = %v", err)
	}

	got, _ := repo.Find(ctx, tenant, domain.ByID(r.ID))
	if got.CurrentVersion != 2 || len(got.Versions) != 1 || got.Versions[0].VersionNumber != 1 || got.WorkingData.Commentary != "A" {
		t.Fatalf("stored = %+v", got)
	}

	sugs := NewSuggestionRepository(repo.db)
	if err := sugs.Save(ctx, &ai.Suggestion{ID: ai.SuggestionID(uuid.NewString()), TenantID: tenant, ReviewID: string(r.ID), CreatedAt: now}); err != nil {
		t.Fatalf("save suggestion: %v", err)
	}
	list, err := sugs.ListByReview(ctx, tenant, string(r.ID), 1, 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("suggestions = %v, %v", list, err)
	}

	if err := repo.Delete(ctx, tenant, r.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Find(ctx, tenant, domain.ByID(r.ID)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("find after delete err = %v", err)
	}
}

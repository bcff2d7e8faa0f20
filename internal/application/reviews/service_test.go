package reviews

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bryanwahyu/auditportal/internal/domain/engagements"
	domain "github.com/bryanwahyu/auditportal/internal/domain/reviews"
	"github.com/bryanwahyu/auditportal/internal/infra/db/memory"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakeArchive struct {
	mu   sync.Mutex
	puts map[string][]byte
	err  error
}

func (a *fakeArchive) Put(ctx context.Context, key string, body []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	if a.puts == nil {
		a.puts = map[string][]byte{}
	}
	a.puts[key] = body
	return "s3://archive/" + key, nil
}

var (
	alice = domain.Actor{ID: "alice", Role: "auditor"}
	bob   = domain.Actor{ID: "bob", Role: "auditor"}
	admin = domain.Actor{ID: "zoe", Role: "admin"}
)

func strp(s string) *string { return &s }

func newService(t *testing.T) (*Service, *memory.ReviewRepository) {
	t.Helper()
	repo := memory.NewReviewRepository()
	engs := memory.NewEngagementRepository()
	for _, id := range []string{"eng-1", "eng-2"} {
		if err := engs.Register(context.Background(), &engagements.Engagement{ID: id, TenantID: "acme"}); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	return &Service{
		Repo:        repo,
		Engagements: engs,
		Clock:       fixedClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
	}, repo
}

func create(t *testing.T, s *Service) *domain.AnalyticalReview {
	t.Helper()
	r, err := s.Create(context.Background(), CreateCommand{TenantID: "acme", EngagementRef: "eng-1", AuditorID: "alice", ClientID: "c-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return r
}

func TestCreateDefaultsAndUniqueness(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	r := create(t, s)
	if r.Status != domain.StatusDraft || r.CurrentVersion != 1 || r.WorkingData.RiskAssessment != domain.RiskUnset {
		t.Fatalf("created = %+v", r)
	}

	_, err := s.Create(ctx, CreateCommand{TenantID: "acme", EngagementRef: "eng-1", AuditorID: "bob"})
	var dup *domain.DuplicateError
	if !errors.As(err, &dup) || dup.ExistingID != r.ID {
		t.Fatalf("second create err = %v", err)
	}
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatal("duplicate should match ErrConflict")
	}
}

func TestCreateValidation(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	cases := []struct {
		name string
		cmd  CreateCommand
		want error
	}{
		{name: "missing engagement", cmd: CreateCommand{TenantID: "acme", AuditorID: "alice"}, want: domain.ErrInvalidArgument},
		{name: "missing auditor", cmd: CreateCommand{TenantID: "acme", EngagementRef: "eng-1"}, want: domain.ErrInvalidArgument},
		{name: "unknown engagement", cmd: CreateCommand{TenantID: "acme", EngagementRef: "nope", AuditorID: "alice"}, want: domain.ErrNotFound},
		{name: "engagement of other tenant", cmd: CreateCommand{TenantID: "globex", EngagementRef: "eng-1", AuditorID: "alice"}, want: domain.ErrNotFound},
		{name: "bad risk", cmd: CreateCommand{TenantID: "acme", EngagementRef: "eng-1", AuditorID: "alice", Initial: domain.Patch{RiskAssessment: strp("huge")}}, want: domain.ErrInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.Create(ctx, tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCreateWithInitialData(t *testing.T) {
	s, _ := newService(t)
	r, err := s.Create(context.Background(), CreateCommand{
		TenantID: "acme", EngagementRef: "eng-2", AuditorID: "alice",
		Initial: domain.Patch{Commentary: strp("seed"), RiskAssessment: strp("low")},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.WorkingData.Commentary != "seed" || r.WorkingData.RiskAssessment != domain.RiskLow || r.WorkingData.KeyFindings == nil {
		t.Fatalf("working data = %+v", r.WorkingData)
	}
}

func TestEndToEndScenario(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	r := create(t, s)
	byEng := domain.ByEngagement("eng-1")

	if _, err := s.Update(ctx, "acme", byEng, alice, UpdateCommand{Patch: domain.Patch{Commentary: strp("A")}}); err != nil {
		t.Fatalf("update A: %v", err)
	}
	if _, err := s.Update(ctx, "acme", domain.ByID(r.ID), alice, UpdateCommand{Patch: domain.Patch{Commentary: strp("B")}, ChangeNote: "second pass", IPAddress: "10.0.0.1"}); err != nil {
		t.Fatalf("update B: %v", err)
	}
	got, _ := s.Get(ctx, "acme", byEng)
	if got.CurrentVersion != 3 || got.WorkingData.Commentary != "B" {
		t.Fatalf("after updates: version=%d commentary=%q", got.CurrentVersion, got.WorkingData.Commentary)
	}

	v2, err := s.Version(ctx, "acme", byEng, 2)
	if err != nil || v2.Data.Commentary != "A" || v2.ChangeNote != "second pass" || v2.IPAddress != "10.0.0.1" {
		t.Fatalf("version 2 = %+v, %v", v2, err)
	}

	restored, err := s.RestoreVersion(ctx, "acme", byEng, 2, alice, "", "")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.CurrentVersion != 4 || restored.WorkingData.Commentary != "A" {
		t.Fatalf("after restore: version=%d commentary=%q", restored.CurrentVersion, restored.WorkingData.Commentary)
	}
	versions, _ := s.Versions(ctx, "acme", byEng)
	if len(versions) != 3 || versions[0].VersionNumber != 3 || versions[0].ChangeNote != "Restored to version 2" {
		t.Fatalf("versions = %+v", versions)
	}

	if _, err := s.SubmitForReview(ctx, "acme", byEng, alice); err != nil {
		t.Fatalf("submit: %v", err)
	}
	approved, err := s.Approve(ctx, "acme", byEng, bob, "ok")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != domain.StatusApproved || approved.ApprovedBy != "bob" || approved.CurrentVersion != 4 {
		t.Fatalf("approved = %+v", approved)
	}
}

func TestRestoreRatiosByVersionNumber(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	create(t, s)
	byEng := domain.ByEngagement("eng-1")

	ratios := domain.Ratios{"current_ratio": domain.Number(1.5)}
	if _, err := s.Update(ctx, "acme", byEng, alice, UpdateCommand{Patch: domain.Patch{Ratios: &ratios}}); err != nil {
		t.Fatalf("update ratios: %v", err)
	}
	if _, err := s.Update(ctx, "acme", byEng, alice, UpdateCommand{Patch: domain.Patch{Commentary: strp("ok")}}); err != nil {
		t.Fatalf("update commentary: %v", err)
	}

	r, err := s.RestoreVersion(ctx, "acme", byEng, 1, alice, "", "")
	if err != nil {
		t.Fatalf("restore 1: %v", err)
	}
	if len(r.WorkingData.Ratios) != 0 || r.WorkingData.Commentary != "" || r.CurrentVersion != 4 {
		t.Fatalf("after restore 1: version=%d data=%+v", r.CurrentVersion, r.WorkingData)
	}

	r, err = s.RestoreVersion(ctx, "acme", byEng, 2, alice, "", "")
	if err != nil {
		t.Fatalf("restore 2: %v", err)
	}
	got, ok := r.WorkingData.Ratios["current_ratio"]
	if len(r.WorkingData.Ratios) != 1 || !ok || !got.Equal(domain.Number(1.5)) || r.CurrentVersion != 5 {
		t.Fatalf("after restore 2: version=%d ratios=%+v", r.CurrentVersion, r.WorkingData.Ratios)
	}
	if r.WorkingData.Commentary != "" {
		t.Fatalf("version 2 predates the commentary edit, got %q", r.WorkingData.Commentary)
	}
}

func TestForbiddenLeavesStateUnchanged(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	r := create(t, s)
	target := domain.ByID(r.ID)

	if _, err := s.Update(ctx, "acme", target, bob, UpdateCommand{Patch: domain.Patch{Commentary: strp("hijack")}}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("update err = %v", err)
	}
	if _, err := s.RestoreVersion(ctx, "acme", target, 1, bob, "", ""); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("restore err = %v", err)
	}
	if _, err := s.SubmitForReview(ctx, "acme", target, bob); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("submit err = %v", err)
	}
	if err := s.Delete(ctx, "acme", target, bob); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("delete err = %v", err)
	}
	got, _ := s.Get(ctx, "acme", target)
	if got.CurrentVersion != 1 || len(got.Versions) != 0 || got.WorkingData.Commentary != "" || got.Status != domain.StatusDraft {
		t.Fatalf("state changed: %+v", got)
	}

	if _, err := s.Update(ctx, "acme", target, admin, UpdateCommand{Patch: domain.Patch{Commentary: strp("by admin")}}); err != nil {
		t.Fatalf("admin update: %v", err)
	}
}

func TestTenantIsolation(t *testing.T) {
	s, _ := newService(t)
	r := create(t, s)
	if _, err := s.Get(context.Background(), "globex", domain.ByID(r.ID)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("cross-tenant get err = %v", err)
	}
}

func TestUpdateUnknownReview(t *testing.T) {
	s, _ := newService(t)
	_, err := s.Update(context.Background(), "acme", domain.ByEngagement("eng-2"), alice, UpdateCommand{})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestRestoreUnknownVersion(t *testing.T) {
	s, _ := newService(t)
	r := create(t, s)
	_, err := s.RestoreVersion(context.Background(), "acme", domain.ByID(r.ID), 9, alice, "", "")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestApprovalPolicies(t *testing.T) {
	ctx := context.Background()

	t.Run("permissive default approves draft", func(t *testing.T) {
		s, _ := newService(t)
		r := create(t, s)
		if _, err := s.Approve(ctx, "acme", domain.ByID(r.ID), bob, ""); err != nil {
			t.Fatalf("approve: %v", err)
		}
	})

	t.Run("require submitted", func(t *testing.T) {
		s, _ := newService(t)
		s.Policy = domain.ApprovalPolicy{RequireSubmitted: true}
		r := create(t, s)
		if _, err := s.Approve(ctx, "acme", domain.ByID(r.ID), bob, ""); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("approve draft err = %v", err)
		}
		if _, err := s.Reject(ctx, "acme", domain.ByID(r.ID), bob, ""); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("reject draft err = %v", err)
		}
	})

	t.Run("reviewer roles", func(t *testing.T) {
		s, _ := newService(t)
		s.Policy = domain.ApprovalPolicy{ReviewerRoles: []string{"manager"}}
		r := create(t, s)
		if _, err := s.Approve(ctx, "acme", domain.ByID(r.ID), bob, ""); !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("auditor approve err = %v", err)
		}
		mgr := domain.Actor{ID: "mia", Role: "manager"}
		if _, err := s.Reject(ctx, "acme", domain.ByID(r.ID), mgr, "redo"); err != nil {
			t.Fatalf("manager reject: %v", err)
		}
	})
}

func TestSetStatus(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	r := create(t, s)
	if _, err := s.SetStatus(ctx, "acme", domain.ByID(r.ID), alice, "bogus"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("bad status err = %v", err)
	}
	got, err := s.SetStatus(ctx, "acme", domain.ByID(r.ID), alice, "in-progress")
	if err != nil || got.Status != domain.StatusInProgress {
		t.Fatalf("set status: %v %+v", err, got)
	}
}

func TestDeleteRemovesHistoryAndFreesEngagement(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	r := create(t, s)
	_, _ = s.Update(ctx, "acme", domain.ByID(r.ID), alice, UpdateCommand{Patch: domain.Patch{Commentary: strp("x")}})

	if err := s.Delete(ctx, "acme", domain.ByID(r.ID), alice); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Versions(ctx, "acme", domain.ByID(r.ID)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("versions after delete err = %v", err)
	}
	create(t, s)
}

// racingRepo holds every Find until n readers arrived, so each writer works
// from the same revision.
type racingRepo struct {
	domain.Repository
	gate sync.WaitGroup
}

func (r *racingRepo) Find(ctx context.Context, tenant string, t domain.Target) (*domain.AnalyticalReview, error) {
	out, err := r.Repository.Find(ctx, tenant, t)
	r.gate.Done()
	r.gate.Wait()
	return out, err
}

func TestConcurrentUpdatesOneWins(t *testing.T) {
	s, repo := newService(t)
	ctx := context.Background()
	r := create(t, s)

	const writers = 2
	race := &racingRepo{Repository: repo}
	race.gate.Add(writers)
	s.Repo = race

	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			note := strings.Repeat("w", i+1)
			_, err := s.Update(ctx, "acme", domain.ByID(r.ID), alice, UpdateCommand{Patch: domain.Patch{Commentary: &note}})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected err: %v", err)
		}
	}
	if ok != 1 || conflicts != 1 {
		t.Fatalf("ok=%d conflicts=%d", ok, conflicts)
	}

	got, err := repo.Find(ctx, "acme", domain.ByID(r.ID))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.CurrentVersion != 2 || len(got.Versions) != 1 || got.Versions[0].VersionNumber != 1 {
		t.Fatalf("history corrupted: version=%d versions=%+v", got.CurrentVersion, got.Versions)
	}
}

func TestApproveArchivesBestEffort(t *testing.T) {
	ctx := context.Background()

	s, _ := newService(t)
	arch := &fakeArchive{}
	s.Archive = arch
	r := create(t, s)
	approved, err := s.Approve(ctx, "acme", domain.ByID(r.ID), bob, "")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	body, ok := arch.puts[ArchiveKey(approved)]
	if !ok {
		t.Fatalf("nothing archived under %s: %v", ArchiveKey(approved), arch.puts)
	}
	var decoded domain.AnalyticalReview
	if err := json.Unmarshal(body, &decoded); err != nil || decoded.Status != domain.StatusApproved {
		t.Fatalf("archived body: %v %+v", err, decoded.Status)
	}

	s2, _ := newService(t)
	s2.Archive = &fakeArchive{err: errors.New("bucket down")}
	r2 := create(t, s2)
	if _, err := s2.Approve(ctx, "acme", domain.ByID(r2.ID), bob, ""); err != nil {
		t.Fatalf("archive failure must not fail approval: %v", err)
	}
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)
	r := create(t, s)
	if _, err := s.Export(ctx, "acme", domain.ByID(r.ID)); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("export without archive err = %v", err)
	}
	s.Archive = &fakeArchive{}
	url, err := s.Export(ctx, "acme", domain.ByID(r.ID))
	if err != nil || url != "s3://archive/acme/eng-1/analytical-review-draft-v1.json" {
		t.Fatalf("export = %q, %v", url, err)
	}
}

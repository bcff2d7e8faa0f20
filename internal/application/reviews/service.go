package reviews

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bryanwahyu/auditportal/internal/application"
	domain "github.com/bryanwahyu/auditportal/internal/domain/reviews"
	"github.com/bryanwahyu/auditportal/internal/logger"
)

// Service implements the analytical review use-cases on top of a
// Repository. It holds no per-review state, so one instance serves all
// requests.
type Service struct {
	Repo        domain.Repository
	Engagements domain.EngagementDirectory
	Archive     domain.Archive // optional
	Clock       application.Clock
	Policy      domain.ApprovalPolicy
	Log         *logger.Logger
}

//
// ==== COMMANDS ====
//

// CreateCommand untuk create review
type CreateCommand struct {
	TenantID      string
	EngagementRef string
	AuditorID     string
	ClientID      string
	Initial       domain.Patch
}

// UpdateCommand carries a partial update and its provenance.
type UpdateCommand struct {
	Patch      domain.Patch
	ChangeNote string
	IPAddress  string
}

//
// ==== USE CASES ====
//

// Create makes the single review for an engagement.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*domain.AnalyticalReview, error) {
	if strings.TrimSpace(cmd.EngagementRef) == "" {
		return nil, fmt.Errorf("%w: engagementRef is required", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(cmd.AuditorID) == "" {
		return nil, fmt.Errorf("%w: auditorId is required", domain.ErrInvalidArgument)
	}
	if err := cmd.Initial.Validate(); err != nil {
		return nil, err
	}

	ok, err := s.Engagements.Exists(ctx, cmd.TenantID, cmd.EngagementRef)
	if err != nil {
		return nil, fmt.Errorf("lookup engagement %s: %w", cmd.EngagementRef, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: engagement %s", domain.ErrNotFound, cmd.EngagementRef)
	}

	if existing, err := s.Repo.Find(ctx, cmd.TenantID, domain.ByEngagement(cmd.EngagementRef)); err == nil {
		return nil, &domain.DuplicateError{EngagementRef: cmd.EngagementRef, ExistingID: existing.ID}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	review := domain.NewReview(
		domain.ReviewID(uuid.NewString()),
		cmd.TenantID,
		cmd.EngagementRef,
		cmd.AuditorID,
		cmd.ClientID,
		initialData(cmd.Initial),
		s.Clock.Now(),
	)
	// The repository's unique key still decides a create race.
	if err := s.Repo.Create(ctx, review); err != nil {
		return nil, err
	}
	s.logger().Info("analytical review created",
		"tenant", cmd.TenantID, "review_id", review.ID, "engagement", cmd.EngagementRef)
	return review, nil
}

// initialData fills whatever the caller left out with empty values.
func initialData(p domain.Patch) domain.WorkingData {
	d := domain.EmptyWorkingData()
	p.ApplyTo(&d)
	return d
}

// Get ambil 1 review by id or engagement
func (s *Service) Get(ctx context.Context, tenant string, t domain.Target) (*domain.AnalyticalReview, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return s.Repo.Find(ctx, tenant, t)
}

// Update snapshots the current data, bumps the version and applies the patch.
func (s *Service) Update(ctx context.Context, tenant string, t domain.Target, actor domain.Actor, cmd UpdateCommand) (*domain.AnalyticalReview, error) {
	return s.mutate(ctx, tenant, t, actor, ownerOnly, func(r *domain.AnalyticalReview) (*domain.VersionSnapshot, error) {
		snap, err := r.ApplyUpdate(cmd.Patch, domain.EditMeta{
			Actor:      actor,
			ChangeNote: cmd.ChangeNote,
			IPAddress:  cmd.IPAddress,
			At:         s.Clock.Now(),
		})
		if err != nil {
			return nil, err
		}
		return &snap, nil
	})
}

// Versions lists the history newest first.
func (s *Service) Versions(ctx context.Context, tenant string, t domain.Target) ([]domain.VersionSnapshot, error) {
	r, err := s.Get(ctx, tenant, t)
	if err != nil {
		return nil, err
	}
	return r.VersionsDesc(), nil
}

// Version returns one snapshot.
func (s *Service) Version(ctx context.Context, tenant string, t domain.Target, n int) (domain.VersionSnapshot, error) {
	r, err := s.Get(ctx, tenant, t)
	if err != nil {
		return domain.VersionSnapshot{}, err
	}
	return r.Version(n)
}

// RestoreVersion records the present state as a new version and then
// replaces the working data with version n.
func (s *Service) RestoreVersion(ctx context.Context, tenant string, t domain.Target, n int, actor domain.Actor, changeNote, ip string) (*domain.AnalyticalReview, error) {
	return s.mutate(ctx, tenant, t, actor, ownerOnly, func(r *domain.AnalyticalReview) (*domain.VersionSnapshot, error) {
		snap, err := r.Restore(n, domain.EditMeta{
			Actor:      actor,
			ChangeNote: changeNote,
			IPAddress:  ip,
			At:         s.Clock.Now(),
		})
		if err != nil {
			return nil, err
		}
		return &snap, nil
	})
}

// SubmitForReview moves the review to submitted.
func (s *Service) SubmitForReview(ctx context.Context, tenant string, t domain.Target, actor domain.Actor) (*domain.AnalyticalReview, error) {
	return s.mutate(ctx, tenant, t, actor, ownerOnly, func(r *domain.AnalyticalReview) (*domain.VersionSnapshot, error) {
		return nil, r.Submit(actor, s.Clock.Now())
	})
}

// Approve applies the configured approval policy, persists the approval,
// then archives the approved review when an archive is configured.
func (s *Service) Approve(ctx context.Context, tenant string, t domain.Target, actor domain.Actor, comments string) (*domain.AnalyticalReview, error) {
	r, err := s.mutate(ctx, tenant, t, actor, s.Policy.Authorize, func(r *domain.AnalyticalReview) (*domain.VersionSnapshot, error) {
		return nil, r.Approve(actor, comments, s.Policy.RequireSubmitted, s.Clock.Now())
	})
	if err != nil {
		return nil, err
	}
	if s.Archive != nil {
		if _, aerr := s.export(ctx, r); aerr != nil {
			s.logger().Warn("archive approved review failed",
				"tenant", tenant, "review_id", r.ID, "error", aerr)
		}
	}
	return r, nil
}

// Reject records the reviewer's rejection.
func (s *Service) Reject(ctx context.Context, tenant string, t domain.Target, actor domain.Actor, comments string) (*domain.AnalyticalReview, error) {
	return s.mutate(ctx, tenant, t, actor, s.Policy.Authorize, func(r *domain.AnalyticalReview) (*domain.VersionSnapshot, error) {
		return nil, r.Reject(actor, comments, s.Policy.RequireSubmitted, s.Clock.Now())
	})
}

// SetStatus is the unguarded status override. Do not expose it to actors the
// workflow is meant to constrain.
func (s *Service) SetStatus(ctx context.Context, tenant string, t domain.Target, actor domain.Actor, status string) (*domain.AnalyticalReview, error) {
	if _, err := domain.ParseStatus(status); err != nil {
		return nil, err
	}
	return s.mutate(ctx, tenant, t, actor, ownerOnly, func(r *domain.AnalyticalReview) (*domain.VersionSnapshot, error) {
		return nil, r.SetStatus(status, s.Clock.Now())
	})
}

// Delete removes the review and its whole history.
func (s *Service) Delete(ctx context.Context, tenant string, t domain.Target, actor domain.Actor) error {
	r, err := s.Get(ctx, tenant, t)
	if err != nil {
		return err
	}
	if !domain.CanMutate(actor, r) {
		return domain.ErrForbidden
	}
	if err := s.Repo.Delete(ctx, tenant, r.ID); err != nil {
		return err
	}
	s.logger().Info("analytical review deleted", "tenant", tenant, "review_id", r.ID, "actor", actor.ID)
	return nil
}

// Export writes the review and its history to the archive and returns the
// object URL.
func (s *Service) Export(ctx context.Context, tenant string, t domain.Target) (string, error) {
	if s.Archive == nil {
		return "", fmt.Errorf("%w: export storage is not configured", domain.ErrInvalidArgument)
	}
	r, err := s.Get(ctx, tenant, t)
	if err != nil {
		return "", err
	}
	return s.export(ctx, r)
}

func (s *Service) export(ctx context.Context, r *domain.AnalyticalReview) (string, error) {
	body, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode review %s: %w", r.ID, err)
	}
	return s.Archive.Put(ctx, ArchiveKey(r), body)
}

// ArchiveKey names the archived object: tenant/engagement/status-vN.json.
func ArchiveKey(r *domain.AnalyticalReview) string {
	return fmt.Sprintf("%s/%s/analytical-review-%s-v%d.json", r.TenantID, r.EngagementRef, r.Status, r.CurrentVersion)
}

type authorizer func(domain.Actor, *domain.AnalyticalReview) error

func ownerOnly(actor domain.Actor, r *domain.AnalyticalReview) error {
	if !domain.CanMutate(actor, r) {
		return domain.ErrForbidden
	}
	return nil
}

// mutate is the single read-check-modify-write path. The permission check
// runs before fn touches the aggregate, and the write is conditional on the
// revision that was read, so a concurrent writer makes this call fail with
// ErrConflict instead of silently interleaving history.
func (s *Service) mutate(ctx context.Context, tenant string, t domain.Target, actor domain.Actor, authorize authorizer, fn func(*domain.AnalyticalReview) (*domain.VersionSnapshot, error)) (*domain.AnalyticalReview, error) {
	r, err := s.Get(ctx, tenant, t)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, r); err != nil {
		return nil, err
	}
	expected := r.Revision
	snap, err := fn(r)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.Update(ctx, r, expected, snap); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.logger().Warn("concurrent review write rejected",
				"tenant", tenant, "review_id", r.ID, "revision", expected)
		}
		return nil, err
	}
	return r, nil
}

func (s *Service) logger() *logger.Logger {
	if s.Log == nil {
		return logger.Nop()
	}
	return s.Log
}

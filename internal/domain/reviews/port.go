package reviews

import (
	"context"
	"strings"
)

// Target resolves a review either by its id or by its engagement.
type Target struct {
	ID            ReviewID
	EngagementRef string
}

func ByID(id ReviewID) Target { return Target{ID: id} }

func ByEngagement(ref string) Target { return Target{EngagementRef: ref} }

func (t Target) Validate() error {
	if strings.TrimSpace(string(t.ID)) == "" && strings.TrimSpace(t.EngagementRef) == "" {
		return invalidf("review id or engagement reference is required")
	}
	return nil
}

func (t Target) String() string {
	if t.ID != "" {
		return "id=" + string(t.ID)
	}
	return "engagement=" + t.EngagementRef
}

// Repository port (interface untuk persistence)
type Repository interface {
	// Create inserts a new aggregate. A second review for the same engagement
	// fails with *DuplicateError.
	Create(ctx context.Context, r *AnalyticalReview) error
	// Find returns ErrNotFound when nothing matches.
	Find(ctx context.Context, tenant string, t Target) (*AnalyticalReview, error)
	// Update persists r only if the stored revision still equals
	// expectedRevision, appending snap (when non-nil) in the same atomic
	// write. A stale revision yields ErrConflict. On success r.Revision is
	// advanced.
	Update(ctx context.Context, r *AnalyticalReview, expectedRevision int64, snap *VersionSnapshot) error
	// Delete removes the aggregate together with its history.
	Delete(ctx context.Context, tenant string, id ReviewID) error
}

// EngagementDirectory validates the foreign engagement reference.
type EngagementDirectory interface {
	Exists(ctx context.Context, tenant, engagementRef string) (bool, error)
}

// Archive stores a serialized copy of a review and returns where it went.
type Archive interface {
	Put(ctx context.Context, key string, body []byte) (string, error)
}

package engagements

import "context"

// Repository port for engagements
type Repository interface {
	Register(ctx context.Context, e *Engagement) error
	Get(ctx context.Context, tenant, id string) (*Engagement, error)
	Exists(ctx context.Context, tenant, id string) (bool, error)
}

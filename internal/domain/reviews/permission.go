package reviews

import "strings"

const RoleAdmin = "admin"

// Actor is the authenticated caller. Only ID and Role matter for policy.
type Actor struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
}

func (a Actor) IsAdmin() bool { return strings.EqualFold(a.Role, RoleAdmin) }

// CanMutate is the permission gate for every owner-restricted operation:
// the review's auditor or an admin.
func CanMutate(actor Actor, r *AnalyticalReview) bool {
	if r == nil || actor.ID == "" {
		return false
	}
	return actor.ID == r.AuditorID || actor.IsAdmin()
}

// ApprovalPolicy governs approve and reject. The zero value lets any
// authenticated actor approve or reject from any status.
type ApprovalPolicy struct {
	RequireSubmitted    bool     `yaml:"requireSubmitted"`
	RequireOwnerOrAdmin bool     `yaml:"requireOwnerOrAdmin"`
	ReviewerRoles       []string `yaml:"reviewerRoles"`
}

// Authorize checks the actor side of the policy. Status is checked by the
// aggregate when it transitions.
func (p ApprovalPolicy) Authorize(actor Actor, r *AnalyticalReview) error {
	if actor.ID == "" {
		return ErrForbidden
	}
	if p.RequireOwnerOrAdmin && !CanMutate(actor, r) {
		return ErrForbidden
	}
	if len(p.ReviewerRoles) > 0 && !actor.IsAdmin() {
		for _, role := range p.ReviewerRoles {
			if strings.EqualFold(role, actor.Role) {
				return nil
			}
		}
		return ErrForbidden
	}
	return nil
}

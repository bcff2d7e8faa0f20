package reviews

import (
	"time"
)

// ReviewID identifier type
type ReviewID string

// Status enum
type Status string

const (
	StatusDraft      Status = "draft"
	StatusInProgress Status = "in-progress"
	StatusSubmitted  Status = "submitted"
	StatusReviewed   Status = "reviewed"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
)

// ParseStatus accepts only the six workflow values.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusDraft, StatusInProgress, StatusSubmitted, StatusReviewed, StatusApproved, StatusRejected:
		return st, nil
	}
	return "", invalidf("invalid status %q", s)
}

// RiskAssessment enum
type RiskAssessment string

const (
	RiskUnset    RiskAssessment = "unset"
	RiskLow      RiskAssessment = "low"
	RiskMedium   RiskAssessment = "medium"
	RiskHigh     RiskAssessment = "high"
	RiskCritical RiskAssessment = "critical"
)

// ParseRiskAssessment maps "" to unset.
func ParseRiskAssessment(s string) (RiskAssessment, error) {
	switch r := RiskAssessment(s); r {
	case "":
		return RiskUnset, nil
	case RiskUnset, RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return r, nil
	}
	return "", invalidf("invalid risk assessment %q", s)
}

// WorkingData is the mutable business payload of a review.
type WorkingData struct {
	Ratios         Ratios         `json:"ratios"`
	Commentary     string         `json:"commentary"`
	Conclusions    string         `json:"conclusions"`
	KeyFindings    []string       `json:"keyFindings"`
	RiskAssessment RiskAssessment `json:"riskAssessment"`
}

// EmptyWorkingData is the default payload of a new review.
func EmptyWorkingData() WorkingData {
	return WorkingData{Ratios: Ratios{}, KeyFindings: []string{}, RiskAssessment: RiskUnset}
}

// Clone returns a deep copy; snapshots must never share maps or slices with
// the live working data.
func (d WorkingData) Clone() WorkingData {
	out := WorkingData{
		Ratios:         d.Ratios.Clone(),
		Commentary:     d.Commentary,
		Conclusions:    d.Conclusions,
		KeyFindings:    make([]string, len(d.KeyFindings)),
		RiskAssessment: d.RiskAssessment,
	}
	copy(out.KeyFindings, d.KeyFindings)
	if out.RiskAssessment == "" {
		out.RiskAssessment = RiskUnset
	}
	return out
}

// VersionSnapshot is an immutable copy of working data taken right before an
// edit. VersionNumber is the currentVersion the edit superseded.
type VersionSnapshot struct {
	VersionNumber int         `json:"versionNumber"`
	Data          WorkingData `json:"data"`
	EditedBy      string      `json:"editedBy"`
	EditedAt      time.Time   `json:"editedAt"`
	ChangeNote    string      `json:"changeNote,omitempty"`
	IPAddress     string      `json:"ipAddress,omitempty"`
}

// Aggregate Root: AnalyticalReview
type AnalyticalReview struct {
	ID             ReviewID          `json:"id"`
	TenantID       string            `json:"tenantId"`
	EngagementRef  string            `json:"engagementRef"`
	AuditorID      string            `json:"auditorId"`
	ClientID       string            `json:"clientId"`
	WorkingData    WorkingData       `json:"workingData"`
	Status         Status            `json:"status"`
	CurrentVersion int               `json:"currentVersion"`
	Versions       []VersionSnapshot `json:"versions"`

	SubmittedAt    *time.Time `json:"submittedAt,omitempty"`
	SubmittedBy    string     `json:"submittedBy,omitempty"`
	ReviewedAt     *time.Time `json:"reviewedAt,omitempty"`
	ReviewedBy     string     `json:"reviewedBy,omitempty"`
	ReviewComments string     `json:"reviewComments,omitempty"`
	ApprovedAt     *time.Time `json:"approvedAt,omitempty"`
	ApprovedBy     string     `json:"approvedBy,omitempty"`

	LastEditedBy string     `json:"lastEditedBy,omitempty"`
	LastEditedAt *time.Time `json:"lastEditedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`

	// Revision is the optimistic concurrency token, bumped by the repository
	// on every persisted write.
	Revision int64 `json:"revision"`
}

// NewReview builds a draft aggregate at version 1 with an empty history.
func NewReview(id ReviewID, tenant, engagementRef, auditorID, clientID string, initial WorkingData, now time.Time) *AnalyticalReview {
	data := initial.Clone()
	if data.Ratios == nil {
		data.Ratios = Ratios{}
	}
	return &AnalyticalReview{
		ID:             id,
		TenantID:       tenant,
		EngagementRef:  engagementRef,
		AuditorID:      auditorID,
		ClientID:       clientID,
		WorkingData:    data,
		Status:         StatusDraft,
		CurrentVersion: 1,
		Versions:       []VersionSnapshot{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Clone deep-copies the aggregate so stores can hand out values that callers
// are free to mutate.
func (r *AnalyticalReview) Clone() *AnalyticalReview {
	if r == nil {
		return nil
	}
	out := *r
	out.WorkingData = r.WorkingData.Clone()
	out.Versions = make([]VersionSnapshot, len(r.Versions))
	for i, v := range r.Versions {
		v.Data = v.Data.Clone()
		out.Versions[i] = v
	}
	out.SubmittedAt = cloneTime(r.SubmittedAt)
	out.ReviewedAt = cloneTime(r.ReviewedAt)
	out.ApprovedAt = cloneTime(r.ApprovedAt)
	out.LastEditedAt = cloneTime(r.LastEditedAt)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

package reviews

import (
	"fmt"
	"sort"
	"time"
)

// Patch carries a partial update. Nil fields keep their prior value; Ratios
// replaces the whole mapping when present.
type Patch struct {
	Ratios         *Ratios   `json:"ratios,omitempty"`
	Commentary     *string   `json:"commentary,omitempty"`
	Conclusions    *string   `json:"conclusions,omitempty"`
	KeyFindings    *[]string `json:"keyFindings,omitempty"`
	RiskAssessment *string   `json:"riskAssessment,omitempty"`
}

// Validate rejects values that would leave working data outside its domain.
func (p Patch) Validate() error {
	if p.RiskAssessment != nil {
		if _, err := ParseRiskAssessment(*p.RiskAssessment); err != nil {
			return err
		}
	}
	return nil
}

// ApplyTo writes the present fields onto d. Call Validate first.
func (p Patch) ApplyTo(d *WorkingData) {
	if p.Ratios != nil {
		d.Ratios = p.Ratios.Clone()
		if d.Ratios == nil {
			d.Ratios = Ratios{}
		}
	}
	if p.Commentary != nil {
		d.Commentary = *p.Commentary
	}
	if p.Conclusions != nil {
		d.Conclusions = *p.Conclusions
	}
	if p.KeyFindings != nil {
		d.KeyFindings = append([]string{}, (*p.KeyFindings)...)
	}
	if p.RiskAssessment != nil {
		if risk, err := ParseRiskAssessment(*p.RiskAssessment); err == nil {
			d.RiskAssessment = risk
		}
	}
}

// EditMeta is the provenance recorded on the snapshot an edit produces.
type EditMeta struct {
	Actor      Actor
	ChangeNote string
	IPAddress  string
	At         time.Time
}

// snapshot appends a copy of the current working data labelled with the
// current version, then advances the version. Both steps happen together or
// not at all.
func (r *AnalyticalReview) snapshot(meta EditMeta) VersionSnapshot {
	snap := VersionSnapshot{
		VersionNumber: r.CurrentVersion,
		Data:          r.WorkingData.Clone(),
		EditedBy:      meta.Actor.ID,
		EditedAt:      meta.At,
		ChangeNote:    meta.ChangeNote,
		IPAddress:     meta.IPAddress,
	}
	r.Versions = append(r.Versions, snap)
	r.CurrentVersion++
	return snap
}

func (r *AnalyticalReview) touch(meta EditMeta) {
	at := meta.At
	r.LastEditedBy = meta.Actor.ID
	r.LastEditedAt = &at
	r.UpdatedAt = at
}

// ApplyUpdate snapshots the pre-update state, bumps the version, and then
// applies the patch. The returned snapshot is the one just appended.
func (r *AnalyticalReview) ApplyUpdate(p Patch, meta EditMeta) (VersionSnapshot, error) {
	if err := p.Validate(); err != nil {
		return VersionSnapshot{}, err
	}
	snap := r.snapshot(meta)
	p.ApplyTo(&r.WorkingData)
	r.touch(meta)
	return snap, nil
}

// Restore records the current state as a new version and then replaces the
// working data with the data held by version n. History is never rewound.
func (r *AnalyticalReview) Restore(n int, meta EditMeta) (VersionSnapshot, error) {
	target, err := r.Version(n)
	if err != nil {
		return VersionSnapshot{}, err
	}
	if meta.ChangeNote == "" {
		meta.ChangeNote = fmt.Sprintf("Restored to version %d", n)
	}
	snap := r.snapshot(meta)
	r.WorkingData = target.Data.Clone()
	r.touch(meta)
	return snap, nil
}

// Version returns snapshot n.
func (r *AnalyticalReview) Version(n int) (VersionSnapshot, error) {
	for _, v := range r.Versions {
		if v.VersionNumber == n {
			v.Data = v.Data.Clone()
			return v, nil
		}
	}
	return VersionSnapshot{}, notFoundf("version %d of review %s", n, r.ID)
}

// VersionsDesc lists snapshots newest first.
func (r *AnalyticalReview) VersionsDesc() []VersionSnapshot {
	out := make([]VersionSnapshot, len(r.Versions))
	for i, v := range r.Versions {
		v.Data = v.Data.Clone()
		out[i] = v
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].VersionNumber > out[j].VersionNumber })
	return out
}

// Submit moves a draft, in-progress or rejected review to submitted.
func (r *AnalyticalReview) Submit(actor Actor, at time.Time) error {
	switch r.Status {
	case StatusDraft, StatusInProgress, StatusRejected:
	default:
		return invalidf("cannot submit review in status %s", r.Status)
	}
	r.Status = StatusSubmitted
	r.SubmittedAt = &at
	r.SubmittedBy = actor.ID
	r.UpdatedAt = at
	return nil
}

// Approve marks the review approved. requireSubmitted tightens the
// transition to submitted -> approved only.
func (r *AnalyticalReview) Approve(actor Actor, comments string, requireSubmitted bool, at time.Time) error {
	if requireSubmitted && r.Status != StatusSubmitted {
		return invalidf("cannot approve review in status %s", r.Status)
	}
	r.Status = StatusApproved
	r.ApprovedAt = &at
	r.ApprovedBy = actor.ID
	r.ReviewedAt = cloneTime(&at)
	r.ReviewedBy = actor.ID
	r.ReviewComments = comments
	r.UpdatedAt = at
	return nil
}

// Reject marks the review rejected; it can be resubmitted later.
func (r *AnalyticalReview) Reject(actor Actor, comments string, requireSubmitted bool, at time.Time) error {
	if requireSubmitted && r.Status != StatusSubmitted {
		return invalidf("cannot reject review in status %s", r.Status)
	}
	r.Status = StatusRejected
	r.ReviewedAt = &at
	r.ReviewedBy = actor.ID
	r.ReviewComments = comments
	r.UpdatedAt = at
	return nil
}

// SetStatus overrides the status with no transition guard.
func (r *AnalyticalReview) SetStatus(status string, at time.Time) error {
	st, err := ParseStatus(status)
	if err != nil {
		return err
	}
	r.Status = st
	r.UpdatedAt = at
	return nil
}

package engagements

import "time"

// Engagement is the audit engagement an analytical review belongs to. Only
// its existence matters to the review workflow; the rest is descriptive.
type Engagement struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenantId"`
	Name          string    `json:"name"`
	ClientID      string    `json:"clientId"`
	FiscalYearEnd string    `json:"fiscalYearEnd,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

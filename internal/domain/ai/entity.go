package ai

import "time"

// SuggestionID identifier type
type SuggestionID string

// CommentaryInput is what the model sees about a review.
type CommentaryInput struct {
	EngagementRef  string
	Ratios         map[string]any
	Commentary     string
	Conclusions    string
	KeyFindings    []string
	RiskAssessment string
}

// Commentary is the parsed model output.
type Commentary struct {
	Commentary     string   `json:"commentary"`
	KeyFindings    []string `json:"keyFindings"`
	RiskAssessment string   `json:"riskAssessment"`
}

// Suggestion is a stored model answer, kept so reviewers can see where AI
// assisted wording came from. It never changes the review itself.
type Suggestion struct {
	ID          SuggestionID `json:"id"`
	TenantID    string       `json:"tenantId"`
	ReviewID    string       `json:"reviewId"`
	RequestedBy string       `json:"requestedBy"`
	Result      Commentary   `json:"result"`
	Raw         string       `json:"-"`
	CreatedAt   time.Time    `json:"createdAt"`
}

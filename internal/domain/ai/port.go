package ai

import "context"

// Client is the chat-completion collaborator. It returns the raw JSON the
// model produced for the commentary schema.
type Client interface {
	SuggestCommentary(ctx context.Context, in CommentaryInput) (string, error)
}

// SuggestionRepository keeps a record of every suggestion handed out.
type SuggestionRepository interface {
	Save(ctx context.Context, s *Suggestion) error
	ListByReview(ctx context.Context, tenant, reviewID string, page, pageSize int) ([]*Suggestion, error)
}

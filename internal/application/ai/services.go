package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bryanwahyu/auditportal/internal/application"
	"github.com/bryanwahyu/auditportal/internal/domain/ai"
	"github.com/bryanwahyu/auditportal/internal/domain/reviews"
	"github.com/bryanwahyu/auditportal/internal/logger"
)

// ReviewReader is the slice of the review service the assistant needs.
type ReviewReader interface {
	Get(ctx context.Context, tenant string, t reviews.Target) (*reviews.AnalyticalReview, error)
}

// Service drafts commentary for a review. It only reads the review; applying
// a suggestion is an ordinary update made by the auditor.
type Service struct {
	client  ai.Client
	reviews ReviewReader
	store   ai.SuggestionRepository // optional
	clock   application.Clock
	log     *logger.Logger
}

func NewService(client ai.Client, reader ReviewReader, store ai.SuggestionRepository, clock application.Clock, log *logger.Logger) *Service {
	if clock == nil {
		clock = application.SystemClock{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{client: client, reviews: reader, store: store, clock: clock, log: log}
}

// SuggestCommentary asks the model for commentary on the review's current
// working data and records the answer.
func (s *Service) SuggestCommentary(ctx context.Context, tenant string, t reviews.Target, actor reviews.Actor) (*ai.Suggestion, error) {
	if s.client == nil {
		return nil, fmt.Errorf("%w: commentary assistant is not configured", reviews.ErrInvalidArgument)
	}
	r, err := s.reviews.Get(ctx, tenant, t)
	if err != nil {
		return nil, err
	}
	if !reviews.CanMutate(actor, r) {
		return nil, reviews.ErrForbidden
	}

	raw, err := s.client.SuggestCommentary(ctx, BuildInput(r))
	if err != nil {
		if errors.Is(err, ai.ErrQuotaExceeded) {
			s.log.Warn("ai quota exceeded", "tenant", tenant, "review_id", r.ID)
		}
		return nil, err
	}
	out, err := ParseCommentary(raw)
	if err != nil {
		return nil, err
	}

	sg := &ai.Suggestion{
		ID:          ai.SuggestionID(uuid.NewString()),
		TenantID:    tenant,
		ReviewID:    string(r.ID),
		RequestedBy: actor.ID,
		Result:      out,
		Raw:         raw,
		CreatedAt:   s.clock.Now(),
	}
	if s.store != nil {
		if err := s.store.Save(ctx, sg); err != nil {
			return nil, fmt.Errorf("save suggestion: %w", err)
		}
	}
	return sg, nil
}

// Suggestions lists what was suggested for a review, newest first.
func (s *Service) Suggestions(ctx context.Context, tenant string, t reviews.Target, page, pageSize int) ([]*ai.Suggestion, error) {
	if s.store == nil {
		return []*ai.Suggestion{}, nil
	}
	r, err := s.reviews.Get(ctx, tenant, t)
	if err != nil {
		return nil, err
	}
	return s.store.ListByReview(ctx, tenant, string(r.ID), page, pageSize)
}

// BuildInput flattens the review into what the prompt needs.
func BuildInput(r *reviews.AnalyticalReview) ai.CommentaryInput {
	ratios := map[string]any{}
	if b, err := json.Marshal(r.WorkingData.Ratios); err == nil {
		_ = json.Unmarshal(b, &ratios)
	}
	return ai.CommentaryInput{
		EngagementRef:  r.EngagementRef,
		Ratios:         ratios,
		Commentary:     r.WorkingData.Commentary,
		Conclusions:    r.WorkingData.Conclusions,
		KeyFindings:    append([]string{}, r.WorkingData.KeyFindings...),
		RiskAssessment: string(r.WorkingData.RiskAssessment),
	}
}

// ParseCommentary decodes the model's JSON and normalises the risk value.
func ParseCommentary(raw string) (ai.Commentary, error) {
	var out ai.Commentary
	body := strings.TrimSpace(raw)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &out); err != nil {
		return ai.Commentary{}, fmt.Errorf("%w: %v", ai.ErrBadModelOutput, err)
	}
	risk, err := reviews.ParseRiskAssessment(strings.ToLower(strings.TrimSpace(out.RiskAssessment)))
	if err != nil {
		risk = reviews.RiskUnset
	}
	out.RiskAssessment = string(risk)
	if out.KeyFindings == nil {
		out.KeyFindings = []string{}
	}
	return out, nil
}

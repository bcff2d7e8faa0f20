package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bryanwahyu/auditportal/internal/domain/ai"
)

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are a senior external auditor drafting the analytical review section of an audit file. You must produce one valid JSON object only (no markdown, no code fences) that follows the schema below.

Requirements:
- Output must be a single JSON object.
- commentary explains the movements and relationships in the ratios in neutral, professional language. Do not invent figures that are not in the input.
- keyFindings is an array of short sentences, most significant first.
- riskAssessment is one of: low, medium, high, critical.
- If the existing commentary is useful, refine it rather than replacing it wholesale.

Schema (example with empty values):
{
  "commentary": "<string>",
  "keyFindings": ["<string>"],
  "riskAssessment": "<low|medium|high|critical>"
}`
}

// GetUserPrompt renders the review's working data for the model.
func GetUserPrompt(in ai.CommentaryInput) string {
	ratios, err := json.MarshalIndent(in.Ratios, "", "  ")
	if err != nil {
		ratios = []byte("{}")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Engagement: %s\n\n", in.EngagementRef)
	fmt.Fprintf(&b, "Ratios:\n%s\n\n", ratios)
	if in.Commentary != "" {
		fmt.Fprintf(&b, "Existing commentary:\n%s\n\n", in.Commentary)
	}
	if in.Conclusions != "" {
		fmt.Fprintf(&b, "Auditor conclusions so far:\n%s\n\n", in.Conclusions)
	}
	if len(in.KeyFindings) > 0 {
		b.WriteString("Existing key findings:\n")
		for _, f := range in.KeyFindings {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		b.WriteString("\n")
	}
	if in.RiskAssessment != "" && in.RiskAssessment != "unset" {
		fmt.Fprintf(&b, "Current risk assessment: %s\n\n", in.RiskAssessment)
	}
	b.WriteString("Respond with the JSON per schema.")
	return b.String()
}

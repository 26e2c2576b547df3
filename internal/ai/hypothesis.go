package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/scopeline/scopeline/internal/types"
)

// FeatureHypothesis is the model's proposal for what feature a cluster of
// evidence describes.
type FeatureHypothesis struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Reasoning   string `json:"reasoning"`
}

// maxEvidencePerPrompt bounds prompt size for very large clusters.
const maxEvidencePerPrompt = 50

// GenerateHypothesis asks the model to name and describe the feature that a
// cluster of evidence collectively points at.
func (r *Reasoner) GenerateHypothesis(ctx context.Context, evidence []*types.Evidence) (*FeatureHypothesis, error) {
	if len(evidence) == 0 {
		return nil, fmt.Errorf("cannot generate hypothesis from empty cluster")
	}

	prompt := buildHypothesisPrompt(evidence)
	responseText, err := r.complete(ctx, "hypothesis", prompt, 1024)
	if err != nil {
		return nil, err
	}

	parseResult := Parse[FeatureHypothesis](responseText, "hypothesis response")
	if !parseResult.Success {
		return nil, NewMalformedError("hypothesis", parseResult.Error)
	}

	hypothesis := parseResult.Data
	hypothesis.Name = strings.TrimSpace(hypothesis.Name)
	if hypothesis.Name == "" {
		return nil, NewMalformedError("hypothesis", "response missing feature name")
	}
	if len(hypothesis.Name) > 500 {
		hypothesis.Name = hypothesis.Name[:500]
	}
	return &hypothesis, nil
}

func buildHypothesisPrompt(evidence []*types.Evidence) string {
	var sb strings.Builder
	sb.WriteString("You are analyzing product evidence extracted from specification documents.\n")
	sb.WriteString("The items below were clustered together because they are semantically similar.\n")
	sb.WriteString("Determine what single product feature they collectively describe.\n\n")
	sb.WriteString("Evidence:\n")

	items := evidence
	if len(items) > maxEvidencePerPrompt {
		items = items[:maxEvidencePerPrompt]
	}
	for i, ev := range items {
		sb.WriteString(fmt.Sprintf("%d. [%s] %s\n", i+1, ev.Type, truncate(ev.Content, 300)))
	}
	if len(evidence) > maxEvidencePerPrompt {
		sb.WriteString(fmt.Sprintf("... and %d more items\n", len(evidence)-maxEvidencePerPrompt))
	}

	sb.WriteString(`
Respond with ONLY a JSON object in this exact format:
{
  "name": "Short feature name (2-6 words, title case)",
  "description": "One or two sentences describing what the feature does",
  "reasoning": "Brief explanation of why this evidence describes one feature"
}`)
	return sb.String()
}

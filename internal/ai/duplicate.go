package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/scopeline/scopeline/internal/types"
)

// DuplicateVerdict is the model's judgment on whether two features describe
// the same capability.
type DuplicateVerdict struct {
	IsDuplicate         bool    `json:"is_duplicate"`
	SimilarityScore     float64 `json:"similarity_score"`
	RecommendedSurvivor string  `json:"recommended_survivor"`
	Reasoning           string  `json:"reasoning"`
}

// CompareFeatures asks the model whether two candidate features are
// duplicates. The verdict includes which feature should survive a merge;
// the caller applies its own tie-breaking on top.
func (r *Reasoner) CompareFeatures(ctx context.Context, a, b *types.Feature, evidenceA, evidenceB []*types.Evidence) (*DuplicateVerdict, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("both features are required")
	}

	prompt := buildComparePrompt(a, b, evidenceA, evidenceB)
	responseText, err := r.complete(ctx, "duplicate-check", prompt, 1024)
	if err != nil {
		return nil, err
	}

	parseResult := Parse[DuplicateVerdict](responseText, "duplicate-check response")
	if !parseResult.Success {
		return nil, NewMalformedError("duplicate-check", parseResult.Error)
	}

	verdict := parseResult.Data
	if verdict.SimilarityScore < 0 || verdict.SimilarityScore > 1 {
		return nil, NewMalformedError("duplicate-check",
			fmt.Sprintf("similarity_score out of range: %.2f", verdict.SimilarityScore))
	}
	if verdict.IsDuplicate &&
		verdict.RecommendedSurvivor != a.ID && verdict.RecommendedSurvivor != b.ID {
		// An unrecognized survivor id is treated as no recommendation
		// rather than failing the comparison.
		verdict.RecommendedSurvivor = ""
	}
	return &verdict, nil
}

func buildComparePrompt(a, b *types.Feature, evidenceA, evidenceB []*types.Evidence) string {
	var sb strings.Builder
	sb.WriteString("Determine whether these two inferred product features describe the same capability.\n\n")

	writeFeature := func(label string, f *types.Feature, evidence []*types.Evidence) {
		sb.WriteString(fmt.Sprintf("Feature %s (id=%s):\n", label, f.ID))
		sb.WriteString(fmt.Sprintf("  Name: %s\n", f.Name))
		if f.Description != nil && *f.Description != "" {
			sb.WriteString(fmt.Sprintf("  Description: %s\n", truncate(*f.Description, 300)))
		}
		if len(evidence) > 0 {
			sb.WriteString("  Evidence:\n")
			for i, ev := range evidence {
				if i >= 10 {
					sb.WriteString(fmt.Sprintf("    ... and %d more items\n", len(evidence)-i))
					break
				}
				sb.WriteString(fmt.Sprintf("    - [%s] %s\n", ev.Type, truncate(ev.Content, 200)))
			}
		}
		sb.WriteString("\n")
	}
	writeFeature("A", a, evidenceA)
	writeFeature("B", b, evidenceB)

	sb.WriteString(`Two features are duplicates when they describe the same user-facing capability,
even if worded differently. Features that merely touch the same screen or
endpoint are NOT duplicates.

Respond with ONLY a JSON object in this exact format:
{
  "is_duplicate": true or false,
  "similarity_score": 0.0 to 1.0,
  "recommended_survivor": "feature id to keep, or empty string",
  "reasoning": "Brief explanation"
}`)
	return sb.String()
}

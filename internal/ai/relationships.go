package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/scopeline/scopeline/internal/types"
)

// RelationshipVerdict classifies one evidence item's relationship to a
// feature. Items are matched back to the request by EvidenceID, never by
// position.
type RelationshipVerdict struct {
	EvidenceID   string  `json:"evidence_id"`
	Relationship string  `json:"relationship"`
	Strength     float64 `json:"strength"`
	Reasoning    string  `json:"reasoning"`
}

// ClassifyRelationships asks the model how each evidence item relates to the
// feature, in one batched call per feature.
//
// The response must contain exactly one verdict per requested evidence item.
// A count or id mismatch returns a retryable ConsistencyError and no
// verdicts, so the caller never applies a partially-aligned batch.
func (r *Reasoner) ClassifyRelationships(ctx context.Context, feature *types.Feature, evidence []*types.Evidence) ([]*RelationshipVerdict, error) {
	if feature == nil {
		return nil, fmt.Errorf("feature is required")
	}
	if len(evidence) == 0 {
		return nil, nil
	}

	prompt := buildClassifyPrompt(feature, evidence)
	responseText, err := r.complete(ctx, "classify-relationships", prompt, 4096)
	if err != nil {
		return nil, err
	}

	parseResult := Parse[[]*RelationshipVerdict](responseText, "classify-relationships response")
	if !parseResult.Success {
		return nil, NewMalformedError("classify-relationships", parseResult.Error)
	}
	verdicts := parseResult.Data

	if len(verdicts) != len(evidence) {
		return nil, types.NewRetryableConsistencyError("classify-relationships",
			"response has %d items for %d evidence items (feature %s)",
			len(verdicts), len(evidence), feature.ID)
	}

	requested := make(map[string]bool, len(evidence))
	for _, ev := range evidence {
		requested[ev.ID] = true
	}
	seen := make(map[string]bool, len(verdicts))
	for _, v := range verdicts {
		if v == nil || !requested[v.EvidenceID] {
			return nil, types.NewRetryableConsistencyError("classify-relationships",
				"response references unknown evidence id (feature %s)", feature.ID)
		}
		if seen[v.EvidenceID] {
			return nil, types.NewRetryableConsistencyError("classify-relationships",
				"response classifies evidence %s twice (feature %s)", v.EvidenceID, feature.ID)
		}
		seen[v.EvidenceID] = true

		if !types.RelationshipType(v.Relationship).IsValid() {
			return nil, NewMalformedError("classify-relationships",
				fmt.Sprintf("invalid relationship type %q for evidence %s", v.Relationship, v.EvidenceID))
		}
		if v.Strength < 0 || v.Strength > 1 {
			return nil, NewMalformedError("classify-relationships",
				fmt.Sprintf("strength out of range for evidence %s: %.2f", v.EvidenceID, v.Strength))
		}
	}
	return verdicts, nil
}

func buildClassifyPrompt(feature *types.Feature, evidence []*types.Evidence) string {
	var sb strings.Builder
	sb.WriteString("Classify how each evidence item relates to this product feature.\n\n")
	sb.WriteString(fmt.Sprintf("Feature: %s\n", feature.Name))
	if feature.Description != nil && *feature.Description != "" {
		sb.WriteString(fmt.Sprintf("Description: %s\n", truncate(*feature.Description, 300)))
	}
	sb.WriteString("\nEvidence items:\n")
	for _, ev := range evidence {
		sb.WriteString(fmt.Sprintf("- id=%s [%s] %s\n", ev.ID, ev.Type, truncate(ev.Content, 250)))
	}

	sb.WriteString(`
Relationship types:
- implements: the evidence directly realizes the feature (endpoints, UI elements)
- supports: the evidence enables or reinforces the feature without realizing it
- constrains: the evidence limits how the feature may behave
- extends: the evidence adds optional behavior on top of the core feature

Respond with ONLY a JSON array containing exactly one object per evidence
item, matched by id:
[
  {"evidence_id": "...", "relationship": "implements", "strength": 0.9, "reasoning": "..."}
]`)
	return sb.String()
}

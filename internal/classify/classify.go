// Package classify assigns relationship types to feature-evidence links.
package classify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/scopeline/scopeline/internal/ai"
	"github.com/scopeline/scopeline/internal/types"
)

// DefaultMaxAttempts is how many times a feature's batch is retried after a
// retryable consistency error before the feature is skipped.
const DefaultMaxAttempts = 2

// Classifier produces one relationship verdict per evidence item.
type Classifier interface {
	ClassifyRelationships(ctx context.Context, feature *types.Feature, evidence []*types.Evidence) ([]*ai.RelationshipVerdict, error)
}

// Store is the storage surface the engine needs.
type Store interface {
	ListFeatures(ctx context.Context, filter types.FeatureFilter) ([]*types.Feature, error)
	GetUnclassifiedLinks(ctx context.Context, featureID string) ([]*types.FeatureEvidence, error)
	GetEvidenceByIDs(ctx context.Context, ids []string) ([]*types.Evidence, error)
	UpdateLinkClassification(ctx context.Context, featureID, evidenceID string, rel types.RelationshipType, strength float64, reasoning string) error
}

// Engine classifies evidence relationships, one batched model call per
// feature.
type Engine struct {
	store       Store
	classifier  Classifier
	maxAttempts int
}

// NewEngine creates a classification engine.
func NewEngine(store Store, classifier Classifier) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if classifier == nil {
		return nil, fmt.Errorf("classifier cannot be nil")
	}
	return &Engine{store: store, classifier: classifier, maxAttempts: DefaultMaxAttempts}, nil
}

// Result summarizes one classification pass.
type Result struct {
	FeaturesProcessed int
	LinksClassified   int
	FeaturesSkipped   int
	ProcessingTime    time.Duration
}

// ClassifyFeature classifies every unclassified link of one feature.
//
// The whole batch is applied or none of it: a count or id mismatch from the
// model is retried, and if the retries are exhausted no link is touched.
// Returns the number of links classified.
func (e *Engine) ClassifyFeature(ctx context.Context, feature *types.Feature) (int, error) {
	links, err := e.store.GetUnclassifiedLinks(ctx, feature.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to load links for %s: %w", feature.ID, err)
	}
	if len(links) == 0 {
		return 0, nil
	}

	ids := make([]string, len(links))
	for i, link := range links {
		ids[i] = link.EvidenceID
	}
	evidence, err := e.store.GetEvidenceByIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to load evidence for %s: %w", feature.ID, err)
	}
	if len(evidence) != len(links) {
		return 0, types.NewConsistencyError("classify",
			"feature %s has %d links but %d evidence rows", feature.ID, len(links), len(evidence))
	}

	var verdicts []*ai.RelationshipVerdict
	for attempt := 1; ; attempt++ {
		verdicts, err = e.classifier.ClassifyRelationships(ctx, feature, evidence)
		if err == nil {
			break
		}
		if !types.IsRetryableConsistency(err) || attempt >= e.maxAttempts {
			return 0, err
		}
		log.Printf("[CLASSIFY] Batch mismatch for %s (attempt %d/%d), retrying: %v",
			feature.ID, attempt, e.maxAttempts, err)
	}

	classified := 0
	for _, v := range verdicts {
		err := e.store.UpdateLinkClassification(ctx, feature.ID, v.EvidenceID,
			types.RelationshipType(v.Relationship), v.Strength, v.Reasoning)
		if err != nil {
			log.Printf("[CLASSIFY] Failed to persist classification for %s/%s: %v",
				feature.ID, v.EvidenceID, err)
			continue
		}
		classified++
	}
	return classified, nil
}

// ClassifyAll classifies unclassified links across all features. A feature
// whose batch fails is skipped and logged; the pass continues.
func (e *Engine) ClassifyAll(ctx context.Context) (*Result, error) {
	start := time.Now()

	features, err := e.store.ListFeatures(ctx, types.FeatureFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list features: %w", err)
	}

	result := &Result{}
	for _, feature := range features {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("classification canceled: %w", err)
		}
		if feature.Status == types.StatusRejected {
			continue
		}

		classified, err := e.ClassifyFeature(ctx, feature)
		if err != nil {
			log.Printf("[CLASSIFY] Skipping feature %s: %v", feature.ID, err)
			result.FeaturesSkipped++
			continue
		}
		result.FeaturesProcessed++
		result.LinksClassified += classified
	}

	result.ProcessingTime = time.Since(start)
	log.Printf("[CLASSIFY] Classified %d links across %d features, %d skipped (%.2fs)",
		result.LinksClassified, result.FeaturesProcessed, result.FeaturesSkipped,
		result.ProcessingTime.Seconds())
	return result, nil
}

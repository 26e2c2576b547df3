// Package dedup merges features that describe the same capability.
//
// Deduplication is two-phase: a cheap lexical pre-filter over feature names
// shortlists pairs, and the reasoning model confirms each shortlisted pair
// before anything merges. The pre-filter exists purely to bound API cost;
// the model has the final word.
package dedup

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/scopeline/scopeline/internal/ai"
	"github.com/scopeline/scopeline/internal/namematch"
	"github.com/scopeline/scopeline/internal/types"
)

// Comparer confirms whether a shortlisted pair is a true duplicate.
type Comparer interface {
	CompareFeatures(ctx context.Context, a, b *types.Feature, evidenceA, evidenceB []*types.Evidence) (*ai.DuplicateVerdict, error)
}

// Store is the storage surface the engine needs.
type Store interface {
	ListFeatures(ctx context.Context, filter types.FeatureFilter) ([]*types.Feature, error)
	GetLinkedEvidence(ctx context.Context, featureID string) ([]*types.Evidence, error)
	RepointLinks(ctx context.Context, fromFeatureID, toFeatureID string) error
	DeleteFeature(ctx context.Context, featureID string) error
}

// Rescorer recomputes a feature's confidence after a merge changes its
// evidence set.
type Rescorer interface {
	RescoreFeature(ctx context.Context, featureID string) error
}

// Engine finds and merges duplicate features.
type Engine struct {
	store    Store
	comparer Comparer
	rescorer Rescorer
	config   Config
}

// NewEngine creates a deduplication engine. The rescorer may be nil, in
// which case survivors keep their pre-merge score until the next scoring
// pass.
func NewEngine(store Store, comparer Comparer, rescorer Rescorer, config Config) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if comparer == nil {
		return nil, fmt.Errorf("comparer cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Engine{store: store, comparer: comparer, rescorer: rescorer, config: config}, nil
}

// Merge records one performed merge.
type Merge struct {
	SurvivorID string
	LoserID    string
	Similarity float64
	Reasoning  string
}

// Result summarizes one deduplication pass.
type Result struct {
	CandidatePairs int
	PairsCompared  int
	Merges         []Merge
	SkippedErrors  int
	ProcessingTime time.Duration
}

// pair is an ordered candidate pair; A.ID < B.ID always holds.
type pair struct {
	a, b *types.Feature
}

// Run executes one deduplication pass over all non-rejected features.
//
// Running the pass twice in a row is a no-op the second time: merged losers
// are gone, and the surviving features no longer shortlist against anything.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	features, err := e.store.ListFeatures(ctx, types.FeatureFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list features: %w", err)
	}

	pairs := e.shortlist(features)
	result := &Result{CandidatePairs: len(pairs)}
	if len(pairs) > e.config.MaxPairsPerRun {
		log.Printf("[DEDUP] Capping %d candidate pairs to %d", len(pairs), e.config.MaxPairsPerRun)
		pairs = pairs[:e.config.MaxPairsPerRun]
	}

	// Features merged away earlier in this pass must not be compared again.
	merged := make(map[string]bool)

	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("deduplication canceled: %w", err)
		}
		if merged[p.a.ID] || merged[p.b.ID] {
			continue
		}

		evidenceA, err := e.store.GetLinkedEvidence(ctx, p.a.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load evidence for %s: %w", p.a.ID, err)
		}
		evidenceB, err := e.store.GetLinkedEvidence(ctx, p.b.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load evidence for %s: %w", p.b.ID, err)
		}

		verdict, err := e.comparer.CompareFeatures(ctx, p.a, p.b, evidenceA, evidenceB)
		result.PairsCompared++
		if err != nil {
			if !e.config.FailOpen {
				return nil, fmt.Errorf("comparison failed for %s vs %s: %w", p.a.ID, p.b.ID, err)
			}
			log.Printf("[DEDUP] Comparison failed for %s vs %s: %v (keeping both)", p.a.ID, p.b.ID, err)
			result.SkippedErrors++
			continue
		}

		if !verdict.IsDuplicate || verdict.SimilarityScore < e.config.ConfidenceThreshold {
			continue
		}

		survivor, loser := pickSurvivor(p.a, p.b, verdict.RecommendedSurvivor)
		if err := e.merge(ctx, survivor, loser); err != nil {
			if !e.config.FailOpen {
				return nil, err
			}
			log.Printf("[DEDUP] Merge of %s into %s failed: %v (keeping both)", loser.ID, survivor.ID, err)
			result.SkippedErrors++
			continue
		}
		merged[loser.ID] = true
		result.Merges = append(result.Merges, Merge{
			SurvivorID: survivor.ID,
			LoserID:    loser.ID,
			Similarity: verdict.SimilarityScore,
			Reasoning:  verdict.Reasoning,
		})
		log.Printf("[DEDUP] Merged %q (%s) into %q (%s), similarity %.2f",
			loser.Name, loser.ID, survivor.Name, survivor.ID, verdict.SimilarityScore)
	}

	result.ProcessingTime = time.Since(start)
	log.Printf("[DEDUP] Compared %d pairs, merged %d, %d errors (%.2fs)",
		result.PairsCompared, len(result.Merges), result.SkippedErrors,
		result.ProcessingTime.Seconds())
	return result, nil
}

// shortlist builds the ordered list of name-similar pairs. Rejected features
// never participate, and a pair of two reviewed features is left to humans.
func (e *Engine) shortlist(features []*types.Feature) []pair {
	eligible := make([]*types.Feature, 0, len(features))
	for _, f := range features {
		if f == nil || f.Status == types.StatusRejected {
			continue
		}
		eligible = append(eligible, f)
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].ID < eligible[j].ID })

	var pairs []pair
	for i := 0; i < len(eligible); i++ {
		for j := i + 1; j < len(eligible); j++ {
			a, b := eligible[i], eligible[j]
			if a.Reviewed() && b.Reviewed() {
				continue
			}
			if namematch.AreNamesSimilar(a.Name, b.Name, e.config.NameThreshold) {
				pairs = append(pairs, pair{a: a, b: b})
			}
		}
	}
	return pairs
}

// pickSurvivor decides which feature of a confirmed duplicate pair survives.
//
// Precedence: a reviewed feature always survives over an unreviewed one,
// then the model's recommendation, then higher confidence, then earlier
// inference time, then smaller id.
func pickSurvivor(a, b *types.Feature, recommended string) (survivor, loser *types.Feature) {
	switch {
	case a.Reviewed() != b.Reviewed():
		if a.Reviewed() {
			return a, b
		}
		return b, a
	case recommended == a.ID:
		return a, b
	case recommended == b.ID:
		return b, a
	}

	scoreA, scoreB := -1.0, -1.0
	if a.ConfidenceScore != nil {
		scoreA = *a.ConfidenceScore
	}
	if b.ConfidenceScore != nil {
		scoreB = *b.ConfidenceScore
	}
	switch {
	case scoreA > scoreB:
		return a, b
	case scoreB > scoreA:
		return b, a
	case a.InferredAt.Before(b.InferredAt):
		return a, b
	case b.InferredAt.Before(a.InferredAt):
		return b, a
	case a.ID < b.ID:
		return a, b
	default:
		return b, a
	}
}

// merge re-points the loser's evidence links at the survivor, deletes the
// loser, and rescores the survivor against its enlarged evidence set.
// Repointing skips links the survivor already has, so the unique
// (feature, evidence) constraint holds.
func (e *Engine) merge(ctx context.Context, survivor, loser *types.Feature) error {
	if err := e.store.RepointLinks(ctx, loser.ID, survivor.ID); err != nil {
		return fmt.Errorf("failed to repoint links from %s to %s: %w", loser.ID, survivor.ID, err)
	}
	if err := e.store.DeleteFeature(ctx, loser.ID); err != nil {
		return fmt.Errorf("failed to delete merged feature %s: %w", loser.ID, err)
	}
	if e.rescorer != nil {
		if err := e.rescorer.RescoreFeature(ctx, survivor.ID); err != nil {
			log.Printf("[DEDUP] Failed to rescore survivor %s: %v", survivor.ID, err)
		}
	}
	return nil
}

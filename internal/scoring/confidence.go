// Package scoring computes feature confidence scores from linked evidence.
//
// The score is a pure function of the feature's linked, non-obsolete evidence
// types. It never drifts independently of evidence state: every caller that
// changes a feature's links recomputes the score from scratch.
package scoring

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/scopeline/scopeline/internal/types"
)

// Default status thresholds. Production uses 0.75 for confirmation; an older
// deployment ran 0.70, so the threshold is configuration, not a constant
// buried in the formula.
const (
	DefaultCandidateThreshold = 0.5
	DefaultConfirmThreshold   = 0.75
)

// DefaultUnknownTypeWeight is the base weight for evidence types the scorer
// does not recognize.
const DefaultUnknownTypeWeight = 0.1

// DefaultSaturationLimit caps how many items of a single evidence type count
// toward the score. The i-th counted item (0-indexed) contributes
// baseWeight / 2^i, so repeated same-type evidence saturates instead of
// inflating the score.
const DefaultSaturationLimit = 3

// defaultTypeWeights reflects how strong a signal each evidence type is:
// a concrete API endpoint is stronger evidence of a real feature than an
// edge-case note.
var defaultTypeWeights = map[types.EvidenceType]float64{
	types.EvidenceEndpoint:           0.4,
	types.EvidenceFlow:               0.35,
	types.EvidenceAcceptanceCriteria: 0.35,
	types.EvidenceUIElement:          0.3,
	types.EvidencePayload:            0.3,
	types.EvidenceRequirement:        0.25,
	types.EvidenceBug:                0.2,
	types.EvidenceConstraint:         0.2,
	types.EvidenceEdgeCase:           0.15,
}

// Config holds scorer configuration
type Config struct {
	// CandidateThreshold is the minimum score for candidate status.
	// Scores below it are rejected.
	CandidateThreshold float64

	// ConfirmThreshold is the minimum score for confirmed status.
	ConfirmThreshold float64

	// SaturationLimit is the maximum number of same-type evidence items
	// that contribute to the score.
	SaturationLimit int

	// UnknownTypeWeight is the base weight for unrecognized evidence types.
	UnknownTypeWeight float64
}

// DefaultConfig returns the default scorer configuration
func DefaultConfig() Config {
	return Config{
		CandidateThreshold: DefaultCandidateThreshold,
		ConfirmThreshold:   DefaultConfirmThreshold,
		SaturationLimit:    DefaultSaturationLimit,
		UnknownTypeWeight:  DefaultUnknownTypeWeight,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.CandidateThreshold < 0.0 || c.CandidateThreshold > 1.0 {
		return fmt.Errorf("candidate_threshold must be between 0.0 and 1.0 (got %.2f)", c.CandidateThreshold)
	}
	if c.ConfirmThreshold < 0.0 || c.ConfirmThreshold > 1.0 {
		return fmt.Errorf("confirm_threshold must be between 0.0 and 1.0 (got %.2f)", c.ConfirmThreshold)
	}
	if c.ConfirmThreshold <= c.CandidateThreshold {
		return fmt.Errorf("confirm_threshold (%.2f) must exceed candidate_threshold (%.2f)",
			c.ConfirmThreshold, c.CandidateThreshold)
	}
	if c.SaturationLimit < 1 {
		return fmt.Errorf("saturation_limit must be at least 1 (got %d)", c.SaturationLimit)
	}
	if c.UnknownTypeWeight < 0.0 || c.UnknownTypeWeight > 1.0 {
		return fmt.Errorf("unknown_type_weight must be between 0.0 and 1.0 (got %.2f)", c.UnknownTypeWeight)
	}
	return nil
}

// Store is the storage surface the scorer needs.
type Store interface {
	GetFeature(ctx context.Context, id string) (*types.Feature, error)
	ListFeatures(ctx context.Context, filter types.FeatureFilter) ([]*types.Feature, error)
	GetLinkedEvidence(ctx context.Context, featureID string) ([]*types.Evidence, error)
	SetFeatureScore(ctx context.Context, featureID string, score float64, status *types.Status) error
}

// Scorer computes and persists feature confidence scores.
type Scorer struct {
	store  Store
	config Config
}

// NewScorer creates a scorer backed by the given store.
func NewScorer(store Store, config Config) (*Scorer, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Scorer{store: store, config: config}, nil
}

// TypeContribution describes one evidence type's share of a feature's score.
type TypeContribution struct {
	Type         types.EvidenceType `json:"type"`
	Count        int                `json:"count"`
	CountedItems int                `json:"counted_items"`
	BaseWeight   float64            `json:"base_weight"`
	Contribution float64            `json:"contribution"`
}

// Breakdown explains how a feature's score was computed, for debugging and
// reviewer-facing explainability.
type Breakdown struct {
	FeatureID     string             `json:"feature_id"`
	Score         float64            `json:"score"`
	Status        types.Status       `json:"status"`
	EvidenceCount int                `json:"evidence_count"`
	Contributions []TypeContribution `json:"contributions"`
}

// ScoreResult reports one feature's recomputed score.
type ScoreResult struct {
	FeatureID     string       `json:"feature_id"`
	Score         float64      `json:"score"`
	Status        types.Status `json:"status"`
	StatusChanged bool         `json:"status_changed"`
	StatusWritten bool         `json:"status_written"` // false when reviewed_at locked the status
}

// BatchResult summarizes a batch scoring pass.
type BatchResult struct {
	TotalFeatures  int           `json:"total_features"`
	UpdatedCount   int           `json:"updated_count"`
	FailedCount    int           `json:"failed_count"`
	StatusChanges  []ScoreResult `json:"status_changes"`
	ProcessingTime time.Duration `json:"-"`
}

// ComputeScore scores a set of evidence items. Obsolete evidence is ignored.
// The result is clamped to [0,1] and rounded to 2 decimal places.
func (s *Scorer) ComputeScore(evidence []*types.Evidence) float64 {
	weights := s.effectiveWeights(evidence)
	score := 1.0
	for _, w := range weights {
		score *= 1 - w
	}
	score = 1 - score

	score = math.Round(score*100) / 100
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// StatusFor maps a score to a status via the configured thresholds.
func (s *Scorer) StatusFor(score float64) types.Status {
	switch {
	case score >= s.config.ConfirmThreshold:
		return types.StatusConfirmed
	case score >= s.config.CandidateThreshold:
		return types.StatusCandidate
	default:
		return types.StatusRejected
	}
}

// effectiveWeights expands the evidence list into per-item effective weights
// after applying per-type saturation.
func (s *Scorer) effectiveWeights(evidence []*types.Evidence) []float64 {
	countsByType := make(map[types.EvidenceType]int)
	var weights []float64

	// Stable order so batch reruns produce identical rounding behavior.
	sorted := make([]*types.Evidence, 0, len(evidence))
	for _, ev := range evidence {
		if ev == nil || ev.Obsolete {
			continue
		}
		sorted = append(sorted, ev)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Type != sorted[j].Type {
			return sorted[i].Type < sorted[j].Type
		}
		return sorted[i].ID < sorted[j].ID
	})

	for _, ev := range sorted {
		counted := countsByType[ev.Type]
		countsByType[ev.Type] = counted + 1
		if counted >= s.config.SaturationLimit {
			continue
		}
		base := s.baseWeight(ev.Type)
		weights = append(weights, base/math.Pow(2, float64(counted)))
	}
	return weights
}

func (s *Scorer) baseWeight(t types.EvidenceType) float64 {
	if w, ok := defaultTypeWeights[t]; ok {
		return w
	}
	return s.config.UnknownTypeWeight
}

// ScoreFeature recomputes one feature's score from its current non-obsolete
// linked evidence and persists it. Status is written only when the feature
// has not been reviewed; the score itself is always recorded.
func (s *Scorer) ScoreFeature(ctx context.Context, featureID string) (*ScoreResult, error) {
	feature, err := s.store.GetFeature(ctx, featureID)
	if err != nil {
		return nil, fmt.Errorf("failed to load feature %s: %w", featureID, err)
	}
	if feature == nil {
		return nil, fmt.Errorf("feature not found: %s", featureID)
	}

	evidence, err := s.store.GetLinkedEvidence(ctx, featureID)
	if err != nil {
		return nil, fmt.Errorf("failed to load evidence for %s: %w", featureID, err)
	}

	score := s.ComputeScore(evidence)
	status := s.StatusFor(score)

	result := &ScoreResult{
		FeatureID:     featureID,
		Score:         score,
		Status:        status,
		StatusChanged: status != feature.Status,
		StatusWritten: !feature.Reviewed(),
	}

	var statusUpdate *types.Status
	if result.StatusWritten {
		statusUpdate = &status
	}
	if err := s.store.SetFeatureScore(ctx, featureID, score, statusUpdate); err != nil {
		return nil, fmt.Errorf("failed to persist score for %s: %w", featureID, err)
	}
	return result, nil
}

// ScoreAllUnreviewed recomputes every unreviewed feature, candidates and
// previously-confirmed alike, so hierarchy and merge changes propagate.
// Individual failures are logged and skipped; the batch continues.
func (s *Scorer) ScoreAllUnreviewed(ctx context.Context) (*BatchResult, error) {
	start := time.Now()

	features, err := s.store.ListFeatures(ctx, types.FeatureFilter{Unreviewed: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list features: %w", err)
	}

	result := &BatchResult{TotalFeatures: len(features)}
	for _, feature := range features {
		scored, err := s.ScoreFeature(ctx, feature.ID)
		if err != nil {
			log.Printf("[SCORE] Failed to score %s: %v (skipping)", feature.ID, err)
			result.FailedCount++
			continue
		}
		result.UpdatedCount++
		if scored.StatusChanged {
			result.StatusChanges = append(result.StatusChanges, *scored)
		}
	}

	result.ProcessingTime = time.Since(start)
	return result, nil
}

// ScoreFeatures recomputes the named features, typically those that lost
// evidence links during reprocessing. Reviewed features get their score
// recorded with status untouched. Individual failures are logged and
// skipped.
func (s *Scorer) ScoreFeatures(ctx context.Context, featureIDs []string) (*BatchResult, error) {
	start := time.Now()

	result := &BatchResult{TotalFeatures: len(featureIDs)}
	for _, id := range featureIDs {
		scored, err := s.ScoreFeature(ctx, id)
		if err != nil {
			log.Printf("[SCORE] Failed to score %s: %v (skipping)", id, err)
			result.FailedCount++
			continue
		}
		result.UpdatedCount++
		if scored.StatusChanged {
			result.StatusChanges = append(result.StatusChanges, *scored)
		}
	}

	result.ProcessingTime = time.Since(start)
	return result, nil
}

// ExplainFeature returns the per-type contribution breakdown for a feature.
func (s *Scorer) ExplainFeature(ctx context.Context, featureID string) (*Breakdown, error) {
	evidence, err := s.store.GetLinkedEvidence(ctx, featureID)
	if err != nil {
		return nil, fmt.Errorf("failed to load evidence for %s: %w", featureID, err)
	}

	counts := make(map[types.EvidenceType]int)
	active := 0
	for _, ev := range evidence {
		if ev == nil || ev.Obsolete {
			continue
		}
		counts[ev.Type]++
		active++
	}

	breakdown := &Breakdown{
		FeatureID:     featureID,
		EvidenceCount: active,
	}
	for t, count := range counts {
		counted := count
		if counted > s.config.SaturationLimit {
			counted = s.config.SaturationLimit
		}
		base := s.baseWeight(t)
		// Contribution of this type alone: 1 - prod(1 - base/2^i).
		remaining := 1.0
		for i := 0; i < counted; i++ {
			remaining *= 1 - base/math.Pow(2, float64(i))
		}
		breakdown.Contributions = append(breakdown.Contributions, TypeContribution{
			Type:         t,
			Count:        count,
			CountedItems: counted,
			BaseWeight:   base,
			Contribution: math.Round((1-remaining)*100) / 100,
		})
	}
	sort.Slice(breakdown.Contributions, func(i, j int) bool {
		return breakdown.Contributions[i].Type < breakdown.Contributions[j].Type
	})

	breakdown.Score = s.ComputeScore(evidence)
	breakdown.Status = s.StatusFor(breakdown.Score)
	return breakdown, nil
}

// Package pipeline orchestrates the full inference run: embedding, clustering,
// hypothesis generation, scoring, deduplication, relationship classification,
// and hierarchy assembly, in that order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/scopeline/scopeline/internal/classify"
	"github.com/scopeline/scopeline/internal/clustering"
	"github.com/scopeline/scopeline/internal/dedup"
	"github.com/scopeline/scopeline/internal/embedding"
	"github.com/scopeline/scopeline/internal/hierarchy"
	"github.com/scopeline/scopeline/internal/inference"
	"github.com/scopeline/scopeline/internal/scoring"
	"github.com/scopeline/scopeline/internal/storage"
	"github.com/scopeline/scopeline/internal/types"
)

// LockKey is the run-lock key shared by full runs and incremental
// reprocessing, so the two can never interleave.
const LockKey = "pipeline"

// ErrPipelineBusy is returned when a run is requested while another run
// holds the lock. Callers should back off and retry later; the engine never
// queues runs.
var ErrPipelineBusy = errors.New("pipeline run already in progress")

// Embedder backfills missing evidence embeddings.
type Embedder interface {
	EmbedPending(ctx context.Context) (*embedding.Result, error)
}

// Clusterer groups evidence by embedding similarity.
type Clusterer interface {
	ClusterEvidence(evidence []*types.Evidence) *clustering.Result
}

// Generator turns evidence clusters into candidate features.
type Generator interface {
	GenerateFromClusters(ctx context.Context, clusters []*clustering.Cluster) (*inference.Result, error)
}

// Scorer recomputes confidence scores across the catalog or for a named set
// of features.
type Scorer interface {
	ScoreAllUnreviewed(ctx context.Context) (*scoring.BatchResult, error)
	ScoreFeatures(ctx context.Context, featureIDs []string) (*scoring.BatchResult, error)
}

// Deduper finds and merges duplicate features.
type Deduper interface {
	Run(ctx context.Context) (*dedup.Result, error)
}

// Classifier assigns relationship types to feature-evidence links.
type Classifier interface {
	ClassifyAll(ctx context.Context) (*classify.Result, error)
}

// HierarchyBuilder rebuilds the epic/story/task forest.
type HierarchyBuilder interface {
	Rebuild(ctx context.Context) (*hierarchy.Result, error)
}

// Store is the storage surface the orchestrator itself needs. The stage
// engines carry their own narrower store interfaces.
type Store interface {
	GetDocument(ctx context.Context, id string) (*types.Document, error)
	ListEvidenceByDocument(ctx context.Context, documentID string) ([]*types.Evidence, error)
	CreateEvidence(ctx context.Context, evidence *types.Evidence) error
	MarkEvidenceObsolete(ctx context.Context, ids []string) error
	GetFeatureIDsForEvidence(ctx context.Context, evidenceIDs []string) ([]string, error)
	GetUnlinkedEvidence(ctx context.Context) ([]*types.Evidence, error)
	DeleteLinksForObsoleteEvidence(ctx context.Context) (int, error)
	IncrementDocumentVersion(ctx context.Context, id string, extractedAt time.Time) error
}

// Stages bundles the engines a pipeline runs. All fields are required.
type Stages struct {
	Embedder   Embedder
	Clusterer  Clusterer
	Generator  Generator
	Scorer     Scorer
	Deduper    Deduper
	Classifier Classifier
	Hierarchy  HierarchyBuilder
}

func (s Stages) validate() error {
	switch {
	case s.Embedder == nil:
		return fmt.Errorf("embedder cannot be nil")
	case s.Clusterer == nil:
		return fmt.Errorf("clusterer cannot be nil")
	case s.Generator == nil:
		return fmt.Errorf("generator cannot be nil")
	case s.Scorer == nil:
		return fmt.Errorf("scorer cannot be nil")
	case s.Deduper == nil:
		return fmt.Errorf("deduper cannot be nil")
	case s.Classifier == nil:
		return fmt.Errorf("classifier cannot be nil")
	case s.Hierarchy == nil:
		return fmt.Errorf("hierarchy builder cannot be nil")
	}
	return nil
}

// Pipeline runs the inference stages under a run lock.
type Pipeline struct {
	store  Store
	lock   storage.RunLock
	stages Stages
}

// New creates a pipeline.
func New(store Store, lock storage.RunLock, stages Stages) (*Pipeline, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if lock == nil {
		return nil, fmt.Errorf("lock cannot be nil")
	}
	if err := stages.validate(); err != nil {
		return nil, err
	}
	return &Pipeline{store: store, lock: lock, stages: stages}, nil
}

// Summary reports what each stage did in one run.
type Summary struct {
	Embedding      *embedding.Result
	Clustering     *clustering.Result
	Inference      *inference.Result
	Scoring        *scoring.BatchResult
	Dedup          *dedup.Result
	Classify       *classify.Result
	Hierarchy      *hierarchy.Result
	ProcessingTime time.Duration
}

// Run executes a full inference pass. A second Run while one is in flight
// fails immediately with ErrPipelineBusy; nothing is queued.
//
// A stage failure aborts the run. Completed stages are not rolled back:
// every stage is idempotent, so the next run picks up where this one
// stopped.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	if err := p.lock.TryAcquire(LockKey); err != nil {
		if errors.Is(err, storage.ErrLockHeld) {
			return nil, fmt.Errorf("%w: %w", ErrPipelineBusy, err)
		}
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	defer func() {
		if err := p.lock.Release(LockKey); err != nil {
			log.Printf("[PIPELINE] Failed to release run lock: %v", err)
		}
	}()

	return p.runStages(ctx)
}

// runStages executes the stage sequence. The caller holds the run lock.
func (p *Pipeline) runStages(ctx context.Context) (*Summary, error) {
	start := time.Now()
	summary := &Summary{}

	log.Printf("[PIPELINE] Starting inference run")

	var err error
	summary.Embedding, err = p.stages.Embedder.EmbedPending(ctx)
	if err != nil {
		return summary, fmt.Errorf("embedding stage failed: %w", err)
	}
	log.Printf("[PIPELINE] Embedded %d/%d evidence items",
		summary.Embedding.Embedded, summary.Embedding.Attempted)

	// Only evidence not yet tied to a feature seeds new hypotheses, so a
	// rerun does not regenerate features for evidence already explained.
	unlinked, err := p.store.GetUnlinkedEvidence(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to load unlinked evidence: %w", err)
	}
	summary.Clustering = p.stages.Clusterer.ClusterEvidence(unlinked)
	log.Printf("[PIPELINE] Found %d clusters (%d noise, %d skipped)",
		len(summary.Clustering.Clusters), len(summary.Clustering.Noise),
		summary.Clustering.SkippedCount)

	summary.Inference, err = p.stages.Generator.GenerateFromClusters(ctx, summary.Clustering.Clusters)
	if err != nil {
		return summary, fmt.Errorf("inference stage failed: %w", err)
	}
	log.Printf("[PIPELINE] Created %d features from %d clusters",
		summary.Inference.FeaturesCreated, summary.Inference.ClustersProcessed)

	// Score before dedup so survivor selection sees fresh confidence values.
	summary.Scoring, err = p.stages.Scorer.ScoreAllUnreviewed(ctx)
	if err != nil {
		return summary, fmt.Errorf("scoring stage failed: %w", err)
	}
	log.Printf("[PIPELINE] Scored %d features (%d status changes)",
		summary.Scoring.UpdatedCount, len(summary.Scoring.StatusChanges))

	summary.Dedup, err = p.stages.Deduper.Run(ctx)
	if err != nil {
		return summary, fmt.Errorf("dedup stage failed: %w", err)
	}
	log.Printf("[PIPELINE] Merged %d duplicate pairs", len(summary.Dedup.Merges))

	summary.Classify, err = p.stages.Classifier.ClassifyAll(ctx)
	if err != nil {
		return summary, fmt.Errorf("classification stage failed: %w", err)
	}
	log.Printf("[PIPELINE] Classified %d links across %d features",
		summary.Classify.LinksClassified, summary.Classify.FeaturesProcessed)

	summary.Hierarchy, err = p.stages.Hierarchy.Rebuild(ctx)
	if err != nil {
		return summary, fmt.Errorf("hierarchy stage failed: %w", err)
	}
	log.Printf("[PIPELINE] Hierarchy rebuilt: %d features, %d with parents",
		summary.Hierarchy.FeaturesProcessed, summary.Hierarchy.ParentsAssigned)

	summary.ProcessingTime = time.Since(start)
	log.Printf("[PIPELINE] Run complete in %v", summary.ProcessingTime)
	return summary, nil
}

// RescoreAdapter exposes a scoring.Scorer as a dedup.Rescorer, so merges can
// refresh the survivor's score from its widened evidence set.
type RescoreAdapter struct {
	Scorer *scoring.Scorer
}

var _ dedup.Rescorer = (*RescoreAdapter)(nil)

// RescoreFeature recomputes and persists one feature's score.
func (a *RescoreAdapter) RescoreFeature(ctx context.Context, featureID string) error {
	_, err := a.Scorer.ScoreFeature(ctx, featureID)
	return err
}

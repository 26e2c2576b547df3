package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/scopeline/scopeline/internal/scoring"
	"github.com/scopeline/scopeline/internal/storage"
	"github.com/scopeline/scopeline/internal/types"
)

// ReprocessSummary reports one incremental reprocessing pass.
type ReprocessSummary struct {
	DocumentID        string
	NewEvidence       int
	UnchangedEvidence int
	ObsoletedEvidence int
	LinksRemoved      int

	// AffectedFeatureIDs are the features that lost evidence links. Rescored
	// holds their score deltas, including reviewed features whose status the
	// rescore could not change.
	AffectedFeatureIDs []string
	Rescored           *scoring.BatchResult

	Pipeline *Summary
}

// Reprocess folds a fresh extraction of one document into the catalog.
//
// Evidence from earlier extractions that no longer appears in the fresh set
// is marked obsolete and unlinked, never deleted. Fresh items matching
// existing active evidence (same type and content) are kept as-is so their
// embeddings and links survive; genuinely new items are inserted. The full
// stage sequence then runs, which rescores every unreviewed feature so
// scores reflect the evidence that went obsolete.
//
// Takes the same run lock as Run, so a reprocess and a full run never
// interleave.
func (p *Pipeline) Reprocess(ctx context.Context, documentID string, fresh []*types.Evidence) (*ReprocessSummary, error) {
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

	if _, err := p.store.GetDocument(ctx, documentID); err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", documentID, err)
	}

	summary := &ReprocessSummary{DocumentID: documentID}
	now := time.Now().UTC()

	existing, err := p.store.ListEvidenceByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load evidence for %s: %w", documentID, err)
	}

	freshKeys := make(map[string]bool, len(fresh))
	for _, ev := range fresh {
		freshKeys[evidenceKey(ev)] = true
	}
	activeKeys := make(map[string]bool)
	var stale []string
	for _, ev := range existing {
		if ev.Obsolete {
			continue
		}
		if freshKeys[evidenceKey(ev)] {
			activeKeys[evidenceKey(ev)] = true
			summary.UnchangedEvidence++
			continue
		}
		stale = append(stale, ev.ID)
	}

	if len(stale) > 0 {
		// Captured before the links are removed, so the features that lost
		// evidence can be rescored afterward.
		affected, err := p.store.GetFeatureIDsForEvidence(ctx, stale)
		if err != nil {
			return nil, fmt.Errorf("failed to find affected features: %w", err)
		}
		summary.AffectedFeatureIDs = affected

		if err := p.store.MarkEvidenceObsolete(ctx, stale); err != nil {
			return nil, fmt.Errorf("failed to obsolete stale evidence: %w", err)
		}
		summary.ObsoletedEvidence = len(stale)
	}

	for _, ev := range fresh {
		if activeKeys[evidenceKey(ev)] {
			continue
		}
		item := &types.Evidence{
			ID:               ev.ID,
			SourceDocumentID: documentID,
			Type:             ev.Type,
			Content:          ev.Content,
			ExtractedAt:      now,
		}
		if err := p.store.CreateEvidence(ctx, item); err != nil {
			return nil, fmt.Errorf("failed to insert new evidence: %w", err)
		}
		summary.NewEvidence++
	}

	removed, err := p.store.DeleteLinksForObsoleteEvidence(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to unlink obsolete evidence: %w", err)
	}
	summary.LinksRemoved = removed

	// Rescore the features that lost links right away. ScoreAllUnreviewed in
	// the stage sequence would miss reviewed ones, whose scores still need to
	// reflect the evidence that went away.
	if len(summary.AffectedFeatureIDs) > 0 {
		summary.Rescored, err = p.stages.Scorer.ScoreFeatures(ctx, summary.AffectedFeatureIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to rescore affected features: %w", err)
		}
	}

	log.Printf("[PIPELINE] Reprocessing %s: %d new, %d unchanged, %d obsoleted, %d links removed",
		documentID, summary.NewEvidence, summary.UnchangedEvidence,
		summary.ObsoletedEvidence, summary.LinksRemoved)

	summary.Pipeline, err = p.runStages(ctx)
	if err != nil {
		return summary, err
	}

	if err := p.store.IncrementDocumentVersion(ctx, documentID, now); err != nil {
		return summary, fmt.Errorf("failed to bump document version: %w", err)
	}
	return summary, nil
}

// evidenceKey identifies an evidence item by what it says, not by its ID, so
// re-extraction of unchanged content matches the stored row.
func evidenceKey(ev *types.Evidence) string {
	return string(ev.Type) + "\x00" + ev.Content
}

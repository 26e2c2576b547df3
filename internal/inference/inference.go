// Package inference turns evidence clusters into candidate features.
package inference

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/scopeline/scopeline/internal/ai"
	"github.com/scopeline/scopeline/internal/clustering"
	"github.com/scopeline/scopeline/internal/types"
)

// Hypothesizer proposes a feature for a cluster of evidence.
type Hypothesizer interface {
	GenerateHypothesis(ctx context.Context, evidence []*types.Evidence) (*ai.FeatureHypothesis, error)
}

// Store is the storage surface the generator needs.
type Store interface {
	CreateFeature(ctx context.Context, feature *types.Feature) error
	LinkEvidence(ctx context.Context, link *types.FeatureEvidence) error
}

// Generator creates candidate features from clusters.
//
// New features always start as unclassified tasks with candidate status;
// scoring, deduplication, and hierarchy building refine them afterward.
type Generator struct {
	hypothesizer Hypothesizer
	store        Store
}

// NewGenerator creates a feature generator.
func NewGenerator(hypothesizer Hypothesizer, store Store) (*Generator, error) {
	if hypothesizer == nil {
		return nil, fmt.Errorf("hypothesizer cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	return &Generator{hypothesizer: hypothesizer, store: store}, nil
}

// SkippedCluster records a cluster that produced no feature.
type SkippedCluster struct {
	ClusterID int
	Reason    string
}

// Result summarizes one generation pass.
type Result struct {
	ClustersProcessed int
	FeaturesCreated   int
	LinksCreated      int
	Skipped           []SkippedCluster
	ProcessingTime    time.Duration
}

// GenerateFromClusters creates one candidate feature per cluster, linked to
// every evidence item in the cluster.
//
// A cluster whose hypothesis call fails, returns malformed output, or cannot
// be persisted is skipped and recorded; the rest of the batch continues.
// Noise evidence never produces features.
func (g *Generator) GenerateFromClusters(ctx context.Context, clusters []*clustering.Cluster) (*Result, error) {
	start := time.Now()
	result := &Result{ClustersProcessed: len(clusters)}

	for _, cluster := range clusters {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("generation canceled: %w", err)
		}

		hypothesis, err := g.hypothesizer.GenerateHypothesis(ctx, cluster.Evidence)
		if err != nil {
			log.Printf("[INFER] Skipping cluster %d: %v", cluster.ID, err)
			result.Skipped = append(result.Skipped, SkippedCluster{
				ClusterID: cluster.ID,
				Reason:    err.Error(),
			})
			continue
		}

		feature := &types.Feature{
			ID:          uuid.New().String(),
			Name:        hypothesis.Name,
			Status:      types.StatusCandidate,
			FeatureType: types.TypeTask,
			InferredAt:  time.Now().UTC(),
		}
		if hypothesis.Description != "" {
			feature.Description = &hypothesis.Description
		}
		if err := feature.Validate(); err != nil {
			log.Printf("[INFER] Skipping cluster %d: invalid hypothesis: %v", cluster.ID, err)
			result.Skipped = append(result.Skipped, SkippedCluster{
				ClusterID: cluster.ID,
				Reason:    fmt.Sprintf("invalid hypothesis: %v", err),
			})
			continue
		}

		if err := g.store.CreateFeature(ctx, feature); err != nil {
			log.Printf("[INFER] Skipping cluster %d: failed to persist feature: %v", cluster.ID, err)
			result.Skipped = append(result.Skipped, SkippedCluster{
				ClusterID: cluster.ID,
				Reason:    fmt.Sprintf("persist failed: %v", err),
			})
			continue
		}
		result.FeaturesCreated++

		for _, ev := range cluster.Evidence {
			link := &types.FeatureEvidence{
				FeatureID:  feature.ID,
				EvidenceID: ev.ID,
				Reasoning:  hypothesis.Reasoning,
				CreatedAt:  time.Now().UTC(),
			}
			if err := g.store.LinkEvidence(ctx, link); err != nil {
				log.Printf("[INFER] Failed to link evidence %s to feature %s: %v",
					ev.ID, feature.ID, err)
				continue
			}
			result.LinksCreated++
		}
	}

	result.ProcessingTime = time.Since(start)
	log.Printf("[INFER] Created %d features (%d links) from %d clusters, %d skipped (%.2fs)",
		result.FeaturesCreated, result.LinksCreated, result.ClustersProcessed,
		len(result.Skipped), result.ProcessingTime.Seconds())
	return result, nil
}

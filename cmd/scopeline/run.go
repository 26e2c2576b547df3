package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/scopeline/scopeline/internal/ai"
	"github.com/scopeline/scopeline/internal/classify"
	"github.com/scopeline/scopeline/internal/clustering"
	"github.com/scopeline/scopeline/internal/dedup"
	"github.com/scopeline/scopeline/internal/embedding"
	"github.com/scopeline/scopeline/internal/hierarchy"
	"github.com/scopeline/scopeline/internal/inference"
	"github.com/scopeline/scopeline/internal/pipeline"
	"github.com/scopeline/scopeline/internal/scoring"
	"github.com/scopeline/scopeline/internal/storage"
)

const timeRound = 10 * time.Millisecond

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a full inference pass over all evidence",
	Long: `Embed pending evidence, cluster it, generate candidate features,
score them, merge duplicates, classify evidence relationships, and rebuild
the feature hierarchy. Safe to rerun; completed work is not redone.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		p, err := buildPipeline()
		if err != nil {
			fatal("%v", err)
		}

		summary, err := p.Run(ctx)
		if err != nil {
			if errors.Is(err, pipeline.ErrPipelineBusy) {
				fatal("another run is already in progress")
			}
			fatal("run failed: %v", err)
		}

		printRunSummary(summary)
	},
}

// buildPipeline wires the stage engines to the shared store and the
// configured AI providers.
func buildPipeline() (*pipeline.Pipeline, error) {
	reasoner, err := ai.NewReasoner(&ai.Config{Model: cfg.Model})
	if err != nil {
		return nil, err
	}

	provider, err := embedding.NewOpenAIProvider(&embedding.Config{
		Model:             cfg.EmbeddingModel,
		RequestsPerSecond: cfg.EmbeddingRequestsPerSecond,
	})
	if err != nil {
		return nil, err
	}
	embedder, err := embedding.NewEmbedder(provider, store)
	if err != nil {
		return nil, err
	}

	clusterer, err := clustering.NewEngine(cfg.Clustering())
	if err != nil {
		return nil, err
	}
	generator, err := inference.NewGenerator(reasoner, store)
	if err != nil {
		return nil, err
	}
	scorer, err := scoring.NewScorer(store, cfg.Scoring())
	if err != nil {
		return nil, err
	}
	deduper, err := dedup.NewEngine(store, reasoner,
		&pipeline.RescoreAdapter{Scorer: scorer}, cfg.Dedup())
	if err != nil {
		return nil, err
	}
	classifier, err := classify.NewEngine(store, reasoner)
	if err != nil {
		return nil, err
	}
	builder, err := hierarchy.NewBuilder(store, cfg.Hierarchy())
	if err != nil {
		return nil, err
	}

	lock, err := storage.NewFileLock(cfg.LockDir, "scopeline")
	if err != nil {
		return nil, err
	}

	return pipeline.New(store, lock, pipeline.Stages{
		Embedder:   embedder,
		Clusterer:  clusterer,
		Generator:  generator,
		Scorer:     scorer,
		Deduper:    deduper,
		Classifier: classifier,
		Hierarchy:  builder,
	})
}

func printRunSummary(s *pipeline.Summary) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()

	fmt.Printf("\n%s\n\n", cyan("=== Inference Run Complete ==="))
	fmt.Printf("  Embedded:   %d evidence items\n", s.Embedding.Embedded)
	fmt.Printf("  Clusters:   %d (%d noise)\n", len(s.Clustering.Clusters), len(s.Clustering.Noise))
	fmt.Printf("  Features:   %s created\n", green(fmt.Sprintf("%d", s.Inference.FeaturesCreated)))
	fmt.Printf("  Scored:     %d (%d status changes)\n", s.Scoring.UpdatedCount, len(s.Scoring.StatusChanges))
	fmt.Printf("  Merged:     %d duplicate pairs\n", len(s.Dedup.Merges))
	fmt.Printf("  Classified: %d links\n", s.Classify.LinksClassified)
	fmt.Printf("  Hierarchy:  %d features, %d with parents\n",
		s.Hierarchy.FeaturesProcessed, s.Hierarchy.ParentsAssigned)
	fmt.Printf("\n  Took %v\n", s.ProcessingTime.Round(timeRound))
}

func init() {
	rootCmd.AddCommand(runCmd)
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/scopeline/scopeline/internal/pipeline"
	"github.com/scopeline/scopeline/internal/types"
)

var reprocessName string

// extractionItem is one evidence item in an extraction file.
type extractionItem struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

var reprocessCmd = &cobra.Command{
	Use:   "reprocess <document-id> <extraction.json>",
	Short: "Fold a fresh document extraction into the catalog",
	Long: `Reconcile a document's evidence with a fresh extraction. Evidence no
longer present is marked obsolete (never deleted) and its features are
rescored; new evidence flows through the full inference pass.

The extraction file is a JSON array of {"type": ..., "content": ...} items.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		documentID := args[0]

		data, err := os.ReadFile(args[1])
		if err != nil {
			fatal("failed to read extraction file: %v", err)
		}
		var items []extractionItem
		if err := json.Unmarshal(data, &items); err != nil {
			fatal("failed to parse extraction file: %v", err)
		}

		fresh := make([]*types.Evidence, 0, len(items))
		for i, item := range items {
			ev := &types.Evidence{
				SourceDocumentID: documentID,
				Type:             types.EvidenceType(item.Type),
				Content:          item.Content,
			}
			if !ev.Type.IsValid() {
				fatal("item %d: unknown evidence type %q", i, item.Type)
			}
			if ev.Content == "" {
				fatal("item %d: empty content", i)
			}
			fresh = append(fresh, ev)
		}

		// First extraction of a new document: register it before reconciling.
		if _, err := store.GetDocument(ctx, documentID); errors.Is(err, types.ErrNotFound) {
			name := reprocessName
			if name == "" {
				name = documentID
			}
			if err := store.UpsertDocument(ctx, &types.Document{
				ID:      documentID,
				Name:    name,
				Version: 0,
			}); err != nil {
				fatal("failed to register document: %v", err)
			}
		} else if err != nil {
			fatal("failed to load document: %v", err)
		}

		p, err := buildPipeline()
		if err != nil {
			fatal("%v", err)
		}
		summary, err := p.Reprocess(ctx, documentID, fresh)
		if err != nil {
			if errors.Is(err, pipeline.ErrPipelineBusy) {
				fatal("another run is already in progress")
			}
			fatal("reprocess failed: %v", err)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("=== Reprocess Complete ==="))
		fmt.Printf("  Document:   %s\n", summary.DocumentID)
		fmt.Printf("  New:        %d evidence items\n", summary.NewEvidence)
		fmt.Printf("  Unchanged:  %d\n", summary.UnchangedEvidence)
		fmt.Printf("  Obsoleted:  %d (%d links removed)\n",
			summary.ObsoletedEvidence, summary.LinksRemoved)
		if summary.Pipeline != nil {
			fmt.Printf("  Features:   %d created, %d merged\n",
				summary.Pipeline.Inference.FeaturesCreated, len(summary.Pipeline.Dedup.Merges))
		}
	},
}

func init() {
	reprocessCmd.Flags().StringVar(&reprocessName, "name", "",
		"document name when registering a new document (default: its id)")
	rootCmd.AddCommand(reprocessCmd)
}

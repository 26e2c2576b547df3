package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/scopeline/scopeline/internal/scoring"
	"github.com/scopeline/scopeline/internal/types"
)

var breakdownJSON bool

var breakdownCmd = &cobra.Command{
	Use:   "breakdown <feature-id>",
	Short: "Explain how a feature's confidence score was computed",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		featureID := args[0]

		feature, err := store.GetFeature(ctx, featureID)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				fatal("no such feature: %s", featureID)
			}
			fatal("failed to load feature: %v", err)
		}

		scorer, err := scoring.NewScorer(store, cfg.Scoring())
		if err != nil {
			fatal("%v", err)
		}
		breakdown, err := scorer.ExplainFeature(ctx, featureID)
		if err != nil {
			fatal("failed to explain feature: %v", err)
		}

		if breakdownJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(breakdown); err != nil {
				fatal("failed to encode breakdown: %v", err)
			}
			return
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan(feature.Name))
		fmt.Printf("  ID:       %s\n", gray(feature.ID))
		fmt.Printf("  Type:     %s\n", feature.FeatureType)
		fmt.Printf("  Status:   %s\n", statusColored(feature.Status))
		fmt.Printf("  Score:    %s\n", yellow(fmt.Sprintf("%.2f", breakdown.Score)))
		fmt.Printf("  Evidence: %d items\n\n", breakdown.EvidenceCount)

		if len(breakdown.Contributions) == 0 {
			fmt.Printf("  %s\n", gray("No active evidence linked"))
			return
		}

		fmt.Printf("  %s\n", yellow("Contributions by evidence type:"))
		for _, c := range breakdown.Contributions {
			bar := strings.Repeat("█", int(c.Contribution*40))
			counted := ""
			if c.CountedItems < c.Count {
				counted = gray(fmt.Sprintf(" (%d of %d counted)", c.CountedItems, c.Count))
			}
			fmt.Printf("    %-20s %.2f %s%s\n", c.Type, c.Contribution, bar, counted)
		}
	},
}

func statusColored(s types.Status) string {
	switch s {
	case types.StatusConfirmed:
		return color.New(color.FgGreen).Sprint(string(s))
	case types.StatusRejected:
		return color.New(color.FgRed).Sprint(string(s))
	default:
		return color.New(color.FgYellow).Sprint(string(s))
	}
}

func init() {
	breakdownCmd.Flags().BoolVar(&breakdownJSON, "json", false, "emit the breakdown as JSON")
	rootCmd.AddCommand(breakdownCmd)
}

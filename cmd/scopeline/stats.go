package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/scopeline/scopeline/internal/types"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show catalog statistics",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		stats, err := store.Stats(ctx)
		if err != nil {
			fatal("failed to load stats: %v", err)
		}

		if statsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(stats); err != nil {
				fatal("failed to encode stats: %v", err)
			}
			return
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== Catalog ==="))
		fmt.Printf("%s\n", yellow("Evidence:"))
		fmt.Printf("  Documents:  %d\n", stats.Documents)
		fmt.Printf("  Evidence:   %d", stats.Evidence)
		if stats.ObsoleteEvidence > 0 {
			fmt.Printf(" %s", gray(fmt.Sprintf("(%d obsolete)", stats.ObsoleteEvidence)))
		}
		fmt.Println()
		if stats.UnembeddedEvidence > 0 {
			fmt.Printf("  Unembedded: %s\n",
				yellow(fmt.Sprintf("%d", stats.UnembeddedEvidence)))
		}

		fmt.Printf("\n%s\n", yellow("Features:"))
		fmt.Printf("  Total:      %d\n", stats.Features)
		for _, status := range []types.Status{types.StatusConfirmed, types.StatusCandidate, types.StatusRejected} {
			if n := stats.ByStatus[status]; n > 0 {
				fmt.Printf("  %-11s %d\n", string(status)+":", n)
			}
		}
		for _, ft := range []types.FeatureType{types.TypeEpic, types.TypeStory, types.TypeTask} {
			if n := stats.ByType[ft]; n > 0 {
				fmt.Printf("  %-11s %d\n", string(ft)+"s:", n)
			}
		}

		fmt.Printf("\n%s\n", yellow("Links:"))
		fmt.Printf("  Total:        %d\n", stats.Links)
		fmt.Printf("  Unclassified: %d\n", stats.UnclassifiedLinks)
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "emit stats as JSON")
	rootCmd.AddCommand(statsCmd)
}

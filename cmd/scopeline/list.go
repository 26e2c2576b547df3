package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/scopeline/scopeline/internal/types"
)

var (
	listStatus     string
	listType       string
	listUnreviewed bool
	listLimit      int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List inferred features",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		filter := types.FeatureFilter{Unreviewed: listUnreviewed, Limit: listLimit}
		if listStatus != "" {
			status := types.Status(listStatus)
			if !status.IsValid() {
				fatal("unknown status %q (candidate, confirmed, rejected)", listStatus)
			}
			filter.Status = &status
		}
		if listType != "" {
			ft := types.FeatureType(listType)
			if !ft.IsValid() {
				fatal("unknown feature type %q (epic, story, task)", listType)
			}
			filter.FeatureType = &ft
		}

		features, err := store.ListFeatures(ctx, filter)
		if err != nil {
			fatal("failed to list features: %v", err)
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		if len(features) == 0 {
			fmt.Printf("%s\n", gray("No features match"))
			return
		}

		for _, f := range features {
			score := gray("----")
			if f.ConfidenceScore != nil {
				score = fmt.Sprintf("%.2f", *f.ConfidenceScore)
			}
			reviewed := ""
			if f.Reviewed() {
				reviewed = gray(" [reviewed]")
			}
			fmt.Printf("%s  %s  %-5s %-9s  %s%s\n",
				gray(f.ID), score, f.FeatureType, statusColored(f.Status), f.Name, reviewed)
		}
	},
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	listCmd.Flags().StringVar(&listType, "type", "", "filter by feature type")
	listCmd.Flags().BoolVar(&listUnreviewed, "unreviewed", false, "only unreviewed features")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "maximum features to show (0 = all)")
	rootCmd.AddCommand(listCmd)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/scopeline/scopeline/internal/types"
)

var reviewCmd = &cobra.Command{
	Use:   "review <feature-id> <confirmed|rejected>",
	Short: "Record a human review verdict on a feature",
	Long: `Mark a feature as reviewed. A reviewed feature's status is locked:
later scoring passes still record fresh scores but never flip the status.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		featureID := args[0]

		status := types.Status(args[1])
		if status != types.StatusConfirmed && status != types.StatusRejected {
			fatal("verdict must be confirmed or rejected (got %q)", args[1])
		}

		feature, err := store.GetFeature(ctx, featureID)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				fatal("no such feature: %s", featureID)
			}
			fatal("failed to load feature: %v", err)
		}

		if err := store.SetFeatureReviewed(ctx, featureID, status, time.Now().UTC()); err != nil {
			fatal("failed to record review: %v", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s %s is now %s\n", green("Reviewed:"), feature.Name, statusColored(status))
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)
}

// Command scopeline runs the feature inference engine: it turns extracted
// evidence into a scored, deduplicated, hierarchical feature catalog.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/scopeline/scopeline/internal/config"
	"github.com/scopeline/scopeline/internal/storage/sqlite"
)

var (
	cfgPath string
	cfg     config.Config
	store   *sqlite.Store
)

var rootCmd = &cobra.Command{
	Use:   "scopeline",
	Short: "Evidence-driven feature inference engine",
	Long: `Scopeline infers a product's feature catalog from extracted evidence:
endpoints, flows, UI elements, requirements, and the rest. Evidence is
embedded, clustered, and turned into scored candidate features organized
into an epic/story/task hierarchy.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		store, err = sqlite.New(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			store.Close()
		}
	},
}

// fatal prints an error and exits. The deferred store close in
// PersistentPostRun does not run, which is fine: SQLite recovers cleanly.
func fatal(format string, args ...interface{}) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(os.Stderr, "%s %s\n", red("Error:"), fmt.Sprintf(format, args...))
	os.Exit(1)
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "",
		"config file (default .scopeline.yaml in cwd or home)")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

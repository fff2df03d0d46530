package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"dealscout/internal/app"
)

var (
	analyzePlatforms bool
	analyzeJSON      bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <query>",
	Short: "Analyze market prices and deal potential for a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.AnalyzeOptions{
			Query:     strings.Join(args, " "),
			Platforms: analyzePlatforms,
			JSON:      analyzeJSON,
		}
		return getApp().Analyze(cmd.Context(), opts)
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzePlatforms, "platforms", false, "Also search secondary marketplaces")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print the full analysis as JSON")
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"dealscout/internal/app"
)

var (
	showStatus   string
	showMinScore int
	showLimit    int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recently discovered opportunities",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Status:   showStatus,
			MinScore: showMinScore,
			Limit:    showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showStatus, "status", "", "Filter by status (new, viewed, purchased, dismissed)")
	showCmd.Flags().IntVar(&showMinScore, "min-score", 0, "Minimum deal score")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of opportunities to display")
}

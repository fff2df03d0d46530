package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"dealscout/internal/app"
)

var (
	watchCategory     string
	watchMaxBuyPrice  float64
	watchMinProfit    float64
	watchMinDealScore int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Manage watch queries for the background scanner",
}

var watchAddCmd = &cobra.Command{
	Use:   "add <query>",
	Short: "Add a watch query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.WatchAddOptions{
			Query:        strings.Join(args, " "),
			Category:     watchCategory,
			MaxBuyPrice:  watchMaxBuyPrice,
			MinProfit:    watchMinProfit,
			MinDealScore: watchMinDealScore,
		}
		return getApp().AddWatch(cmd.Context(), opts)
	},
}

var watchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List watch queries",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListWatches(cmd.Context())
	},
}

var watchRemoveCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Remove a watch query and its opportunities",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().RemoveWatch(cmd.Context(), args[0])
	},
}

func init() {
	watchAddCmd.Flags().StringVar(&watchCategory, "category", "", "Marketplace category hint")
	watchAddCmd.Flags().Float64Var(&watchMaxBuyPrice, "max-buy", 0, "Maximum purchase price (0 for no cap)")
	watchAddCmd.Flags().Float64Var(&watchMinProfit, "min-profit", 5, "Minimum estimated profit in dollars")
	watchAddCmd.Flags().IntVar(&watchMinDealScore, "min-score", 50, "Minimum deal score (0-100)")

	watchCmd.AddCommand(watchAddCmd)
	watchCmd.AddCommand(watchListCmd)
	watchCmd.AddCommand(watchRemoveCmd)
}

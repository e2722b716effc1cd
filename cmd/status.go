package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/liquidity-monitor/internal/app"
)

func newStatusCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the persisted monitor state and recent history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			a, err := app.OpenStore(cmd.Context(), rt.cfg, rt.logger)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer a.Close()

			state, err := a.Store.LoadLastState(cmd.Context())
			if err != nil {
				return fmt.Errorf("load state: %w", err)
			}
			history, err := a.Store.RecentHistory(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("load history: %w", err)
			}
			alerts, err := a.Store.RecentAlerts(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("load alerts: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderStatus(rt.cfg.Monitor.URL, state, history, alerts))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of history entries and alerts to show")
	return cmd
}

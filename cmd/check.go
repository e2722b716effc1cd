package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/liquidity-monitor/internal/app"
	"github.com/JakeFAU/liquidity-monitor/internal/monitor"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run a single monitor cycle and print its result",
		Long: `check performs one full cycle: it fetches the page, resolves the verdict,
records it and dispatches any resulting alert. It exits non-zero when the
verdict is UNKNOWN.`,
		RunE: runCheck,
	}
}

func runCheck(cmd *cobra.Command, _ []string) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	a, err := app.New(cmd.Context(), rt.cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("initialize services: %w", err)
	}
	defer a.Close()

	result, err := a.Scheduler.RunCycle(cmd.Context())
	if err != nil {
		return fmt.Errorf("run cycle: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderCycle(result))
	if !result.Verdict.Known() {
		return fmt.Errorf("check inconclusive: verdict %s", monitor.VerdictUnknown)
	}
	return nil
}

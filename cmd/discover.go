// File: cmd/discover.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/navcrawl/internal/observability"
	"github.com/xkilldash9x/navcrawl/internal/orchestrator"
	"github.com/xkilldash9x/navcrawl/internal/reporting"
)

func newDiscoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Log in, map the navigation menu and save the links",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFrom(ctx)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			r, err := newRunner(cfg, logger, orchestrator.Options{})
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}

			report := reporting.NewReport("discover", cfg.Target)
			links, err := r.RunDiscover(ctx)
			if err != nil {
				return err
			}
			report.Complete(links, nil)

			reporting.PrintLinks(cmd.OutOrStdout(), links)
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d link(s) saved to %s\n", len(links), cfg.Cache.Path)

			if cfg.Report.Output != "" {
				if err := reporting.WriteJSON(cfg.Report.Output, report); err != nil {
					return err
				}
				logger.Info("Report written.", zap.String("path", cfg.Report.Output))
			}
			return nil
		},
	}
}

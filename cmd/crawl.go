// File: cmd/crawl.go
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/navcrawl/internal/checks"
	"github.com/xkilldash9x/navcrawl/internal/observability"
	"github.com/xkilldash9x/navcrawl/internal/orchestrator"
	"github.com/xkilldash9x/navcrawl/internal/reporting"
)

func newCrawlCmd() *cobra.Command {
	var (
		useCache   bool
		skipChecks []string
	)
	crawlCmd := &cobra.Command{
		Use:   "crawl",
		Short: "Visit every navigation link and check each page",
		Long: `Logs in, loads the saved link set (with --use-cache) or discovers it,
then visits every link in order. Each page is checked for failed requests,
off-palette colors and placeholder text. The command exits non-zero when
anything was found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFrom(ctx)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			skip, err := parseCategories(skipChecks)
			if err != nil {
				return err
			}
			r, err := newRunner(cfg, logger, orchestrator.Options{SkipChecks: skip})
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}

			report := reporting.NewReport("crawl", cfg.Target)
			outcome, runErr := r.RunCrawl(ctx, useCache)
			report.Complete(outcome.Links, &outcome.Results)

			if outcome.Results.Visited > 0 || runErr == nil {
				reporting.PrintSummary(cmd.OutOrStdout(), outcome.Results)
			}
			if cfg.Report.Output != "" {
				if err := reporting.WriteJSON(cfg.Report.Output, report); err != nil {
					logger.Error("Could not write report.", zap.Error(err))
				} else {
					logger.Info("Report written.", zap.String("path", cfg.Report.Output))
				}
			}

			if runErr != nil {
				return runErr
			}
			if outcome.Results.Total() > 0 {
				return ErrProblemsFound
			}
			return nil
		},
	}
	crawlCmd.Flags().BoolVar(&useCache, "use-cache", false, "reuse the saved link set instead of discovering")
	crawlCmd.Flags().StringSliceVar(&skipChecks, "skip-checks", nil, "checks to disable: request, color, text")
	return crawlCmd
}

// parseCategories maps --skip-checks values onto check categories.
func parseCategories(names []string) ([]checks.Category, error) {
	var out []checks.Category
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		c := checks.Category(name)
		if c == checks.CategoryNavigation || !isCategory(c) {
			return nil, fmt.Errorf("unknown check %q (want request, color or text)", name)
		}
		out = append(out, c)
	}
	return out, nil
}

func isCategory(c checks.Category) bool {
	for _, known := range checks.Categories {
		if c == known {
			return true
		}
	}
	return false
}

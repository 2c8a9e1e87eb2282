// File: cmd/links.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/navcrawl/internal/linkcache"
	"github.com/xkilldash9x/navcrawl/internal/observability"
	"github.com/xkilldash9x/navcrawl/internal/reporting"
)

func newLinksCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "links",
		Short:       "Print the saved link set",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipValidation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			store := linkcache.New(cfg.Cache.Path, observability.GetLogger())
			links, err := store.Load()
			if err != nil {
				return fmt.Errorf("could not read %s: %w", store.Path(), err)
			}
			reporting.PrintLinks(cmd.OutOrStdout(), links)
			return nil
		},
	}
}

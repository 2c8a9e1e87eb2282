// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/navcrawl/internal/config"
	"github.com/xkilldash9x/navcrawl/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

// skipValidation marks commands that run without a target.
const skipValidation = "skip-validation"

// envPrefix is the prefix of every configuration environment variable.
const envPrefix = "NAVCRAWL"

var cfgFile string

// NewRootCommand builds a fresh command tree. Each call returns independent
// flag state.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "navcrawl",
		Short:         "navcrawl logs into a web application, maps its navigation and checks every page.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			var (
				cfg *config.Config
				err error
			)
			if cmd.Annotations[skipValidation] == "true" {
				cfg, err = config.Decode(v)
			} else {
				cfg, err = config.NewConfigFromViper(v)
			}
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "navcrawl"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Starting navcrawl", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default is ./navcrawl.yaml)")
	flags.StringP("target", "t", "", "URL of the application under test")
	flags.Bool("headless", true, "run the browser without a window")
	flags.String("profile", "", "navigation profile name, or auto to detect it")
	flags.StringP("output", "o", "", "write a JSON report to this file")

	rootCmd.AddCommand(newDiscoverCmd())
	rootCmd.AddCommand(newCrawlCmd())
	rootCmd.AddCommand(newLinksCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the command tree against os.Args.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		if !errors.Is(err, ErrProblemsFound) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		observability.GetLogger().Debug("Command execution failed", zap.Error(err))
	}
	observability.Sync()
	return err
}

// flagBindings maps persistent flags onto configuration keys.
var flagBindings = map[string]string{
	"target":   "target",
	"headless": "browser.headless",
	"profile":  "navigation.profile",
	"output":   "report.output",
}

// initializeConfig reads the config file and environment, then applies the
// flags the user actually set.
func initializeConfig(cmd *cobra.Command, v *viper.Viper) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("navcrawl")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	for flag, key := range flagBindings {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// configFrom returns the configuration stored by the root pre-run.
func configFrom(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return cfg, nil
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/domainscope/sitemapper/internal/app"
	"github.com/domainscope/sitemapper/internal/config"
)

var cfgFile string

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

const closeTimeout = 10 * time.Second

// newRootCmd creates and configures the root command. The application
// container is built in PersistentPreRunE, after flags and configuration are
// resolved, and stored in the command context for subcommands.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sitemapper",
		Short: "Map every page reachable within a single host.",
		Long: `sitemapper crawls a site breadth-first from a seed URL, staying on the
seed's host, and produces a map from each page to the links found on it.
Run a one-off crawl with "sitemapper crawl" or start the HTTP service
with "sitemapper serve".`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			v := viper.New()
			if cfgFile != "" {
				v.SetConfigFile(cfgFile)
			}
			if err := v.BindPFlag("logging.verbose", cmd.Flags().Lookup("verbose")); err != nil {
				return fmt.Errorf("bind verbose flag: %w", err)
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			appInstance, err := app.NewApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(*app.App); ok && appInstance != nil {
				ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
				defer cancel()
				appInstance.Close(ctx)
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., $HOME/.sitemapper, /etc/sitemapper)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "verbose console logging")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// resolveApp pulls the container built by the root command out of ctx.
func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// Package cmd defines and implements the CLI commands for the sitemapper
// executable.
package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/domainscope/sitemapper/internal/app"
	"github.com/domainscope/sitemapper/internal/crawler"
	"github.com/domainscope/sitemapper/internal/report"
)

const progressInterval = 100 * time.Millisecond

// newCrawlCmd creates the 'crawl' subcommand: a one-off crawl of the given
// seed URL with the site map written to stdout or a file.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl URL",
		Short: "Crawl one host and print its site map",
		Long: `Crawls every page reachable from URL within the same host and prints a
map from page to outgoing links. A URL without a scheme is tried as
https. Interrupting the crawl (Ctrl-C) stops it early and still reports
the pages mapped so far.`,
		Args: cobra.ExactArgs(1),
		RunE: runCrawlCommand,
	}

	cmd.Flags().IntP("concurrency", "c", 0, "number of concurrent workers (default from config)")
	cmd.Flags().Duration("timeout", 0, "per-fetch timeout (default from config)")
	cmd.Flags().Int("max-pages", 0, "maximum pages to map (default from config)")
	cmd.Flags().StringP("output", "o", "text", "output format: text or json")
	cmd.Flags().String("output-file", "", "write the report to a file instead of stdout")

	return cmd
}

func runCrawlCommand(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.GetLogger()

	format, err := cmd.Flags().GetString("output")
	if err != nil {
		return fmt.Errorf("read output flag: %w", err)
	}
	if format != "text" && format != "json" {
		return fmt.Errorf("unknown output format %q (want text or json)", format)
	}

	seed := strings.TrimSpace(args[0])
	if !strings.Contains(seed, "://") {
		seed = "https://" + seed
		logger.Debug("no scheme on seed, assuming https", zap.String("url", seed))
	}

	engCfg, err := engineConfig(cmd, appInstance, seed)
	if err != nil {
		return err
	}

	engine, err := crawler.New(engCfg, appInstance.GetFetcher(), appInstance.GetExtractor(),
		crawler.WithLogger(logger),
		crawler.WithHub(appInstance.GetHub()),
		crawler.WithClock(appInstance.GetClock()),
	)
	if err != nil {
		return fmt.Errorf("start crawl: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopProgress := startProgressLine(engine)
	start := time.Now()
	results := engine.Run(ctx)
	elapsed := time.Since(start)
	stopProgress()

	out, closeOut, err := reportWriter(cmd)
	if err != nil {
		return err
	}
	defer closeOut()

	switch format {
	case "json":
		err = report.WriteJSON(out, engine.Seed(), results, elapsed)
	default:
		err = report.WriteText(out, engine.Seed(), results, elapsed)
	}
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// engineConfig starts from the configured crawl defaults and applies only the
// flags the user actually set.
func engineConfig(cmd *cobra.Command, appInstance *app.App, seed string) (crawler.Config, error) {
	cfg := appInstance.GetConfig().EngineConfig(seed)
	if cmd.Flags().Changed("concurrency") {
		v, err := cmd.Flags().GetInt("concurrency")
		if err != nil || v <= 0 {
			return crawler.Config{}, fmt.Errorf("concurrency must be a positive integer")
		}
		cfg.Concurrency = v
	}
	if cmd.Flags().Changed("timeout") {
		v, err := cmd.Flags().GetDuration("timeout")
		if err != nil || v <= 0 {
			return crawler.Config{}, fmt.Errorf("timeout must be a positive duration")
		}
		cfg.Timeout = v
	}
	if cmd.Flags().Changed("max-pages") {
		v, err := cmd.Flags().GetInt("max-pages")
		if err != nil || v <= 0 {
			return crawler.Config{}, fmt.Errorf("max-pages must be a positive integer")
		}
		cfg.MaxPages = v
	}
	return cfg, nil
}

// startProgressLine polls the engine snapshot and redraws a single status
// line on stderr while the crawl runs. The returned func stops the ticker and
// clears the line.
func startProgressLine(engine *crawler.Engine) func() {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				snap := engine.Snapshot()
				fmt.Fprintf(os.Stderr, "\r\033[Kmapped %d pages, %d queued  %s",
					snap.Pages, snap.QueueDepth, trimURL(snap.LastURL, 60))
			}
		}
	}()
	return func() {
		close(done)
		<-finished
		fmt.Fprintf(os.Stderr, "\r\033[K")
	}
}

func trimURL(u string, max int) string {
	if len(u) <= max {
		return u
	}
	return u[:max-3] + "..."
}

// reportWriter returns stdout or the file named by --output-file.
func reportWriter(cmd *cobra.Command) (io.Writer, func(), error) {
	path, err := cmd.Flags().GetString("output-file")
	if err != nil {
		return nil, nil, fmt.Errorf("read output-file flag: %w", err)
	}
	if path == "" {
		return cmd.OutOrStdout(), func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create report file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

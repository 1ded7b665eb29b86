package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/domainscope/sitemapper/internal/api"
	"github.com/domainscope/sitemapper/internal/dispatcher"
	"github.com/domainscope/sitemapper/internal/worker"
)

const defaultServeWorkers = 2

// newServeCmd creates the 'serve' subcommand: the long-running HTTP service
// accepting crawl submissions.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sitemapper HTTP service",
		Long: `Starts the HTTP API: crawls are submitted with POST /api/v1/crawls and
executed by a pool of crawl runners; progress is visible through the
crawl endpoints, /metrics, and the live event stream.`,
		RunE: runServeCommand,
	}

	cmd.Flags().Int("port", 0, "listen port (default from config)")
	cmd.Flags().Int("workers", defaultServeWorkers, "crawl jobs executed in parallel")
	cmd.Flags().Int("queue-size", 0, "submitted crawls buffered before 503s")

	return cmd
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.GetLogger()
	cfg := appInstance.GetConfig()

	port := cfg.Server.Port
	if cmd.Flags().Changed("port") {
		if port, err = cmd.Flags().GetInt("port"); err != nil || port <= 0 {
			return fmt.Errorf("port must be a positive integer")
		}
	}
	workerCount, err := cmd.Flags().GetInt("workers")
	if err != nil || workerCount <= 0 {
		return fmt.Errorf("workers must be a positive integer")
	}
	queueSize, err := cmd.Flags().GetInt("queue-size")
	if err != nil || queueSize < 0 {
		return fmt.Errorf("queue-size must not be negative")
	}

	workers := make([]*worker.Worker, 0, workerCount)
	for i := 0; i < workerCount; i++ {
		workers = append(workers, worker.New(
			appInstance.GetCrawls(),
			appInstance.GetFetcher(),
			appInstance.GetExtractor(),
			appInstance.GetHub(),
			appInstance.GetClock(),
			logger.With(zap.Int("runner", i)),
		))
	}
	disp := dispatcher.New(queueSize, workers)

	server := api.NewServer(
		appInstance.GetCrawls(),
		disp,
		appInstance.GetIDGen(),
		appInstance.GetClock(),
		appInstance.GetHub(),
		appInstance.GetRing(),
		cfg,
		logger,
	)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispDone := make(chan struct{})
	go func() {
		defer close(dispDone)
		disp.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.Int("port", port), zap.Int("workers", workerCount))
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		stop()
		<-dispDone
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
	// The dispatcher shares ctx, so the in-flight crawls are already
	// draining; wait for the runners to settle their final store writes.
	<-dispDone
	logger.Info("shutdown complete")
	return nil
}

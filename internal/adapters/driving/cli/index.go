package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/apache/stanbol-sub040/internal/core/domain"
	"github.com/apache/stanbol-sub040/internal/logger"
)

var indexCmd = &cobra.Command{
	Use:   "index [source-id]",
	Short: "Index entities from sources",
	Long: `Runs an indexing pass. If a source ID is provided, only that source is
indexed. Otherwise, all sources are indexed.

A source is re-read in full when it was never indexed or its epoch
changed; otherwise only the entities changed since the last pass are
applied. --full starts a new epoch first. --watch keeps following the
sources and re-indexes them on the configured interval.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

var indexStatusCmd = &cobra.Command{
	Use:   "status [source-id]",
	Short: "Show indexing status",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndexStatus,
}

// Flags for the index command.
var (
	indexFull        bool
	indexWatch       bool
	indexMetricsAddr string
)

func init() {
	indexCmd.Flags().BoolVar(&indexFull, "full", false, "re-index sources in full")
	indexCmd.Flags().BoolVarP(&indexWatch, "watch", "w", false, "watch sources and index on the configured interval")
	indexCmd.Flags().StringVar(&indexMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while watching")
	indexCmd.AddCommand(indexStatusCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	s, err := loadServices(ctx)
	if err != nil {
		return err
	}
	if s.Indexer == nil {
		return errors.New("indexing service not configured")
	}

	selected, err := selectSources(s, args)
	if err != nil {
		return err
	}
	if indexFull {
		for _, src := range selected {
			if err := src.Reset(); err != nil {
				return fmt.Errorf("failed to reset source %s: %w", src.Name(), err)
			}
		}
	}

	var reports []domain.IndexingReport
	if len(args) > 0 {
		cmd.Printf("Indexing source: %s...\n", args[0])
		report, err := s.Indexer.Index(ctx, args[0])
		if err != nil {
			return fmt.Errorf("indexing failed: %w", err)
		}
		reports = append(reports, *report)
	} else {
		cmd.Println("Indexing all sources...")
		reports, err = s.Indexer.IndexAll(ctx)
		if err != nil {
			return fmt.Errorf("indexing failed: %w", err)
		}
	}
	for i := range reports {
		printReport(cmd, &reports[i])
	}

	if indexWatch {
		return watch(ctx, cmd, s, selected)
	}
	return nil
}

// selectSources returns the named source, or every source.
func selectSources(s *Services, args []string) ([]Source, error) {
	if len(args) == 0 {
		return s.Sources, nil
	}
	for _, src := range s.Sources {
		if src.Name() == args[0] {
			return []Source{src}, nil
		}
	}
	return nil, fmt.Errorf("source not found: %s", args[0])
}

// watch follows the sources and runs the scheduler until ctx is done.
func watch(ctx context.Context, cmd *cobra.Command, s *Services, sources []Source) error {
	if s.Scheduler == nil {
		return errors.New("scheduler not configured")
	}
	if cfg, err := loadConfig(); err == nil && cfg.Config().Indexing.Interval <= 0 {
		return errors.New("--watch requires indexing.interval to be set")
	}

	for _, src := range sources {
		if err := src.Watch(ctx); err != nil {
			return fmt.Errorf("failed to watch source %s: %w", src.Name(), err)
		}
	}

	if indexMetricsAddr != "" && s.Metrics != nil {
		stop := serveMetrics(indexMetricsAddr, s.Metrics)
		defer stop()
		cmd.Printf("Serving metrics on %s/metrics\n", indexMetricsAddr)
	}

	cmd.Println("Watching sources. Press Ctrl+C to stop.")
	err := s.Scheduler.Start(ctx)
	printRunSummary(cmd, s.Scheduler.History())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// printRunSummary reports how many scheduled runs completed and failed.
func printRunSummary(cmd *cobra.Command, history []domain.TaskResult) {
	if len(history) == 0 {
		return
	}
	failed := 0
	for _, r := range history {
		if !r.Success {
			failed++
		}
	}
	cmd.Printf("Stopped after %d run(s), %d failed\n", len(history), failed)
}

// serveMetrics starts the metrics endpoint and returns a function that
// shuts it down.
func serveMetrics(addr string, metrics http.Handler) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}

func printReport(cmd *cobra.Command, r *domain.IndexingReport) {
	mode := "incremental"
	if r.Full {
		mode = "full"
	}
	cmd.Printf("  %s (%s): %d indexed, %d excluded, %d removed, %d skipped [epoch %d, revision %d]\n",
		r.SourceID, mode, r.Indexed, r.Excluded, r.Removed, r.Skipped, r.Epoch, r.Revision)
}

func runIndexStatus(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	s, err := loadServices(ctx)
	if err != nil {
		return err
	}
	if s.Indexer == nil {
		return errors.New("indexing service not configured")
	}

	selected, err := selectSources(s, args)
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		cmd.Println("No sources configured.")
		return nil
	}

	for _, src := range selected {
		status, err := s.Indexer.Status(ctx, src.Name())
		if err != nil {
			return fmt.Errorf("failed to get status of %s: %w", src.Name(), err)
		}
		state := "idle"
		if status.Running {
			state = "running"
		}
		cmd.Printf("%s: %s, epoch %d, revision %d\n", status.SourceID, state, status.Epoch, status.Revision)
		if status.LastReport != nil {
			cmd.Printf("  last run: %d entities processed\n", status.LastReport.Processed())
		}
		if status.LastError != "" {
			cmd.Printf("  last error: %s\n", status.LastError)
		}
	}
	return nil
}

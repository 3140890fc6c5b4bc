package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/apache/stanbol-sub040/internal/core/ports/driven"
	"github.com/apache/stanbol-sub040/internal/core/ports/driving"
	"github.com/apache/stanbol-sub040/internal/logger"
)

// version is set at build time via SetVersion.
var version = "dev"

// Global flags.
var (
	verbose   bool
	configDir string
)

// Source is an IndexingSource the CLI can watch and reset.
type Source interface {
	driven.IndexingSource

	// Watch follows the source until ctx is done.
	Watch(ctx context.Context) error

	// Reset starts a new epoch, forcing a full re-index.
	Reset() error
}

// Services are the core services the commands drive.
type Services struct {
	Yard      driving.Yard
	Indexer   driving.IndexingDriver
	Scheduler driving.Scheduler
	Sources   []Source

	// Metrics serves the Prometheus metrics. May be nil.
	Metrics http.Handler

	// Close releases the backend and sources. May be nil.
	Close func() error
}

// ConfigOpener opens the configuration store in dir. An empty dir selects
// the default location.
type ConfigOpener func(dir string) (driven.ConfigStore, error)

// ServicesOpener builds the services from the configuration.
type ServicesOpener func(ctx context.Context, cfg driven.ConfigStore) (*Services, error)

var (
	openConfig   ConfigOpener
	openServices ServicesOpener

	configStore  driven.ConfigStore
	yardServices *Services
)

var rootCmd = &cobra.Command{
	Use:   "yard",
	Short: "Entity yard: store and query entity representations",
	Long: `Yard stores entity representations in a search index and answers
field queries against them. Entities are written directly or fed from
indexing sources, and can be cached from an upstream site.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "configuration directory (default ~/.yard)")
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// SetOpeners sets how commands open the configuration and services.
func SetOpeners(c ConfigOpener, s ServicesOpener) {
	openConfig = c
	openServices = s
}

// SetServices injects ready services, bypassing the openers.
func SetServices(cfg driven.ConfigStore, s *Services) {
	configStore = cfg
	yardServices = s
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	defer func() {
		if err := Close(); err != nil {
			logger.Warn("closing services: %v", err)
		}
	}()
	return rootCmd.ExecuteContext(ctx)
}

// Close releases services opened by the commands.
func Close() error {
	if yardServices == nil || yardServices.Close == nil {
		return nil
	}
	err := yardServices.Close()
	yardServices.Close = nil
	return err
}

// loadConfig returns the configuration store, opening it on first use.
func loadConfig() (driven.ConfigStore, error) {
	if configStore != nil {
		return configStore, nil
	}
	if openConfig == nil {
		return nil, errors.New("config store not configured")
	}
	store, err := openConfig(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	configStore = store
	return store, nil
}

// loadServices returns the services, building them on first use.
func loadServices(ctx context.Context) (*Services, error) {
	if yardServices != nil {
		return yardServices, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if openServices == nil {
		return nil, errors.New("yard service not configured")
	}
	s, err := openServices(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open yard: %w", err)
	}
	yardServices = s
	return s, nil
}

// commandContext returns the command context, or Background when the
// command runs outside ExecuteContext.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

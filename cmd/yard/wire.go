package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/apache/stanbol-sub040/internal/adapters/driven/config/file"
	"github.com/apache/stanbol-sub040/internal/adapters/driven/score"
	"github.com/apache/stanbol-sub040/internal/adapters/driven/source/filesystem"
	"github.com/apache/stanbol-sub040/internal/adapters/driven/storage/memory"
	"github.com/apache/stanbol-sub040/internal/adapters/driven/storage/solr"
	"github.com/apache/stanbol-sub040/internal/adapters/driven/storage/sqlite"
	"github.com/apache/stanbol-sub040/internal/adapters/driving/cli"
	"github.com/apache/stanbol-sub040/internal/core/domain"
	"github.com/apache/stanbol-sub040/internal/core/ports/driven"
	"github.com/apache/stanbol-sub040/internal/core/services"
	"github.com/apache/stanbol-sub040/internal/logger"
)

// upstreamName is the name of the filesystem source serving the upstream site.
const upstreamName = "upstream"

func openConfig(dir string) (driven.ConfigStore, error) {
	return file.NewConfigStore(dir)
}

// openServices builds the backend, the Yard and the indexing services from
// the configuration. On failure everything opened so far is closed.
func openServices(ctx context.Context, store driven.ConfigStore) (_ *cli.Services, err error) {
	cfg := store.Config()

	var closers []func() error
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
	defer func() {
		if err != nil {
			_ = closeAll()
		}
	}()

	index, states, closeIndex, err := openIndex(cfg.Backend)
	if err != nil {
		return nil, err
	}
	closers = append(closers, closeIndex)

	var upstream driven.EntitySource
	if cfg.Upstream != "" {
		src, err := filesystem.New(upstreamName, cfg.Upstream)
		if err != nil {
			return nil, fmt.Errorf("opening upstream: %w", err)
		}
		closers = append(closers, src.Close)
		upstream = src
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := services.NewMetrics(registry)

	yard, err := services.NewYard(ctx, cfg, index, upstream, metrics)
	if err != nil {
		return nil, err
	}

	scorer := score.NewFieldScorer(cfg.Indexing.ScoreField, cfg.Indexing.Exclude...)
	indexer := services.NewIndexer(yard, states, scorer, metrics, cfg.Indexing.Concurrency)

	sources, err := openSources(cfg.Indexing.Sources)
	if err != nil {
		return nil, err
	}
	for _, src := range sources {
		closers = append(closers, src.Close)
		if err := indexer.Register(src); err != nil {
			return nil, err
		}
	}

	return &cli.Services{
		Yard:      yard,
		Indexer:   indexer,
		Scheduler: services.NewScheduler(cfg.Indexing, indexer),
		Sources:   asCLISources(sources),
		Metrics:   promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Close:     closeAll,
	}, nil
}

// openIndex opens the configured backend and the store of indexing states.
// The Solr backend keeps indexing states in a local SQLite database.
func openIndex(cfg domain.BackendConfig) (driven.Index, driven.IndexingStateStore, func() error, error) {
	switch cfg.Type {
	case domain.BackendMemory:
		index := memory.NewIndex()
		return index, memory.NewIndexingStateStore(), index.Close, nil

	case domain.BackendSQLite:
		store, err := sqlite.NewStore(cfg.Path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening sqlite backend: %w", err)
		}
		logger.Debug("sqlite backend at %s", store.Path())
		return store, store.IndexingStateStore(), store.Close, nil

	case domain.BackendSolr:
		index, err := solr.NewIndex(solr.Config{
			URL:               cfg.URL,
			Core:              cfg.Core,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
			SkipSchema:        cfg.ExternalSchema,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening solr backend: %w", err)
		}
		states, err := sqlite.NewStore(cfg.Path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening indexing state store: %w", err)
		}
		closeBoth := func() error {
			return errors.Join(index.Close(), states.Close())
		}
		return index, states.IndexingStateStore(), closeBoth, nil

	default:
		return nil, nil, nil, fmt.Errorf("%w: backend %q", domain.ErrUnsupportedType, cfg.Type)
	}
}

// openSources opens a filesystem source per directory. Sources are named
// after the directory; repeated names get a numeric suffix.
func openSources(dirs []string) ([]*filesystem.Source, error) {
	seen := make(map[string]int)
	sources := make([]*filesystem.Source, 0, len(dirs))
	for _, dir := range dirs {
		name := filepath.Base(filepath.Clean(dir))
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s-%d", name, n)
		}

		src, err := filesystem.New(name, dir)
		if err != nil {
			for _, opened := range sources {
				_ = opened.Close()
			}
			return nil, fmt.Errorf("opening source %s: %w", dir, err)
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func asCLISources(sources []*filesystem.Source) []cli.Source {
	out := make([]cli.Source, len(sources))
	for i, src := range sources {
		out[i] = src
	}
	return out
}

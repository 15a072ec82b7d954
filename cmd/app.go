package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/kamusis/coach-cli/internal/catalog"
	"github.com/kamusis/coach-cli/internal/config"
	"github.com/kamusis/coach-cli/internal/embeddings"
	"github.com/kamusis/coach-cli/internal/search"
	"github.com/kamusis/coach-cli/internal/search/index"
)

// app bundles the opened stores for one command invocation.
type app struct {
	cfg     *config.Config
	cat     *catalog.Catalog
	idx     *index.Index
	mgr     *search.Manager
	prov    embeddings.Provider
	provErr error // set when prov is a stand-in that always reports unavailable
}

// loadConfig loads coach.yaml with a hint when it cannot be read.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("cannot load config: %w\nRun 'coach init' first.", err)
	}
	return cfg, nil
}

// loadProvider resolves the embedding provider. A missing provider is not an
// error: the returned reason explains it and callers degrade.
func loadProvider() (embeddings.Provider, error) {
	embCfg, err := embeddings.LoadConfig()
	if err != nil {
		return nil, err
	}
	return embeddings.NewFromConfig(embCfg)
}

// openApp opens the catalog and the index. readOnly takes a shared index
// lock so concurrent readers do not block each other.
func openApp(readOnly bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}

	a.prov, a.provErr = loadProvider()
	if a.provErr != nil {
		if !errors.Is(a.provErr, embeddings.ErrUnavailable) {
			return nil, a.provErr
		}
		a.prov = embeddings.Unavailable(a.provErr.Error())
	}

	a.cat, err = catalog.Open(cfg.Catalog.Path, catalog.Options{Logger: slog.Default()})
	if err != nil {
		return nil, err
	}
	a.idx, err = index.Open(cfg.Index.Dir, index.Options{
		Shards:      cfg.Index.Shards,
		Dim:         cfg.Index.Dimension,
		Metric:      cfg.Index.Metric,
		ReadOnly:    readOnly,
		LockTimeout: cfg.Index.LockTimeout,
		Logger:      slog.Default(),
	})
	if err != nil {
		_ = a.cat.Close()
		return nil, fmt.Errorf("cannot open vector index %s: %w", cfg.Index.Dir, err)
	}
	a.mgr = search.NewManager(a.idx, a.prov, slog.Default())
	return a, nil
}

func (a *app) Close() error {
	return errors.Join(a.idx.Close(), a.cat.Close())
}

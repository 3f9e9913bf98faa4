package cmd

import (
	"fmt"
	"os"

	"github.com/datapages/splitsearch/pkg/catalog"
	"github.com/datapages/splitsearch/pkg/config"
	"github.com/datapages/splitsearch/pkg/fetch"
	"github.com/datapages/splitsearch/pkg/index"
	"github.com/datapages/splitsearch/pkg/pager"
)

// loadCatalog loads the manifest named by the config. A missing manifest is
// not fatal for serve (it can appear later and be picked up by the watcher),
// so callers choose how to treat the error.
func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if _, err := os.Stat(cfg.CatalogPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("catalog manifest %s does not exist", cfg.CatalogPath)
	}
	return catalog.Load(cfg.CatalogPath)
}

// newEngine builds the pagination engine with the configured window size and
// the SQLite index opener.
func newEngine(cfg *config.Config) *pager.Engine {
	return pager.NewEngine(index.Opener, pager.Config{
		BatchSize: cfg.BatchSize,
		ScanAll:   cfg.ScanAll,
	})
}

// newFetcher builds the index materializer over the configured cache dir.
func newFetcher(cfg *config.Config) *fetch.Fetcher {
	return fetch.New(cfg.CacheDir, cfg.DownloadTimeout.Duration)
}

package commands

import (
	"github.com/teranos/catalog/am"
	"github.com/teranos/catalog/catalog"
	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/lineage"
	"github.com/teranos/catalog/logger"
	"github.com/teranos/catalog/manager"
	"github.com/teranos/catalog/query"
)

// Global flags, bound by the root command
var (
	ConfigFile   string
	OutputFormat string
)

// LoadConfig reads --config when given, otherwise the usual cascade
func LoadConfig() (*am.Config, error) {
	if ConfigFile != "" {
		return am.LoadFromFile(ConfigFile)
	}
	return am.Load()
}

// env is an opened catalog plus the components built over it
type env struct {
	cfg     *am.Config
	catalog *catalog.Catalog
}

// openEnv loads and validates configuration and opens the configured backend
func openEnv() (*env, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	cat, err := catalog.Open(cfg, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s catalog at %s", cfg.GetBackend(), cfg.GetDatabasePath())
	}
	return &env{cfg: cfg, catalog: cat}, nil
}

func (e *env) Close() error {
	return e.catalog.Close()
}

func (e *env) engine() *query.Engine {
	return query.NewEngine(e.catalog.Backend(), query.Options{
		MaxFetch: e.cfg.GetQueryMaxFetch(),
		Logger:   logger.Logger,
	})
}

func (e *env) tracker() *lineage.Tracker {
	return lineage.NewTracker(e.catalog.Backend(), lineage.WithLogger(logger.Logger))
}

func (e *env) manager() *manager.Manager {
	return manager.New(e.catalog, manager.Options{
		DeleteRatePerSecond: e.cfg.Maintenance.DeleteRatePerSecond,
		BytesPerResultRow:   e.cfg.GetBytesPerResultRow(),
		Logger:              logger.Logger,
	})
}

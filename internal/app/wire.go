package app

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"mlsgroup/internal/domain"
	"mlsgroup/internal/metrics"
	"mlsgroup/internal/protocol/mls"
	clientsvc "mlsgroup/internal/services/client"
	identitysvc "mlsgroup/internal/services/identity"
	"mlsgroup/internal/store"
	"mlsgroup/internal/store/sqlite"
)

// Wire bundles the stores and services that do not need the passphrase.
type Wire struct {
	Config   Config
	Logger   *zap.Logger
	Identity domain.IdentityService
	Store    *sqlite.Store
	Metrics  *metrics.GroupMetrics
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg Config) (*Wire, error) {
	logger, err := NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	identityStore := store.NewIdentityFileStore(cfg.Home)
	db, err := sqlite.Open(filepath.Join(cfg.Home, databaseFilename),
		sqlite.WithRetention(cfg.Retention),
		sqlite.WithLogger(logger.Named("store")))
	if err != nil {
		return nil, fmt.Errorf("open group database: %w", err)
	}

	var m *metrics.GroupMetrics
	if cfg.Registerer != nil {
		m = metrics.NewGroupMetrics(cfg.Registerer)
	}

	return &Wire{
		Config:   cfg,
		Logger:   logger,
		Identity: identitysvc.New(identityStore),
		Store:    db,
		Metrics:  m,
	}, nil
}

// Open unlocks the local identity and builds the group client for it.
func (w *Wire) Open(passphrase string) (*App, error) {
	id, err := w.Identity.LoadIdentity(passphrase)
	if err != nil {
		return nil, err
	}
	engine, err := mls.New(mls.Config{
		Signer:             id.SigningKey,
		Identity:           id.SigningIdentity(),
		KeyPackages:        w.Store.KeyPackages(),
		PSKs:               w.Store.PSKs(),
		Provider:           identitysvc.NewBasicProvider(),
		KeyPackageLifetime: w.Config.KeyPackageLifetime,
		Logger:             w.Logger.Named("engine"),
	})
	if err != nil {
		return nil, err
	}
	c, err := clientsvc.New(clientsvc.Config{
		Engine:    engine,
		Storage:   w.Store,
		Logger:    w.Logger.Named("group"),
		Metrics:   w.Metrics,
		CacheSize: w.Config.CacheSize,
	})
	if err != nil {
		return nil, err
	}
	return New(id, c), nil
}

// Close releases the database and flushes the logger.
func (w *Wire) Close() error {
	_ = w.Logger.Sync()
	return w.Store.Close()
}

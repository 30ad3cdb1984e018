package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/config"
	"github.com/fyrsmithlabs/recalld/internal/embedding"
	"github.com/fyrsmithlabs/recalld/internal/logging"
	"github.com/fyrsmithlabs/recalld/internal/memory"
	"github.com/fyrsmithlabs/recalld/internal/privacy"
	"github.com/fyrsmithlabs/recalld/internal/scope"
	"github.com/fyrsmithlabs/recalld/internal/store"
)

// app holds the wired subsystems for one CLI invocation.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	engine *memory.Engine
	stores []memory.ScopedStore
}

// newApp loads configuration and wires stores, embedding provider,
// cache, privacy filter, and engine.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	dir := workDir
	if dir == "" {
		dir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
	}

	resolution, err := scope.NewResolver(cfg.Storage.ProjectMarker).Resolve(dir)
	if err != nil {
		return nil, err
	}

	global, err := store.New(cfg.Storage.GlobalPath, memory.ScopeGlobal, cfg.Embedding.Dimensions, logger)
	if err != nil {
		return nil, fmt.Errorf("opening global store: %w", err)
	}
	stores := []memory.ScopedStore{{Scope: memory.ScopeGlobal, Store: global}}

	if resolution.HasProject {
		projectPath := filepath.Join(resolution.ProjectRoot, cfg.Storage.ProjectMarker, "memory.db")
		project, err := store.New(projectPath, memory.ScopeProject, cfg.Embedding.Dimensions, logger)
		if err != nil {
			// The global scope still works without the project database.
			logger.Warn("opening project store failed, continuing with global scope only",
				zap.String("path", projectPath), zap.Error(err))
		} else {
			stores = append(stores, memory.ScopedStore{Scope: memory.ScopeProject, Store: project})
		}
	}

	provider, err := newProvider(ctx, cfg)
	if err != nil {
		closeStores(stores)
		return nil, err
	}

	cache, err := embedding.NewCache(provider, cfg.Cache.Capacity, cfg.Cache.TTL, logger)
	if err != nil {
		closeStores(stores)
		return nil, err
	}

	var filter privacy.Filter = privacy.New(cfg.Privacy.Markers)
	if cfg.Privacy.Disabled {
		filter = privacy.NoopFilter{}
	}

	engine, err := memory.NewEngine(stores, cache, filter, cfg.RetrievalOptions(), logger)
	if err != nil {
		closeStores(stores)
		return nil, err
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		engine: engine,
		stores: stores,
	}, nil
}

func newProvider(ctx context.Context, cfg *config.Config) (embedding.Provider, error) {
	switch cfg.Embedding.Provider {
	case "tei":
		provider, err := embedding.NewTEIProvider(embedding.TEIConfig{
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Timeout:    cfg.Embedding.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("creating tei provider: %w", err)
		}
		if err := provider.Init(ctx); err != nil {
			return nil, fmt.Errorf("tei provider unavailable: %w", err)
		}
		return provider, nil
	default:
		return embedding.NewLocalProvider(cfg.Embedding.Dimensions), nil
	}
}

// close releases the app's resources.
func (a *app) close() {
	closeStores(a.stores)
	_ = logging.Sync(a.logger)
}

func closeStores(stores []memory.ScopedStore) {
	for _, ss := range stores {
		_ = ss.Store.Close()
	}
}

// resolveScope maps the --scope flag to a scope, defaulting to project
// when a project store is active.
func (a *app) resolveScope(flag string) (memory.Scope, error) {
	switch flag {
	case "":
		for _, ss := range a.stores {
			if ss.Scope == memory.ScopeProject {
				return memory.ScopeProject, nil
			}
		}
		return memory.ScopeGlobal, nil
	case string(memory.ScopeGlobal):
		return memory.ScopeGlobal, nil
	case string(memory.ScopeProject):
		return memory.ScopeProject, nil
	default:
		return "", fmt.Errorf("invalid scope %q (expected global or project)", flag)
	}
}

// Package di assembles the application with a dig container.
package di

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/0xcro3dile/knowledge-vault/internal/adapters/loader"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/ports"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/usecases"
	"github.com/0xcro3dile/knowledge-vault/internal/infrastructure/config"
	kvhttp "github.com/0xcro3dile/knowledge-vault/internal/infrastructure/http"
	"github.com/0xcro3dile/knowledge-vault/internal/infrastructure/metrics"
)

// App holds the assembled components.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *metrics.Collector
	Index    ports.VectorIndex
	Ingest   *usecases.IngestUseCase
	Chat     *usecases.ChatUseCase
	Sessions *usecases.SessionManager
	Files    *loader.FileLoader
	Sources  *loader.Loader
	Server   *kvhttp.Server

	closers *closerList
}

type appIn struct {
	dig.In

	Metrics  *metrics.Collector
	Index    ports.VectorIndex
	Ingest   *usecases.IngestUseCase
	Chat     *usecases.ChatUseCase
	Sessions *usecases.SessionManager
	Files    *loader.FileLoader
	Sources  *loader.Loader
	Server   *kvhttp.Server
}

// Build wires every component from cfg. Close the App to release the index
// and any external connections.
func Build(cfg *config.Config, base *zap.Logger) (*App, error) {
	if base == nil {
		base = zap.NewNop()
	}
	closers := &closerList{}
	c := dig.New()
	if err := registerProviders(c, cfg, base, closers); err != nil {
		return nil, fmt.Errorf("registering providers: %w", err)
	}

	app := &App{Config: cfg, Logger: base, closers: closers}
	err := c.Invoke(func(in appIn) {
		app.Metrics = in.Metrics
		app.Index = in.Index
		app.Ingest = in.Ingest
		app.Chat = in.Chat
		app.Sessions = in.Sessions
		app.Files = in.Files
		app.Sources = in.Sources
		app.Server = in.Server
	})
	if err != nil {
		_ = closers.close(base)
		return nil, fmt.Errorf("building application: %w", dig.RootCause(err))
	}
	return app, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	return a.closers.close(a.Logger)
}

type closer struct {
	name string
	fn   func() error
}

// closerList collects cleanup functions registered by providers.
type closerList struct {
	mu    sync.Mutex
	items []closer
}

func (l *closerList) add(name string, fn func() error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, closer{name: name, fn: fn})
}

func (l *closerList) close(log *zap.Logger) error {
	l.mu.Lock()
	items := l.items
	l.items = nil
	l.mu.Unlock()

	var errs []error
	for i := len(items) - 1; i >= 0; i-- {
		if err := items[i].fn(); err != nil {
			log.Warn("close failed", zap.String("resource", items[i].name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", items[i].name, err))
		}
	}
	return errors.Join(errs...)
}

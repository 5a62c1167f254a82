package usecases

import (
	"context"
	"errors"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/0xcro3dile/knowledge-vault/internal/domain/ports"
)

// WatchSync keeps the index in step with a document directory.
type WatchSync struct {
	watcher    ports.FileWatcher
	loader     ports.DocumentLoader
	ingest     *IngestUseCase
	documentID func(source string) string
	logger     *zap.Logger
}

// NewWatchSync creates a WatchSync. documentID must return the id the loader
// assigns to a path.
func NewWatchSync(
	watcher ports.FileWatcher,
	loader ports.DocumentLoader,
	ingest *IngestUseCase,
	documentID func(source string) string,
	logger *zap.Logger,
) *WatchSync {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WatchSync{
		watcher:    watcher,
		loader:     loader,
		ingest:     ingest,
		documentID: documentID,
		logger:     logger,
	}
}

// Run processes events until ctx is done or the watcher stops.
func (w *WatchSync) Run(ctx context.Context, dir string) error {
	events, err := w.watcher.Watch(ctx, dir)
	if err != nil {
		return err
	}
	w.logger.Info("watching directory", zap.String("dir", dir))

	for ev := range events {
		if err := w.Handle(ctx, ev); err != nil {
			w.logger.Warn("sync failed",
				zap.String("path", ev.Path),
				zap.Stringer("op", ev.Operation),
				zap.Error(err))
		}
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

// Handle applies one file event to the index.
func (w *WatchSync) Handle(ctx context.Context, ev ports.FileEvent) error {
	path := filepath.Clean(ev.Path)

	switch ev.Operation {
	case ports.FileDeleted:
		return w.ingest.Delete(ctx, w.documentID(path))
	case ports.FileCreated, ports.FileModified:
		doc, err := w.loader.Load(ctx, path)
		if err != nil {
			return err
		}
		n, err := w.ingest.Replace(ctx, doc)
		if err != nil {
			return err
		}
		w.logger.Info("file synced", zap.String("path", path), zap.Int("chunks", n))
	}
	return nil
}

package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/knowledge-vault/internal/domain/entities"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/ports"
)

func idFor(source string) string { return "id:" + source }

func TestWatchSync_Handle(t *testing.T) {
	ctx := context.Background()
	uc, index, _ := newIngest(t, 100, 20)
	loader := &mapLoader{docs: map[string]*entities.Document{
		"/docs/a.txt": textDoc(idFor("/docs/a.txt"), "a.txt", threeParagraphs),
	}}
	ws := NewWatchSync(&chanWatcher{}, loader, uc, idFor, nil)

	require.NoError(t, ws.Handle(ctx, ports.FileEvent{Path: "/docs/a.txt", Operation: ports.FileCreated}))
	first, _ := index.Count(ctx)
	assert.Positive(t, first)

	// a rewrite must not duplicate entries
	require.NoError(t, ws.Handle(ctx, ports.FileEvent{Path: "/docs/a.txt", Operation: ports.FileModified}))
	second, _ := index.Count(ctx)
	assert.Equal(t, first, second)

	require.NoError(t, ws.Handle(ctx, ports.FileEvent{Path: "/docs/a.txt", Operation: ports.FileDeleted}))
	n, _ := index.Count(ctx)
	assert.Zero(t, n)

	assert.Error(t, ws.Handle(ctx, ports.FileEvent{Path: "/docs/missing.txt", Operation: ports.FileCreated}))
}

func TestWatchSync_Run(t *testing.T) {
	uc, index, _ := newIngest(t, 100, 20)
	loader := &mapLoader{docs: map[string]*entities.Document{
		"/docs/a.txt": textDoc(idFor("/docs/a.txt"), "a.txt", threeParagraphs),
		"/docs/b.txt": textDoc(idFor("/docs/b.txt"), "b.txt", "Short note."),
	}}
	watcher := &chanWatcher{events: make(chan ports.FileEvent, 4)}
	ws := NewWatchSync(watcher, loader, uc, idFor, nil)

	watcher.events <- ports.FileEvent{Path: "/docs/a.txt", Operation: ports.FileCreated}
	watcher.events <- ports.FileEvent{Path: "/docs/bad.txt", Operation: ports.FileCreated}
	watcher.events <- ports.FileEvent{Path: "/docs/b.txt", Operation: ports.FileCreated}
	watcher.events <- ports.FileEvent{Path: "/docs/a.txt", Operation: ports.FileDeleted}
	close(watcher.events)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, ws.Run(ctx, "/docs"))

	n, _ := index.Count(ctx)
	assert.Equal(t, 1, n)
}

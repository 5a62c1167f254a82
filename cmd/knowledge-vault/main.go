// Command knowledge-vault serves the retrieval-augmented QA API and ingests
// documents from the command line.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/0xcro3dile/knowledge-vault/internal/infrastructure/config"
	"github.com/0xcro3dile/knowledge-vault/internal/infrastructure/di"
	"github.com/0xcro3dile/knowledge-vault/internal/infrastructure/logger"
)

const usage = `Usage:
  knowledge-vault serve [-config path]
  knowledge-vault ingest [-config path] file|url ...
  knowledge-vault write-config path
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "knowledge-vault:", err)
		stop()
		os.Exit(1)
	}
}

var errUsage = errors.New("invalid usage")

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return errUsage
	}

	switch args[0] {
	case "serve":
		return serve(ctx, args[1:])
	case "ingest":
		return ingest(ctx, args[1:], out)
	case "write-config":
		if len(args) != 2 {
			fmt.Fprint(out, usage)
			return errUsage
		}
		if err := config.Save(args[1], config.Default()); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", args[1])
		return nil
	case "help", "-h", "-help", "--help":
		fmt.Fprint(out, usage)
		return nil
	}
	fmt.Fprint(out, usage)
	return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
}

// bootstrap loads config and builds the object graph.
func bootstrap(name string, args []string) (*di.App, []string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	cfgPath := fs.String("config", "", "path to YAML config file (default ./config.yaml if present)")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}

	app, err := di.Build(cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, nil, err
	}
	return app, fs.Args(), nil
}

func serve(ctx context.Context, args []string) error {
	app, _, err := bootstrap("serve", args)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			app.Logger.Warn("shutdown", zap.Error(err))
		}
		_ = app.Logger.Sync()
	}()

	ws, watcher, err := di.NewWatchSync(app.Config, app.Files, app.Ingest, app.Logger)
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	var watch func(context.Context) error
	if ws != nil {
		defer watcher.Stop()
		watch = func(ctx context.Context) error { return ws.Run(ctx, app.Config.Ingest.WatchDir) }
	}

	app.Logger.Info("knowledge vault starting",
		zap.String("addr", app.Config.Server.Addr),
		zap.String("index", app.Config.Index.Provider),
		zap.String("embedding", app.Config.Embedding.Provider+"/"+app.Config.Embedding.Model),
		zap.String("generation", app.Config.Generation.Provider+"/"+app.Config.Generation.Model),
	)
	return serveUntilDone(ctx, app.Logger, app.Server.Start, watch)
}

// serveUntilDone runs the server alongside the optional watch loop. Once the
// server returns, the watch loop is canceled and joined, so no sync is still
// writing when the caller stops the watcher and closes the index.
func serveUntilDone(ctx context.Context, log *zap.Logger, serve, watch func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group
	if watch != nil {
		g.Go(func() error {
			if err := watch(ctx); err != nil {
				log.Error("watcher stopped", zap.Error(err))
			}
			return nil
		})
	}

	err := serve(ctx)
	cancel()
	_ = g.Wait()
	return err
}

func ingest(ctx context.Context, args []string, out io.Writer) error {
	app, sources, err := bootstrap("ingest", args)
	if err != nil {
		return err
	}
	defer func() {
		_ = app.Close()
		_ = app.Logger.Sync()
	}()

	if len(sources) == 0 {
		fmt.Fprint(out, usage)
		return errUsage
	}

	failed := 0
	for _, r := range app.Ingest.IngestSources(ctx, app.Sources, sources) {
		if r.Err != nil {
			failed++
			fmt.Fprintf(out, "FAIL  %s: %v\n", r.Name, r.Err)
			continue
		}
		fmt.Fprintf(out, "OK    %s (%d chunks, id %s)\n", r.Name, r.Chunks, r.DocumentID)
	}

	total, err := app.Index.Count(ctx)
	if err == nil {
		fmt.Fprintf(out, "index now holds %d chunks\n", total)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sources failed", failed, len(sources))
	}
	return nil
}

package di

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/0xcro3dile/knowledge-vault/internal/adapters/embedding"
	"github.com/0xcro3dile/knowledge-vault/internal/adapters/filewatcher"
	"github.com/0xcro3dile/knowledge-vault/internal/adapters/llm"
	"github.com/0xcro3dile/knowledge-vault/internal/adapters/loader"
	"github.com/0xcro3dile/knowledge-vault/internal/adapters/memorystore"
	"github.com/0xcro3dile/knowledge-vault/internal/adapters/parser"
	"github.com/0xcro3dile/knowledge-vault/internal/adapters/retry"
	"github.com/0xcro3dile/knowledge-vault/internal/adapters/tokenizer"
	"github.com/0xcro3dile/knowledge-vault/internal/adapters/vectordb"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/chunker"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/conversation"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/entities"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/ports"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/usecases"
	"github.com/0xcro3dile/knowledge-vault/internal/infrastructure/config"
	kvhttp "github.com/0xcro3dile/knowledge-vault/internal/infrastructure/http"
	"github.com/0xcro3dile/knowledge-vault/internal/infrastructure/logger"
	"github.com/0xcro3dile/knowledge-vault/internal/infrastructure/metrics"
)

// registerProviders registers every component constructor.
func registerProviders(c *dig.Container, cfg *config.Config, base *zap.Logger, closers *closerList) error {
	providers := []any{
		func() *config.Config { return cfg },
		func() *zap.Logger { return base },
		func() *closerList { return closers },
		metrics.New,
		newRetryPolicy,
		newEmbedder,
		newGenerator,
		newIndex,
		newTokenCounter,
		newChunker,
		newPDFParser,
		newFileLoader,
		newWebLoader,
		newSourceLoader,
		newMemoryFactory,
		newIngest,
		newRetriever,
		newComposer,
		newChat,
		newSessions,
		newServer,
	}
	for _, p := range providers {
		if err := c.Provide(p); err != nil {
			return err
		}
	}
	return nil
}

func newRetryPolicy(cfg *config.Config) retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = cfg.Retry.MaxAttempts
	p.InitialBackoff = cfg.Retry.InitialBackoff
	p.MaxBackoff = cfg.Retry.MaxBackoff
	return p
}

func newEmbedder(cfg *config.Config, base *zap.Logger, m *metrics.Collector, policy retry.Policy) (ports.EmbeddingService, error) {
	ec := embedding.Config{
		BaseURL:   cfg.Embedding.BaseURL,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		BatchSize: cfg.Embedding.BatchSize,
		Timeout:   cfg.Embedding.Timeout,
		Retry:     policy,
		Logger:    logger.Module(base, "adapters", "embedding"),
		Observer:  m,
	}

	var svc ports.EmbeddingService
	switch cfg.Embedding.Provider {
	case "ollama":
		svc = embedding.NewOllamaEmbedder(ec)
	default:
		svc = embedding.NewOpenAIEmbedder(ec)
	}

	if cfg.Embedding.CacheSize == 0 {
		return svc, nil
	}
	return embedding.NewCachedEmbedder(svc, cfg.Embedding.CacheSize)
}

func newGenerator(cfg *config.Config, base *zap.Logger, m *metrics.Collector, policy retry.Policy) ports.LLMService {
	lc := llm.Config{
		BaseURL:     cfg.Generation.BaseURL,
		Model:       cfg.Generation.Model,
		APIKey:      cfg.Generation.APIKey,
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxTokens,
		Timeout:     cfg.Generation.Timeout,
		Retry:       policy,
		Logger:      logger.Module(base, "adapters", "llm"),
		Observer:    m,
	}
	if cfg.Generation.Provider == "ollama" {
		return llm.NewOllamaGenerator(lc)
	}
	return llm.NewOpenAIGenerator(lc)
}

func newIndex(cfg *config.Config, base *zap.Logger, closers *closerList) (ports.VectorIndex, error) {
	log := logger.Module(base, "adapters", "vectordb")

	var (
		idx ports.VectorIndex
		err error
	)
	switch cfg.Index.Provider {
	case "memory":
		idx = vectordb.NewMemoryIndex()
	case "qdrant":
		idx, err = vectordb.NewQdrantIndex(context.Background(), vectordb.QdrantConfig{
			Host:       cfg.Index.Qdrant.Host,
			Port:       cfg.Index.Qdrant.Port,
			APIKey:     cfg.Index.Qdrant.APIKey,
			UseTLS:     cfg.Index.Qdrant.UseTLS,
			Collection: cfg.Index.Qdrant.Collection,
		}, log)
	case "sqlite-purego":
		idx, err = vectordb.NewSQLiteIndex(cfg.Index.DataDir, vectordb.DriverPureGo, log)
	default:
		idx, err = vectordb.NewSQLiteIndex(cfg.Index.DataDir, vectordb.DriverCGO, log)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s index: %w", cfg.Index.Provider, err)
	}
	closers.add("index", idx.Close)
	return idx, nil
}

func newTokenCounter(cfg *config.Config, base *zap.Logger) ports.TokenCounter {
	tk, err := tokenizer.NewTiktoken(cfg.Retrieval.TokenEncoding)
	if err != nil {
		base.Warn("tiktoken unavailable, estimating tokens from length", zap.Error(err))
		return tokenizer.Estimate{}
	}
	return tk
}

func newChunker(cfg *config.Config) (*chunker.Chunker, error) {
	return chunker.New(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
}

// pdfOut carries the PDF parser and, for the parse service, its health check.
type pdfOut struct {
	dig.Out

	Parser ports.DocumentParser `name:"pdf"`
	Checks map[string]kvhttp.HealthCheck
}

func newPDFParser(cfg *config.Config, base *zap.Logger, closers *closerList) (pdfOut, error) {
	log := logger.Module(base, "adapters", "parser")
	checks := map[string]kvhttp.HealthCheck{}

	if cfg.Parser.PDF == "service" {
		svc := parser.NewServicePDFParser(cfg.Parser.ServiceURL, log)
		if cfg.Parser.ServiceCommand != "" {
			fields := strings.Fields(cfg.Parser.ServiceCommand)
			stop, err := svc.StartService(context.Background(), fields[0], fields[1:]...)
			if err != nil {
				return pdfOut{}, err
			}
			closers.add("pdf service", func() error { stop(); return nil })
		}
		checks["pdf_service"] = svc.IsServiceHealthy
		return pdfOut{Parser: svc, Checks: checks}, nil
	}

	if cfg.Parser.PDF == "unipdf" {
		p, err := parser.NewUniPDFParser(cfg.Parser.UnidocLicenseKey, log)
		if err != nil {
			return pdfOut{}, err
		}
		return pdfOut{Parser: p, Checks: checks}, nil
	}
	return pdfOut{Parser: parser.NewNativePDFParser(log), Checks: checks}, nil
}

type fileLoaderIn struct {
	dig.In

	Config *config.Config
	PDF    ports.DocumentParser `name:"pdf"`
}

func newFileLoader(in fileLoaderIn) (*loader.FileLoader, error) {
	files := loader.NewFileLoader(in.Config.MaxFileSize())
	files.Register(entities.ContentPDF, in.PDF)

	// unioffice cannot read anything unlicensed, so .docx stays unsupported
	// rather than failing every upload.
	if key := in.Config.Parser.UnidocLicenseKey; key != "" {
		docx, err := parser.NewDocxParser(key)
		if err != nil {
			return nil, err
		}
		files.Register(entities.ContentDocx, docx)
	}
	files.Register(entities.ContentHTML, parser.NewHTMLParser())
	return files, nil
}

func newWebLoader(cfg *config.Config, base *zap.Logger) *loader.WebLoader {
	return loader.NewWebLoader(parser.NewHTMLParser(), cfg.Parser.WebTimeout, cfg.MaxFileSize(),
		logger.Module(base, "adapters", "web"))
}

func newSourceLoader(files *loader.FileLoader, web *loader.WebLoader) *loader.Loader {
	return &loader.Loader{Files: files, Web: web}
}

func newMemoryFactory(cfg *config.Config, closers *closerList) (usecases.MemoryFactory, error) {
	window := cfg.Memory.WindowSize
	if cfg.Memory.Provider != "redis" {
		return func(string) ports.ConversationMemory {
			return conversation.NewRingMemory(window)
		}, nil
	}

	rdb, err := memorystore.NewRedisClient(context.Background(),
		cfg.Memory.Redis.Addr, cfg.Memory.Redis.Password, cfg.Memory.Redis.DB)
	if err != nil {
		return nil, err
	}
	closers.add("redis", rdb.Close)
	ttl := cfg.Memory.TTL
	return func(id string) ports.ConversationMemory {
		return memorystore.NewRedisMemory(rdb, id, window, ttl)
	}, nil
}

func newIngest(cfg *config.Config, c *chunker.Chunker, e ports.EmbeddingService, idx ports.VectorIndex, base *zap.Logger, m *metrics.Collector) *usecases.IngestUseCase {
	return usecases.NewIngestUseCase(c, e, idx, logger.Module(base, "usecases", "ingest"), m).
		WithConcurrency(cfg.Ingest.Concurrency)
}

func newRetriever(e ports.EmbeddingService, idx ports.VectorIndex, base *zap.Logger, m *metrics.Collector) *usecases.Retriever {
	return usecases.NewRetriever(e, idx, logger.Module(base, "usecases", "retrieve"), m)
}

func newComposer(cfg *config.Config, g ports.LLMService, tc ports.TokenCounter, base *zap.Logger) *usecases.Composer {
	return usecases.NewComposer(g, tc, cfg.Retrieval.ContextBudget, logger.Module(base, "usecases", "compose"))
}

func newChat(cfg *config.Config, r *usecases.Retriever, comp *usecases.Composer, base *zap.Logger, m *metrics.Collector) *usecases.ChatUseCase {
	return usecases.NewChatUseCase(r, comp, cfg.Retrieval.TopK, cfg.Memory.WindowSize, logger.Module(base, "usecases", "chat"), m)
}

func newSessions(f usecases.MemoryFactory, base *zap.Logger) *usecases.SessionManager {
	return usecases.NewSessionManager(f, logger.Module(base, "usecases", "sessions"))
}

type serverIn struct {
	dig.In

	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *metrics.Collector
	Ingest    *usecases.IngestUseCase
	Retriever *usecases.Retriever
	Chat      *usecases.ChatUseCase
	Sessions  *usecases.SessionManager
	Files     *loader.FileLoader
	Sources   *loader.Loader
	Checks    map[string]kvhttp.HealthCheck
}

func newServer(in serverIn) *kvhttp.Server {
	return kvhttp.NewServer(kvhttp.Deps{
		Ingest:    in.Ingest,
		Retriever: in.Retriever,
		Chat:      in.Chat,
		Sessions:  in.Sessions,
		Uploads:   in.Files,
		Sources:   in.Sources,
		Metrics:   in.Metrics.Handler(),
		Checks:    in.Checks,
	}, in.Config.Server.Addr, in.Config.Server.Mode, logger.Module(in.Logger, "infrastructure", "http"))
}

// NewWatchSync wires the directory watcher. Returns nil when no directory is configured.
func NewWatchSync(cfg *config.Config, files *loader.FileLoader, ingest *usecases.IngestUseCase, base *zap.Logger) (*usecases.WatchSync, *filewatcher.FSNotifyWatcher, error) {
	if cfg.Ingest.WatchDir == "" {
		return nil, nil, nil
	}
	log := logger.Module(base, "adapters", "filewatcher")
	w, err := filewatcher.NewFSNotifyWatcher(files.SupportedExtensions(), cfg.Ingest.WatchDebounce, log)
	if err != nil {
		return nil, nil, err
	}
	return usecases.NewWatchSync(w, files, ingest, loader.DocumentID, logger.Module(base, "usecases", "watch")), w, nil
}

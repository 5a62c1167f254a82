// Package config loads knowledge-vault settings from YAML, .env and KV_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides: KV_INGEST_CHUNK_SIZE=500.
const EnvPrefix = "KV"

type Config struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Ingest     IngestConfig     `mapstructure:"ingest" yaml:"ingest"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval" yaml:"retrieval"`
	Memory     MemoryConfig     `mapstructure:"memory" yaml:"memory"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding" yaml:"embedding"`
	Generation GenerationConfig `mapstructure:"generation" yaml:"generation"`
	Index      IndexConfig      `mapstructure:"index" yaml:"index"`
	Parser     ParserConfig     `mapstructure:"parser" yaml:"parser"`
	Retry      RetryConfig      `mapstructure:"retry" yaml:"retry"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr" validate:"required"`
	Mode string `mapstructure:"mode" yaml:"mode" validate:"oneof=debug release test"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=json console"`
}

type IngestConfig struct {
	ChunkSize     int           `mapstructure:"chunk_size" yaml:"chunk_size" validate:"min=1"`
	ChunkOverlap  int           `mapstructure:"chunk_overlap" yaml:"chunk_overlap" validate:"min=0,ltfield=ChunkSize"`
	MaxFileSizeMB int           `mapstructure:"max_file_size_mb" yaml:"max_file_size_mb" validate:"min=1"`
	Concurrency   int           `mapstructure:"concurrency" yaml:"concurrency" validate:"min=1"`
	WatchDir      string        `mapstructure:"watch_dir" yaml:"watch_dir"`
	WatchDebounce time.Duration `mapstructure:"watch_debounce" yaml:"watch_debounce" validate:"min=0"`
}

// RetrievalConfig bounds the passages handed to the model. TokenEncoding
// selects the tiktoken encoding used to measure ContextBudget.
type RetrievalConfig struct {
	TopK          int    `mapstructure:"top_k" yaml:"top_k" validate:"min=1"`
	ContextBudget int    `mapstructure:"context_budget" yaml:"context_budget" validate:"min=1"`
	TokenEncoding string `mapstructure:"token_encoding" yaml:"token_encoding"`
}

type MemoryConfig struct {
	WindowSize int           `mapstructure:"window_size" yaml:"window_size" validate:"min=1"`
	Provider   string        `mapstructure:"provider" yaml:"provider" validate:"oneof=memory redis"`
	Redis      RedisConfig   `mapstructure:"redis" yaml:"redis"`
	TTL        time.Duration `mapstructure:"ttl" yaml:"ttl" validate:"min=0"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db" validate:"min=0"`
}

type EmbeddingConfig struct {
	Provider  string        `mapstructure:"provider" yaml:"provider" validate:"oneof=openai ollama"`
	BaseURL   string        `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
	Model     string        `mapstructure:"model" yaml:"model" validate:"required"`
	APIKey    string        `mapstructure:"api_key" yaml:"api_key"`
	BatchSize int           `mapstructure:"batch_size" yaml:"batch_size" validate:"min=1"`
	CacheSize int           `mapstructure:"cache_size" yaml:"cache_size" validate:"min=0"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"min=0"`
}

type GenerationConfig struct {
	Provider    string        `mapstructure:"provider" yaml:"provider" validate:"oneof=openai ollama"`
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
	Model       string        `mapstructure:"model" yaml:"model" validate:"required"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature" validate:"min=0,max=2"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens" validate:"min=1"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"min=0"`
}

type IndexConfig struct {
	Provider string       `mapstructure:"provider" yaml:"provider" validate:"oneof=sqlite sqlite-purego qdrant memory"`
	DataDir  string       `mapstructure:"data_dir" yaml:"data_dir"`
	Qdrant   QdrantConfig `mapstructure:"qdrant" yaml:"qdrant"`
}

type QdrantConfig struct {
	Host       string `mapstructure:"host" yaml:"host"`
	Port       int    `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls" yaml:"use_tls"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

// ParserConfig selects the PDF backend: the license-free native reader,
// in-process unipdf, or an HTTP parse service started from ServiceCommand when
// that is set. The unidoc key also enables DOCX parsing.
type ParserConfig struct {
	PDF              string        `mapstructure:"pdf" yaml:"pdf" validate:"oneof=native unipdf service"`
	ServiceURL       string        `mapstructure:"service_url" yaml:"service_url" validate:"required_if=PDF service"`
	ServiceCommand   string        `mapstructure:"service_command" yaml:"service_command"`
	UnidocLicenseKey string        `mapstructure:"unidoc_license_key" yaml:"unidoc_license_key" validate:"required_if=PDF unipdf"`
	WebTimeout       time.Duration `mapstructure:"web_timeout" yaml:"web_timeout" validate:"min=0"`
}

type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts" yaml:"max_attempts" validate:"min=1"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff" validate:"min=0"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" yaml:"max_backoff" validate:"min=0"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080", Mode: "release"},
		Log:    LogConfig{Level: "info", Format: "json"},
		Ingest: IngestConfig{
			ChunkSize:     1000,
			ChunkOverlap:  200,
			MaxFileSizeMB: 50,
			Concurrency:   4,
			WatchDebounce: 500 * time.Millisecond,
		},
		Retrieval: RetrievalConfig{TopK: 5, ContextBudget: 3000, TokenEncoding: "cl100k_base"},
		Memory: MemoryConfig{
			WindowSize: 5,
			Provider:   "memory",
			Redis:      RedisConfig{Addr: "localhost:6379"},
			TTL:        24 * time.Hour,
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			BatchSize: 64,
			CacheSize: 256,
			Timeout:   60 * time.Second,
		},
		Generation: GenerationConfig{
			Provider:    "openai",
			Model:       "gpt-3.5-turbo",
			Temperature: 0.2,
			MaxTokens:   1000,
			Timeout:     120 * time.Second,
		},
		Index: IndexConfig{
			Provider: "sqlite",
			DataDir:  "./data",
			Qdrant:   QdrantConfig{Host: "localhost", Port: 6334, Collection: "knowledge_vault"},
		},
		Parser: ParserConfig{
			PDF:        "native",
			ServiceURL: "http://localhost:8081",
			WebTimeout: 10 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts:    4,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
		},
	}
}

// Load reads .env, then the YAML file at path (./config.yaml when path is
// empty and the file exists), then KV_* environment variables.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = key
		}
		if cfg.Generation.APIKey == "" {
			cfg.Generation.APIKey = key
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Memory.Provider == "redis" && c.Memory.Redis.Addr == "" {
		return errors.New("invalid config: memory.redis.addr is required for the redis provider")
	}
	if c.Index.Provider == "qdrant" && c.Index.Qdrant.Host == "" {
		return errors.New("invalid config: index.qdrant.host is required for the qdrant provider")
	}
	return nil
}

// MaxFileSize returns the upload limit in bytes.
func (c *Config) MaxFileSize() int64 {
	return int64(c.Ingest.MaxFileSizeMB) << 20
}

// Save writes cfg as YAML. The file may hold API keys, so it is created 0600.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o600)
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.mode", d.Server.Mode)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("ingest.chunk_size", d.Ingest.ChunkSize)
	v.SetDefault("ingest.chunk_overlap", d.Ingest.ChunkOverlap)
	v.SetDefault("ingest.max_file_size_mb", d.Ingest.MaxFileSizeMB)
	v.SetDefault("ingest.concurrency", d.Ingest.Concurrency)
	v.SetDefault("ingest.watch_dir", d.Ingest.WatchDir)
	v.SetDefault("ingest.watch_debounce", d.Ingest.WatchDebounce)

	v.SetDefault("retrieval.top_k", d.Retrieval.TopK)
	v.SetDefault("retrieval.context_budget", d.Retrieval.ContextBudget)
	v.SetDefault("retrieval.token_encoding", d.Retrieval.TokenEncoding)

	v.SetDefault("memory.window_size", d.Memory.WindowSize)
	v.SetDefault("memory.provider", d.Memory.Provider)
	v.SetDefault("memory.redis.addr", d.Memory.Redis.Addr)
	v.SetDefault("memory.redis.password", d.Memory.Redis.Password)
	v.SetDefault("memory.redis.db", d.Memory.Redis.DB)
	v.SetDefault("memory.ttl", d.Memory.TTL)

	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.base_url", d.Embedding.BaseURL)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.api_key", d.Embedding.APIKey)
	v.SetDefault("embedding.batch_size", d.Embedding.BatchSize)
	v.SetDefault("embedding.cache_size", d.Embedding.CacheSize)
	v.SetDefault("embedding.timeout", d.Embedding.Timeout)

	v.SetDefault("generation.provider", d.Generation.Provider)
	v.SetDefault("generation.base_url", d.Generation.BaseURL)
	v.SetDefault("generation.model", d.Generation.Model)
	v.SetDefault("generation.api_key", d.Generation.APIKey)
	v.SetDefault("generation.temperature", d.Generation.Temperature)
	v.SetDefault("generation.max_tokens", d.Generation.MaxTokens)
	v.SetDefault("generation.timeout", d.Generation.Timeout)

	v.SetDefault("index.provider", d.Index.Provider)
	v.SetDefault("index.data_dir", d.Index.DataDir)
	v.SetDefault("index.qdrant.host", d.Index.Qdrant.Host)
	v.SetDefault("index.qdrant.port", d.Index.Qdrant.Port)
	v.SetDefault("index.qdrant.api_key", d.Index.Qdrant.APIKey)
	v.SetDefault("index.qdrant.use_tls", d.Index.Qdrant.UseTLS)
	v.SetDefault("index.qdrant.collection", d.Index.Qdrant.Collection)

	v.SetDefault("parser.pdf", d.Parser.PDF)
	v.SetDefault("parser.service_url", d.Parser.ServiceURL)
	v.SetDefault("parser.service_command", d.Parser.ServiceCommand)
	v.SetDefault("parser.unidoc_license_key", d.Parser.UnidocLicenseKey)
	v.SetDefault("parser.web_timeout", d.Parser.WebTimeout)

	v.SetDefault("retry.max_attempts", d.Retry.MaxAttempts)
	v.SetDefault("retry.initial_backoff", d.Retry.InitialBackoff)
	v.SetDefault("retry.max_backoff", d.Retry.MaxBackoff)
}

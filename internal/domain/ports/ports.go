// Package ports defines interfaces for external dependencies.
// Usecases depend on these abstractions, adapters implement them.
package ports

import (
	"context"

	"github.com/0xcro3dile/knowledge-vault/internal/domain/entities"
)

// EmbeddingService maps text to vectors.
// Output length and order always equal input length and order.
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMService generates text responses from a language model.
type LLMService interface {
	Generate(ctx context.Context, prompt entities.Prompt) (string, error)
}

// VectorIndex persists index entries and answers similarity queries.
// Implementations serialize writes internally.
type VectorIndex interface {
	// Upsert stores entries, replacing any with the same ID. All vectors must
	// share the index's established dimension.
	Upsert(ctx context.Context, entries []entities.IndexEntry) error

	// Query returns at most topK hits by descending cosine similarity,
	// ties broken by insertion order.
	Query(ctx context.Context, vector []float32, topK int) (entities.RetrievalResult, error)

	// Delete removes every entry belonging to a document.
	Delete(ctx context.Context, documentID string) error

	// DeleteAll removes every entry and forgets the established dimension.
	DeleteAll(ctx context.Context) error

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	Close() error
}

// ConversationMemory keeps the most recent turns of one session.
type ConversationMemory interface {
	Append(ctx context.Context, turn entities.Turn) error
	// Recent returns up to n turns, oldest first.
	Recent(ctx context.Context, n int) ([]entities.Turn, error)
	Clear(ctx context.Context) error
	Len(ctx context.Context) (int, error)
	Capacity() int
}

// DocumentLoader reads documents from a path or URL.
type DocumentLoader interface {
	Load(ctx context.Context, source string) (*entities.Document, error)

	// SupportedExtensions returns file extensions this loader handles.
	SupportedExtensions() []string
}

// ParseResult is text extracted from a binary document.
type ParseResult struct {
	Content string
	Pages   []string // per-page text for paged formats
	Title   string
}

// DocumentParser extracts text from binary document formats (PDF, DOCX, HTML).
type DocumentParser interface {
	Parse(ctx context.Context, data []byte, filename string) (ParseResult, error)

	// SupportedFormats returns formats this parser handles (e.g., "pdf", "docx").
	SupportedFormats() []string
}

// TokenCounter estimates prompt size.
type TokenCounter interface {
	Count(text string) int
}

// FileWatcher monitors a directory for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)

func (op FileOperation) String() string {
	switch op {
	case FileCreated:
		return "created"
	case FileModified:
		return "modified"
	case FileDeleted:
		return "deleted"
	}
	return "unknown"
}

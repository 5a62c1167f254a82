// Package entities contains core business entities.
// Pure domain objects with no external dependencies.
package entities

import "time"

// ContentType identifies how a document's raw bytes were interpreted.
type ContentType string

const (
	ContentPDF      ContentType = "pdf"
	ContentText     ContentType = "text"
	ContentMarkdown ContentType = "markdown"
	ContentWeb      ContentType = "web"
	ContentDocx     ContentType = "docx"
	ContentHTML     ContentType = "html"
)

// Document represents an ingested source (file or URL).
// Immutable once handed to the ingestion pipeline.
type Document struct {
	ID          string
	Name        string // filename or URL, used for citations
	Source      string // path or URL it was loaded from
	ContentType ContentType
	Content     string
	// Pages holds per-page text for paged formats. When set, Content is ignored
	// by the chunker and page numbers are recorded on chunks.
	Pages     []string
	Metadata  map[string]string
	CreatedAt time.Time
}

// Chunk represents a contiguous piece of a document's normalized text.
type Chunk struct {
	ID         string
	DocumentID string
	SourceName string
	Content    string
	Index      int // position in document
	Start      int // rune offset into normalized text, inclusive
	End        int // rune offset into normalized text, exclusive
	Metadata   map[string]string
}

// Metadata keys set on chunks.
const (
	MetaPage        = "page"
	MetaContentType = "content_type"
)

// IndexEntry is the unit stored in a vector index.
type IndexEntry struct {
	ID     string
	Chunk  Chunk
	Vector []float32
}

// QueryResult represents a search hit with relevance.
type QueryResult struct {
	Chunk     Chunk
	Score     float64 // cosine similarity
	SourceDoc string  // document name for citation
}

// RetrievalResult is an ordered list of hits, best first.
type RetrievalResult []QueryResult

// Sources returns the distinct source names in result order.
func (r RetrievalResult) Sources() []string {
	seen := make(map[string]struct{}, len(r))
	out := make([]string, 0, len(r))
	for _, res := range r {
		if _, ok := seen[res.SourceDoc]; ok {
			continue
		}
		seen[res.SourceDoc] = struct{}{}
		out = append(out, res.SourceDoc)
	}
	return out
}

// Turn is one completed question/answer exchange.
type Turn struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
	Sources   []string  `json:"sources,omitempty"`
}

// ChatResponse represents the model's answer with the sources it was shown.
type ChatResponse struct {
	Answer   string
	Sources  []string
	Passages RetrievalResult
}

// IngestReport summarizes the outcome of ingesting a single document.
type IngestReport struct {
	DocumentID string `json:"document_id"`
	Name       string `json:"name"`
	Chunks     int    `json:"chunks"`
	Err        error  `json:"-"`
}

// OK reports whether the document was indexed.
func (r IngestReport) OK() bool { return r.Err == nil }

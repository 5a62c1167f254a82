// Package loader turns files, uploads and URLs into entities.Document.
package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/0xcro3dile/knowledge-vault/internal/domain/entities"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/errs"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/ports"
)

// DefaultMaxFileSize is 50 MB.
const DefaultMaxFileSize int64 = 50 << 20

type format struct {
	contentType entities.ContentType
	parser      ports.DocumentParser // nil for plain text
}

// FileLoader dispatches on file extension. Plain text and markdown are read
// directly; binary formats go through the registered parser.
type FileLoader struct {
	formats     map[string]format
	maxFileSize int64
}

// NewFileLoader supports .txt, .md and .markdown out of the box.
func NewFileLoader(maxFileSize int64) *FileLoader {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &FileLoader{
		formats: map[string]format{
			".txt":      {contentType: entities.ContentText},
			".text":     {contentType: entities.ContentText},
			".md":       {contentType: entities.ContentMarkdown},
			".markdown": {contentType: entities.ContentMarkdown},
		},
		maxFileSize: maxFileSize,
	}
}

// Register routes every format the parser supports to it.
func (l *FileLoader) Register(ct entities.ContentType, p ports.DocumentParser) {
	for _, f := range p.SupportedFormats() {
		l.formats["."+strings.TrimPrefix(strings.ToLower(f), ".")] = format{contentType: ct, parser: p}
	}
}

// Supports reports whether the file name has a registered extension.
func (l *FileLoader) Supports(name string) bool {
	_, ok := l.formats[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Load reads a document from disk.
func (l *FileLoader) Load(ctx context.Context, path string) (*entities.Document, error) {
	if !l.Supports(path) {
		return nil, errs.UnsupportedFormat("loader.Load", filepath.Ext(path))
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() > l.maxFileSize {
		return nil, tooLarge("loader.Load", filepath.Base(path), info.Size(), l.maxFileSize)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	doc, err := l.build(ctx, filepath.Base(path), path, data)
	if err != nil {
		return nil, err
	}
	doc.CreatedAt = info.ModTime()
	return doc, nil
}

// LoadBytes builds a document from uploaded content. The name decides the format.
func (l *FileLoader) LoadBytes(ctx context.Context, name string, data []byte) (*entities.Document, error) {
	if !l.Supports(name) {
		return nil, errs.UnsupportedFormat("loader.LoadBytes", filepath.Ext(name))
	}
	if int64(len(data)) > l.maxFileSize {
		return nil, tooLarge("loader.LoadBytes", name, int64(len(data)), l.maxFileSize)
	}
	return l.build(ctx, name, name, data)
}

func (l *FileLoader) build(ctx context.Context, name, source string, data []byte) (*entities.Document, error) {
	f := l.formats[strings.ToLower(filepath.Ext(name))]
	doc := &entities.Document{
		ID:          generateDocID(source),
		Name:        name,
		Source:      source,
		ContentType: f.contentType,
		CreatedAt:   time.Now(),
	}
	if f.parser == nil {
		doc.Content = string(data)
		return doc, nil
	}

	res, err := f.parser.Parse(ctx, data, name)
	if err != nil {
		return nil, err
	}
	doc.Content = res.Content
	doc.Pages = res.Pages
	if res.Title != "" {
		doc.Metadata = map[string]string{"title": res.Title}
	}
	return doc, nil
}

// SupportedExtensions returns all registered extensions, sorted.
func (l *FileLoader) SupportedExtensions() []string {
	exts := make([]string, 0, len(l.formats))
	for ext := range l.formats {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// MaxFileSize returns the size limit in bytes.
func (l *FileLoader) MaxFileSize() int64 { return l.maxFileSize }

// Loader routes http(s) URLs to the web loader and everything else to files.
type Loader struct {
	Files *FileLoader
	Web   *WebLoader
}

func (l *Loader) Load(ctx context.Context, source string) (*entities.Document, error) {
	if IsURL(source) {
		if l.Web == nil {
			return nil, errs.UnsupportedFormat("loader.Load", "url")
		}
		return l.Web.Load(ctx, source)
	}
	return l.Files.Load(ctx, source)
}

func (l *Loader) SupportedExtensions() []string {
	return l.Files.SupportedExtensions()
}

// IsURL reports whether source looks like an http(s) URL.
func IsURL(source string) bool {
	s := strings.ToLower(source)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func tooLarge(op, name string, size, limit int64) error {
	return errs.InvalidArgument(op, "%s is %.1f MB, limit is %.1f MB", name, mb(size), mb(limit))
}

func mb(n int64) float64 { return float64(n) / (1 << 20) }

// generateDocID creates a deterministic ID for a document source.
func generateDocID(source string) string {
	hash := sha256.Sum256([]byte(source))
	return hex.EncodeToString(hash[:8])
}

// DocumentID exposes the ID a source would be ingested under.
func DocumentID(source string) string { return generateDocID(source) }

var _ ports.DocumentLoader = (*Loader)(nil)
var _ ports.DocumentLoader = (*FileLoader)(nil)

// Package chunker splits documents into overlapping, size-bounded chunks.
//
// Sizes are measured in characters (runes) of the normalized text. Each chunk
// ends on the highest-priority separator available in the back half of its
// window (paragraph, line, sentence, word) and falls back to a hard cut.
// The next chunk starts at least overlap characters before the previous end,
// snapped back to a word start when one is close. Chunk.Start/End record the
// rune offsets, so Reassemble reproduces the normalized text exactly.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/0xcro3dile/knowledge-vault/internal/domain/entities"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/errs"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// separators in priority order.
var separators = [][]rune{
	[]rune("\n\n"),
	[]rune("\n"),
	[]rune(". "),
	[]rune("? "),
	[]rune("! "),
	[]rune(" "),
}

// Chunker is pure and safe for concurrent use.
type Chunker struct {
	size    int
	overlap int
}

// New validates size and overlap. Overlap must be smaller than size.
func New(size, overlap int) (*Chunker, error) {
	if size < 1 {
		return nil, errs.InvalidArgument("chunker.New", "chunk size must be >= 1, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, errs.InvalidArgument("chunker.New", "chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits a document. Returns errs.ErrEmptyDocument when nothing is left
// after normalization and errs.ErrUnsupportedFormat for unknown content types.
func (c *Chunker) Chunk(doc *entities.Document) ([]entities.Chunk, error) {
	if doc == nil {
		return nil, errs.InvalidArgument("chunker.Chunk", "nil document")
	}
	if !knownContentType(doc.ContentType) {
		return nil, errs.UnsupportedFormat("chunker.Chunk", string(doc.ContentType))
	}

	text, pageStarts := assemble(doc)
	runes := []rune(text)
	if len(runes) == 0 {
		return nil, errs.EmptyDocument("chunker.Chunk", doc.Name)
	}

	spans := c.spans(runes)
	chunks := make([]entities.Chunk, 0, len(spans))
	for i, sp := range spans {
		meta := map[string]string{entities.MetaContentType: string(doc.ContentType)}
		if len(pageStarts) > 0 {
			meta[entities.MetaPage] = strconv.Itoa(pageAt(pageStarts, sp[0]))
		}
		chunks = append(chunks, entities.Chunk{
			ID:         chunkID(doc.ID, i),
			DocumentID: doc.ID,
			SourceName: doc.Name,
			Content:    string(runes[sp[0]:sp[1]]),
			Index:      i,
			Start:      sp[0],
			End:        sp[1],
			Metadata:   meta,
		})
	}
	return chunks, nil
}

// spans computes [start, end) rune offsets.
func (c *Chunker) spans(r []rune) [][2]int {
	n := len(r)
	lookback := min(c.overlap, (c.size-c.overlap-1)/2)

	var out [][2]int
	start, prevEnd := 0, 0
	for {
		if n-start <= c.size {
			out = append(out, [2]int{start, n})
			return out
		}

		hi := start + c.size
		lo := max(start+c.overlap+1, start+c.size/2, prevEnd+1)
		end := splitPoint(r, lo, hi)
		out = append(out, [2]int{start, end})
		prevEnd = end

		target := end - c.overlap
		start = wordStart(r, max(start+1, target-lookback), target)
	}
}

// splitPoint returns the largest p in [lo, hi] where a separator ends,
// trying separators in priority order, or hi when none is found.
func splitPoint(r []rune, lo, hi int) int {
	for _, sep := range separators {
		for p := hi; p >= lo; p-- {
			if endsWith(r, p, sep) {
				return p
			}
		}
	}
	return hi
}

// wordStart returns the largest p in [lo, hi] that begins a word, or hi.
func wordStart(r []rune, lo, hi int) int {
	for p := hi; p >= lo; p-- {
		if p == 0 || (unicode.IsSpace(r[p-1]) && !unicode.IsSpace(r[p])) {
			return p
		}
	}
	return hi
}

func endsWith(r []rune, p int, sep []rune) bool {
	if p < len(sep) || p > len(r) {
		return false
	}
	for i, s := range sep {
		if r[p-len(sep)+i] != s {
			return false
		}
	}
	return true
}

// Reassemble rebuilds the normalized text from chunks produced by Chunk.
func Reassemble(chunks []entities.Chunk) string {
	var b strings.Builder
	covered := 0
	for i, ch := range chunks {
		r := []rune(ch.Content)
		if i == 0 {
			b.WriteString(ch.Content)
			covered = ch.End
			continue
		}
		if ch.End <= covered {
			continue
		}
		b.WriteString(string(r[covered-ch.Start:]))
		covered = ch.End
	}
	return b.String()
}

// Normalize canonicalizes line endings, drops invalid UTF-8 and control
// characters, collapses runs of blank lines and trims the result.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}

	var b strings.Builder
	b.Grow(len(s))
	newlines := 0
	for _, r := range s {
		if r == '\n' {
			newlines++
			if newlines > 2 {
				continue
			}
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) && r != '\t' {
			continue
		}
		newlines = 0
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// NormalizedText returns the text Chunk splits for doc.
func NormalizedText(doc *entities.Document) string {
	text, _ := assemble(doc)
	return text
}

// assemble joins normalized pages (or content) and records the rune offset at
// which each non-empty page begins.
func assemble(doc *entities.Document) (string, []pageStart) {
	if len(doc.Pages) == 0 {
		return Normalize(doc.Content), nil
	}

	var (
		b      strings.Builder
		starts []pageStart
		offset int
	)
	for i, p := range doc.Pages {
		p = Normalize(p)
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
			offset += 2
		}
		starts = append(starts, pageStart{page: i + 1, offset: offset})
		b.WriteString(p)
		offset += utf8.RuneCountInString(p)
	}
	return b.String(), starts
}

type pageStart struct {
	page   int
	offset int
}

func pageAt(starts []pageStart, offset int) int {
	page := starts[0].page
	for _, s := range starts {
		if s.offset > offset {
			break
		}
		page = s.page
	}
	return page
}

func knownContentType(ct entities.ContentType) bool {
	switch ct {
	case "", entities.ContentPDF, entities.ContentText, entities.ContentMarkdown,
		entities.ContentWeb, entities.ContentDocx, entities.ContentHTML:
		return true
	}
	return false
}

// chunkID creates a deterministic ID for a chunk.
func chunkID(docID string, index int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s-%d", docID, index)))
	return hex.EncodeToString(h[:8])
}

// Package tokenizer counts prompt tokens for the answer composer's budget.
package tokenizer

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

func init() {
	// Offline BPE files; no network access at first use.
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// DefaultEncoding is used by GPT-3.5/4 and the text-embedding-3 models.
const DefaultEncoding = "cl100k_base"

// Tiktoken counts tokens with a BPE encoding.
type Tiktoken struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

var (
	encodings   = map[string]*Tiktoken{}
	encodingsMu sync.Mutex
)

// NewTiktoken returns a shared counter for the named encoding.
func NewTiktoken(encoding string) (*Tiktoken, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	encodingsMu.Lock()
	defer encodingsMu.Unlock()

	if t, ok := encodings[encoding]; ok {
		return t, nil
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	t := &Tiktoken{enc: enc}
	encodings[encoding] = t
	return t, nil
}

func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.enc.Encode(text, nil, nil))
}

// Estimate approximates tokens as characters / 4. Used when no BPE encoding
// could be loaded.
type Estimate struct{}

func (Estimate) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

package usecases

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0xcro3dile/knowledge-vault/internal/domain/entities"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/ports"
)

const testDim = 32

// hashEmbedder maps words into a fixed number of buckets, so texts sharing
// words score higher.
type hashEmbedder struct {
	calls atomic.Int32
	err   error
}

func (m *hashEmbedder) vector(text string) []float32 {
	v := make([]float32, testDim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(w, ".,?!")))
		v[h.Sum32()%testDim]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / math.Sqrt(norm))
	}
	return v
}

func (m *hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.vector(text), nil
}

func (m *hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.vector(t)
	}
	return out, nil
}

// recordingLLM keeps every prompt it was given.
type recordingLLM struct {
	mu      sync.Mutex
	prompts []entities.Prompt
	answers []string
	err     error
}

func (m *recordingLLM) Generate(ctx context.Context, prompt entities.Prompt) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	if len(m.answers) == 0 {
		return "mocked answer", nil
	}
	a := m.answers[0]
	m.answers = m.answers[1:]
	return a, nil
}

func (m *recordingLLM) last() entities.Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prompts[len(m.prompts)-1]
}

// wordCounter counts whitespace-separated words.
type wordCounter struct{}

func (wordCounter) Count(s string) int { return len(strings.Fields(s)) }

// mapLoader serves documents from memory.
type mapLoader struct {
	docs map[string]*entities.Document
}

func (l *mapLoader) Load(ctx context.Context, source string) (*entities.Document, error) {
	doc, ok := l.docs[source]
	if !ok {
		return nil, errors.New("not found: " + source)
	}
	return doc, nil
}

func (l *mapLoader) SupportedExtensions() []string { return []string{".txt"} }

// chanWatcher replays events pushed by the test.
type chanWatcher struct {
	events chan ports.FileEvent
}

func (w *chanWatcher) Watch(ctx context.Context, dir string) (<-chan ports.FileEvent, error) {
	return w.events, nil
}

func (w *chanWatcher) Stop() error { return nil }

// countingRecorder tallies measurements.
type countingRecorder struct {
	mu        sync.Mutex
	ingested  map[bool]int
	chunks    int
	queries   int
	answers   map[bool]int
	durations []time.Duration
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{ingested: map[bool]int{}, answers: map[bool]int{}}
}

func (r *countingRecorder) DocumentIngested(ok bool, chunks int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ingested[ok]++
	r.chunks += chunks
}

func (r *countingRecorder) ObserveQuery(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries++
	r.durations = append(r.durations, d)
}

func (r *countingRecorder) Answer(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answers[ok]++
}

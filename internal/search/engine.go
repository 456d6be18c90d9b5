// Package search provides full-text retrieval over installed content in
// two interchangeable modes: the relational engine's native FTS index, or
// an in-memory inverted index persisted through the storage adapter. Both
// modes satisfy the same query contract.
package search

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"unicode"

	"github.com/packrat-app/packrat/internal/constants"
	"github.com/packrat-app/packrat/internal/domain"
	"github.com/packrat-app/packrat/internal/kvstore"
)

// Engine is the mode-independent search contract. Init is idempotent and
// safe to call concurrently: a second caller waits for the in-flight
// build instead of starting another. Search never errors on an empty or
// uninitialized index; it returns an empty result set.
type Engine interface {
	Init(ctx context.Context) error
	AddDocument(ctx context.Context, doc domain.SearchDocument) error
	Search(ctx context.Context, query string) ([]domain.SearchResult, error)
	RebuildIndex(ctx context.Context) error
	Close() error
}

// searchableStores are the content stores scanned on a full index build.
func searchableStores() []kvstore.Store {
	return []kvstore.Store{kvstore.Health, kvstore.Survival, kvstore.Law}
}

// loadDocuments scans every content store and decodes its documents.
// Malformed entries are skipped; an unpopulated store contributes nothing
// rather than failing the build.
func loadDocuments(ctx context.Context, kv kvstore.Adapter) ([]domain.SearchDocument, error) {
	var docs []domain.SearchDocument
	for _, st := range searchableStores() {
		values, err := kv.GetAll(ctx, st)
		if err != nil {
			return nil, err
		}
		for _, v := range values {
			var doc domain.SearchDocument
			if err := json.Unmarshal(v, &doc); err != nil {
				continue
			}
			if doc.Category == "" {
				doc.Category = st.Name
			}
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// Tokenize lowercases and splits on non-alphanumeric runes, dropping
// fragments shorter than the minimum token length.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) >= constants.MinTokenLength {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// makeSnippet builds a short excerpt around the first token hit in the
// document body, falling back to the description and then the title.
func makeSnippet(doc domain.SearchDocument, tokens []string) string {
	body := doc.Content
	if body == "" {
		body = doc.Description
	}
	if body == "" {
		return doc.Title
	}

	lower := strings.ToLower(body)
	pos := -1
	for _, tok := range tokens {
		if i := strings.Index(lower, tok); i >= 0 && (pos < 0 || i < pos) {
			pos = i
		}
	}
	if pos < 0 {
		pos = 0
	}

	start := pos - constants.SnippetRadius
	if start < 0 {
		start = 0
	}
	end := pos + constants.SnippetRadius
	if end > len(body) {
		end = len(body)
	}

	snippet := strings.TrimSpace(body[start:end])
	if start > 0 {
		snippet = "…" + snippet
	}
	if end < len(body) {
		snippet += "…"
	}
	return snippet
}

// initGuard makes initialization re-entrant: one build runs at a time and
// concurrent callers await its outcome. A failed build stays retryable.
type initGuard struct {
	mu       sync.Mutex
	done     bool
	err      error
	inflight chan struct{}
}

func (g *initGuard) run(fn func() error) error {
	g.mu.Lock()
	if g.done {
		g.mu.Unlock()
		return nil
	}
	if g.inflight != nil {
		ch := g.inflight
		g.mu.Unlock()
		<-ch
		g.mu.Lock()
		err := g.err
		g.mu.Unlock()
		return err
	}
	ch := make(chan struct{})
	g.inflight = ch
	g.mu.Unlock()

	err := fn()

	g.mu.Lock()
	g.done = err == nil
	g.err = err
	g.inflight = nil
	g.mu.Unlock()
	close(ch)
	return err
}

func (g *initGuard) initialized() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.done
}

// reset forgets a completed initialization so the next Init rebuilds.
func (g *initGuard) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.done = false
	g.err = nil
}

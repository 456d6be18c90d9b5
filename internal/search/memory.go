package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/packrat-app/packrat/internal/constants"
	"github.com/packrat-app/packrat/internal/domain"
	"github.com/packrat-app/packrat/internal/kvstore"
	"github.com/packrat-app/packrat/internal/logger"
)

// indexSnapshot is the serialized form of the in-memory index, stored as
// one opaque blob under a fixed out-of-line key.
type indexSnapshot struct {
	Version  int                     `json:"version"`
	Docs     []domain.SearchDocument `json:"docs"`
	Postings map[string][]int64      `json:"postings"`
}

const snapshotVersion = 1

// MemoryEngine is search mode B: an in-memory inverted index restored
// from (and re-serialized to) the storage adapter. The index structure is
// process-local and owned exclusively by this engine.
type MemoryEngine struct {
	kv    kvstore.Adapter
	log   *logger.Logger
	guard initGuard

	mu       sync.RWMutex
	docs     map[int64]domain.SearchDocument
	postings map[string]map[int64]struct{}
}

func NewMemoryEngine(kv kvstore.Adapter, log *logger.Logger) *MemoryEngine {
	if log == nil {
		log = logger.Default()
	}
	return &MemoryEngine{
		kv:       kv,
		log:      log.WithComponent("search_memory"),
		docs:     make(map[int64]domain.SearchDocument),
		postings: make(map[string]map[int64]struct{}),
	}
}

// Init restores the persisted snapshot, or rebuilds from the content
// stores when the snapshot is absent or fails to deserialize. Corruption
// is recovered silently; it never surfaces to the caller.
func (e *MemoryEngine) Init(ctx context.Context) error {
	return e.guard.run(func() error {
		blob, err := e.kv.Get(ctx, kvstore.SearchIndex, constants.SearchIndexKey)
		if err != nil {
			return fmt.Errorf("failed to read index snapshot: %w", err)
		}

		if blob != nil {
			var snap indexSnapshot
			if err := json.Unmarshal(blob, &snap); err == nil && snap.Version == snapshotVersion {
				e.restore(snap)
				return nil
			}
			e.log.Warn("Index snapshot corrupt, rebuilding")
		}

		return e.rebuild(ctx)
	})
}

func (e *MemoryEngine) restore(snap indexSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.docs = make(map[int64]domain.SearchDocument, len(snap.Docs))
	for _, doc := range snap.Docs {
		e.docs[doc.ID] = doc
	}
	e.postings = make(map[string]map[int64]struct{}, len(snap.Postings))
	for term, ids := range snap.Postings {
		set := make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		e.postings[term] = set
	}
}

func (e *MemoryEngine) rebuild(ctx context.Context) error {
	docs, err := loadDocuments(ctx, e.kv)
	if err != nil {
		return fmt.Errorf("failed to scan content stores: %w", err)
	}

	e.mu.Lock()
	e.docs = make(map[int64]domain.SearchDocument, len(docs))
	e.postings = make(map[string]map[int64]struct{})
	for _, doc := range docs {
		e.indexLocked(doc)
	}
	e.mu.Unlock()

	if err := e.persist(ctx); err != nil {
		return err
	}
	e.log.Info("Inverted index rebuilt", "documents", len(docs))
	return nil
}

// indexLocked adds a document to the live index. Caller holds e.mu.
func (e *MemoryEngine) indexLocked(doc domain.SearchDocument) {
	if _, exists := e.docs[doc.ID]; exists {
		e.removeLocked(doc.ID)
	}
	e.docs[doc.ID] = doc
	for _, term := range Tokenize(doc.Title + " " + doc.Content + " " + doc.Description) {
		set, ok := e.postings[term]
		if !ok {
			set = make(map[int64]struct{})
			e.postings[term] = set
		}
		set[doc.ID] = struct{}{}
	}
}

func (e *MemoryEngine) removeLocked(id int64) {
	delete(e.docs, id)
	for term, set := range e.postings {
		delete(set, id)
		if len(set) == 0 {
			delete(e.postings, term)
		}
	}
}

// persist re-serializes the whole index. Full serialization per add is
// accepted at the target scale of low thousands of documents.
func (e *MemoryEngine) persist(ctx context.Context) error {
	e.mu.RLock()
	snap := indexSnapshot{
		Version:  snapshotVersion,
		Docs:     make([]domain.SearchDocument, 0, len(e.docs)),
		Postings: make(map[string][]int64, len(e.postings)),
	}
	for _, doc := range e.docs {
		snap.Docs = append(snap.Docs, doc)
	}
	for term, set := range e.postings {
		ids := make([]int64, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		snap.Postings[term] = ids
	}
	e.mu.RUnlock()

	sort.Slice(snap.Docs, func(i, j int) bool { return snap.Docs[i].ID < snap.Docs[j].ID })

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to serialize index: %w", err)
	}
	if _, err := e.kv.Put(ctx, kvstore.SearchIndex, data, constants.SearchIndexKey); err != nil {
		return fmt.Errorf("failed to persist index: %w", err)
	}
	return nil
}

func (e *MemoryEngine) AddDocument(ctx context.Context, doc domain.SearchDocument) error {
	if err := e.Init(ctx); err != nil {
		return err
	}
	e.mu.Lock()
	e.indexLocked(doc)
	e.mu.Unlock()
	return e.persist(ctx)
}

// Search tokenizes forward (prefix-friendly), intersects candidate sets
// across query tokens, and returns de-duplicated results capped at the
// fixed limit. An uninitialized or empty index yields an empty set.
func (e *MemoryEngine) Search(ctx context.Context, query string) ([]domain.SearchResult, error) {
	if !e.guard.initialized() {
		return []domain.SearchResult{}, nil
	}

	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return []domain.SearchResult{}, nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	// Per token, a doc matches when any indexed term has the token as a
	// prefix. Tokens combine with AND. Score counts matched terms, so
	// exact hits rank above sprawling prefix matches.
	scores := make(map[int64]float64)
	for i, tok := range tokens {
		tokenHits := make(map[int64]float64)
		for term, set := range e.postings {
			if !strings.HasPrefix(term, tok) {
				continue
			}
			weight := 1.0
			if term == tok {
				weight = 2.0
			}
			for id := range set {
				tokenHits[id] += weight
			}
		}

		if i == 0 {
			for id, w := range tokenHits {
				scores[id] = w
			}
			continue
		}
		for id := range scores {
			w, ok := tokenHits[id]
			if !ok {
				delete(scores, id)
				continue
			}
			scores[id] += w
		}
	}

	ids := make([]int64, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})

	if len(ids) > constants.MaxSearchResults {
		ids = ids[:constants.MaxSearchResults]
	}

	results := make([]domain.SearchResult, 0, len(ids))
	for _, id := range ids {
		doc := e.docs[id]
		results = append(results, domain.SearchResult{
			ID:       doc.ID,
			Slug:     doc.Slug,
			Title:    doc.Title,
			Snippet:  makeSnippet(doc, tokens),
			Category: doc.Category,
			Rank:     scores[id],
		})
	}
	return results, nil
}

// RebuildIndex discards the in-memory state and reruns the full
// scan-and-build path.
func (e *MemoryEngine) RebuildIndex(ctx context.Context) error {
	e.guard.reset()
	return e.guard.run(func() error {
		return e.rebuild(ctx)
	})
}

func (e *MemoryEngine) Close() error {
	return nil
}

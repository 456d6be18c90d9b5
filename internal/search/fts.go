package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/packrat-app/packrat/internal/constants"
	"github.com/packrat-app/packrat/internal/domain"
	"github.com/packrat-app/packrat/internal/kvstore"
	"github.com/packrat-app/packrat/internal/logger"
)

const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS search_fts USING fts5(
	slug UNINDEXED,
	title,
	content,
	description,
	category UNINDEXED,
	tokenize = 'porter unicode61'
);
`

// FTSEngine is search mode A: the relational engine's native full-text
// virtual table, keyed by the document id as rowid.
type FTSEngine struct {
	db    *sqlx.DB
	kv    kvstore.Adapter
	log   *logger.Logger
	guard initGuard
}

func NewFTSEngine(db *sqlx.DB, kv kvstore.Adapter, log *logger.Logger) *FTSEngine {
	if log == nil {
		log = logger.Default()
	}
	return &FTSEngine{db: db, kv: kv, log: log.WithComponent("search_fts")}
}

// Init creates the virtual table and builds it from the content stores
// when empty. Concurrent callers share a single build.
func (e *FTSEngine) Init(ctx context.Context) error {
	return e.guard.run(func() error {
		if _, err := e.db.ExecContext(ctx, ftsSchema); err != nil {
			return fmt.Errorf("failed to create fts table: %w", err)
		}

		var count int
		if err := e.db.GetContext(ctx, &count, "SELECT count(*) FROM search_fts"); err != nil {
			return fmt.Errorf("failed to count fts rows: %w", err)
		}
		if count > 0 {
			return nil
		}
		return e.build(ctx)
	})
}

func (e *FTSEngine) build(ctx context.Context) error {
	docs, err := loadDocuments(ctx, e.kv)
	if err != nil {
		return fmt.Errorf("failed to scan content stores: %w", err)
	}
	for _, doc := range docs {
		if err := e.insert(ctx, doc); err != nil {
			return err
		}
	}
	e.log.Info("Full-text index built", "documents", len(docs))
	return nil
}

func (e *FTSEngine) insert(ctx context.Context, doc domain.SearchDocument) error {
	// Delete-then-insert keyed by rowid: re-adding an id replaces, never
	// duplicates.
	if _, err := e.db.ExecContext(ctx, "DELETE FROM search_fts WHERE rowid = ?", doc.ID); err != nil {
		return fmt.Errorf("failed to clear fts row %d: %w", doc.ID, err)
	}
	_, err := e.db.ExecContext(ctx, `
		INSERT INTO search_fts (rowid, slug, title, content, description, category)
		VALUES (?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.Slug, doc.Title, doc.Content, doc.Description, doc.Category)
	if err != nil {
		return fmt.Errorf("failed to insert fts row %d: %w", doc.ID, err)
	}
	return nil
}

func (e *FTSEngine) AddDocument(ctx context.Context, doc domain.SearchDocument) error {
	if err := e.Init(ctx); err != nil {
		return err
	}
	return e.insert(ctx, doc)
}

// Search issues a prefix match ranked by bm25, capped at the fixed result
// limit. Results carry a generated snippet, not the stored content.
func (e *FTSEngine) Search(ctx context.Context, query string) ([]domain.SearchResult, error) {
	if !e.guard.initialized() {
		return []domain.SearchResult{}, nil
	}

	match := buildMatch(query)
	if match == "" {
		return []domain.SearchResult{}, nil
	}

	rows, err := e.db.QueryxContext(ctx, `
		SELECT rowid, slug, title, category,
			snippet(search_fts, 2, '', '', '…', 12) AS snip,
			bm25(search_fts) AS rank
		FROM search_fts
		WHERE search_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, match, constants.MaxSearchResults)
	if err != nil {
		// Tokens are quoted alphanumerics, so a failure here is a real
		// database error, not query syntax.
		return nil, fmt.Errorf("search query failed: %w", err)
	}
	defer rows.Close()

	results := []domain.SearchResult{}
	for rows.Next() {
		var r domain.SearchResult
		if err := rows.Scan(&r.ID, &r.Slug, &r.Title, &r.Category, &r.Snippet, &r.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// RebuildIndex discards all rows and rescans the content stores. Used
// when content changes out-of-band, e.g. after a pack install.
func (e *FTSEngine) RebuildIndex(ctx context.Context) error {
	e.guard.reset()
	return e.guard.run(func() error {
		if _, err := e.db.ExecContext(ctx, ftsSchema); err != nil {
			return fmt.Errorf("failed to create fts table: %w", err)
		}
		if _, err := e.db.ExecContext(ctx, "DELETE FROM search_fts"); err != nil {
			return fmt.Errorf("failed to clear fts table: %w", err)
		}
		return e.build(ctx)
	})
}

// Close releases nothing: the database handle is owned by the caller.
func (e *FTSEngine) Close() error {
	return nil
}

// buildMatch turns free text into an FTS5 prefix query. Tokens are
// already stripped to alphanumerics, so quoting keeps the match string
// safe against query-syntax injection.
func buildMatch(query string) string {
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return ""
	}
	parts := make([]string, len(tokens))
	for i, tok := range tokens {
		parts[i] = fmt.Sprintf(`"%s"*`, tok)
	}
	return strings.Join(parts, " ")
}

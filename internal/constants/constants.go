// Package constants contains application-wide constants to avoid magic numbers and strings.
package constants

import "time"

// Application defaults
const (
	DefaultPort          = "8080"
	DefaultDBPath        = "packrat.db"
	DefaultDataDir       = "packrat-data"
	DefaultTileURL       = "https://tile.openstreetmap.org/{z}/{x}/{y}.png"
	DefaultArticleURL    = "https://content.packrat.app/wiki"
	DefaultStorageBudget = int64(2) * 1024 * 1024 * 1024 // 2 GiB
)

// Storage backends
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// Search modes
const (
	SearchModeFTS    = "fts"
	SearchModeMemory = "memory"
)

// Tile downloading
const (
	TileBatchSize      = 6
	TileRetryCount     = 3
	TileRetryBase      = 500 * time.Millisecond
	TileBatchDelay     = 150 * time.Millisecond
	TileMinZoom        = 10
	TileMaxZoom        = 14
	TileRequestTimeout = 30 * time.Second
)

// HTTP client
const (
	DefaultHTTPTimeout = 2 * time.Minute
	MinRequestInterval = 100 * time.Millisecond
	FetchRetryCount    = 3
	FetchRetryBase     = 1 * time.Second
)

// Search
const (
	MaxSearchResults = 20
	SnippetRadius    = 60
	MinTokenLength   = 2
)

// Logical store names. Callers depend on the keying discipline of each
// store, declared in the kvstore package.
const (
	StoreDatasets     = "datasets"
	StoreGuides       = "guides"
	StoreGuideContent = "guide_content"
	StoreDataContent  = "data_content"
	StoreMapTiles     = "map_tiles"
	StoreHealth       = "health_content"
	StoreSurvival     = "survival_content"
	StoreLaw          = "law_content"
	StoreSearchIndex  = "search_index"
	StoreInkState     = "ink_state"
	StoreAIModels     = "ai_models"
	StoreContentPacks = "content_packs"
)

// Key for the serialized in-memory search index inside StoreSearchIndex.
const SearchIndexKey = "index:v1"

// File permissions
const (
	DirPermissions  = 0755
	FilePermissions = 0644
)

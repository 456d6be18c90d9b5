package domain

import "time"

type DatasetType string

const (
	DatasetTypeRegion DatasetType = "region"
	DatasetTypeGuide  DatasetType = "guide"
	DatasetTypePack   DatasetType = "pack"
)

type DatasetStatus string

const (
	DatasetStatusDownloading DatasetStatus = "downloading"
	DatasetStatusInstalled   DatasetStatus = "installed"
	DatasetStatusFailed      DatasetStatus = "failed"
)

// Bounds is a geographic bounding box in degrees.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Resource is one installable content item of a guide or pack. Fetched
// from URL and persisted under Store/Key through the storage adapter.
type Resource struct {
	Store string `json:"store"`
	Key   string `json:"key"`
	URL   string `json:"url"`
}

// ArticleRef names a remote article installed into a content store as a
// searchable document.
type ArticleRef struct {
	Store string `json:"store"`
	ID    int64  `json:"id"`
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

// Descriptor is the static definition of an installable dataset.
type Descriptor struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Type      DatasetType  `json:"type"`
	Size      int64        `json:"size"`
	Bounds    *Bounds      `json:"bounds,omitempty"`
	MinZoom   int          `json:"min_zoom,omitempty"`
	MaxZoom   int          `json:"max_zoom,omitempty"`
	Resources []Resource   `json:"resources,omitempty"`
	Articles  []ArticleRef `json:"articles,omitempty"`
}

// Dataset is the persisted install record for a dataset id. One record
// per id; status transitions are monotonic within a single attempt
// (downloading -> installed | failed), a failed record may re-enter
// downloading on retry.
type Dataset struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Type         DatasetType   `json:"type"`
	Size         int64         `json:"size"`
	Status       DatasetStatus `json:"status"`
	AttemptID    string        `json:"attempt_id"`
	StartedAt    time.Time     `json:"started_at"`
	InstalledAt  *time.Time    `json:"installed_at,omitempty"`
	FailedAt     *time.Time    `json:"failed_at,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// SearchDocument is one indexable content item.
type SearchDocument struct {
	ID          int64  `json:"id"`
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

// SearchResult is one ranked hit. Snippet is a generated excerpt, never
// the raw stored content.
type SearchResult struct {
	ID       int64   `json:"id"`
	Slug     string  `json:"slug"`
	Title    string  `json:"title"`
	Snippet  string  `json:"snippet"`
	Category string  `json:"category,omitempty"`
	Rank     float64 `json:"rank"`
}

// NarrativeState is the opaque serialized progress of one story.
type NarrativeState struct {
	StoryID   string    `json:"story_id"`
	StateJSON string    `json:"state_json"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Attribution is static license/source metadata for a content id.
type Attribution struct {
	Source          string `json:"source"`
	License         string `json:"license"`
	AttributionText string `json:"attribution_text"`
	Link            string `json:"link,omitempty"`
}

// StorageUsage is a best-effort estimate of on-device usage, summed from
// declared dataset sizes rather than measured bytes.
type StorageUsage struct {
	UsedBytes     int64   `json:"used_bytes"`
	BudgetBytes   int64   `json:"budget_bytes"`
	UsedPercent   float64 `json:"used_percent"`
	UsedDisplay   string  `json:"used_display"`
	BudgetDisplay string  `json:"budget_display"`
}

package datasets

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/packrat-app/packrat/internal/constants"
	"github.com/packrat-app/packrat/internal/domain"
	"github.com/packrat-app/packrat/internal/fetch"
	"github.com/packrat-app/packrat/internal/kvstore"
	"github.com/packrat-app/packrat/internal/logger"
	"github.com/packrat-app/packrat/internal/tiles"
)

// Manager owns the dataset records and drives the install state machine:
// absent -> downloading -> installed | failed, with failed retryable.
type Manager struct {
	kv       kvstore.Adapter
	tiles    *tiles.Manager
	content  fetch.ContentSource
	articles fetch.ArticleSource
	registry *Registry
	log      *logger.Logger
	budget   int64

	mu         sync.Mutex
	installing map[string]bool
}

func NewManager(kv kvstore.Adapter, tileMgr *tiles.Manager, content fetch.ContentSource, articles fetch.ArticleSource, registry *Registry, budget int64, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Default()
	}
	if budget <= 0 {
		budget = constants.DefaultStorageBudget
	}
	return &Manager{
		kv:         kv,
		tiles:      tileMgr,
		content:    content,
		articles:   articles,
		registry:   registry,
		log:        log.WithComponent("datasets"),
		budget:     budget,
		installing: make(map[string]bool),
	}
}

// recordStore maps a dataset type to the store holding its record.
func recordStore(t domain.DatasetType) kvstore.Store {
	switch t {
	case domain.DatasetTypeGuide:
		return kvstore.Guides
	case domain.DatasetTypePack:
		return kvstore.ContentPacks
	default:
		return kvstore.Datasets
	}
}

func recordStores() []kvstore.Store {
	return []kvstore.Store{kvstore.Datasets, kvstore.Guides, kvstore.ContentPacks}
}

// Install runs one install attempt for the dataset id. The downloading
// record is written and persisted before any backend work begins, so a
// crash mid-install leaves discoverable, retryable state. On success the
// record becomes installed; on any failure it becomes failed with the
// error message, partial tiles are cleaned up best-effort, and the
// original error is returned.
func (m *Manager) Install(ctx context.Context, id string) (*domain.Dataset, error) {
	desc, ok := m.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("install %q: %w", id, domain.ErrUnknownDataset)
	}

	m.mu.Lock()
	if m.installing[id] {
		m.mu.Unlock()
		return nil, fmt.Errorf("install %q: %w", id, domain.ErrInstallInProgress)
	}
	m.installing[id] = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.installing, id)
		m.mu.Unlock()
	}()

	log := m.log.WithDataset(desc.ID, string(desc.Type))

	record := &domain.Dataset{
		ID:        desc.ID,
		Name:      desc.Name,
		Type:      desc.Type,
		Size:      desc.Size,
		Status:    domain.DatasetStatusDownloading,
		AttemptID: uuid.New().String(),
		StartedAt: time.Now(),
	}
	if err := m.putRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to write downloading record: %w", err)
	}
	log.Info("Install started", "attempt_id", record.AttemptID)

	if err := m.performInstall(ctx, desc, log); err != nil {
		now := time.Now()
		record.Status = domain.DatasetStatusFailed
		record.FailedAt = &now
		record.ErrorMessage = err.Error()
		if putErr := m.putRecord(ctx, record); putErr != nil {
			log.Error("Failed to write failed record", "error", putErr)
		}

		m.cleanupPartial(ctx, desc, log)

		log.Error("Install failed", "error", err)
		return record, err
	}

	now := time.Now()
	record.Status = domain.DatasetStatusInstalled
	record.InstalledAt = &now
	record.ErrorMessage = ""
	if err := m.putRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to finalize install record: %w", err)
	}

	log.Info("Install completed")
	return record, nil
}

func (m *Manager) performInstall(ctx context.Context, desc domain.Descriptor, log *logger.Logger) error {
	if desc.Type == domain.DatasetTypeRegion {
		if desc.Bounds == nil {
			return fmt.Errorf("region %q has no bounding box", desc.ID)
		}
		minZoom, maxZoom := zoomRange(desc)
		stats, err := m.tiles.DownloadRegion(ctx, *desc.Bounds, minZoom, maxZoom, func(pct float64) {
			log.Debug("Region download progress", "percent", pct)
		})
		if err != nil {
			return err
		}
		log.Info("Region tiles downloaded", "downloaded", stats.Downloaded, "skipped", stats.Skipped, "failed", stats.Failed)
		return nil
	}

	for _, res := range desc.Resources {
		st, ok := kvstore.ByName(res.Store)
		if !ok {
			return fmt.Errorf("resource %q names unknown store %q", res.Key, res.Store)
		}
		data, err := m.content.FetchContent(ctx, res.URL)
		if err != nil {
			return fmt.Errorf("resource %q: %w", res.Key, err)
		}
		key := ""
		if st.Mode == kvstore.KeyOutOfLine {
			key = res.Key
		}
		if _, err := m.kv.Put(ctx, st, data, key); err != nil {
			return fmt.Errorf("resource %q: %w", res.Key, err)
		}
	}

	for _, ref := range desc.Articles {
		st, ok := kvstore.ByName(ref.Store)
		if !ok {
			return fmt.Errorf("article %q names unknown store %q", ref.Slug, ref.Store)
		}
		if m.articles == nil {
			return fmt.Errorf("article %q: no article source configured", ref.Slug)
		}
		article, err := m.articles.FetchArticle(ctx, ref.Title)
		if err != nil {
			return fmt.Errorf("article %q: %w", ref.Slug, err)
		}
		doc := domain.SearchDocument{
			ID:      ref.ID,
			Slug:    ref.Slug,
			Title:   article.Title,
			Content: article.Plaintext,
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("article %q: %w", ref.Slug, err)
		}
		if _, err := m.kv.Put(ctx, st, data, ""); err != nil {
			return fmt.Errorf("article %q: %w", ref.Slug, err)
		}
	}
	return nil
}

// cleanupPartial removes whatever a failed attempt already wrote. Its own
// errors are logged and never replace the primary install error.
func (m *Manager) cleanupPartial(ctx context.Context, desc domain.Descriptor, log *logger.Logger) {
	if desc.Type == domain.DatasetTypeRegion {
		if desc.Bounds == nil {
			return
		}
		minZoom, maxZoom := zoomRange(desc)
		if err := m.tiles.ClearRegionTiles(ctx, *desc.Bounds, minZoom, maxZoom); err != nil {
			log.Warn("Partial tile cleanup failed", "error", err)
		}
		return
	}
	for _, res := range desc.Resources {
		st, ok := kvstore.ByName(res.Store)
		if !ok || st.Mode != kvstore.KeyOutOfLine {
			continue
		}
		if err := m.kv.Delete(ctx, st, res.Key); err != nil {
			log.Warn("Partial resource cleanup failed", "key", res.Key, "error", err)
		}
	}
	for _, ref := range desc.Articles {
		st, ok := kvstore.ByName(ref.Store)
		if !ok {
			continue
		}
		if err := m.kv.Delete(ctx, st, strconv.FormatInt(ref.ID, 10)); err != nil {
			log.Warn("Partial article cleanup failed", "slug", ref.Slug, "error", err)
		}
	}
}

// Uninstall removes the dataset's content first and then deletes the
// metadata record unconditionally, so leftover orphaned bytes can never
// wedge an uninstall.
func (m *Manager) Uninstall(ctx context.Context, id string) error {
	record, st, err := m.findRecord(ctx, id)
	if err != nil {
		return err
	}
	if record == nil {
		return nil
	}

	log := m.log.WithDataset(record.ID, string(record.Type))

	if desc, ok := m.registry.Get(id); ok {
		m.cleanupPartial(ctx, desc, log)
	}

	if err := m.kv.Delete(ctx, st, id); err != nil {
		return fmt.Errorf("failed to delete dataset record: %w", err)
	}
	log.Info("Uninstalled")
	return nil
}

// MarkInterrupted rewrites records stuck in downloading to failed. Run at
// startup: such a record is known-incomplete and must stay retryable
// rather than report as installed.
func (m *Manager) MarkInterrupted(ctx context.Context) error {
	records, err := m.List(ctx)
	if err != nil {
		return err
	}
	for _, r := range records {
		if r.Status != domain.DatasetStatusDownloading {
			continue
		}
		now := time.Now()
		r.Status = domain.DatasetStatusFailed
		r.FailedAt = &now
		r.ErrorMessage = "install interrupted by restart"
		if err := m.putRecord(ctx, r); err != nil {
			m.log.Error("Failed to mark interrupted install", "dataset_id", r.ID, "error", err)
			continue
		}
		m.log.Info("Marked interrupted install as failed", "dataset_id", r.ID)
	}
	return nil
}

// Get returns the persisted record for a dataset id, nil when absent.
func (m *Manager) Get(ctx context.Context, id string) (*domain.Dataset, error) {
	record, _, err := m.findRecord(ctx, id)
	return record, err
}

// List returns every dataset record across all record stores.
func (m *Manager) List(ctx context.Context) ([]*domain.Dataset, error) {
	var records []*domain.Dataset
	for _, st := range recordStores() {
		values, err := m.kv.GetAll(ctx, st)
		if err != nil {
			return nil, err
		}
		for _, v := range values {
			var d domain.Dataset
			if err := json.Unmarshal(v, &d); err != nil {
				m.log.Warn("Skipping malformed dataset record", "store", st.Name, "error", err)
				continue
			}
			records = append(records, &d)
		}
	}
	return records, nil
}

// InstalledRegions returns only region records whose status is installed.
// Records in downloading or failed state are never reported as available.
func (m *Manager) InstalledRegions(ctx context.Context) ([]*domain.Dataset, error) {
	values, err := m.kv.GetAll(ctx, kvstore.Datasets)
	if err != nil {
		return nil, err
	}
	var regions []*domain.Dataset
	for _, v := range values {
		var d domain.Dataset
		if err := json.Unmarshal(v, &d); err != nil {
			continue
		}
		if d.Status == domain.DatasetStatusInstalled {
			regions = append(regions, &d)
		}
	}
	return regions, nil
}

// StorageUsage sums declared sizes of installed and in-flight datasets
// against the configured budget. A display estimate, not measured bytes.
func (m *Manager) StorageUsage(ctx context.Context) (domain.StorageUsage, error) {
	records, err := m.List(ctx)
	if err != nil {
		return domain.StorageUsage{}, err
	}

	var used int64
	for _, r := range records {
		if r.Status == domain.DatasetStatusInstalled || r.Status == domain.DatasetStatusDownloading {
			used += r.Size
		}
	}

	return domain.StorageUsage{
		UsedBytes:     used,
		BudgetBytes:   m.budget,
		UsedPercent:   float64(used) / float64(m.budget) * 100,
		UsedDisplay:   humanize.IBytes(uint64(used)),
		BudgetDisplay: humanize.IBytes(uint64(m.budget)),
	}, nil
}

func (m *Manager) putRecord(ctx context.Context, record *domain.Dataset) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	_, err = m.kv.Put(ctx, recordStore(record.Type), data, "")
	return err
}

func (m *Manager) findRecord(ctx context.Context, id string) (*domain.Dataset, kvstore.Store, error) {
	for _, st := range recordStores() {
		v, err := m.kv.Get(ctx, st, id)
		if err != nil {
			return nil, st, err
		}
		if v == nil {
			continue
		}
		var d domain.Dataset
		if err := json.Unmarshal(v, &d); err != nil {
			return nil, st, fmt.Errorf("malformed dataset record %q: %w", id, err)
		}
		return &d, st, nil
	}
	return nil, kvstore.Store{}, nil
}

func zoomRange(desc domain.Descriptor) (int, int) {
	minZoom, maxZoom := desc.MinZoom, desc.MaxZoom
	if maxZoom == 0 {
		minZoom, maxZoom = constants.TileMinZoom, constants.TileMaxZoom
	}
	return minZoom, maxZoom
}

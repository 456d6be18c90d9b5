package tiles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/packrat-app/packrat/internal/constants"
	"github.com/packrat-app/packrat/internal/domain"
	"github.com/packrat-app/packrat/internal/fetch"
	"github.com/packrat-app/packrat/internal/kvstore"
	"github.com/packrat-app/packrat/internal/logger"
)

// errBadPayload marks a fetched body whose content type is not an image.
// Discarded and counted failed, never retried within the same call.
var errBadPayload = errors.New("payload is not an image")

// Stats summarizes one DownloadRegion call.
type Stats struct {
	Total      int `json:"total"`
	Downloaded int `json:"downloaded"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// Manager fetches, validates and persists raster tiles through the
// storage adapter, and serves them back to the map layer.
type Manager struct {
	kv     kvstore.Adapter
	source fetch.TileSource
	log    *logger.Logger

	BatchSize  int
	Retries    int
	RetryBase  time.Duration
	BatchDelay time.Duration
}

func NewManager(kv kvstore.Adapter, source fetch.TileSource, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Default()
	}
	return &Manager{
		kv:         kv,
		source:     source,
		log:        log.WithComponent("tiles"),
		BatchSize:  constants.TileBatchSize,
		Retries:    constants.TileRetryCount,
		RetryBase:  constants.TileRetryBase,
		BatchDelay: constants.TileBatchDelay,
	}
}

// DownloadRegion fetches every missing tile covering the bounding box
// across the zoom range. Tiles already cached are skipped, so an
// interrupted download resumes where it left off. Fetches run in batches
// of a fixed size; a failed tile does not abort the batch, but a quota
// error does abort the region. Progress is reported after each batch as
// processed/total*100 and reaches 100 once every tile has been attempted.
func (m *Manager) DownloadRegion(ctx context.Context, bounds domain.Bounds, minZoom, maxZoom int, onProgress func(pct float64)) (Stats, error) {
	coords := CoordsForRegion(bounds, minZoom, maxZoom)
	stats := Stats{Total: len(coords)}
	if stats.Total == 0 {
		if onProgress != nil {
			onProgress(100)
		}
		return stats, nil
	}

	var downloaded, skipped, failed atomic.Int64
	processed := 0

	for start := 0; start < len(coords); start += m.BatchSize {
		if ctx.Err() != nil {
			return m.collect(&stats, &downloaded, &skipped, &failed),
				fmt.Errorf("region download: %w", domain.ErrCancelled)
		}
		end := start + m.BatchSize
		if end > len(coords) {
			end = len(coords)
		}
		batch := coords[start:end]

		g, gctx := errgroup.WithContext(ctx)
		for _, c := range batch {
			c := c
			g.Go(func() error {
				cached, err := m.kv.Get(gctx, kvstore.MapTiles, c.Key())
				if err != nil {
					failed.Add(1)
					m.log.Warn("Tile cache check failed", "tile", c.Key(), "error", err)
					return nil
				}
				if cached != nil {
					skipped.Add(1)
					return nil
				}

				if err := m.fetchAndStore(gctx, c); err != nil {
					if errors.Is(err, domain.ErrQuotaExceeded) {
						return err
					}
					failed.Add(1)
					m.log.Warn("Tile abandoned", "tile", c.Key(), "error", err)
					return nil
				}
				downloaded.Add(1)
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			if ctx.Err() != nil {
				return m.collect(&stats, &downloaded, &skipped, &failed),
					fmt.Errorf("region download: %w", domain.ErrCancelled)
			}
			return m.collect(&stats, &downloaded, &skipped, &failed), err
		}

		processed += len(batch)
		if onProgress != nil {
			onProgress(float64(processed) / float64(stats.Total) * 100)
		}

		// Politeness delay between batches
		if end < len(coords) {
			timer := time.NewTimer(m.BatchDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return m.collect(&stats, &downloaded, &skipped, &failed),
					fmt.Errorf("region download: %w", domain.ErrCancelled)
			case <-timer.C:
			}
		}
	}

	result := m.collect(&stats, &downloaded, &skipped, &failed)
	m.log.Info("Region download finished",
		"total", result.Total,
		"downloaded", result.Downloaded,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}

func (m *Manager) collect(stats *Stats, downloaded, skipped, failed *atomic.Int64) Stats {
	stats.Downloaded = int(downloaded.Load())
	stats.Skipped = int(skipped.Load())
	stats.Failed = int(failed.Load())
	return *stats
}

// fetchAndStore retries a single tile with increasing backoff before
// giving up. A non-image payload is discarded without further retries.
func (m *Manager) fetchAndStore(ctx context.Context, c Coord) error {
	var lastErr error
	for attempt := 0; attempt < m.Retries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(time.Duration(attempt) * m.RetryBase)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		data, contentType, err := m.source.FetchTile(ctx, c.Z, c.X, c.Y)
		if err != nil {
			lastErr = err
			continue
		}

		if !strings.HasPrefix(contentType, "image/") {
			return fmt.Errorf("%w: got %q", errBadPayload, contentType)
		}

		if _, err := m.kv.Put(ctx, kvstore.MapTiles, data, c.Key()); err != nil {
			return err
		}
		return nil
	}
	return fmt.Errorf("tile fetch failed after %d attempts: %w", m.Retries, lastErr)
}

// GetTile returns cached tile bytes, or nil when absent so the map layer
// can fall back to a live URL.
func (m *Manager) GetTile(ctx context.Context, x, y, z int) ([]byte, error) {
	return m.kv.Get(ctx, kvstore.MapTiles, TileKey(x, y, z))
}

// ClearRegionTiles deletes the tiles covering a region by recomputing its
// coordinate set from the original bounding box and zoom range. Tiles
// shared with an overlapping installed region are deleted too and will
// re-download on demand; ownership is not reference counted.
func (m *Manager) ClearRegionTiles(ctx context.Context, bounds domain.Bounds, minZoom, maxZoom int) error {
	var firstErr error
	for _, c := range CoordsForRegion(bounds, minZoom, maxZoom) {
		if err := m.kv.Delete(ctx, kvstore.MapTiles, c.Key()); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			m.log.Warn("Tile delete failed", "tile", c.Key(), "error", err)
		}
	}
	return firstErr
}

// ClearAllTiles removes every cached tile.
func (m *Manager) ClearAllTiles(ctx context.Context) error {
	keys, err := m.kv.GetAllKeys(ctx, kvstore.MapTiles)
	if err != nil {
		return err
	}
	var firstErr error
	for _, key := range keys {
		if err := m.kv.Delete(ctx, kvstore.MapTiles, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

package tiles

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/packrat-app/packrat/internal/domain"
	"github.com/packrat-app/packrat/internal/kvstore"
)

// fakeSource counts fetches per tile, tracks peak concurrent calls, and
// can be scripted to fail.
type fakeSource struct {
	mu          sync.Mutex
	fetches     map[string]int
	failFirst   bool
	contentType string
	delay       time.Duration
	inflight    int
	maxInflight int
}

func newFakeSource() *fakeSource {
	return &fakeSource{fetches: make(map[string]int), contentType: "image/png"}
}

func (f *fakeSource) FetchTile(_ context.Context, z, x, y int) ([]byte, string, error) {
	key := TileKey(x, y, z)
	f.mu.Lock()
	f.fetches[key]++
	attempt := f.fetches[key]
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inflight--
	f.mu.Unlock()

	if f.failFirst && attempt == 1 {
		return nil, "", errors.New("connection reset")
	}
	return []byte("tile-" + key), f.contentType, nil
}

func (f *fakeSource) totalFetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.fetches {
		total += n
	}
	return total
}

func setupManager(t *testing.T, source *fakeSource) (*Manager, kvstore.Adapter) {
	t.Helper()

	db, err := kvstore.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	adapter, err := kvstore.NewSQLiteAdapter(db, t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteAdapter failed: %v", err)
	}
	t.Cleanup(func() { adapter.Close() })

	m := NewManager(adapter, source, nil)
	m.RetryBase = time.Millisecond
	m.BatchDelay = time.Millisecond
	return m, adapter
}

var testBounds = domain.Bounds{MinLat: 51.3, MinLon: -0.3, MaxLat: 51.6, MaxLon: 0.1}

func TestDownloadRegion_StoresAllTiles(t *testing.T) {
	source := newFakeSource()
	m, adapter := setupManager(t, source)

	stats, err := m.DownloadRegion(context.Background(), testBounds, 12, 13, nil)
	if err != nil {
		t.Fatalf("DownloadRegion failed: %v", err)
	}

	want := len(CoordsForRegion(testBounds, 12, 13))
	if stats.Total != want || stats.Downloaded != want {
		t.Errorf("Expected %d downloaded, got %+v", want, stats)
	}

	for _, c := range CoordsForRegion(testBounds, 12, 13) {
		data, err := adapter.Get(context.Background(), kvstore.MapTiles, c.Key())
		if err != nil || data == nil {
			t.Errorf("Tile %s missing after download: %v", c.Key(), err)
		}
	}
}

func TestDownloadRegion_SkipsCachedTiles(t *testing.T) {
	source := newFakeSource()
	m, _ := setupManager(t, source)
	ctx := context.Background()

	if _, err := m.DownloadRegion(ctx, testBounds, 12, 12, nil); err != nil {
		t.Fatalf("First download failed: %v", err)
	}
	first := source.totalFetches()

	stats, err := m.DownloadRegion(ctx, testBounds, 12, 12, nil)
	if err != nil {
		t.Fatalf("Second download failed: %v", err)
	}
	if stats.Skipped != stats.Total || stats.Downloaded != 0 {
		t.Errorf("Expected all tiles skipped on rerun, got %+v", stats)
	}
	if source.totalFetches() != first {
		t.Errorf("Rerun fetched %d extra tiles", source.totalFetches()-first)
	}
}

func TestDownloadRegion_RetriesTransientFailures(t *testing.T) {
	source := newFakeSource()
	source.failFirst = true
	m, _ := setupManager(t, source)

	stats, err := m.DownloadRegion(context.Background(), testBounds, 12, 12, nil)
	if err != nil {
		t.Fatalf("DownloadRegion failed: %v", err)
	}
	if stats.Failed != 0 || stats.Downloaded != stats.Total {
		t.Errorf("Expected retries to recover every tile, got %+v", stats)
	}
	// Every tile needed exactly one retry.
	if source.totalFetches() != stats.Total*2 {
		t.Errorf("Expected %d fetches, got %d", stats.Total*2, source.totalFetches())
	}
}

func TestDownloadRegion_RejectsNonImagePayload(t *testing.T) {
	source := newFakeSource()
	source.contentType = "text/html"
	m, adapter := setupManager(t, source)

	stats, err := m.DownloadRegion(context.Background(), testBounds, 12, 12, nil)
	if err != nil {
		t.Fatalf("DownloadRegion failed: %v", err)
	}
	if stats.Failed != stats.Total || stats.Downloaded != 0 {
		t.Errorf("Expected every tile rejected, got %+v", stats)
	}
	// A bad payload is not a transient error; no retries.
	if source.totalFetches() != stats.Total {
		t.Errorf("Expected %d fetches without retries, got %d", stats.Total, source.totalFetches())
	}

	keys, err := adapter.GetAllKeys(context.Background(), kvstore.MapTiles)
	if err != nil {
		t.Fatalf("GetAllKeys failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("Rejected payloads must not be stored, found %v", keys)
	}
}

func TestDownloadRegion_ProgressReaches100(t *testing.T) {
	source := newFakeSource()
	m, _ := setupManager(t, source)

	var progress []float64
	_, err := m.DownloadRegion(context.Background(), testBounds, 12, 13, func(pct float64) {
		progress = append(progress, pct)
	})
	if err != nil {
		t.Fatalf("DownloadRegion failed: %v", err)
	}

	if len(progress) == 0 {
		t.Fatal("Expected progress callbacks")
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Errorf("Progress went backwards: %v", progress)
		}
	}
	if last := progress[len(progress)-1]; last != 100 {
		t.Errorf("Expected final progress 100, got %v", last)
	}
}

func TestDownloadRegion_ConcurrencyCeiling(t *testing.T) {
	source := newFakeSource()
	source.delay = 2 * time.Millisecond
	m, _ := setupManager(t, source)

	if _, err := m.DownloadRegion(context.Background(), testBounds, 12, 13, nil); err != nil {
		t.Fatalf("DownloadRegion failed: %v", err)
	}

	if source.maxInflight > m.BatchSize {
		t.Errorf("Peak of %d concurrent fetches exceeds batch size %d", source.maxInflight, m.BatchSize)
	}
	if source.maxInflight == 0 {
		t.Error("Expected at least one fetch")
	}
}

func TestDownloadRegion_Cancelled(t *testing.T) {
	source := newFakeSource()
	m, _ := setupManager(t, source)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.DownloadRegion(ctx, testBounds, 12, 13, nil)
	if !errors.Is(err, domain.ErrCancelled) {
		t.Errorf("Expected ErrCancelled, got: %v", err)
	}
}

func TestGetTile(t *testing.T) {
	source := newFakeSource()
	m, adapter := setupManager(t, source)
	ctx := context.Background()

	if _, err := adapter.Put(ctx, kvstore.MapTiles, []byte("cached"), TileKey(511, 340, 10)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	data, err := m.GetTile(ctx, 511, 340, 10)
	if err != nil {
		t.Fatalf("GetTile failed: %v", err)
	}
	if string(data) != "cached" {
		t.Errorf("Expected cached bytes, got %s", data)
	}

	miss, err := m.GetTile(ctx, 1, 2, 3)
	if err != nil || miss != nil {
		t.Errorf("Expected nil on miss, got %v, %v", miss, err)
	}
}

func TestClearRegionTiles(t *testing.T) {
	source := newFakeSource()
	m, adapter := setupManager(t, source)
	ctx := context.Background()

	if _, err := m.DownloadRegion(ctx, testBounds, 12, 12, nil); err != nil {
		t.Fatalf("DownloadRegion failed: %v", err)
	}
	if err := m.ClearRegionTiles(ctx, testBounds, 12, 12); err != nil {
		t.Fatalf("ClearRegionTiles failed: %v", err)
	}

	keys, err := adapter.GetAllKeys(ctx, kvstore.MapTiles)
	if err != nil {
		t.Fatalf("GetAllKeys failed: %v", err)
	}
	for _, key := range keys {
		if strings.HasPrefix(key, "12-") {
			t.Errorf("Tile %s survived clear", key)
		}
	}
}

func TestClearAllTiles(t *testing.T) {
	source := newFakeSource()
	m, adapter := setupManager(t, source)
	ctx := context.Background()

	if _, err := m.DownloadRegion(ctx, testBounds, 12, 13, nil); err != nil {
		t.Fatalf("DownloadRegion failed: %v", err)
	}
	if err := m.ClearAllTiles(ctx); err != nil {
		t.Fatalf("ClearAllTiles failed: %v", err)
	}

	keys, err := adapter.GetAllKeys(ctx, kvstore.MapTiles)
	if err != nil {
		t.Fatalf("GetAllKeys failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("Expected empty tile store, found %d keys", len(keys))
	}
}

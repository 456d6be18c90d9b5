package kvstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/packrat-app/packrat/internal/domain"
)

func setupBackends(t *testing.T) map[string]Adapter {
	t.Helper()

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	sqliteAdapter, err := NewSQLiteAdapter(db, t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteAdapter failed: %v", err)
	}
	t.Cleanup(func() { sqliteAdapter.Close() })

	badgerAdapter, err := NewBadgerAdapter(t.TempDir())
	if err != nil {
		t.Fatalf("NewBadgerAdapter failed: %v", err)
	}
	t.Cleanup(func() { badgerAdapter.Close() })

	return map[string]Adapter{
		"sqlite": sqliteAdapter,
		"badger": badgerAdapter,
	}
}

func TestAdapter_PutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, adapter := range setupBackends(t) {
		t.Run(name, func(t *testing.T) {
			key, err := adapter.Put(ctx, MapTiles, []byte("tile-bytes"), "10-511-340")
			if err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			if key != "10-511-340" {
				t.Errorf("Expected key 10-511-340, got %s", key)
			}

			value, err := adapter.Get(ctx, MapTiles, "10-511-340")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if string(value) != "tile-bytes" {
				t.Errorf("Expected tile-bytes, got %s", value)
			}
		})
	}
}

func TestAdapter_GetMissReturnsNilNil(t *testing.T) {
	ctx := context.Background()
	for name, adapter := range setupBackends(t) {
		t.Run(name, func(t *testing.T) {
			value, err := adapter.Get(ctx, MapTiles, "no-such-tile")
			if err != nil {
				t.Fatalf("Get on miss should not error, got: %v", err)
			}
			if value != nil {
				t.Errorf("Expected nil on miss, got %v", value)
			}
		})
	}
}

func TestAdapter_InlineKeyDerivedFromValue(t *testing.T) {
	ctx := context.Background()
	for name, adapter := range setupBackends(t) {
		t.Run(name, func(t *testing.T) {
			key, err := adapter.Put(ctx, Datasets, []byte(`{"id":"region-london","name":"London"}`), "")
			if err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			if key != "region-london" {
				t.Errorf("Expected derived key region-london, got %s", key)
			}

			value, err := adapter.Get(ctx, Datasets, "region-london")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if value == nil {
				t.Fatal("Expected stored value")
			}
		})
	}
}

func TestAdapter_NumericInlineKey(t *testing.T) {
	ctx := context.Background()
	for name, adapter := range setupBackends(t) {
		t.Run(name, func(t *testing.T) {
			key, err := adapter.Put(ctx, Health, []byte(`{"id":42,"title":"Hypothermia"}`), "")
			if err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			if key != "42" {
				t.Errorf("Expected derived key 42, got %s", key)
			}
		})
	}
}

func TestAdapter_KeyingDisciplineViolations(t *testing.T) {
	ctx := context.Background()
	for name, adapter := range setupBackends(t) {
		t.Run(name, func(t *testing.T) {
			// Out-of-line store with no key must fail loudly.
			if _, err := adapter.Put(ctx, MapTiles, []byte("data"), ""); !errors.Is(err, domain.ErrInvalidKey) {
				t.Errorf("Expected ErrInvalidKey for missing out-of-line key, got: %v", err)
			}

			// In-line store with an explicit key is also a contract violation.
			if _, err := adapter.Put(ctx, Datasets, []byte(`{"id":"x"}`), "explicit"); !errors.Is(err, domain.ErrInvalidKey) {
				t.Errorf("Expected ErrInvalidKey for explicit in-line key, got: %v", err)
			}

			// In-line store value without a usable key field.
			if _, err := adapter.Put(ctx, Datasets, []byte(`{"name":"no id"}`), ""); !errors.Is(err, domain.ErrInvalidKey) {
				t.Errorf("Expected ErrInvalidKey for value without id, got: %v", err)
			}
		})
	}
}

func TestAdapter_GetAllAndKeys(t *testing.T) {
	ctx := context.Background()
	for name, adapter := range setupBackends(t) {
		t.Run(name, func(t *testing.T) {
			tilesData := map[string]string{
				"10-1-1": "a",
				"10-1-2": "b",
				"10-2-1": "c",
			}
			for key, data := range tilesData {
				if _, err := adapter.Put(ctx, MapTiles, []byte(data), key); err != nil {
					t.Fatalf("Put failed: %v", err)
				}
			}
			// A record in another store must not leak into the scan.
			if _, err := adapter.Put(ctx, Datasets, []byte(`{"id":"r1"}`), ""); err != nil {
				t.Fatalf("Put failed: %v", err)
			}

			keys, err := adapter.GetAllKeys(ctx, MapTiles)
			if err != nil {
				t.Fatalf("GetAllKeys failed: %v", err)
			}
			sort.Strings(keys)
			if len(keys) != 3 {
				t.Fatalf("Expected 3 keys, got %d: %v", len(keys), keys)
			}

			values, err := adapter.GetAll(ctx, MapTiles)
			if err != nil {
				t.Fatalf("GetAll failed: %v", err)
			}
			if len(values) != 3 {
				t.Errorf("Expected 3 values, got %d", len(values))
			}
		})
	}
}

func TestAdapter_Delete(t *testing.T) {
	ctx := context.Background()
	for name, adapter := range setupBackends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := adapter.Put(ctx, MapTiles, []byte("x"), "del-me"); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			if err := adapter.Delete(ctx, MapTiles, "del-me"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			value, err := adapter.Get(ctx, MapTiles, "del-me")
			if err != nil || value != nil {
				t.Errorf("Expected nil after delete, got %v, %v", value, err)
			}

			// Deleting an absent key is a no-op.
			if err := adapter.Delete(ctx, MapTiles, "never-existed"); err != nil {
				t.Errorf("Delete on absent key should not error, got: %v", err)
			}
		})
	}
}

func TestSQLiteAdapter_BlobRouting(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	adapter, err := NewSQLiteAdapter(db, dataDir)
	if err != nil {
		t.Fatalf("NewSQLiteAdapter failed: %v", err)
	}
	defer adapter.Close()

	// Blob-class payloads land on the filesystem, not in the attribute table.
	if _, err := adapter.Put(ctx, MapTiles, []byte("tile"), "12-100-200"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dataDir, "map_tiles", "12-100-200")); err != nil {
		t.Errorf("Expected blob file on disk: %v", err)
	}

	// Metadata stays in the relational engine.
	if _, err := adapter.Put(ctx, Datasets, []byte(`{"id":"r1"}`), ""); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	var count int
	if err := db.Get(&count, "SELECT count(*) FROM kv_attributes WHERE store_name = 'datasets'"); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 attribute row, got %d", count)
	}
}

func TestByName(t *testing.T) {
	st, ok := ByName("map_tiles")
	if !ok {
		t.Fatal("Expected map_tiles store")
	}
	if st.Mode != KeyOutOfLine {
		t.Error("map_tiles must be an out-of-line store")
	}

	if _, ok := ByName("nonexistent"); ok {
		t.Error("Expected lookup miss for unknown store")
	}
}

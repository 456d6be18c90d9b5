// Package kvstore is the storage adapter: a uniform get/put/getAll/
// getAllKeys/delete contract over two physical backends. It is the single
// arbiter of persisted state; no other component touches a backend
// directly.
package kvstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/packrat-app/packrat/internal/constants"
	"github.com/packrat-app/packrat/internal/domain"
)

// KeyMode declares how a store derives record keys.
type KeyMode int

const (
	// KeyInline stores derive the key from a field of the value itself.
	KeyInline KeyMode = iota
	// KeyOutOfLine stores require the caller to supply the key.
	KeyOutOfLine
)

// Class routes a store's payloads inside the relational backend: metadata
// goes to the attribute table, large opaque blobs to the filesystem. The
// attribute table's row overhead makes it unsuitable for multi-hundred-KB
// payloads, while the filesystem cannot scan metadata.
type Class int

const (
	ClassMeta Class = iota
	ClassBlob
)

// Store describes one logical store. Keying discipline is a declared
// property checked at the adapter boundary, not left to caller discipline.
type Store struct {
	Name     string
	Mode     KeyMode
	Class    Class
	KeyField string // value field holding the key for KeyInline stores
}

var (
	Datasets     = Store{Name: constants.StoreDatasets, Mode: KeyInline, Class: ClassMeta, KeyField: "id"}
	Guides       = Store{Name: constants.StoreGuides, Mode: KeyInline, Class: ClassMeta, KeyField: "id"}
	GuideContent = Store{Name: constants.StoreGuideContent, Mode: KeyOutOfLine, Class: ClassBlob}
	DataContent  = Store{Name: constants.StoreDataContent, Mode: KeyOutOfLine, Class: ClassBlob}
	MapTiles     = Store{Name: constants.StoreMapTiles, Mode: KeyOutOfLine, Class: ClassBlob}
	Health       = Store{Name: constants.StoreHealth, Mode: KeyInline, Class: ClassMeta, KeyField: "id"}
	Survival     = Store{Name: constants.StoreSurvival, Mode: KeyInline, Class: ClassMeta, KeyField: "id"}
	Law          = Store{Name: constants.StoreLaw, Mode: KeyInline, Class: ClassMeta, KeyField: "id"}
	SearchIndex  = Store{Name: constants.StoreSearchIndex, Mode: KeyOutOfLine, Class: ClassBlob}
	InkState     = Store{Name: constants.StoreInkState, Mode: KeyInline, Class: ClassMeta, KeyField: "story_id"}
	AIModels     = Store{Name: constants.StoreAIModels, Mode: KeyOutOfLine, Class: ClassBlob}
	ContentPacks = Store{Name: constants.StoreContentPacks, Mode: KeyInline, Class: ClassMeta, KeyField: "id"}
)

// All lists every declared store.
func All() []Store {
	return []Store{
		Datasets, Guides, GuideContent, DataContent, MapTiles,
		Health, Survival, Law, SearchIndex, InkState, AIModels, ContentPacks,
	}
}

// ByName resolves a store by its logical name.
func ByName(name string) (Store, bool) {
	for _, st := range All() {
		if st.Name == name {
			return st, true
		}
	}
	return Store{}, false
}

// Adapter is the uniform storage contract both backends satisfy
// identically. Get returns (nil, nil) on a miss — absence is not an
// error. Put returns the effective key. Writes that exhaust device
// storage surface domain.ErrQuotaExceeded.
type Adapter interface {
	Get(ctx context.Context, st Store, key string) ([]byte, error)
	Put(ctx context.Context, st Store, value []byte, key string) (string, error)
	GetAll(ctx context.Context, st Store) ([][]byte, error)
	GetAllKeys(ctx context.Context, st Store) ([]string, error)
	Delete(ctx context.Context, st Store, key string) error
	Close() error
}

// resolveKey enforces each store's keying discipline. KeyOutOfLine
// without a key, or KeyInline with one, is an input-contract violation
// and fails loudly rather than silently dropping data.
func resolveKey(st Store, value []byte, key string) (string, error) {
	switch st.Mode {
	case KeyOutOfLine:
		if key == "" {
			return "", fmt.Errorf("store %q requires an explicit key: %w", st.Name, domain.ErrInvalidKey)
		}
		return key, nil
	default:
		if key != "" {
			return "", fmt.Errorf("store %q derives its key from field %q, explicit key not allowed: %w", st.Name, st.KeyField, domain.ErrInvalidKey)
		}
		return inlineKey(st, value)
	}
}

func inlineKey(st Store, value []byte) (string, error) {
	var probe map[string]any
	dec := json.NewDecoder(bytes.NewReader(value))
	dec.UseNumber()
	if err := dec.Decode(&probe); err != nil {
		return "", fmt.Errorf("store %q: value is not a JSON object: %w", st.Name, domain.ErrInvalidKey)
	}
	switch id := probe[st.KeyField].(type) {
	case string:
		if id != "" {
			return id, nil
		}
	case json.Number:
		return id.String(), nil
	}
	return "", fmt.Errorf("store %q: value has no usable %q field: %w", st.Name, st.KeyField, domain.ErrInvalidKey)
}

// Package narrative persists serialized interactive-fiction progress per
// story id. Pure persistence: the interpreter decides when to save,
// restore or clear; this layer only guarantees overwrite-on-save and
// delete-on-clear durability.
package narrative

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/packrat-app/packrat/internal/domain"
	"github.com/packrat-app/packrat/internal/kvstore"
)

type Store struct {
	kv kvstore.Adapter
}

func NewStore(kv kvstore.Adapter) *Store {
	return &Store{kv: kv}
}

// SaveState upserts the story's serialized state, overwriting in place.
// No history is kept.
func (s *Store) SaveState(ctx context.Context, storyID, stateJSON string) error {
	if storyID == "" {
		return fmt.Errorf("story id is required: %w", domain.ErrInvalidKey)
	}
	record := domain.NarrativeState{
		StoryID:   storyID,
		StateJSON: stateJSON,
		UpdatedAt: time.Now(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	_, err = s.kv.Put(ctx, kvstore.InkState, data, "")
	return err
}

// GetState returns the saved state, or nil when the story has none.
func (s *Store) GetState(ctx context.Context, storyID string) (*domain.NarrativeState, error) {
	data, err := s.kv.Get(ctx, kvstore.InkState, storyID)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	var record domain.NarrativeState
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("malformed narrative state for %q: %w", storyID, err)
	}
	return &record, nil
}

// ClearState deletes the story's saved state. Clearing an absent story is
// a no-op.
func (s *Store) ClearState(ctx context.Context, storyID string) error {
	return s.kv.Delete(ctx, kvstore.InkState, storyID)
}

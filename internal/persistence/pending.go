package persistence

import (
	"context"

	"github.com/Dastari/sidereal-v3/internal/game"
)

// PendingState tracks the replication server's in-flight persistence work:
// the set of entity ids known to exist and the dirty updates awaiting the
// next flush. Failed flushes leave the pending map intact for retry.
type PendingState struct {
	Known   map[string]struct{}
	Pending map[string]game.WorldDeltaEntity
}

// NewPendingState creates empty pending state
func NewPendingState() *PendingState {
	return &PendingState{
		Known:   make(map[string]struct{}),
		Pending: make(map[string]game.WorldDeltaEntity),
	}
}

// HydrateKnownEntityIDs seeds the known-entity cache from the graph store
func (p *PendingState) HydrateKnownEntityIDs(ctx context.Context, store *Store) error {
	records, err := store.LoadGraphRecords(ctx)
	if err != nil {
		return err
	}
	for _, record := range records {
		p.Known[record.EntityID] = struct{}{}
	}
	return nil
}

// IngestWorldDelta folds a tick's delta into the pending map, maintaining
// the known-entity cache. Returns true when the delta contained removals,
// which force the next flush.
func (p *PendingState) IngestWorldDelta(delta game.WorldStateDelta) bool {
	hasRemovals := false
	for _, update := range delta.Updates {
		if update.Removed {
			delete(p.Known, update.EntityID)
			hasRemovals = true
		} else {
			p.Known[update.EntityID] = struct{}{}
		}
		p.Pending[update.EntityID] = update
	}
	return hasRemovals
}

// Flush drains the pending updates into a single persistence call. On error
// the pending map is left intact for the next attempt.
func (p *PendingState) Flush(ctx context.Context, store *Store, tick uint64) (int, error) {
	if len(p.Pending) == 0 {
		return 0, nil
	}
	batch := make([]game.WorldDeltaEntity, 0, len(p.Pending))
	for _, update := range p.Pending {
		batch = append(batch, update)
	}
	if err := store.PersistWorldDelta(ctx, batch, tick); err != nil {
		return 0, err
	}
	p.Pending = make(map[string]game.WorldDeltaEntity)
	return len(batch), nil
}

// KnownCount returns the size of the known-entity cache
func (p *PendingState) KnownCount() int {
	return len(p.Known)
}

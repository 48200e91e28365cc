// Package persistence owns the durable world: a labeled property graph kept
// in PostgreSQL as entity, component, and edge tables, plus the snapshot
// marker log. It is written only by the replication server; the gateway
// writes starter-world records through the bootstrap path.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"github.com/tidwall/gjson"

	"github.com/Dastari/sidereal-v3/internal/game"
)

// Edge kinds derived from canonical properties on every upsert
const (
	EdgeHasChild     = "HAS_CHILD"
	EdgeHasHardpoint = "HAS_HARDPOINT"
	EdgeMountedOn    = "MOUNTED_ON"
)

// GraphEntityRecord is one hydrated entity: labels, property bag, and
// attached components.
type GraphEntityRecord struct {
	EntityID   string
	Labels     []string
	Properties map[string]json.RawMessage
	Components []game.WorldComponentDelta
}

// Store is the PostgreSQL-backed graph store
type Store struct {
	db *sql.DB
}

// NewStore creates a graph store over an open database handle
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the graph and auxiliary tables. Idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS graph_entities (
            entity_id TEXT PRIMARY KEY,
            labels TEXT[] NOT NULL DEFAULT '{}',
            properties JSONB NOT NULL DEFAULT '{}'::jsonb,
            updated_tick BIGINT NOT NULL DEFAULT 0
        );

        CREATE TABLE IF NOT EXISTS graph_components (
            component_id TEXT PRIMARY KEY,
            entity_id TEXT NOT NULL REFERENCES graph_entities(entity_id) ON DELETE CASCADE,
            component_kind TEXT NOT NULL,
            properties JSONB NOT NULL DEFAULT '{}'::jsonb
        );
        CREATE INDEX IF NOT EXISTS graph_components_entity_idx ON graph_components(entity_id);

        CREATE TABLE IF NOT EXISTS graph_edges (
            src_entity_id TEXT NOT NULL,
            dst_entity_id TEXT NOT NULL,
            edge_kind TEXT NOT NULL,
            PRIMARY KEY (src_entity_id, dst_entity_id, edge_kind)
        );

        CREATE TABLE IF NOT EXISTS replication_snapshot_markers (
            marker_id BIGSERIAL PRIMARY KEY,
            snapshot_tick BIGINT NOT NULL,
            entity_count BIGINT NOT NULL,
            created_at_epoch_s BIGINT NOT NULL
        );
    `)
	if err != nil {
		return fmt.Errorf("ensure graph schema: %w", err)
	}
	return nil
}

// PersistWorldDelta applies one batch of world-delta updates: non-removed
// entities are upserted (labels merged, properties merged with null
// tombstones stripped, stale components detached, edges recomputed), then
// removed entities are detached with their components. The batch is atomic.
func (s *Store) PersistWorldDelta(ctx context.Context, updates []game.WorldDeltaEntity, tick uint64) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin world delta tx: %w", err)
	}
	defer tx.Rollback()

	var removedIDs []string
	for _, update := range updates {
		if update.Removed {
			removedIDs = append(removedIDs, update.EntityID)
			continue
		}
		if err := upsertEntity(ctx, tx, update, tick); err != nil {
			return err
		}
	}

	if len(removedIDs) > 0 {
		if err := detachEntities(ctx, tx, removedIDs); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit world delta tx: %w", err)
	}
	return nil
}

// PersistGraphRecords writes graph records through PersistWorldDelta:
// records are written as non-removed updates.
func (s *Store) PersistGraphRecords(ctx context.Context, records []GraphEntityRecord, tick uint64) error {
	updates := make([]game.WorldDeltaEntity, 0, len(records))
	for _, record := range records {
		updates = append(updates, game.WorldDeltaEntity{
			EntityID:   record.EntityID,
			Labels:     record.Labels,
			Properties: record.Properties,
			Components: record.Components,
		})
	}
	return s.PersistWorldDelta(ctx, updates, tick)
}

// LoadGraphRecords hydrates every entity with its labels, property bag, and
// attached components.
func (s *Store) LoadGraphRecords(ctx context.Context) ([]GraphEntityRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT entity_id, labels, properties
        FROM graph_entities
        ORDER BY entity_id
    `)
	if err != nil {
		return nil, fmt.Errorf("load graph entities: %w", err)
	}
	defer rows.Close()

	var records []GraphEntityRecord
	index := make(map[string]int)
	for rows.Next() {
		var (
			record   GraphEntityRecord
			labels   pq.StringArray
			propsRaw []byte
		)
		if err := rows.Scan(&record.EntityID, &labels, &propsRaw); err != nil {
			return nil, fmt.Errorf("scan graph entity: %w", err)
		}
		record.Labels = []string(labels)
		if len(propsRaw) > 0 {
			if err := json.Unmarshal(propsRaw, &record.Properties); err != nil {
				return nil, fmt.Errorf("decode properties for %s: %w", record.EntityID, err)
			}
		}
		if record.Properties == nil {
			record.Properties = map[string]json.RawMessage{}
		}
		index[record.EntityID] = len(records)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	componentRows, err := s.db.QueryContext(ctx, `
        SELECT component_id, entity_id, component_kind, properties
        FROM graph_components
        ORDER BY component_id
    `)
	if err != nil {
		return nil, fmt.Errorf("load graph components: %w", err)
	}
	defer componentRows.Close()

	for componentRows.Next() {
		var (
			comp     game.WorldComponentDelta
			entityID string
			propsRaw []byte
		)
		if err := componentRows.Scan(&comp.ComponentID, &entityID, &comp.ComponentKind, &propsRaw); err != nil {
			return nil, fmt.Errorf("scan graph component: %w", err)
		}
		comp.Properties = json.RawMessage(propsRaw)
		if i, ok := index[entityID]; ok {
			records[i].Components = append(records[i].Components, comp)
		}
	}
	return records, componentRows.Err()
}

// PersistSnapshotMarker appends a progress marker for a flush interval
func (s *Store) PersistSnapshotMarker(ctx context.Context, tick uint64, entityCount int, nowEpochS int64) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO replication_snapshot_markers (snapshot_tick, entity_count, created_at_epoch_s)
        VALUES ($1, $2, $3)
    `, int64(tick), entityCount, nowEpochS)
	if err != nil {
		return fmt.Errorf("persist snapshot marker: %w", err)
	}
	return nil
}

func upsertEntity(ctx context.Context, tx *sql.Tx, update game.WorldDeltaEntity, tick uint64) error {
	labels := mergeEntityLabel(update.Labels)
	propsJSON, err := json.Marshal(nonNilProperties(update.Properties))
	if err != nil {
		return fmt.Errorf("encode properties for %s: %w", update.EntityID, err)
	}

	// Properties merge by assignment: absent keys keep their previous value,
	// explicit nulls tombstone. Labels accumulate; Entity is never lost.
	var mergedProps []byte
	err = tx.QueryRowContext(ctx, `
        INSERT INTO graph_entities (entity_id, labels, properties, updated_tick)
        VALUES ($1, $2, jsonb_strip_nulls($3::jsonb), $4)
        ON CONFLICT (entity_id) DO UPDATE SET
            labels = (SELECT ARRAY(SELECT DISTINCT unnest(graph_entities.labels || EXCLUDED.labels))),
            properties = jsonb_strip_nulls(graph_entities.properties || $3::jsonb),
            updated_tick = EXCLUDED.updated_tick
        RETURNING properties
    `, update.EntityID, pq.Array(labels), propsJSON, int64(tick)).Scan(&mergedProps)
	if err != nil {
		return fmt.Errorf("upsert entity %s: %w", update.EntityID, err)
	}

	componentIDs := make([]string, 0, len(update.Components))
	for _, comp := range update.Components {
		componentIDs = append(componentIDs, comp.ComponentID)
		compProps := comp.Properties
		if len(compProps) == 0 {
			compProps = json.RawMessage("{}")
		}
		_, err := tx.ExecContext(ctx, `
            INSERT INTO graph_components (component_id, entity_id, component_kind, properties)
            VALUES ($1, $2, $3, $4::jsonb)
            ON CONFLICT (component_id) DO UPDATE SET
                component_kind = EXCLUDED.component_kind,
                properties = EXCLUDED.properties
        `, comp.ComponentID, update.EntityID, comp.ComponentKind, []byte(compProps))
		if err != nil {
			return fmt.Errorf("upsert component %s: %w", comp.ComponentID, err)
		}
	}

	// The persisted component set equals the set last reported: stale
	// components are pruned.
	_, err = tx.ExecContext(ctx, `
        DELETE FROM graph_components
        WHERE entity_id = $1 AND component_id != ALL($2)
    `, update.EntityID, pq.Array(componentIDs))
	if err != nil {
		return fmt.Errorf("prune components for %s: %w", update.EntityID, err)
	}

	return recomputeEdges(ctx, tx, update.EntityID, labels, mergedProps)
}

// recomputeEdges derives HAS_CHILD, HAS_HARDPOINT, and MOUNTED_ON from the
// authoritative merged property bag. The in-memory scene hierarchy is
// rebuilt from the same keys on hydration.
func recomputeEdges(ctx context.Context, tx *sql.Tx, entityID string, labels []string, mergedProps []byte) error {
	_, err := tx.ExecContext(ctx, `
        DELETE FROM graph_edges
        WHERE (dst_entity_id = $1 AND edge_kind IN ($2, $3))
           OR (src_entity_id = $1 AND edge_kind = $4)
    `, entityID, EdgeHasChild, EdgeHasHardpoint, EdgeMountedOn)
	if err != nil {
		return fmt.Errorf("clear edges for %s: %w", entityID, err)
	}

	insert := func(src, dst, kind string) error {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO graph_edges (src_entity_id, dst_entity_id, edge_kind)
            VALUES ($1, $2, $3)
            ON CONFLICT DO NOTHING
        `, src, dst, kind)
		if err != nil {
			return fmt.Errorf("insert %s edge for %s: %w", kind, entityID, err)
		}
		return nil
	}

	if parent := gjson.GetBytes(mergedProps, "parent_entity_id").String(); parent != "" {
		if err := insert(parent, entityID, EdgeHasChild); err != nil {
			return err
		}
	}
	if hasLabel(labels, "Hardpoint") {
		if owner := gjson.GetBytes(mergedProps, "owner_entity_id").String(); owner != "" {
			if err := insert(owner, entityID, EdgeHasHardpoint); err != nil {
				return err
			}
		}
	}
	if mounted := gjson.GetBytes(mergedProps, "mounted_on_entity_id").String(); mounted != "" {
		if err := insert(entityID, mounted, EdgeMountedOn); err != nil {
			return err
		}
	}
	return nil
}

func detachEntities(ctx context.Context, tx *sql.Tx, entityIDs []string) error {
	_, err := tx.ExecContext(ctx, `
        DELETE FROM graph_edges
        WHERE src_entity_id = ANY($1) OR dst_entity_id = ANY($1)
    `, pq.Array(entityIDs))
	if err != nil {
		return fmt.Errorf("detach edges: %w", err)
	}

	// Components cascade with the entity rows.
	_, err = tx.ExecContext(ctx, `
        DELETE FROM graph_entities WHERE entity_id = ANY($1)
    `, pq.Array(entityIDs))
	if err != nil {
		return fmt.Errorf("detach entities: %w", err)
	}
	return nil
}

func mergeEntityLabel(labels []string) []string {
	out := make([]string, 0, len(labels)+1)
	seen := map[string]bool{}
	for _, label := range append([]string{"Entity"}, labels...) {
		if !seen[label] {
			seen[label] = true
			out = append(out, label)
		}
	}
	return out
}

func nonNilProperties(props map[string]json.RawMessage) map[string]json.RawMessage {
	if props == nil {
		return map[string]json.RawMessage{}
	}
	return props
}

func hasLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

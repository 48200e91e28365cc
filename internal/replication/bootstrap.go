package replication

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	slerrors "github.com/Dastari/sidereal-v3/infrastructure/errors"
	"github.com/Dastari/sidereal-v3/internal/game"
)

// BootstrapKind is the only message kind accepted on the control socket's
// bootstrap path.
const BootstrapKind = "bootstrap_player"

// BootstrapWireMessage is the JSON datagram sent by the gateway
type BootstrapWireMessage struct {
	Kind           string `json:"kind"`
	AccountID      string `json:"account_id"`
	PlayerEntityID string `json:"player_entity_id"`
}

// BootstrapCommand is a validated bootstrap request
type BootstrapCommand struct {
	AccountID      uuid.UUID
	PlayerEntityID string
}

// ParseBootstrapCommand validates a wire message: known kind, a real account
// UUID, and player_entity_id exactly equal to "player:<account_uuid>".
func ParseBootstrapCommand(msg BootstrapWireMessage) (BootstrapCommand, error) {
	if msg.Kind != BootstrapKind {
		return BootstrapCommand{}, slerrors.Validation(fmt.Sprintf("unknown bootstrap kind: %s", msg.Kind))
	}
	accountID, err := uuid.Parse(msg.AccountID)
	if err != nil {
		return BootstrapCommand{}, slerrors.Validation("invalid account_id uuid")
	}
	if msg.PlayerEntityID != "player:"+accountID.String() {
		return BootstrapCommand{}, slerrors.Validation("player_entity_id must match player:<account_uuid>")
	}
	return BootstrapCommand{AccountID: accountID, PlayerEntityID: msg.PlayerEntityID}, nil
}

// BootstrapHandleResult reports one processed bootstrap payload
type BootstrapHandleResult struct {
	AccountID      uuid.UUID
	PlayerEntityID string
	Applied        bool
}

// BootstrapStore applies the at-most-once dedup for starter worlds
type BootstrapStore interface {
	EnsureSchema(ctx context.Context) error
	// ApplyBootstrapIfAbsent inserts the per-account dedup record and an
	// event row inside one transaction; returns whether this call won.
	ApplyBootstrapIfAbsent(ctx context.Context, cmd BootstrapCommand) (bool, error)
}

// BootstrapProcessor consumes bootstrap datagrams
type BootstrapProcessor struct {
	store BootstrapStore
}

// NewBootstrapProcessor ensures the dedup schema and returns a processor
func NewBootstrapProcessor(ctx context.Context, store BootstrapStore) (*BootstrapProcessor, error) {
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return &BootstrapProcessor{store: store}, nil
}

// HandlePayload decodes, validates, and applies one bootstrap datagram.
// Processing the same account twice yields applied=true then applied=false
// with exactly one dedup row.
func (p *BootstrapProcessor) HandlePayload(ctx context.Context, payload []byte) (BootstrapHandleResult, error) {
	var msg BootstrapWireMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return BootstrapHandleResult{}, slerrors.TransportDrop(err)
	}
	cmd, err := ParseBootstrapCommand(msg)
	if err != nil {
		return BootstrapHandleResult{}, err
	}
	applied, err := p.store.ApplyBootstrapIfAbsent(ctx, cmd)
	if err != nil {
		return BootstrapHandleResult{}, err
	}
	return BootstrapHandleResult{
		AccountID:      cmd.AccountID,
		PlayerEntityID: cmd.PlayerEntityID,
		Applied:        applied,
	}, nil
}

// PostgresBootstrapStore keeps the dedup table and event log in PostgreSQL
type PostgresBootstrapStore struct {
	db *sql.DB
}

// NewPostgresBootstrapStore wraps an open database handle
func NewPostgresBootstrapStore(db *sql.DB) *PostgresBootstrapStore {
	return &PostgresBootstrapStore{db: db}
}

// EnsureSchema creates the bootstrap dedup and event tables. Idempotent.
func (s *PostgresBootstrapStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS replication_player_bootstrap (
            account_id UUID PRIMARY KEY,
            player_entity_id TEXT NOT NULL,
            applied_at_epoch_s BIGINT NOT NULL
        );

        CREATE TABLE IF NOT EXISTS replication_bootstrap_events (
            event_id BIGSERIAL PRIMARY KEY,
            account_id UUID NOT NULL,
            player_entity_id TEXT NOT NULL,
            applied BOOLEAN NOT NULL,
            received_at_epoch_s BIGINT NOT NULL
        );
    `)
	if err != nil {
		return slerrors.DatabaseError("bootstrap schema ensure", err)
	}
	return nil
}

// ApplyBootstrapIfAbsent implements the at-most-once dedup: the primary key
// on account_id guarantees exactly one starter world per account across any
// number of wire retries.
func (s *PostgresBootstrapStore) ApplyBootstrapIfAbsent(ctx context.Context, cmd BootstrapCommand) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, slerrors.DatabaseError("bootstrap tx begin", err)
	}
	defer tx.Rollback()

	var inserted bool
	err = tx.QueryRowContext(ctx, `
        INSERT INTO replication_player_bootstrap (account_id, player_entity_id, applied_at_epoch_s)
        VALUES ($1, $2, EXTRACT(EPOCH FROM now())::bigint)
        ON CONFLICT (account_id) DO NOTHING
        RETURNING true
    `, cmd.AccountID, cmd.PlayerEntityID).Scan(&inserted)
	if err == sql.ErrNoRows {
		inserted = false
	} else if err != nil {
		return false, slerrors.DatabaseError("bootstrap dedup insert", err)
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO replication_bootstrap_events (account_id, player_entity_id, applied, received_at_epoch_s)
        VALUES ($1, $2, $3, EXTRACT(EPOCH FROM now())::bigint)
    `, cmd.AccountID, cmd.PlayerEntityID, inserted)
	if err != nil {
		return false, slerrors.DatabaseError("bootstrap event insert", err)
	}

	if err := tx.Commit(); err != nil {
		return false, slerrors.DatabaseError("bootstrap tx commit", err)
	}
	return inserted, nil
}

// InMemoryBootstrapStore is the test double for the dedup store
type InMemoryBootstrapStore struct {
	mu      sync.Mutex
	applied map[uuid.UUID]struct{}
	events  []BootstrapHandleResult
}

// NewInMemoryBootstrapStore creates an empty in-memory store
func NewInMemoryBootstrapStore() *InMemoryBootstrapStore {
	return &InMemoryBootstrapStore{applied: make(map[uuid.UUID]struct{})}
}

// EnsureSchema is a no-op
func (s *InMemoryBootstrapStore) EnsureSchema(context.Context) error { return nil }

// ApplyBootstrapIfAbsent records the account and reports first-application
func (s *InMemoryBootstrapStore) ApplyBootstrapIfAbsent(_ context.Context, cmd BootstrapCommand) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.applied[cmd.AccountID]
	if !exists {
		s.applied[cmd.AccountID] = struct{}{}
	}
	result := BootstrapHandleResult{
		AccountID:      cmd.AccountID,
		PlayerEntityID: cmd.PlayerEntityID,
		Applied:        !exists,
	}
	s.events = append(s.events, result)
	return !exists, nil
}

// Events returns every processed command in order
func (s *InMemoryBootstrapStore) Events() []BootstrapHandleResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]BootstrapHandleResult(nil), s.events...)
}

// StarterWorldForAccount synthesizes the starter-world graph records for a
// freshly bootstrapped account.
func StarterWorldForAccount(accountID uuid.UUID, playerEntityID string) game.WorldStateDelta {
	return game.StarterWorldRecords(game.CorvetteSpawnConfig{
		OwnerAccountID: accountID,
		PlayerEntityID: playerEntityID,
	})
}

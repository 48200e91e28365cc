package gateway

import (
	"context"
	"encoding/json"
	"net"
	"sync"

	"github.com/google/uuid"

	slerrors "github.com/Dastari/sidereal-v3/infrastructure/errors"
	"github.com/Dastari/sidereal-v3/internal/persistence"
	"github.com/Dastari/sidereal-v3/internal/replication"
)

// DirectBootstrapDispatcher materializes the starter world by writing graph
// records in-process through the persistence store.
type DirectBootstrapDispatcher struct {
	store *persistence.Store
}

// NewDirectBootstrapDispatcher wraps a graph store
func NewDirectBootstrapDispatcher(store *persistence.Store) *DirectBootstrapDispatcher {
	return &DirectBootstrapDispatcher{store: store}
}

// Dispatch writes the starter-world records for the account
func (d *DirectBootstrapDispatcher) Dispatch(ctx context.Context, cmd BootstrapCommand) error {
	if err := d.store.EnsureSchema(ctx); err != nil {
		return slerrors.Internal("bootstrap schema ensure failed", err)
	}
	starter := replication.StarterWorldForAccount(cmd.AccountID, cmd.PlayerEntityID)
	if err := d.store.PersistWorldDelta(ctx, starter.Updates, 0); err != nil {
		return slerrors.Internal("persist starter world failed", err)
	}
	return nil
}

// bootstrapWireMessage is the UDP payload shape; player_entity_id must
// exactly equal "player:" + account_id or the replication side rejects it.
type bootstrapWireMessage struct {
	Kind           string    `json:"kind"`
	AccountID      uuid.UUID `json:"account_id"`
	PlayerEntityID string    `json:"player_entity_id"`
}

// UDPBootstrapDispatcher sends the bootstrap command as a JSON datagram to
// the replication server's control socket. Delivery idempotence lives on
// the receiving side's dedup table.
type UDPBootstrapDispatcher struct {
	conn   *net.UDPConn
	target *net.UDPAddr
}

// NewUDPBootstrapDispatcher binds a local socket aimed at the replication
// control address.
func NewUDPBootstrapDispatcher(target string) (*UDPBootstrapDispatcher, error) {
	addr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return nil, slerrors.Config("invalid replication control UDP address: " + target)
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, slerrors.Internal("bootstrap udp bind failed", err)
	}
	return &UDPBootstrapDispatcher{conn: conn, target: addr}, nil
}

// Close releases the socket
func (d *UDPBootstrapDispatcher) Close() error {
	return d.conn.Close()
}

// Dispatch sends the bootstrap_player datagram
func (d *UDPBootstrapDispatcher) Dispatch(_ context.Context, cmd BootstrapCommand) error {
	payload, err := json.Marshal(bootstrapWireMessage{
		Kind:           replication.BootstrapKind,
		AccountID:      cmd.AccountID,
		PlayerEntityID: cmd.PlayerEntityID,
	})
	if err != nil {
		return slerrors.Internal("bootstrap serialize failed", err)
	}
	if _, err := d.conn.WriteToUDP(payload, d.target); err != nil {
		return slerrors.Internal("bootstrap send failed", err)
	}
	return nil
}

// NoopBootstrapDispatcher discards commands; used when no world backend is
// wired.
type NoopBootstrapDispatcher struct{}

// Dispatch does nothing
func (NoopBootstrapDispatcher) Dispatch(context.Context, BootstrapCommand) error { return nil }

// RecordingBootstrapDispatcher captures commands for tests
type RecordingBootstrapDispatcher struct {
	mu       sync.Mutex
	commands []BootstrapCommand
}

// Dispatch records the command
func (d *RecordingBootstrapDispatcher) Dispatch(_ context.Context, cmd BootstrapCommand) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands = append(d.commands, cmd)
	return nil
}

// Commands returns every dispatched command in order
func (d *RecordingBootstrapDispatcher) Commands() []BootstrapCommand {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]BootstrapCommand(nil), d.commands...)
}

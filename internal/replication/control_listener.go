package replication

import (
	"context"
	"net"

	"github.com/Dastari/sidereal-v3/infrastructure/logging"
	"github.com/Dastari/sidereal-v3/internal/persistence"
)

// ControlListener reads the bootstrap control socket on a dedicated
// goroutine and hands applied bootstraps to the simulation loop over the
// server's spawn channel. The socket carries bare JSON datagrams, not
// protocol envelopes.
type ControlListener struct {
	conn      *net.UDPConn
	processor *BootstrapProcessor
	store     *persistence.Store
	server    *Server
	log       *logging.Logger
}

// NewControlListener binds the control socket and prepares the bootstrap
// processor. store may be nil; applied bootstraps then spawn live only.
func NewControlListener(ctx context.Context, bind string, bootstrapStore BootstrapStore, graphStore *persistence.Store, server *Server, log *logging.Logger) (*ControlListener, error) {
	addr, err := net.ResolveUDPAddr("udp", bind)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	processor, err := NewBootstrapProcessor(ctx, bootstrapStore)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &ControlListener{
		conn:      conn,
		processor: processor,
		store:     graphStore,
		server:    server,
		log:       log,
	}, nil
}

// Addr returns the bound control socket address
func (l *ControlListener) Addr() *net.UDPAddr {
	return l.conn.LocalAddr().(*net.UDPAddr)
}

// Close shuts the control socket
func (l *ControlListener) Close() error {
	return l.conn.Close()
}

// Run blocks reading bootstrap datagrams until the socket closes. Each
// applied result synthesizes the starter world, persists it, and notifies
// the simulation loop to spawn the live entities.
func (l *ControlListener) Run(ctx context.Context) {
	l.log.WithField("bind", l.Addr().String()).Info("replication control listener started")
	buf := make([]byte, 8192)
	for {
		n, from, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
			default:
				l.log.WithError(err).Info("control listener stopped")
			}
			return
		}

		result, err := l.processor.HandlePayload(ctx, buf[:n])
		if err != nil {
			l.log.WithError(err).WithField("from", from.String()).
				Warn("rejected control message")
			continue
		}
		l.log.WithFields(map[string]interface{}{
			"from":             from.String(),
			"account_id":       result.AccountID.String(),
			"player_entity_id": result.PlayerEntityID,
			"applied":          result.Applied,
		}).Info("processed bootstrap")

		if !result.Applied {
			continue
		}
		starter := StarterWorldForAccount(result.AccountID, result.PlayerEntityID)
		if l.store != nil {
			if err := l.store.PersistWorldDelta(ctx, starter.Updates, 0); err != nil {
				// The dedup row remains; recovery is an operator step.
				l.log.WithError(err).WithField("account_id", result.AccountID.String()).
					Error("bootstrap world-init failed after dedup apply")
				continue
			}
		}
		l.server.SpawnStarterWorld(starter)
	}
}

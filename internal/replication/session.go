package replication

import (
	"net"
	"time"

	slerrors "github.com/Dastari/sidereal-v3/infrastructure/errors"
	"github.com/Dastari/sidereal-v3/internal/auth"
	"github.com/Dastari/sidereal-v3/internal/game"
	"github.com/Dastari/sidereal-v3/internal/netproto"
)

// sessionIdleTimeout is how long a session may stay silent before the
// transport is considered dropped and the session is torn down.
const sessionIdleTimeout = 30 * time.Second

// Session is the per-transport-session replication state
type Session struct {
	// ClientEntity is the opaque session handle
	ClientEntity uint64
	// RemoteID is the transport peer identifier used for addressing
	RemoteID string
	// Remote is the resolved delivery address
	Remote *net.UDPAddr
	// BoundPlayerEntityID is empty until successful auth, then immutable
	BoundPlayerEntityID string
	// VisibleEntities is the set of ids the client was last told about
	VisibleEntities map[string]struct{}
	// FocusPosition is the controlled entity's authoritative position
	FocusPosition *game.Vec3
	// ViewRangeM is the delivery culling radius
	ViewRangeM float64
	// LastSeen is the arrival time of the most recent datagram
	LastSeen time.Time
}

// Authenticated reports whether the session completed auth
func (s *Session) Authenticated() bool {
	return s.BoundPlayerEntityID != ""
}

// SessionTable tracks all transport sessions keyed by remote id
type SessionTable struct {
	byRemote   map[string]*Session
	nextHandle uint64
}

// NewSessionTable creates an empty session table
func NewSessionTable() *SessionTable {
	return &SessionTable{byRemote: make(map[string]*Session)}
}

// Ensure returns the session for a remote, creating it on first contact
func (t *SessionTable) Ensure(remote *net.UDPAddr, now time.Time) *Session {
	remoteID := remote.String()
	if session, ok := t.byRemote[remoteID]; ok {
		session.LastSeen = now
		return session
	}
	t.nextHandle++
	session := &Session{
		ClientEntity:    t.nextHandle,
		RemoteID:        remoteID,
		Remote:          remote,
		VisibleEntities: make(map[string]struct{}),
		ViewRangeM:      game.DefaultViewRangeM,
		LastSeen:        now,
	}
	t.byRemote[remoteID] = session
	return session
}

// Get returns the session for a remote id
func (t *SessionTable) Get(remoteID string) (*Session, bool) {
	session, ok := t.byRemote[remoteID]
	return session, ok
}

// All returns every live session
func (t *SessionTable) All() []*Session {
	out := make([]*Session, 0, len(t.byRemote))
	for _, session := range t.byRemote {
		out = append(out, session)
	}
	return out
}

// Len returns the number of live sessions
func (t *SessionTable) Len() int {
	return len(t.byRemote)
}

// Remove tears down a session; all per-session state goes with it
func (t *SessionTable) Remove(remoteID string) {
	delete(t.byRemote, remoteID)
}

// PruneIdle removes sessions whose transport has gone silent, returning the
// removed sessions.
func (t *SessionTable) PruneIdle(now time.Time) []*Session {
	var removed []*Session
	for remoteID, session := range t.byRemote {
		if now.Sub(session.LastSeen) > sessionIdleTimeout {
			removed = append(removed, session)
			delete(t.byRemote, remoteID)
		}
	}
	return removed
}

// BindSession performs the control-channel auth handshake for a session:
// verify the access token against the shared secret, require the embedded
// player id to match the claimed one, and enforce one binding per remote id.
// All failures are fail-closed.
func BindSession(session *Session, msg netproto.ControlAuthMessage, jwtSecret []byte) error {
	claims, err := auth.DecodeAccessToken(jwtSecret, msg.AccessToken)
	if err != nil {
		return err
	}
	if claims.PlayerEntityID != msg.PlayerEntityID {
		return slerrors.Unauthorized("access token subject does not match claimed player")
	}
	if session.Authenticated() && session.BoundPlayerEntityID != msg.PlayerEntityID {
		return slerrors.Unauthorized("session already bound to another player")
	}
	session.BoundPlayerEntityID = msg.PlayerEntityID
	return nil
}

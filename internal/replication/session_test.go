package replication

import (
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dastari/sidereal-v3/internal/auth"
	"github.com/Dastari/sidereal-v3/internal/netproto"
)

var sessionSecret = []byte("0123456789abcdef0123456789abcdef")

func sessionRemote(port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
}

func issueToken(t *testing.T, accountID uuid.UUID) (string, string) {
	t.Helper()
	playerID := auth.PlayerEntityIDFor(accountID)
	token, err := auth.EncodeAccessToken(sessionSecret, accountID, playerID, time.Minute, time.Now())
	require.NoError(t, err)
	return token, playerID
}

func TestBindSession_Success(t *testing.T) {
	table := NewSessionTable()
	session := table.Ensure(sessionRemote(4000), time.Now())
	token, playerID := issueToken(t, uuid.New())

	err := BindSession(session, netproto.ControlAuthMessage{
		PlayerEntityID: playerID,
		AccessToken:    token,
	}, sessionSecret)

	require.NoError(t, err)
	assert.True(t, session.Authenticated())
	assert.Equal(t, playerID, session.BoundPlayerEntityID)
}

func TestBindSession_RejectsSubjectMismatch(t *testing.T) {
	table := NewSessionTable()
	session := table.Ensure(sessionRemote(4001), time.Now())
	token, _ := issueToken(t, uuid.New())

	err := BindSession(session, netproto.ControlAuthMessage{
		PlayerEntityID: "player:" + uuid.NewString(),
		AccessToken:    token,
	}, sessionSecret)

	require.Error(t, err)
	assert.False(t, session.Authenticated(), "fail-closed")
}

func TestBindSession_RejectsBadToken(t *testing.T) {
	table := NewSessionTable()
	session := table.Ensure(sessionRemote(4002), time.Now())

	err := BindSession(session, netproto.ControlAuthMessage{
		PlayerEntityID: "player:" + uuid.NewString(),
		AccessToken:    "garbage",
	}, sessionSecret)

	require.Error(t, err)
	assert.False(t, session.Authenticated())
}

func TestBindSession_OneBindingPerRemote(t *testing.T) {
	table := NewSessionTable()
	session := table.Ensure(sessionRemote(4003), time.Now())

	tokenA, playerA := issueToken(t, uuid.New())
	require.NoError(t, BindSession(session, netproto.ControlAuthMessage{
		PlayerEntityID: playerA,
		AccessToken:    tokenA,
	}, sessionSecret))

	// A second bind for a different player on the same remote is rejected,
	// not silently honored.
	tokenB, playerB := issueToken(t, uuid.New())
	err := BindSession(session, netproto.ControlAuthMessage{
		PlayerEntityID: playerB,
		AccessToken:    tokenB,
	}, sessionSecret)
	require.Error(t, err)
	assert.Equal(t, playerA, session.BoundPlayerEntityID, "binding is immutable for the session")

	// Rebinding the same player is idempotent.
	require.NoError(t, BindSession(session, netproto.ControlAuthMessage{
		PlayerEntityID: playerA,
		AccessToken:    tokenA,
	}, sessionSecret))
}

func TestSessionTable_EnsureReusesByRemote(t *testing.T) {
	table := NewSessionTable()
	now := time.Now()

	first := table.Ensure(sessionRemote(4004), now)
	second := table.Ensure(sessionRemote(4004), now.Add(time.Second))
	assert.Same(t, first, second)
	assert.Equal(t, 1, table.Len())
	assert.Equal(t, now.Add(time.Second), second.LastSeen)

	third := table.Ensure(sessionRemote(4005), now)
	assert.NotSame(t, first, third)
	assert.NotEqual(t, first.ClientEntity, third.ClientEntity)
}

func TestSessionTable_PruneIdleTearsDownState(t *testing.T) {
	table := NewSessionTable()
	now := time.Now()
	session := table.Ensure(sessionRemote(4006), now)
	session.VisibleEntities["ship:1"] = struct{}{}

	removed := table.PruneIdle(now.Add(sessionIdleTimeout + time.Second))
	require.Len(t, removed, 1)
	assert.Equal(t, 0, table.Len())

	_, ok := table.Get(session.RemoteID)
	assert.False(t, ok)
}

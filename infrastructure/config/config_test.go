package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadGateway_Defaults(t *testing.T) {
	t.Setenv("GATEWAY_JWT_SECRET", testSecret)

	cfg, err := LoadGateway()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Bind)
	assert.Equal(t, "direct", cfg.BootstrapMode)
	assert.Equal(t, uint64(900), cfg.AccessTokenTTLS)
	assert.Equal(t, uint64(2_592_000), cfg.RefreshTokenTTLS)
	assert.Equal(t, uint64(3_600), cfg.ResetTokenTTLS)
}

func TestLoadGateway_RejectsShortSecret(t *testing.T) {
	t.Setenv("GATEWAY_JWT_SECRET", "too-short")

	_, err := LoadGateway()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GATEWAY_JWT_SECRET")
}

func TestLoadGateway_RejectsBadBootstrapMode(t *testing.T) {
	t.Setenv("GATEWAY_JWT_SECRET", testSecret)
	t.Setenv("GATEWAY_BOOTSTRAP_MODE", "carrier-pigeon")

	_, err := LoadGateway()
	require.Error(t, err)
}

func TestLoadGateway_RejectsBadTTL(t *testing.T) {
	t.Setenv("GATEWAY_JWT_SECRET", testSecret)
	t.Setenv("GATEWAY_ACCESS_TOKEN_TTL_S", "not-a-number")

	_, err := LoadGateway()
	require.Error(t, err)
}

func TestLoadReplication_Defaults(t *testing.T) {
	t.Setenv("GATEWAY_JWT_SECRET", testSecret)

	cfg, err := LoadReplication()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:7001", cfg.UDPBind)
	assert.Equal(t, "127.0.0.1:9004", cfg.ControlUDPBind)
	assert.InDelta(t, 30.0, cfg.TickHz, 1e-9)
	assert.Equal(t, "15s", cfg.PersistInterval.String())
	assert.Equal(t, "15s", cfg.SnapshotInterval.String())
}

func TestLoadReplication_VisibilityOverride(t *testing.T) {
	t.Setenv("GATEWAY_JWT_SECRET", testSecret)
	t.Setenv("REPLICATION_VISIBILITY_MODE", "NONE")

	cfg, err := LoadReplication()
	require.NoError(t, err)
	assert.Equal(t, "none", cfg.VisibilityMode)
}

func TestLoadReplication_RejectsBadBind(t *testing.T) {
	t.Setenv("GATEWAY_JWT_SECRET", testSecret)
	t.Setenv("REPLICATION_UDP_BIND", "not-an-addr:::")

	_, err := LoadReplication()
	require.Error(t, err)
}

func TestLoadClient_Defaults(t *testing.T) {
	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7001", cfg.ServerAddr)
	assert.InDelta(t, 30.0, cfg.TickHz, 1e-9)
	assert.InDelta(t, 60.0, cfg.RenderHz, 1e-9)
}

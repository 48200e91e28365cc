package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dastari/sidereal-v3/infrastructure/logging"
	"github.com/Dastari/sidereal-v3/infrastructure/metrics"
	"github.com/Dastari/sidereal-v3/internal/persistence"
	"github.com/Dastari/sidereal-v3/internal/replication"
)

// memoryWorld implements WorldReader over starter records produced by the
// recording dispatcher, standing in for the graph store.
type memoryWorld struct {
	records []persistence.GraphEntityRecord
}

func (w *memoryWorld) LoadGraphRecords(context.Context) ([]persistence.GraphEntityRecord, error) {
	return w.records, nil
}

func (w *memoryWorld) bootstrap(cmd BootstrapCommand) {
	starter := replication.StarterWorldForAccount(cmd.AccountID, cmd.PlayerEntityID)
	for _, update := range starter.Updates {
		w.records = append(w.records, persistence.GraphEntityRecord{
			EntityID:   update.EntityID,
			Labels:     update.Labels,
			Properties: update.Properties,
			Components: update.Components,
		})
	}
}

type worldBootstrapDispatcher struct {
	world *memoryWorld
	count int
}

func (d *worldBootstrapDispatcher) Dispatch(_ context.Context, cmd BootstrapCommand) error {
	d.world.bootstrap(cmd)
	d.count++
	return nil
}

type apiHarness struct {
	server     *httptest.Server
	dispatcher *worldBootstrapDispatcher
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	log := logging.New("gateway-test", "panic", "text")
	world := &memoryWorld{}
	dispatcher := &worldBootstrapDispatcher{world: world}
	service := NewService(ServiceConfig{
		JWTSecret:        []byte("0123456789abcdef0123456789abcdef"),
		AccessTokenTTLS:  900,
		RefreshTokenTTLS: 3600,
		ResetTokenTTLS:   900,
	}, NewMemoryStore(), dispatcher, log)

	m := metrics.NewWithRegistry("gateway-test", prometheus.NewRegistry())
	api := NewAPI(service, world, log, m, APIConfig{RateLimitRPS: 10000, RateLimitBurst: 10000})

	server := httptest.NewServer(api.Router())
	t.Cleanup(server.Close)
	return &apiHarness{server: server, dispatcher: dispatcher}
}

func (h *apiHarness) post(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(h.server.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func (h *apiHarness) get(t *testing.T, path, bearer string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, h.server.URL+path, nil)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestHealth(t *testing.T) {
	h := newAPIHarness(t)
	resp := h.get(t, "/health", "")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegisterThenWorldSnapshot(t *testing.T) {
	h := newAPIHarness(t)

	resp := h.post(t, "/auth/register", map[string]string{
		"email":    "pilot@example.com",
		"password": "very-strong-password",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tokens AuthTokens
	decodeBody(t, resp, &tokens)
	require.NotEmpty(t, tokens.AccessToken)

	resp = h.get(t, "/world/me", tokens.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var world WorldMeResponse
	decodeBody(t, resp, &world)

	assert.Equal(t, "corvette_01", world.ModelAssetID)
	assert.Equal(t, "starfield_wgsl", world.StarfieldShaderAssetID)
	assert.True(t, len(world.ShipEntityID) > 5 && world.ShipEntityID[:5] == "ship:")
	require.NotEmpty(t, world.Assets)
	assetIDs := map[string]bool{}
	for _, asset := range world.Assets {
		assetIDs[asset.AssetID] = true
	}
	assert.True(t, assetIDs["corvette_01_gltf"])
	assert.True(t, assetIDs["starfield_wgsl"])
}

func TestLoginDoesNotBootstrapAgain(t *testing.T) {
	h := newAPIHarness(t)

	resp := h.post(t, "/auth/register", map[string]string{
		"email":    "pilot@example.com",
		"password": "very-strong-password",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = h.post(t, "/auth/login", map[string]string{
		"email":    "pilot@example.com",
		"password": "very-strong-password",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	assert.Equal(t, 1, h.dispatcher.count, "bootstrap dedup count stays at 1")
}

func TestDuplicateRegistrationConflicts(t *testing.T) {
	h := newAPIHarness(t)

	resp := h.post(t, "/auth/register", map[string]string{
		"email":    "pilot@example.com",
		"password": "very-strong-password",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = h.post(t, "/auth/register", map[string]string{
		"email":    "pilot@example.com",
		"password": "other-strong-password",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, 1, h.dispatcher.count)
}

func TestRegisterValidationStatuses(t *testing.T) {
	h := newAPIHarness(t)

	resp := h.post(t, "/auth/register", map[string]string{
		"email":    "pilot@example.com",
		"password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = h.post(t, "/auth/register", map[string]string{
		"email":    "not-an-email",
		"password": "very-strong-password",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestLoginFailureIs401(t *testing.T) {
	h := newAPIHarness(t)
	resp := h.post(t, "/auth/login", map[string]string{
		"email":    "ghost@example.com",
		"password": "whatever-password",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestPasswordResetEndToEnd(t *testing.T) {
	h := newAPIHarness(t)

	resp := h.post(t, "/auth/register", map[string]string{
		"email":    "pilot@example.com",
		"password": "very-strong-password",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = h.post(t, "/auth/password-reset/request", map[string]string{"email": "pilot@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var reset struct {
		Accepted   bool   `json:"accepted"`
		ResetToken string `json:"reset_token"`
	}
	decodeBody(t, resp, &reset)
	require.True(t, reset.Accepted)
	require.NotEmpty(t, reset.ResetToken)

	resp = h.post(t, "/auth/password-reset/confirm", map[string]string{
		"reset_token":  reset.ResetToken,
		"new_password": "new-very-strong-password",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = h.post(t, "/auth/login", map[string]string{
		"email":    "pilot@example.com",
		"password": "very-strong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "old password rejected")
	resp.Body.Close()

	resp = h.post(t, "/auth/login", map[string]string{
		"email":    "pilot@example.com",
		"password": "new-very-strong-password",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode, "new password accepted")
	resp.Body.Close()
}

func TestRefreshEndpoint(t *testing.T) {
	h := newAPIHarness(t)

	resp := h.post(t, "/auth/register", map[string]string{
		"email":    "pilot@example.com",
		"password": "very-strong-password",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tokens AuthTokens
	decodeBody(t, resp, &tokens)

	resp = h.post(t, "/auth/refresh", map[string]string{"refresh_token": tokens.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = h.post(t, "/auth/refresh", map[string]string{"refresh_token": tokens.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "rotation invalidates the old token")
	resp.Body.Close()
}

func TestAuthMeRequiresBearer(t *testing.T) {
	h := newAPIHarness(t)

	resp := h.get(t, "/auth/me", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = h.get(t, "/world/me", "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestAuthMe(t *testing.T) {
	h := newAPIHarness(t)

	resp := h.post(t, "/auth/register", map[string]string{
		"email":    "pilot@example.com",
		"password": "very-strong-password",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tokens AuthTokens
	decodeBody(t, resp, &tokens)

	resp = h.get(t, "/auth/me", tokens.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me struct {
		AccountID      string `json:"account_id"`
		Email          string `json:"email"`
		PlayerEntityID string `json:"player_entity_id"`
	}
	decodeBody(t, resp, &me)
	assert.Equal(t, "pilot@example.com", me.Email)
	accountID, err := uuid.Parse(me.AccountID)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("player:%s", accountID), me.PlayerEntityID)
}

func TestUnknownAssetIs404(t *testing.T) {
	h := newAPIHarness(t)

	resp := h.post(t, "/auth/register", map[string]string{
		"email":    "pilot@example.com",
		"password": "very-strong-password",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tokens AuthTokens
	decodeBody(t, resp, &tokens)

	resp = h.get(t, "/assets/stream/warp_core_schematic", tokens.AccessToken)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

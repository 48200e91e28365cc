package replication

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	slerrors "github.com/Dastari/sidereal-v3/infrastructure/errors"
)

func bootstrapPayload(accountID uuid.UUID) []byte {
	return []byte(fmt.Sprintf(
		`{"kind":"bootstrap_player","account_id":"%s","player_entity_id":"player:%s"}`,
		accountID, accountID,
	))
}

func TestBootstrapProcessor_IdempotentPerAccount(t *testing.T) {
	store := NewInMemoryBootstrapStore()
	processor, err := NewBootstrapProcessor(context.Background(), store)
	require.NoError(t, err)
	accountID := uuid.New()

	first, err := processor.HandlePayload(context.Background(), bootstrapPayload(accountID))
	require.NoError(t, err)
	second, err := processor.HandlePayload(context.Background(), bootstrapPayload(accountID))
	require.NoError(t, err)

	assert.True(t, first.Applied)
	assert.False(t, second.Applied)
	assert.Equal(t, accountID, first.AccountID)
	assert.Equal(t, "player:"+accountID.String(), first.PlayerEntityID)
	assert.Len(t, store.Events(), 2, "every payload leaves an event row")
}

func TestBootstrapProcessor_RejectsInvalidPlayerMapping(t *testing.T) {
	store := NewInMemoryBootstrapStore()
	processor, err := NewBootstrapProcessor(context.Background(), store)
	require.NoError(t, err)

	payload := []byte(fmt.Sprintf(
		`{"kind":"bootstrap_player","account_id":"%s","player_entity_id":"player:wrong"}`,
		uuid.New(),
	))
	_, err = processor.HandlePayload(context.Background(), payload)
	require.Error(t, err)
	assert.True(t, slerrors.IsCode(err, slerrors.ErrCodeInvalidInput))
	assert.Contains(t, err.Error(), "player_entity_id")
}

func TestBootstrapProcessor_RejectsUnknownKind(t *testing.T) {
	store := NewInMemoryBootstrapStore()
	processor, err := NewBootstrapProcessor(context.Background(), store)
	require.NoError(t, err)

	accountID := uuid.New()
	payload := []byte(fmt.Sprintf(
		`{"kind":"bootstrap_fleet","account_id":"%s","player_entity_id":"player:%s"}`,
		accountID, accountID,
	))
	_, err = processor.HandlePayload(context.Background(), payload)
	require.Error(t, err)
}

func TestBootstrapProcessor_RejectsInvalidUUID(t *testing.T) {
	store := NewInMemoryBootstrapStore()
	processor, err := NewBootstrapProcessor(context.Background(), store)
	require.NoError(t, err)

	payload := []byte(`{"kind":"bootstrap_player","account_id":"not-a-uuid","player_entity_id":"player:not-a-uuid"}`)
	_, err = processor.HandlePayload(context.Background(), payload)
	require.Error(t, err)
}

func TestBootstrapProcessor_MalformedPayloadIsTransportDrop(t *testing.T) {
	store := NewInMemoryBootstrapStore()
	processor, err := NewBootstrapProcessor(context.Background(), store)
	require.NoError(t, err)

	_, err = processor.HandlePayload(context.Background(), []byte("{malformed"))
	require.Error(t, err)
	assert.True(t, slerrors.IsCode(err, slerrors.ErrCodeTransportDrop))
	assert.Empty(t, store.Events(), "nothing is mutated")
}

func TestStarterWorldForAccount(t *testing.T) {
	accountID := uuid.New()
	playerID := "player:" + accountID.String()

	world := StarterWorldForAccount(accountID, playerID)

	require.NotEmpty(t, world.Updates)
	var shipCount int
	for _, update := range world.Updates {
		for _, label := range update.Labels {
			if label == "Ship" {
				shipCount++
				var owner string
				require.True(t, update.Property("player_entity_id", &owner))
				assert.Equal(t, playerID, owner)
			}
		}
	}
	assert.Equal(t, 1, shipCount, "exactly one starter ship")
}

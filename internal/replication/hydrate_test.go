package replication

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dastari/sidereal-v3/infrastructure/logging"
	"github.com/Dastari/sidereal-v3/internal/game"
	"github.com/Dastari/sidereal-v3/internal/persistence"
	"github.com/Dastari/sidereal-v3/internal/physics"
)

func hydrateLogger() *logging.Logger {
	return logging.New("test", "panic", "text")
}

func recordsFromDelta(delta game.WorldStateDelta) []persistence.GraphEntityRecord {
	records := make([]persistence.GraphEntityRecord, 0, len(delta.Updates))
	for _, update := range delta.Updates {
		records = append(records, persistence.GraphEntityRecord{
			EntityID:   update.EntityID,
			Labels:     update.Labels,
			Properties: update.Properties,
			Components: update.Components,
		})
	}
	return records
}

func TestHydrateWorld_StarterWorldRoundTrip(t *testing.T) {
	accountID := uuid.New()
	starter := StarterWorldForAccount(accountID, "player:"+accountID.String())

	phys := physics.NewWorld()
	index := HydrateWorld(recordsFromDelta(starter), phys, hydrateLogger())

	// One hull with a physics body.
	assert.Equal(t, 1, phys.Len())
	ship, ok := index.ShipByPlayer["player:"+accountID.String()]
	require.True(t, ok, "ship indexed by owning player")
	assert.True(t, ship.IsShip)
	require.NotNil(t, ship.FlightComputer)
	require.NotNil(t, ship.Capabilities)

	// Modules resolved against the hull: computer + 2 engines + 2 tanks.
	modules := 0
	engines := 0
	for _, e := range index.Entities {
		if e.MountedOn != nil {
			modules++
		}
		if e.Engine != nil {
			engines++
		}
	}
	assert.Equal(t, 5, modules)
	assert.Equal(t, 2, engines)
}

func TestHydrateWorld_DropsModuleWithMissingParent(t *testing.T) {
	orphanGuid := uuid.New()
	mounted := game.MountedOn{ParentEntityID: uuid.New(), HardpointID: "engine_main"}
	payload, err := json.Marshal(mounted)
	require.NoError(t, err)

	records := []persistence.GraphEntityRecord{{
		EntityID: game.EntityID("engine", orphanGuid),
		Labels:   []string{"Entity", "Module"},
		Properties: map[string]json.RawMessage{
			"name": game.MustRaw("Orphan Engine"),
		},
		Components: []game.WorldComponentDelta{{
			ComponentID:   game.EntityID("engine", orphanGuid) + ":mounted_on",
			ComponentKind: game.KindMountedOn,
			Properties:    payload,
		}},
	}}

	index := HydrateWorld(records, physics.NewWorld(), hydrateLogger())
	_, exists := index.ByID[game.EntityID("engine", orphanGuid)]
	assert.False(t, exists, "orphaned module is dropped")
}

func TestHydrateWorld_ShipWithoutModulesGetsPropulsion(t *testing.T) {
	shipGuid := uuid.New()
	shipID := game.EntityID("ship", shipGuid)
	records := []persistence.GraphEntityRecord{{
		EntityID: shipID,
		Labels:   []string{"Entity", "Ship"},
		Properties: map[string]json.RawMessage{
			"player_entity_id": game.MustRaw("player:abc"),
			"position_m":       game.MustRaw(game.Vec3{X: 10}),
			"velocity_mps":     game.MustRaw(game.Vec3{}),
			"health":           game.MustRaw(80.0),
			"max_health":       game.MustRaw(100.0),
		},
	}}

	phys := physics.NewWorld()
	index := HydrateWorld(records, phys, hydrateLogger())

	ship := index.ByID[shipID]
	require.NotNil(t, ship)
	assert.Equal(t, game.Vec3{X: 10}, ship.Position)
	require.NotNil(t, ship.Health)
	assert.Equal(t, 80.0, ship.Health.Current)
	assert.Equal(t, game.OwnerId("player:abc"), ship.Owner)

	var engine *game.Entity
	for _, e := range index.Entities {
		if e.Engine != nil {
			engine = e
		}
	}
	require.NotNil(t, engine, "bare hulls get a synthesized main engine")
	assert.Equal(t, shipGuid, engine.MountedOn.ParentEntityID)
	require.NotNil(t, engine.FuelTank)
}

func TestHydrateWorld_HardpointKeptEvenWhenOrphaned(t *testing.T) {
	hpGuid := uuid.New()
	hpID := game.EntityID("hardpoint", hpGuid)
	records := []persistence.GraphEntityRecord{{
		EntityID: hpID,
		Labels:   []string{"Entity", "Hardpoint"},
		Properties: map[string]json.RawMessage{
			"parent_entity_id": game.MustRaw("ship:missing"),
			"hardpoint_id":     game.MustRaw("engine_main"),
		},
	}}

	index := HydrateWorld(records, physics.NewWorld(), hydrateLogger())
	_, exists := index.ByID[hpID]
	assert.True(t, exists, "orphaned hardpoints are allowed to exist")
}

func TestEntityFromRecord_ClampsHealth(t *testing.T) {
	record := persistence.GraphEntityRecord{
		EntityID: game.EntityID("ship", uuid.New()),
		Labels:   []string{"Entity", "Ship"},
		Properties: map[string]json.RawMessage{
			"health":     game.MustRaw(150.0),
			"max_health": game.MustRaw(100.0),
		},
	}
	e := entityFromRecord(record, hydrateLogger())
	assert.Equal(t, 100.0, e.Health.Current)
}

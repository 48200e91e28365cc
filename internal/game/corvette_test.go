package game

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func starterConfig() CorvetteSpawnConfig {
	accountID := uuid.New()
	return CorvetteSpawnConfig{
		OwnerAccountID: accountID,
		PlayerEntityID: "player:" + accountID.String(),
		ShardID:        1,
	}
}

func TestStarterWorldRecords_Shape(t *testing.T) {
	records := StarterWorldRecords(starterConfig())

	// Player + hull + 3 hardpoints + computer + 2 engines + 2 tanks.
	require.Len(t, records.Updates, 10)

	byLabel := map[string]int{}
	for _, update := range records.Updates {
		assert.Contains(t, update.Labels, "Entity", "every record keeps the Entity label")
		assert.False(t, update.Removed)
		for _, label := range update.Labels {
			byLabel[label]++
		}
	}
	assert.Equal(t, 1, byLabel["Player"])
	assert.Equal(t, 1, byLabel["Ship"])
	assert.Equal(t, 3, byLabel["Hardpoint"])
	assert.Equal(t, 5, byLabel["Module"])
}

func TestStarterWorldRecords_HullProperties(t *testing.T) {
	config := starterConfig()
	records := StarterWorldRecords(config)

	var hull *WorldDeltaEntity
	for i := range records.Updates {
		if records.Updates[i].Labels[len(records.Updates[i].Labels)-1] == "Ship" {
			hull = &records.Updates[i]
		}
	}
	require.NotNil(t, hull)
	assert.True(t, len(hull.EntityID) > 5 && hull.EntityID[:5] == "ship:")

	var assetID string
	require.True(t, hull.Property("asset_id", &assetID))
	assert.Equal(t, "corvette_01", assetID)

	var shader string
	require.True(t, hull.Property("starfield_shader_asset_id", &shader))
	assert.Equal(t, "starfield_wgsl", shader)

	var health float64
	require.True(t, hull.Property("health", &health))
	assert.Equal(t, 1000.0, health)
}

func TestStarterWorldRecords_FullyLoadedMass(t *testing.T) {
	records := StarterWorldRecords(starterConfig())

	entities := make([]*Entity, 0, len(records.Updates))
	for _, update := range records.Updates {
		e := &Entity{ID: update.EntityID, Labels: update.Labels}
		for _, comp := range update.Components {
			require.NoError(t, AttachComponent(e, comp.ComponentKind, comp.Properties))
		}
		entities = append(entities, e)
	}
	var hull *Entity
	for _, e := range entities {
		if e.IsShip {
			hull = e
		}
	}
	require.NotNil(t, hull)

	RecomputeTotalMass(entities, nil)

	// Hull 15000 + computer 50 + 2*engine 500 + 2*tank 1100 = 18250.
	assert.InDelta(t, 18250, hull.TotalMass, 1e-6)
}

func TestStarterWorldRecords_ModulesReferenceHull(t *testing.T) {
	records := StarterWorldRecords(starterConfig())

	var hullGuid uuid.UUID
	for _, update := range records.Updates {
		for _, label := range update.Labels {
			if label == "Ship" {
				guid, err := ParseGuidFromEntityID(update.EntityID)
				require.NoError(t, err)
				hullGuid = guid
			}
		}
	}

	mountedOnHull := 0
	for _, update := range records.Updates {
		e := &Entity{}
		for _, comp := range update.Components {
			require.NoError(t, AttachComponent(e, comp.ComponentKind, comp.Properties))
		}
		if e.MountedOn != nil && e.MountedOn.ParentEntityID == hullGuid {
			mountedOnHull++
		}
	}
	// Computer + both engines mount directly on the hull; tanks mount on engines.
	assert.Equal(t, 3, mountedOnHull)
}

func TestSpawnPositionOrDefault_DeterministicPerAccount(t *testing.T) {
	config := starterConfig()
	first := config.SpawnPositionOrDefault()
	second := config.SpawnPositionOrDefault()
	assert.Equal(t, first, second)

	assert.GreaterOrEqual(t, first.X, -500.0)
	assert.LessOrEqual(t, first.X, 500.0)
	assert.GreaterOrEqual(t, first.Y, -500.0)
	assert.LessOrEqual(t, first.Y, 500.0)
	assert.Equal(t, 0.0, first.Z)

	explicit := Vec3{X: 7}
	config.SpawnPosition = &explicit
	assert.Equal(t, explicit, config.SpawnPositionOrDefault())
}

package game

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Starter corvette (corvette_01) constants. The complete component set for
// the ship granted on registration; also used when spawning additional
// corvettes.
const (
	CorvetteDisplayName    = "Prospector-14"
	CorvetteModelAssetID   = "corvette_01"
	StarfieldShaderAssetID = "starfield_wgsl"

	corvetteBaseMassKg      = 15000.0
	corvetteHealth          = 1000.0
	corvetteEngineThrustN   = 50000.0
	corvetteEngineBurnKgS   = 0.5
	corvetteEngineMassKg    = 500.0
	corvetteFuelTankFuelKg  = 1000.0
	corvetteFuelTankMassKg  = 1100.0
	corvetteComputerMassKg  = 50.0
	corvetteTurnRateDegS    = 45.0
	corvetteComputerProfile = "basic_fly_by_wire"
)

// CorvetteSpawnConfig configures a starter-corvette spawn
type CorvetteSpawnConfig struct {
	OwnerAccountID uuid.UUID
	PlayerEntityID string
	SpawnPosition  *Vec3
	SpawnVelocity  Vec3
	ShardID        int32
	DisplayName    string
}

// SpawnPositionOrDefault returns the configured position, or a deterministic
// per-account spread inside a 1 km box so starter ships do not overlap. The
// account UUID seeds a simple LCG, so the same account always spawns in the
// same place.
func (c CorvetteSpawnConfig) SpawnPositionOrDefault() Vec3 {
	if c.SpawnPosition != nil {
		return *c.SpawnPosition
	}
	var seed uint64
	for _, b := range c.OwnerAccountID {
		seed = seed*31 + uint64(b)
	}
	x := float64((seed*1664525+1013904223)%1000) - 500.0
	y := float64((seed*22695477+1)%1000) - 500.0
	return Vec3{X: x, Y: y}
}

// StarterWorldRecords materializes the complete starter world for an account:
// the player entity, the corvette hull with its hardpoints, and the mounted
// modules (flight computer, two engines, two fuel tanks). The records are
// world-delta entities ready for persistence or live spawning.
func StarterWorldRecords(config CorvetteSpawnConfig) WorldStateDelta {
	name := config.DisplayName
	if name == "" {
		name = CorvetteDisplayName
	}
	shipGuid := uuid.New()
	shipID := EntityID("ship", shipGuid)
	position := config.SpawnPositionOrDefault()
	accountID := config.OwnerAccountID.String()

	player := WorldDeltaEntity{
		EntityID: config.PlayerEntityID,
		Labels:   []string{"Entity", "Player"},
		Properties: map[string]json.RawMessage{
			"owner_account_id": MustRaw(accountID),
			"player_entity_id": MustRaw(config.PlayerEntityID),
		},
		Components: []WorldComponentDelta{
			component(config.PlayerEntityID, KindDisplayName, DisplayName("Pilot")),
		},
	}

	hull := WorldDeltaEntity{
		EntityID: shipID,
		Labels:   []string{"Entity", "Ship"},
		Properties: map[string]json.RawMessage{
			"owner_account_id":          MustRaw(accountID),
			"player_entity_id":          MustRaw(config.PlayerEntityID),
			"name":                      MustRaw(name),
			"asset_id":                  MustRaw(CorvetteModelAssetID),
			"starfield_shader_asset_id": MustRaw(StarfieldShaderAssetID),
			"position_m":                MustRaw(position),
			"velocity_mps":              MustRaw(config.SpawnVelocity),
			"heading_rad":               MustRaw(0.0),
			"health":                    MustRaw(corvetteHealth),
			"max_health":                MustRaw(corvetteHealth),
		},
		Components: []WorldComponentDelta{
			component(shipID, KindEntityGuid, EntityGuid{shipGuid}),
			component(shipID, KindShipTag, unitTag{}),
			component(shipID, KindDisplayName, DisplayName(name)),
			component(shipID, KindPositionM, PositionM(position)),
			component(shipID, KindVelocityMps, VelocityMps(config.SpawnVelocity)),
			component(shipID, KindMassKg, MassKg(corvetteBaseMassKg)),
			component(shipID, KindBaseMassKg, BaseMassKg(corvetteBaseMassKg)),
			component(shipID, KindCargoMassKg, CargoMassKg(0)),
			component(shipID, KindModuleMassKg, ModuleMassKg(0)),
			component(shipID, KindTotalMassKg, TotalMassKg(corvetteBaseMassKg)),
			component(shipID, KindMassDirty, unitTag{}),
			component(shipID, KindInventory, Inventory{}),
			component(shipID, KindSizeM, SizeM{Length: 25, Width: 12, Height: 8}),
			component(shipID, KindCollisionAabbM, CollisionAabbM{HalfExtents: Vec3{X: 12.5, Y: 6, Z: 4}}),
			component(shipID, KindHealthPool, HealthPool{Current: corvetteHealth, Maximum: corvetteHealth}),
			component(shipID, KindOwnerID, OwnerId(config.PlayerEntityID)),
			component(shipID, KindShardAssignment, ShardAssignment(config.ShardID)),
		},
	}

	records := WorldStateDelta{Updates: []WorldDeltaEntity{player, hull}}

	hardpoints := []Hardpoint{
		{HardpointID: "computer_core", OffsetM: Vec3{Z: -5}},
		{HardpointID: "engine_left_aft", OffsetM: Vec3{X: -4, Y: -1, Z: -10}},
		{HardpointID: "engine_right_aft", OffsetM: Vec3{X: 4, Y: -1, Z: -10}},
	}
	for _, hp := range hardpoints {
		hpGuid := uuid.New()
		hpID := EntityID("hardpoint", hpGuid)
		records.Updates = append(records.Updates, WorldDeltaEntity{
			EntityID: hpID,
			Labels:   []string{"Entity", "Hardpoint"},
			Properties: map[string]json.RawMessage{
				"owner_entity_id":  MustRaw(shipID),
				"parent_entity_id": MustRaw(shipID),
				"hardpoint_id":     MustRaw(hp.HardpointID),
				"offset_m":         MustRaw(hp.OffsetM),
			},
			Components: []WorldComponentDelta{
				component(hpID, KindEntityGuid, EntityGuid{hpGuid}),
				component(hpID, KindHardpoint, hp),
				component(hpID, KindDisplayName, DisplayName("Hardpoint: "+hp.HardpointID)),
				component(hpID, KindOwnerID, OwnerId(config.PlayerEntityID)),
			},
		})
	}

	computer := moduleRecord(moduleSpec{
		kind:        "module",
		name:        "Flight Computer MK1",
		owner:       config.PlayerEntityID,
		shard:       config.ShardID,
		parentGuid:  shipGuid,
		hardpointID: "computer_core",
		massKg:      corvetteComputerMassKg,
		extra: func(id string, guid uuid.UUID) []WorldComponentDelta {
			return []WorldComponentDelta{
				component(id, KindFlightComputer, FlightComputer{
					Profile:      corvetteComputerProfile,
					TurnRateDegS: corvetteTurnRateDegS,
				}),
			}
		},
	})
	records.Updates = append(records.Updates, computer.record)

	for _, side := range []string{"Port", "Starboard"} {
		engine := moduleRecord(moduleSpec{
			kind:        "engine",
			name:        "Engine " + side,
			owner:       config.PlayerEntityID,
			shard:       config.ShardID,
			parentGuid:  shipGuid,
			hardpointID: engineHardpointForSide(side),
			massKg:      corvetteEngineMassKg,
			extra: func(id string, guid uuid.UUID) []WorldComponentDelta {
				return []WorldComponentDelta{
					component(id, KindEngine, Engine{
						ThrustN:     corvetteEngineThrustN,
						BurnRateKgS: corvetteEngineBurnKgS,
						ThrustDir:   Vec3{Z: 1},
					}),
				}
			},
		})
		records.Updates = append(records.Updates, engine.record)

		tank := moduleRecord(moduleSpec{
			kind:        "module",
			name:        "Fuel Tank " + side,
			owner:       config.PlayerEntityID,
			shard:       config.ShardID,
			parentGuid:  engine.guid,
			hardpointID: "fuel_supply",
			massKg:      corvetteFuelTankMassKg,
			extra: func(id string, guid uuid.UUID) []WorldComponentDelta {
				return []WorldComponentDelta{
					component(id, KindFuelTank, FuelTank{FuelKg: corvetteFuelTankFuelKg}),
				}
			},
		})
		records.Updates = append(records.Updates, tank.record)
	}

	return records
}

func engineHardpointForSide(side string) string {
	if side == "Port" {
		return "engine_left_aft"
	}
	return "engine_right_aft"
}

type moduleSpec struct {
	kind        string
	name        string
	owner       string
	shard       int32
	parentGuid  uuid.UUID
	hardpointID string
	massKg      float64
	extra       func(id string, guid uuid.UUID) []WorldComponentDelta
}

type spawnedModule struct {
	guid   uuid.UUID
	record WorldDeltaEntity
}

func moduleRecord(spec moduleSpec) spawnedModule {
	guid := uuid.New()
	id := EntityID(spec.kind, guid)
	mounted := MountedOn{ParentEntityID: spec.parentGuid, HardpointID: spec.hardpointID}
	record := WorldDeltaEntity{
		EntityID: id,
		Labels:   []string{"Entity", "Module"},
		Properties: map[string]json.RawMessage{
			"name":                 MustRaw(spec.name),
			"mounted_on_entity_id": MustRaw(spec.parentGuid.String()),
			"hardpoint_id":         MustRaw(spec.hardpointID),
			"mass_kg":              MustRaw(spec.massKg),
		},
		Components: []WorldComponentDelta{
			component(id, KindEntityGuid, EntityGuid{guid}),
			component(id, KindModuleTag, unitTag{}),
			component(id, KindDisplayName, DisplayName(spec.name)),
			component(id, KindMountedOn, mounted),
			component(id, KindMassKg, MassKg(spec.massKg)),
			component(id, KindOwnerID, OwnerId(spec.owner)),
			component(id, KindShardAssignment, ShardAssignment(spec.shard)),
		},
	}
	if spec.extra != nil {
		record.Components = append(record.Components, spec.extra(id, guid)...)
	}
	return spawnedModule{guid: guid, record: record}
}

func component(entityID, kind string, value interface{}) WorldComponentDelta {
	en, ok := Registry(kind)
	if !ok {
		panic("unknown component kind " + kind)
	}
	payload, err := en.Envelope(value)
	if err != nil {
		panic(err)
	}
	return WorldComponentDelta{
		ComponentID:   entityID + ":" + kind,
		ComponentKind: kind,
		Properties:    payload,
	}
}

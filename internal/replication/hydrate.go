package replication

import (
	"github.com/google/uuid"

	"github.com/Dastari/sidereal-v3/infrastructure/logging"
	"github.com/Dastari/sidereal-v3/internal/game"
	"github.com/Dastari/sidereal-v3/internal/persistence"
	"github.com/Dastari/sidereal-v3/internal/physics"
)

// Default control parameters for hydrated ships that carry no flight
// computer of their own.
const (
	hydratedTurnRateDegS  = 90.0
	hydratedEngineThrustN = 140000.0
	hydratedEngineBurnKgS = 0.4
	hydratedFuelKg        = 1000.0
)

// WorldIndex is the authoritative entity graph in simulation memory
type WorldIndex struct {
	Entities     []*game.Entity
	ByID         map[string]*game.Entity
	ByGuid       map[uuid.UUID]*game.Entity
	ShipByPlayer map[string]*game.Entity
}

// NewWorldIndex creates an empty index
func NewWorldIndex() *WorldIndex {
	return &WorldIndex{
		ByID:         make(map[string]*game.Entity),
		ByGuid:       make(map[uuid.UUID]*game.Entity),
		ShipByPlayer: make(map[string]*game.Entity),
	}
}

// Add registers an entity
func (w *WorldIndex) Add(e *game.Entity) {
	w.Entities = append(w.Entities, e)
	w.ByID[e.ID] = e
	if e.Guid != uuid.Nil {
		w.ByGuid[e.Guid] = e
	}
	if e.IsShip && e.Owner != "" {
		w.ShipByPlayer[string(e.Owner)] = e
	}
}

// Remove drops an entity and its index entries
func (w *WorldIndex) Remove(entityID string) {
	e, ok := w.ByID[entityID]
	if !ok {
		return
	}
	delete(w.ByID, entityID)
	delete(w.ByGuid, e.Guid)
	if e.IsShip && e.Owner != "" && w.ShipByPlayer[string(e.Owner)] == e {
		delete(w.ShipByPlayer, string(e.Owner))
	}
	for i, candidate := range w.Entities {
		if candidate == e {
			w.Entities = append(w.Entities[:i], w.Entities[i+1:]...)
			break
		}
	}
}

// entityFromRecord rebuilds an authoritative entity from a hydrated graph
// record: registry-decoded components first, then canonical property
// fallbacks for kinematics, health, and ownership.
func entityFromRecord(record persistence.GraphEntityRecord, log *logging.Logger) *game.Entity {
	e := &game.Entity{
		ID:     record.EntityID,
		Labels: append([]string(nil), record.Labels...),
	}
	if guid, err := game.ParseGuidFromEntityID(record.EntityID); err == nil {
		e.Guid = guid
	} else {
		e.Guid = uuid.New()
	}

	for _, comp := range record.Components {
		if err := game.AttachComponent(e, comp.ComponentKind, comp.Properties); err != nil {
			log.WithEntity(record.EntityID).WithError(err).
				Warn("skipping undecodable component during hydration")
		}
	}

	update := game.WorldDeltaEntity{EntityID: record.EntityID, Properties: record.Properties}
	if pos, ok := update.PositionProperty(); ok {
		e.Position = pos
	}
	var vel game.Vec3
	if update.Property("velocity_mps", &vel) {
		e.Velocity = vel
	}
	update.Property("heading_rad", &e.Heading)

	if e.Health == nil {
		health := 100.0
		maxHealth := 100.0
		update.Property("health", &health)
		update.Property("max_health", &maxHealth)
		e.Health = &game.HealthPool{Current: health, Maximum: maxHealth}
	}
	e.Health.Clamp()

	if e.Owner == "" {
		var owner string
		if update.Property("player_entity_id", &owner) {
			e.Owner = game.OwnerId(owner)
		}
	}
	var parentID string
	if update.Property("parent_entity_id", &parentID) {
		e.ParentEntityID = parentID
	}
	var name string
	if e.Name == "" && update.Property("name", &name) {
		e.Name = game.DisplayName(name)
	}
	if !e.IsShip && e.HasLabel("Ship") {
		e.IsShip = true
	}
	if !e.IsModule && e.HasLabel("Module") {
		e.IsModule = true
	}
	return e
}

// HydrateWorld rebuilds the simulation from graph records in three passes:
// hulls with physics bodies first, then hardpoints reattached to parents by
// entity id, then modules resolved against the hull index by mount UUID.
// Modules whose parent hull is missing are dropped. Scanner aggregation
// depends on this ordering.
func HydrateWorld(records []persistence.GraphEntityRecord, phys *physics.World, log *logging.Logger) *WorldIndex {
	index := NewWorldIndex()

	var hardpoints, modules, others []persistence.GraphEntityRecord
	for _, record := range records {
		switch {
		case recordHasLabel(record, "Ship"):
			hydrateHull(record, index, phys, log)
		case recordHasLabel(record, "Hardpoint"):
			hardpoints = append(hardpoints, record)
		case recordHasLabel(record, "Module") || recordHasComponent(record, game.KindMountedOn):
			modules = append(modules, record)
		default:
			others = append(others, record)
		}
	}

	// Pass 2: hardpoints reattach to their parents by entity id.
	for _, record := range hardpoints {
		e := entityFromRecord(record, log)
		if e.ParentEntityID != "" {
			if _, ok := index.ByID[e.ParentEntityID]; !ok {
				log.WithEntity(e.ID).WithField("parent", e.ParentEntityID).
					Warn("hardpoint parent missing; keeping orphan")
			}
		}
		index.Add(e)
	}

	// Pass 3: modules resolve MountedOn against the hull index; a module
	// with no live parent contributes no force and is dropped.
	for _, record := range modules {
		e := entityFromRecord(record, log)
		if e.MountedOn == nil {
			log.WithEntity(e.ID).Warn("module record has no mount; dropping")
			continue
		}
		if _, ok := index.ByGuid[e.MountedOn.ParentEntityID]; !ok {
			log.WithEntity(e.ID).WithField("parent_guid", e.MountedOn.ParentEntityID.String()).
				Warn("module parent missing; dropping module")
			continue
		}
		index.Add(e)
	}

	for _, record := range others {
		index.Add(entityFromRecord(record, log))
	}

	ensureShipPropulsion(index)
	return index
}

func hydrateHull(record persistence.GraphEntityRecord, index *WorldIndex, phys *physics.World, log *logging.Logger) {
	e := entityFromRecord(record, log)
	e.IsShip = true
	if e.FlightComputer == nil {
		e.FlightComputer = &game.FlightComputer{
			Profile:      "basic_fly_by_wire",
			TurnRateDegS: hydratedTurnRateDegS,
		}
	}
	if e.Capabilities == nil {
		e.Capabilities = &game.ActionCapabilities{Supported: game.FlightActions()}
	}
	if e.TotalMass == 0 {
		e.MassDirty = true
	}

	mass := e.TotalMass
	if mass == 0 {
		mass = e.BaseMass
	}
	phys.Spawn(physics.SpawnConfig{
		Guid:           e.Guid,
		Position:       e.Position,
		Velocity:       e.Velocity,
		HeadingRad:     e.Heading,
		MassKg:         mass,
		LinearDamping:  physics.DefaultLinearDamping,
		AngularDamping: physics.DefaultAngularDamping,
	})
	index.Add(e)
}

// ensureShipPropulsion gives hydrated hulls with no mounted engine a main
// engine and fuel tank so persisted worlds predating module persistence
// still fly.
func ensureShipPropulsion(index *WorldIndex) {
	hasEngine := make(map[uuid.UUID]bool)
	for _, e := range index.Entities {
		if e.Engine != nil && e.MountedOn != nil {
			hasEngine[e.MountedOn.ParentEntityID] = true
		}
	}
	for _, ship := range index.Entities {
		if !ship.IsShip || hasEngine[ship.Guid] {
			continue
		}
		engineGuid := uuid.New()
		engine := &game.Entity{
			ID:     game.EntityID("engine", engineGuid),
			Guid:   engineGuid,
			Labels: []string{"Entity", "Module"},
			Name:   game.DisplayName(string(ship.Name) + " Main Engine"),
			MountedOn: &game.MountedOn{
				ParentEntityID: ship.Guid,
				HardpointID:    "engine_main",
			},
			Engine: &game.Engine{
				ThrustN:     hydratedEngineThrustN,
				BurnRateKgS: hydratedEngineBurnKgS,
				ThrustDir:   game.Vec3{Y: 1},
			},
			FuelTank: &game.FuelTank{FuelKg: hydratedFuelKg},
			Owner:    ship.Owner,
			IsModule: true,
		}
		index.Add(engine)
	}
}

func recordHasLabel(record persistence.GraphEntityRecord, label string) bool {
	for _, l := range record.Labels {
		if l == label {
			return true
		}
	}
	return false
}

func recordHasComponent(record persistence.GraphEntityRecord, kind string) bool {
	for _, comp := range record.Components {
		if comp.ComponentKind == kind {
			return true
		}
	}
	return false
}

// Package game is the shared game model used by both the authoritative
// simulation and the client: components, actions, capability tables, the
// component registry, and deterministic helpers.
package game

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// EntityGuid is the stable UUID embedded in an entity's entity_id. Transient
// in-memory handles do not survive hydration; this does.
type EntityGuid struct {
	uuid.UUID
}

// DisplayName is a human-readable entity name
type DisplayName string

// PositionM is a world-space position in meters
type PositionM Vec3

// MarshalJSON encodes the position as [x, y, z]
func (p PositionM) MarshalJSON() ([]byte, error) { return Vec3(p).MarshalJSON() }

// UnmarshalJSON decodes [x, y, z]
func (p *PositionM) UnmarshalJSON(data []byte) error { return (*Vec3)(p).UnmarshalJSON(data) }

// VelocityMps is a world-space velocity in meters per second
type VelocityMps Vec3

// MarshalJSON encodes the velocity as [x, y, z]
func (v VelocityMps) MarshalJSON() ([]byte, error) { return Vec3(v).MarshalJSON() }

// UnmarshalJSON decodes [x, y, z]
func (v *VelocityMps) UnmarshalJSON(data []byte) error { return (*Vec3)(v).UnmarshalJSON(data) }

// ShardAssignment records which shard owns an entity. Sharding handoff is
// reserved but unused.
type ShardAssignment int32

// Hardpoint declares a mount point on a ship hull
type Hardpoint struct {
	HardpointID string `json:"hardpoint_id"`
	OffsetM     Vec3   `json:"offset_m"`
}

// MountedOn attaches a module to a parent entity at a hardpoint. The parent
// reference is the stable UUID embedded in the parent's entity_guid.
type MountedOn struct {
	ParentEntityID uuid.UUID `json:"parent_entity_id"`
	HardpointID    string    `json:"hardpoint_id"`
}

// Engine is a thrust-producing module
type Engine struct {
	ThrustN     float64 `json:"thrust_n"`
	BurnRateKgS float64 `json:"burn_rate_kg_s"`
	ThrustDir   Vec3    `json:"thrust_dir"`
}

// FuelTank feeds engines. Exhausted tanks produce zero force, not an error.
type FuelTank struct {
	FuelKg float64 `json:"fuel_kg"`
}

// FlightComputer translates entity actions into control state
type FlightComputer struct {
	Profile      string  `json:"profile"`
	Throttle     float64 `json:"throttle"`
	YawInput     float64 `json:"yaw_input"`
	Brake        bool    `json:"brake"`
	TurnRateDegS float64 `json:"turn_rate_deg_s"`
}

// HealthPool tracks current and maximum health, 0 <= current <= maximum
type HealthPool struct {
	Current float64 `json:"current"`
	Maximum float64 `json:"maximum"`
}

// Clamp enforces the health invariant in place
func (h *HealthPool) Clamp() {
	if h.Maximum < 0 {
		h.Maximum = 0
	}
	if h.Current < 0 {
		h.Current = 0
	}
	if h.Current > h.Maximum {
		h.Current = h.Maximum
	}
}

// MassKg is an entity's own mass contribution
type MassKg float64

// BaseMassKg is the hull mass before cargo and modules
type BaseMassKg float64

// CargoMassKg is the rolled-up inventory mass
type CargoMassKg float64

// ModuleMassKg is the rolled-up mounted-module mass
type ModuleMassKg float64

// TotalMassKg is base + cargo + module, floored at 1.0
type TotalMassKg float64

// SizeM is the entity's bounding dimensions
type SizeM struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// CollisionAabbM is the collision half-extents
type CollisionAabbM struct {
	HalfExtents Vec3 `json:"half_extents"`
}

// ScannerRangeM is the aggregated scanner range cached on a ship
type ScannerRangeM float64

// ScannerComponent extends the owning ship's authorization range
type ScannerComponent struct {
	BaseRangeM float64 `json:"base_range_m"`
	Level      int     `json:"level"`
}

// ScannerRangeBuff modifies a scanner's contribution: contribution*multiplier + additive
type ScannerRangeBuff struct {
	AdditiveM  float64 `json:"additive_m"`
	Multiplier float64 `json:"multiplier"`
}

// InventoryEntry is one stack of cargo
type InventoryEntry struct {
	ItemID     string  `json:"item_id"`
	Quantity   int     `json:"quantity"`
	UnitMassKg float64 `json:"unit_mass_kg"`
}

// Inventory holds cargo entries
type Inventory struct {
	Entries []InventoryEntry `json:"entries"`
}

// MassKgTotal sums the inventory mass, ignoring negative unit masses
func (inv *Inventory) MassKgTotal() float64 {
	if inv == nil {
		return 0
	}
	total := 0.0
	for _, entry := range inv.Entries {
		unit := entry.UnitMassKg
		if unit < 0 {
			unit = 0
		}
		total += unit * float64(entry.Quantity)
	}
	return total
}

// OwnerId identifies the owning player ("player:<uuid>"). Only entities
// carrying an OwnerId are controllable by, and fully visible to, that player.
type OwnerId string

// ParseGuidFromEntityID extracts the UUID from a "kind:<uuid>" stable id
func ParseGuidFromEntityID(entityID string) (uuid.UUID, error) {
	_, raw, found := strings.Cut(entityID, ":")
	if !found {
		return uuid.Nil, fmt.Errorf("entity id %q has no kind prefix", entityID)
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("entity id %q has invalid uuid: %w", entityID, err)
	}
	return parsed, nil
}

// EntityID builds a stable "kind:<uuid>" id
func EntityID(kind string, guid uuid.UUID) string {
	return kind + ":" + guid.String()
}

// Entity is the authoritative in-memory form of a world entity. The scene
// hierarchy (ParentEntityID) is a convenience rebuilt on hydration from the
// same canonical properties that drive the persisted graph edges.
type Entity struct {
	ID     string
	Guid   uuid.UUID
	Labels []string

	Name     DisplayName
	Position Vec3
	Velocity Vec3
	Heading  float64

	Shard     *ShardAssignment
	Hardpoint *Hardpoint
	MountedOn *MountedOn

	Engine         *Engine
	FuelTank       *FuelTank
	FlightComputer *FlightComputer
	Health         *HealthPool

	MassKg     float64
	BaseMass   float64
	CargoMass  float64
	ModuleMass float64
	TotalMass  float64
	MassDirty  bool

	Size      *SizeM
	Collision *CollisionAabbM

	IsShip   bool
	IsModule bool

	Scanner       *ScannerComponent
	ScannerBuff   *ScannerRangeBuff
	ScannerRangeM float64

	Inventory *Inventory
	Owner     OwnerId

	ParentEntityID string

	Actions      ActionQueue
	Capabilities *ActionCapabilities
}

// HasLabel reports whether the entity carries the given label
func (e *Entity) HasLabel(label string) bool {
	for _, l := range e.Labels {
		if l == label {
			return true
		}
	}
	return false
}

package game

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// Component kinds form a closed set for the simulation core. The registry is
// the source of truth for which components are serialized, persisted, and
// decoded on hydration: adding a component requires adding exactly one entry.
const (
	KindEntityGuid      = "entity_guid"
	KindDisplayName     = "display_name"
	KindPositionM       = "position_m"
	KindVelocityMps     = "velocity_mps"
	KindShardAssignment = "shard_assignment"
	KindHardpoint       = "hardpoint"
	KindMountedOn       = "mounted_on"
	KindEngine          = "engine"
	KindFuelTank        = "fuel_tank"
	KindFlightComputer  = "flight_computer"
	KindHealthPool      = "health_pool"
	KindMassKg          = "mass_kg"
	KindBaseMassKg      = "base_mass_kg"
	KindCargoMassKg     = "cargo_mass_kg"
	KindModuleMassKg    = "module_mass_kg"
	KindTotalMassKg     = "total_mass_kg"
	KindMassDirty       = "mass_dirty"
	KindSizeM           = "size_m"
	KindCollisionAabbM  = "collision_aabb_m"
	KindShipTag         = "ship_tag"
	KindModuleTag       = "module_tag"
	KindScannerRangeM   = "scanner_range_m"
	KindScanner         = "scanner_component"
	KindScannerBuff     = "scanner_range_buff"
	KindInventory       = "inventory"
	KindOwnerID         = "owner_id"
)

// RegistryEntry binds a component kind to its stable type path and the
// function triple used in place of runtime reflection: decode from a wire
// payload, encode back, and attach the decoded value to an entity.
type RegistryEntry struct {
	Kind     string
	TypePath string
	Decode   func(json.RawMessage) (interface{}, error)
	Encode   func(interface{}) (json.RawMessage, error)
	Attach   func(*Entity, interface{}) error
}

// Envelope wraps a component payload in its type path: {"<type_path>": payload}.
// Receivers dispatch by type path.
func (e RegistryEntry) Envelope(value interface{}) (json.RawMessage, error) {
	payload, err := e.Encode(value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]json.RawMessage{e.TypePath: payload})
}

// OpenEnvelope unwraps {"<type_path>": payload} and decodes the payload.
// A bare payload without the envelope is accepted for compatibility.
func (e RegistryEntry) OpenEnvelope(raw json.RawMessage) (interface{}, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if payload, ok := envelope[e.TypePath]; ok {
			return e.Decode(payload)
		}
	}
	return e.Decode(raw)
}

func typePath(v interface{}) string {
	t := reflect.TypeOf(v)
	return t.PkgPath() + "." + t.Name()
}

func entry[T any](kind string, attach func(*Entity, T) error) RegistryEntry {
	var zero T
	return RegistryEntry{
		Kind:     kind,
		TypePath: typePath(zero),
		Decode: func(raw json.RawMessage) (interface{}, error) {
			var value T
			if err := json.Unmarshal(raw, &value); err != nil {
				return nil, fmt.Errorf("decode %s: %w", kind, err)
			}
			return value, nil
		},
		Encode: func(v interface{}) (json.RawMessage, error) {
			value, ok := v.(T)
			if !ok {
				return nil, fmt.Errorf("encode %s: unexpected type %T", kind, v)
			}
			return json.Marshal(value)
		},
		Attach: func(e *Entity, v interface{}) error {
			value, ok := v.(T)
			if !ok {
				return fmt.Errorf("attach %s: unexpected type %T", kind, v)
			}
			return attach(e, value)
		},
	}
}

type unitTag struct{}

var registry = buildRegistry()

func buildRegistry() map[string]RegistryEntry {
	entries := []RegistryEntry{
		entry(KindEntityGuid, func(e *Entity, v EntityGuid) error {
			e.Guid = v.UUID
			return nil
		}),
		entry(KindDisplayName, func(e *Entity, v DisplayName) error {
			e.Name = v
			return nil
		}),
		entry(KindPositionM, func(e *Entity, v PositionM) error {
			e.Position = Vec3(v)
			return nil
		}),
		entry(KindVelocityMps, func(e *Entity, v VelocityMps) error {
			e.Velocity = Vec3(v)
			return nil
		}),
		entry(KindShardAssignment, func(e *Entity, v ShardAssignment) error {
			e.Shard = &v
			return nil
		}),
		entry(KindHardpoint, func(e *Entity, v Hardpoint) error {
			e.Hardpoint = &v
			return nil
		}),
		entry(KindMountedOn, func(e *Entity, v MountedOn) error {
			e.MountedOn = &v
			return nil
		}),
		entry(KindEngine, func(e *Entity, v Engine) error {
			e.Engine = &v
			return nil
		}),
		entry(KindFuelTank, func(e *Entity, v FuelTank) error {
			e.FuelTank = &v
			return nil
		}),
		entry(KindFlightComputer, func(e *Entity, v FlightComputer) error {
			e.FlightComputer = &v
			return nil
		}),
		entry(KindHealthPool, func(e *Entity, v HealthPool) error {
			v.Clamp()
			e.Health = &v
			return nil
		}),
		entry(KindMassKg, func(e *Entity, v MassKg) error {
			e.MassKg = float64(v)
			return nil
		}),
		entry(KindBaseMassKg, func(e *Entity, v BaseMassKg) error {
			e.BaseMass = float64(v)
			return nil
		}),
		entry(KindCargoMassKg, func(e *Entity, v CargoMassKg) error {
			e.CargoMass = float64(v)
			return nil
		}),
		entry(KindModuleMassKg, func(e *Entity, v ModuleMassKg) error {
			e.ModuleMass = float64(v)
			return nil
		}),
		entry(KindTotalMassKg, func(e *Entity, v TotalMassKg) error {
			e.TotalMass = float64(v)
			return nil
		}),
		{
			Kind:     KindMassDirty,
			TypePath: typePath(unitTag{}) + "/MassDirty",
			Decode: func(json.RawMessage) (interface{}, error) {
				return unitTag{}, nil
			},
			Encode: func(interface{}) (json.RawMessage, error) {
				return json.RawMessage("{}"), nil
			},
			Attach: func(e *Entity, _ interface{}) error {
				e.MassDirty = true
				return nil
			},
		},
		entry(KindSizeM, func(e *Entity, v SizeM) error {
			e.Size = &v
			return nil
		}),
		entry(KindCollisionAabbM, func(e *Entity, v CollisionAabbM) error {
			e.Collision = &v
			return nil
		}),
		{
			Kind:     KindShipTag,
			TypePath: typePath(unitTag{}) + "/ShipTag",
			Decode: func(json.RawMessage) (interface{}, error) {
				return unitTag{}, nil
			},
			Encode: func(interface{}) (json.RawMessage, error) {
				return json.RawMessage("{}"), nil
			},
			Attach: func(e *Entity, _ interface{}) error {
				e.IsShip = true
				return nil
			},
		},
		{
			Kind:     KindModuleTag,
			TypePath: typePath(unitTag{}) + "/ModuleTag",
			Decode: func(json.RawMessage) (interface{}, error) {
				return unitTag{}, nil
			},
			Encode: func(interface{}) (json.RawMessage, error) {
				return json.RawMessage("{}"), nil
			},
			Attach: func(e *Entity, _ interface{}) error {
				e.IsModule = true
				return nil
			},
		},
		entry(KindScannerRangeM, func(e *Entity, v ScannerRangeM) error {
			e.ScannerRangeM = float64(v)
			return nil
		}),
		entry(KindScanner, func(e *Entity, v ScannerComponent) error {
			e.Scanner = &v
			return nil
		}),
		entry(KindScannerBuff, func(e *Entity, v ScannerRangeBuff) error {
			e.ScannerBuff = &v
			return nil
		}),
		entry(KindInventory, func(e *Entity, v Inventory) error {
			e.Inventory = &v
			return nil
		}),
		entry(KindOwnerID, func(e *Entity, v OwnerId) error {
			e.Owner = v
			return nil
		}),
	}

	byKind := make(map[string]RegistryEntry, len(entries))
	typePaths := make(map[string]string, len(entries))
	for _, en := range entries {
		if _, dup := byKind[en.Kind]; dup {
			panic(fmt.Sprintf("duplicate component kind %q", en.Kind))
		}
		if prev, dup := typePaths[en.TypePath]; dup {
			panic(fmt.Sprintf("type path %q already registered for kind %q", en.TypePath, prev))
		}
		byKind[en.Kind] = en
		typePaths[en.TypePath] = en.Kind
	}
	return byKind
}

// Registry returns the registry entry for a component kind
func Registry(kind string) (RegistryEntry, bool) {
	en, ok := registry[kind]
	return en, ok
}

// RegisteredKinds returns all component kinds in sorted order
func RegisteredKinds() []string {
	kinds := make([]string, 0, len(registry))
	for kind := range registry {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// AttachComponent decodes a component payload by kind and attaches it to the
// entity. Unknown kinds are an error: the registry is closed.
func AttachComponent(e *Entity, kind string, payload json.RawMessage) error {
	en, ok := Registry(kind)
	if !ok {
		return fmt.Errorf("unknown component kind %q", kind)
	}
	value, err := en.OpenEnvelope(payload)
	if err != nil {
		return err
	}
	return en.Attach(e, value)
}

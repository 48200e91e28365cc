package game

import "github.com/google/uuid"

// MassBinding updates the physics-library mass for an entity after a recompute
type MassBinding interface {
	SetMass(guid uuid.UUID, massKg float64)
}

// RecomputeTotalMass rolls up cargo, module, and total mass for every root
// entity (entities without MountedOn) whose mass is dirty or uninitialized.
//
// Cargo mass is the entity's own inventory plus the inventories of its scene
// children, recursively. Module mass is the sum over the MountedOn subtree
// keyed by UUID, each module counting its own mass plus its inventory. Total
// mass is floored at 1.0.
func RecomputeTotalMass(entities []*Entity, binding MassBinding) {
	inventoryMassByID := make(map[string]float64, len(entities))
	childrenByParentID := make(map[string][]string)
	for _, e := range entities {
		inventoryMassByID[e.ID] = e.Inventory.MassKgTotal()
		if e.ParentEntityID != "" {
			childrenByParentID[e.ParentEntityID] = append(childrenByParentID[e.ParentEntityID], e.ID)
		}
	}

	moduleMassByGuid := make(map[uuid.UUID]float64)
	moduleChildrenByParentGuid := make(map[uuid.UUID][]uuid.UUID)
	for _, e := range entities {
		if e.MountedOn == nil {
			continue
		}
		moduleMassByGuid[e.Guid] = e.MassKg + e.Inventory.MassKgTotal()
		parent := e.MountedOn.ParentEntityID
		moduleChildrenByParentGuid[parent] = append(moduleChildrenByParentGuid[parent], e.Guid)
	}

	for _, e := range entities {
		if e.MountedOn != nil {
			continue
		}
		if !e.MassDirty && e.TotalMass > 0 {
			continue
		}

		base := e.BaseMass
		if base == 0 {
			base = e.MassKg
		}
		cargo := inventoryMassByID[e.ID] + childInventoryTreeMass(e.ID, inventoryMassByID, childrenByParentID)
		module := moduleTreeMass(e.Guid, moduleMassByGuid, moduleChildrenByParentGuid)

		total := base + cargo + module
		if total < 1.0 {
			total = 1.0
		}

		e.CargoMass = cargo
		e.ModuleMass = module
		e.TotalMass = total
		e.MassDirty = false
		if binding != nil {
			binding.SetMass(e.Guid, total)
		}
	}
}

func moduleTreeMass(rootGuid uuid.UUID, massByGuid map[uuid.UUID]float64, childrenByParent map[uuid.UUID][]uuid.UUID) float64 {
	total := 0.0
	stack := append([]uuid.UUID(nil), childrenByParent[rootGuid]...)
	for len(stack) > 0 {
		guid := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		total += massByGuid[guid]
		stack = append(stack, childrenByParent[guid]...)
	}
	return total
}

func childInventoryTreeMass(rootID string, massByID map[string]float64, childrenByParent map[string][]string) float64 {
	total := 0.0
	stack := append([]string(nil), childrenByParent[rootID]...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		total += massByID[id]
		stack = append(stack, childrenByParent[id]...)
	}
	return total
}

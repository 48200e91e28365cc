// Package replication is the authoritative simulation and replication
// server: fixed-tick stepping, session auth binding, interest management,
// delta generation, and batched persistence write-back.
package replication

import (
	"encoding/json"

	"github.com/Dastari/sidereal-v3/internal/game"
)

// VisibilityScope says whether a session may receive state at all
type VisibilityScope int

const (
	// ScopeNone delivers nothing: unauthenticated sessions and the
	// visibility_mode=none admin override.
	ScopeNone VisibilityScope = iota
	// ScopeAuthenticated delivers the interest-filtered world
	ScopeAuthenticated
)

// VisibilityContext carries everything the filter needs for one session
type VisibilityContext struct {
	Scope            VisibilityScope
	PlayerEntityID   string
	ObserverPosition *game.Vec3
	ViewRangeM       float64
}

// AuthenticatedContext builds the context for a bound session
func AuthenticatedContext(playerEntityID string, observerPosition *game.Vec3) VisibilityContext {
	return VisibilityContext{
		Scope:            ScopeAuthenticated,
		PlayerEntityID:   playerEntityID,
		ObserverPosition: observerPosition,
		ViewRangeM:       game.DefaultViewRangeM,
	}
}

// NoneContext builds the deliver-nothing context
func NoneContext() VisibilityContext {
	return VisibilityContext{Scope: ScopeNone}
}

// alwaysVisibleProperties is the closed whitelist kept on non-owned
// entities. Everything else, and all components, are stripped.
var alwaysVisibleProperties = map[string]struct{}{
	"entity_id":                 {},
	"position_m":                {},
	"velocity_mps":              {},
	"heading_rad":               {},
	"display_name":              {},
	"ship_tag":                  {},
	"module_tag":                {},
	"mounted_on_entity_id":      {},
	"parent_entity_id":          {},
	"size_m":                    {},
	"collision_aabb_m":          {},
	"mass_kg":                   {},
	"asset_id":                  {},
	"starfield_shader_asset_id": {},
}

// IsPropertyAlwaysVisible reports whether a property survives redaction
func IsPropertyAlwaysVisible(name string) bool {
	_, ok := alwaysVisibleProperties[name]
	return ok
}

// ApplyVisibilityFilter enforces interest management for one session.
// Returning nil means deliver nothing this tick.
//
// Authorization scope is the union of spheres centered on every owned
// entity's position with radius max(default, default + scanner range): what
// the player is allowed to know. Delivery scope is the focus sphere around
// the controlled entity's position: which authorized entities this session
// receives now. The two are separable on purpose; do not collapse them.
func ApplyVisibilityFilter(world game.WorldStateDelta, ctx VisibilityContext) *game.WorldStateDelta {
	if ctx.Scope != ScopeAuthenticated || ctx.PlayerEntityID == "" {
		return nil
	}

	ownership := make(map[string]bool, len(world.Updates))
	for _, update := range world.Updates {
		ownership[update.EntityID] = entityIsOwnedBy(update, ctx.PlayerEntityID)
	}

	// Authorization anchors: owned entities with spatial data. Ships without
	// scanners anchor the default range.
	type anchor struct {
		pos    game.Vec3
		rangeM float64
	}
	var anchors []anchor
	for _, update := range world.Updates {
		if !ownership[update.EntityID] || update.Removed {
			continue
		}
		pos, ok := update.PositionProperty()
		if !ok {
			continue
		}
		rangeM := game.DefaultViewRangeM + scannerExtensionM(update)
		if rangeM < game.DefaultViewRangeM {
			rangeM = game.DefaultViewRangeM
		}
		anchors = append(anchors, anchor{pos: pos, rangeM: rangeM})
	}

	filtered := game.WorldStateDelta{}
	for _, update := range world.Updates {
		if update.Removed {
			filtered.Updates = append(filtered.Updates, update)
			continue
		}

		isOwned := ownership[update.EntityID]
		pos, hasPos := update.PositionProperty()

		authorized := isOwned
		if !authorized && hasPos {
			for _, a := range anchors {
				if pos.Distance(a.pos) <= a.rangeM {
					authorized = true
					break
				}
			}
		}
		if !authorized {
			continue
		}

		// Delivery scope: focus-stream culling. Owned entities with no
		// spatial data fall back to always-include.
		inFocus := isOwned
		if ctx.ObserverPosition != nil && hasPos {
			inFocus = pos.Distance(*ctx.ObserverPosition) <= ctx.ViewRangeM
		}
		if !inFocus {
			continue
		}

		if isOwned {
			filtered.Updates = append(filtered.Updates, update)
			continue
		}

		redacted := update.Clone()
		for key := range redacted.Properties {
			if !IsPropertyAlwaysVisible(key) {
				delete(redacted.Properties, key)
			}
		}
		redacted.Components = nil
		if len(redacted.Properties) > 0 {
			filtered.Updates = append(filtered.Updates, redacted)
		}
	}

	return &filtered
}

// AppendLeaveUpdates implements add/stay/leave diffing: for every entity id
// the session saw last tick that is absent from this delivery, a synthetic
// removed=true update is appended so clients observe leave events. Returns
// the new visible set.
func AppendLeaveUpdates(previousVisible map[string]struct{}, delivery *game.WorldStateDelta) map[string]struct{} {
	currentVisible := make(map[string]struct{})
	if delivery != nil {
		for _, update := range delivery.Updates {
			if !update.Removed {
				currentVisible[update.EntityID] = struct{}{}
			}
		}
	}
	if delivery != nil {
		for entityID := range previousVisible {
			if _, stillVisible := currentVisible[entityID]; !stillVisible {
				delivery.Updates = append(delivery.Updates, game.RemovalUpdate(entityID))
			}
		}
	}
	return currentVisible
}

func entityIsOwnedBy(update game.WorldDeltaEntity, playerEntityID string) bool {
	for _, comp := range update.Components {
		if comp.ComponentKind != game.KindOwnerID {
			continue
		}
		if owner := ownerFromComponentPayload(comp.Properties); owner == playerEntityID {
			return true
		}
	}
	return false
}

// ownerFromComponentPayload tolerates both the enveloped form
// {"<type_path>": "player:..."} and a bare string payload.
func ownerFromComponentPayload(payload json.RawMessage) string {
	var bare string
	if err := json.Unmarshal(payload, &bare); err == nil {
		return bare
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return ""
	}
	for _, inner := range envelope {
		var value string
		if err := json.Unmarshal(inner, &value); err == nil {
			return value
		}
	}
	return ""
}

func scannerExtensionM(update game.WorldDeltaEntity) float64 {
	var rangeM float64
	if update.Property("scanner_range_m", &rangeM) {
		return rangeM
	}
	return 0
}

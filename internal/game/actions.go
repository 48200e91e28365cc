package game

// EntityAction is a high-level intent sent to an entity. Actions are routed
// through the capability table and dispatched to component handlers; the
// input layer never manipulates forces or velocities directly. The same
// pipeline serves player input, AI commands, and scripted sequences.
type EntityAction string

const (
	// Flight control
	ActionThrustForward EntityAction = "ThrustForward"
	ActionThrustReverse EntityAction = "ThrustReverse"
	ActionThrustNeutral EntityAction = "ThrustNeutral"
	ActionBrake         EntityAction = "Brake"
	ActionYawLeft       EntityAction = "YawLeft"
	ActionYawRight      EntityAction = "YawRight"
	ActionYawNeutral    EntityAction = "YawNeutral"

	// Combat (future)
	ActionFirePrimary      EntityAction = "FirePrimary"
	ActionFireSecondary    EntityAction = "FireSecondary"
	ActionActivateShield   EntityAction = "ActivateShield"
	ActionDeactivateShield EntityAction = "DeactivateShield"

	// Utility (future)
	ActionActivateTractor   EntityAction = "ActivateTractor"
	ActionDeactivateTractor EntityAction = "DeactivateTractor"
	ActionActivateScanner   EntityAction = "ActivateScanner"
	ActionDeployCargo       EntityAction = "DeployCargo"

	// Navigation (future)
	ActionEngageAutopilot    EntityAction = "EngageAutopilot"
	ActionDisengageAutopilot EntityAction = "DisengageAutopilot"
	ActionInitiateDocking    EntityAction = "InitiateDocking"
)

var knownActions = map[EntityAction]struct{}{
	ActionThrustForward:      {},
	ActionThrustReverse:      {},
	ActionThrustNeutral:      {},
	ActionBrake:              {},
	ActionYawLeft:            {},
	ActionYawRight:           {},
	ActionYawNeutral:         {},
	ActionFirePrimary:        {},
	ActionFireSecondary:      {},
	ActionActivateShield:     {},
	ActionDeactivateShield:   {},
	ActionActivateTractor:    {},
	ActionDeactivateTractor:  {},
	ActionActivateScanner:    {},
	ActionDeployCargo:        {},
	ActionEngageAutopilot:    {},
	ActionDisengageAutopilot: {},
	ActionInitiateDocking:    {},
}

// IsKnown reports whether the action tag is part of the protocol
func (a EntityAction) IsKnown() bool {
	_, ok := knownActions[a]
	return ok
}

// FlightActions is the capability set granted to basic flyable hulls
func FlightActions() []EntityAction {
	return []EntityAction{
		ActionThrustForward,
		ActionThrustReverse,
		ActionThrustNeutral,
		ActionBrake,
		ActionYawLeft,
		ActionYawRight,
		ActionYawNeutral,
	}
}

// ActionQueue queues pending actions for an entity, consumed each tick
type ActionQueue struct {
	Pending []EntityAction
}

// Push appends an action
func (q *ActionQueue) Push(action EntityAction) {
	q.Pending = append(q.Pending, action)
}

// Drain returns all pending actions and empties the queue
func (q *ActionQueue) Drain() []EntityAction {
	pending := q.Pending
	q.Pending = nil
	return pending
}

// Clear discards all pending actions
func (q *ActionQueue) Clear() {
	q.Pending = nil
}

// Len returns the number of queued actions
func (q *ActionQueue) Len() int {
	return len(q.Pending)
}

// ActionCapabilities declares which actions an entity can process
type ActionCapabilities struct {
	Supported []EntityAction
}

// CanHandle reports whether the entity supports the given action
func (c *ActionCapabilities) CanHandle(action EntityAction) bool {
	if c == nil {
		return false
	}
	for _, supported := range c.Supported {
		if supported == action {
			return true
		}
	}
	return false
}

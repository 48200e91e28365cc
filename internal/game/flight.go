package game

import (
	"math"

	"github.com/google/uuid"

	"github.com/Dastari/sidereal-v3/infrastructure/logging"
)

// Flight control contract constants. These are part of the protocol: the
// client's prediction and the server's authority must agree on them.
const (
	// MaxLinearSpeedMPS is the hard speed governor
	MaxLinearSpeedMPS = 600.0
	// TimeToMaxSpeedS bounds baseline acceleration at full throttle
	TimeToMaxSpeedS = 10.0
	// ReverseThrottleRatio scales reverse thrust relative to forward
	ReverseThrottleRatio = 0.7
	// PassiveBrakeDecelMPS2 is the coasting deceleration
	PassiveBrakeDecelMPS2 = 6.0
	// ActiveBrakeDecelMPS2 is the commanded brake deceleration; engines may
	// limit it further
	ActiveBrakeDecelMPS2 = 40.0
	// YawDampingGainPassive damps angular velocity with no yaw input
	YawDampingGainPassive = 1.5
	// YawDampingGainBrake damps angular velocity while braking
	YawDampingGainBrake = 4.0
	// YawTorqueGain converts commanded yaw rate into torque
	YawTorqueGain = 10000.0
)

// ForceBody is the physics-library binding for one simulated entity. The
// integrator itself is external; the flight pipeline only feeds it forces
// and torques.
type ForceBody interface {
	Velocity() Vec3
	SetVelocity(Vec3)
	Heading() float64
	AngularVelocity() float64
	ApplyForce(force Vec3)
	ApplyTorque(torqueZ float64)
}

// ValidateActionCapabilities drops unsupported actions from each entity's
// queue, logging the drop. Entities with no capability table keep nothing.
// Returns the number of dropped actions.
func ValidateActionCapabilities(entities []*Entity, log *logging.Logger) int {
	dropped := 0
	for _, e := range entities {
		if e.Actions.Len() == 0 {
			continue
		}
		if e.Capabilities == nil {
			dropped += e.Actions.Len()
			log.WithEntity(e.ID).WithField("actions", e.Actions.Pending).
				Warn("entity received actions but has no capability table")
			e.Actions.Clear()
			continue
		}
		kept := e.Actions.Pending[:0]
		for _, action := range e.Actions.Pending {
			if !e.Capabilities.CanHandle(action) {
				dropped++
				log.WithEntity(e.ID).WithField("action", action).
					Warn("entity received unsupported action")
				continue
			}
			kept = append(kept, action)
		}
		e.Actions.Pending = kept
	}
	return dropped
}

// ProcessFlightActions drains action queues into flight-computer control
// state: throttle in [-0.7, 1.0] or the brake state, yaw input in [-1, 1],
// neutral actions resetting to zero.
func ProcessFlightActions(entities []*Entity) {
	for _, e := range entities {
		if e.FlightComputer == nil || e.Actions.Len() == 0 {
			continue
		}
		computer := e.FlightComputer
		for _, action := range e.Actions.Drain() {
			switch action {
			case ActionThrustForward:
				computer.Throttle = 1.0
				computer.Brake = false
			case ActionThrustReverse:
				computer.Throttle = -ReverseThrottleRatio
				computer.Brake = false
			case ActionThrustNeutral:
				computer.Throttle = 0.0
				computer.Brake = false
			case ActionBrake:
				computer.Throttle = 0.0
				computer.Brake = true
			case ActionYawLeft:
				computer.YawInput = -1.0
			case ActionYawRight:
				computer.YawInput = 1.0
			case ActionYawNeutral:
				computer.YawInput = 0.0
			default:
				// Not a flight action; another handler owns it.
			}
		}
	}
}

type controlState struct {
	throttle     float64
	yawInput     float64
	brake        bool
	turnRateDegS float64
}

// ThrustStats reports debug counters from one thrust pass
type ThrustStats struct {
	ExhaustedEngines int
}

// ApplyEngineThrust runs the engine stage of the action routing chain:
// flight computer control state -> mounted engines -> fuel check -> forces.
//
// Per engine: requested burn = burn_rate * |throttle| * dt, clamped by
// remaining fuel; the engine contributes |thrust| scaled by actual/requested
// to the entity's thrust budget, or its full fuel-scaled thrust to the brake
// budget in brake mode. Exhausted engines contribute nothing.
func ApplyEngineThrust(dt float64, entities []*Entity, bodies map[uuid.UUID]ForceBody) ThrustStats {
	var stats ThrustStats
	if dt <= 0 {
		return stats
	}

	// Control state by parent GUID. A flight computer mounted as a module
	// steers its mount parent; a built-in computer steers its own entity.
	controls := make(map[uuid.UUID]controlState)
	for _, e := range entities {
		if e.FlightComputer == nil {
			continue
		}
		parent := e.Guid
		if e.MountedOn != nil {
			parent = e.MountedOn.ParentEntityID
		}
		if _, exists := controls[parent]; !exists {
			controls[parent] = controlState{
				throttle:     e.FlightComputer.Throttle,
				yawInput:     e.FlightComputer.YawInput,
				brake:        e.FlightComputer.Brake,
				turnRateDegS: e.FlightComputer.TurnRateDegS,
			}
		}
	}

	// Aggregate thrust and brake budgets from engines, draining fuel.
	thrustBudgetN := make(map[uuid.UUID]float64)
	brakeBudgetN := make(map[uuid.UUID]float64)
	for _, e := range entities {
		if e.Engine == nil || e.MountedOn == nil {
			continue
		}
		control, ok := controls[e.MountedOn.ParentEntityID]
		if !ok {
			continue
		}
		demand := math.Abs(control.throttle)
		if control.brake {
			demand = 1.0
		}
		if demand == 0 {
			continue
		}

		tank := engineFuelTank(e, entities)
		if tank == nil || tank.FuelKg <= 0 {
			stats.ExhaustedEngines++
			continue
		}

		requestedBurn := e.Engine.BurnRateKgS * demand * dt
		actualBurn := math.Min(requestedBurn, tank.FuelKg)
		scale := 1.0
		if requestedBurn > 0 {
			scale = actualBurn / requestedBurn
		}
		tank.FuelKg -= actualBurn

		available := math.Abs(e.Engine.ThrustN) * scale
		if control.brake {
			brakeBudgetN[e.MountedOn.ParentEntityID] += available
		} else {
			thrustBudgetN[e.MountedOn.ParentEntityID] += available
		}
	}

	// Convert budgets into forces on the parent bodies.
	for _, e := range entities {
		control, ok := controls[e.Guid]
		if !ok {
			continue
		}
		body, ok := bodies[e.Guid]
		if !ok {
			continue
		}
		mass := e.TotalMass
		if mass < 1.0 {
			mass = 1.0
		}
		velocity := body.Velocity()
		speed := velocity.Length()

		switch {
		case control.brake:
			if speed > 0 {
				decel := math.Min(ActiveBrakeDecelMPS2, brakeBudgetN[e.Guid]/mass)
				// Never overshoot zero within one step.
				decel = math.Min(decel, speed/dt)
				if decel > 0 {
					body.ApplyForce(velocity.Normalized().Scale(-decel * mass))
				}
			}
		case control.throttle != 0:
			accelCap := math.Min(thrustBudgetN[e.Guid]/mass, MaxLinearSpeedMPS/TimeToMaxSpeedS)
			if accelCap > 0 {
				forward := HeadingForward(body.Heading())
				target := forward.Scale(MaxLinearSpeedMPS * control.throttle)
				deltaV := target.Sub(velocity)
				required := deltaV.Length() / dt
				accel := math.Min(required, accelCap)
				if accel > 0 {
					body.ApplyForce(deltaV.Normalized().Scale(accel * mass))
				}
			}
		default:
			// Coasting: passive braking along -v, capped to never overshoot.
			if speed > 0 {
				decel := math.Min(PassiveBrakeDecelMPS2, speed/dt)
				body.ApplyForce(velocity.Normalized().Scale(-decel * mass))
			}
		}

		// Hard speed governor.
		if speed > MaxLinearSpeedMPS {
			body.SetVelocity(velocity.Normalized().Scale(MaxLinearSpeedMPS))
		}

		// Yaw: input applies torque; zero input damps angular velocity.
		if control.yawInput != 0 {
			yawRate := control.turnRateDegS * math.Pi / 180 * control.yawInput
			body.ApplyTorque(yawRate * YawTorqueGain)
		} else {
			gain := YawDampingGainPassive
			if control.brake {
				gain = YawDampingGainBrake
			}
			body.ApplyTorque(-body.AngularVelocity() * gain * mass)
		}
	}

	return stats
}

// engineFuelTank resolves the fuel tank feeding an engine: the engine's own
// tank when present, otherwise the first tank mounted on the engine.
func engineFuelTank(engine *Entity, entities []*Entity) *FuelTank {
	if engine.FuelTank != nil {
		return engine.FuelTank
	}
	for _, e := range entities {
		if e.FuelTank != nil && e.MountedOn != nil && e.MountedOn.ParentEntityID == engine.Guid {
			return e.FuelTank
		}
	}
	return nil
}

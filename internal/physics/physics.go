// Package physics is the rigid-body integrator consumed by the simulation.
// It accepts forces and torques accumulated during a tick and advances
// bodies with semi-implicit Euler integration; the flight model never
// manipulates positions directly.
package physics

import (
	"math"

	"github.com/google/uuid"

	"github.com/Dastari/sidereal-v3/internal/game"
)

// Default damping applied to spawned ship bodies
const (
	DefaultLinearDamping  = 0.12
	DefaultAngularDamping = 0.35
)

// Body is one simulated rigid body
type Body struct {
	guid uuid.UUID

	position   game.Vec3
	velocity   game.Vec3
	headingRad float64
	angularVel float64

	massKg         float64
	linearDamping  float64
	angularDamping float64

	accumForce   game.Vec3
	accumTorqueZ float64
}

// Guid returns the stable UUID this body is bound to
func (b *Body) Guid() uuid.UUID { return b.guid }

// Position returns the current position in meters
func (b *Body) Position() game.Vec3 { return b.position }

// SetPosition teleports the body
func (b *Body) SetPosition(p game.Vec3) { b.position = p }

// Velocity returns the current velocity in m/s
func (b *Body) Velocity() game.Vec3 { return b.velocity }

// SetVelocity overrides the velocity; used by the hard speed governor
func (b *Body) SetVelocity(v game.Vec3) { b.velocity = v }

// Heading returns the heading angle in radians
func (b *Body) Heading() float64 { return b.headingRad }

// SetHeading overrides the heading
func (b *Body) SetHeading(rad float64) { b.headingRad = rad }

// AngularVelocity returns the angular velocity about Z in rad/s
func (b *Body) AngularVelocity() float64 { return b.angularVel }

// MassKg returns the body's mass
func (b *Body) MassKg() float64 { return b.massKg }

// ApplyForce accumulates a world-space force for the next step
func (b *Body) ApplyForce(force game.Vec3) {
	b.accumForce = b.accumForce.Add(force)
}

// ApplyTorque accumulates a torque about Z for the next step
func (b *Body) ApplyTorque(torqueZ float64) {
	b.accumTorqueZ += torqueZ
}

// World owns all simulated bodies. It is not safe for concurrent use; the
// simulation loop is the only writer.
type World struct {
	bodies map[uuid.UUID]*Body
}

// NewWorld creates an empty physics world with zero gravity
func NewWorld() *World {
	return &World{bodies: make(map[uuid.UUID]*Body)}
}

// SpawnConfig configures a new body
type SpawnConfig struct {
	Guid           uuid.UUID
	Position       game.Vec3
	Velocity       game.Vec3
	HeadingRad     float64
	MassKg         float64
	LinearDamping  float64
	AngularDamping float64
}

// Spawn creates a body and registers it in the world. Spawning an existing
// guid replaces the prior body.
func (w *World) Spawn(cfg SpawnConfig) *Body {
	mass := cfg.MassKg
	if mass < 1.0 {
		mass = 1.0
	}
	body := &Body{
		guid:           cfg.Guid,
		position:       cfg.Position,
		velocity:       cfg.Velocity,
		headingRad:     cfg.HeadingRad,
		massKg:         mass,
		linearDamping:  cfg.LinearDamping,
		angularDamping: cfg.AngularDamping,
	}
	w.bodies[cfg.Guid] = body
	return body
}

// Despawn removes a body from the world
func (w *World) Despawn(guid uuid.UUID) {
	delete(w.bodies, guid)
}

// Body returns the body bound to a guid
func (w *World) Body(guid uuid.UUID) (*Body, bool) {
	body, ok := w.bodies[guid]
	return body, ok
}

// Len returns the number of simulated bodies
func (w *World) Len() int {
	return len(w.bodies)
}

// SetMass implements the game.MassBinding interface so mass roll-ups flow
// into the integrator.
func (w *World) SetMass(guid uuid.UUID, massKg float64) {
	if body, ok := w.bodies[guid]; ok {
		if massKg < 1.0 {
			massKg = 1.0
		}
		body.massKg = massKg
	}
}

// Step advances every body by dt seconds with semi-implicit Euler: velocity
// first from accumulated forces, then damping, then position. Accumulators
// are cleared afterwards.
func (w *World) Step(dt float64) {
	if dt <= 0 {
		return
	}
	for _, b := range w.bodies {
		b.velocity = b.velocity.Add(b.accumForce.Scale(dt / b.massKg))
		linFactor := 1.0 - b.linearDamping*dt
		if linFactor < 0 {
			linFactor = 0
		}
		b.velocity = b.velocity.Scale(linFactor)
		b.position = b.position.Add(b.velocity.Scale(dt))

		// Inertia heuristic: proportional to mass.
		b.angularVel += b.accumTorqueZ / b.massKg * dt
		angFactor := 1.0 - b.angularDamping*dt
		if angFactor < 0 {
			angFactor = 0
		}
		b.angularVel *= angFactor
		b.headingRad = math.Mod(b.headingRad+b.angularVel*dt, 2*math.Pi)

		b.accumForce = game.Vec3{}
		b.accumTorqueZ = 0
	}
}

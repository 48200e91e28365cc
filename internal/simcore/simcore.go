// Package simcore is the deterministic kinematics core used for client
// prediction. The authoritative server steps the game flight model and
// physics instead. All movement logic here is deterministic: pure
// functions, no side effects.
package simcore

import "math"

// InputSnapshot captures one tick of control input
type InputSnapshot struct {
	ThrustForward bool `json:"thrust_forward"`
	ThrustReverse bool `json:"thrust_reverse"`
	YawLeft       bool `json:"yaw_left"`
	YawRight      bool `json:"yaw_right"`
	Brake         bool `json:"brake"`
}

// IsNeutral reports whether no input is active
func (s InputSnapshot) IsNeutral() bool {
	return !s.ThrustForward && !s.ThrustReverse && !s.YawLeft && !s.YawRight && !s.Brake
}

// EntityKinematics is the kinematic state for any controllable entity
// (ships, missiles, stations, asteroids)
type EntityKinematics struct {
	PositionM   [3]float64 `json:"position_m"`
	VelocityMps [3]float64 `json:"velocity_mps"`
	HeadingRad  float64    `json:"heading_rad"`
}

// ControlTuning holds control parameters for a controllable entity
type ControlTuning struct {
	ThrustAccelMps2 float64
	YawRateRadPerS  float64
	DragPerS        float64
}

// DefaultTuning returns corvette-class control parameters
func DefaultTuning() ControlTuning {
	return ControlTuning{
		ThrustAccelMps2: 14.0,
		YawRateRadPerS:  1.8,
		DragPerS:        0.4,
	}
}

// CorvetteTuning returns corvette-class control parameters
func CorvetteTuning() ControlTuning {
	return DefaultTuning()
}

// AsteroidWithEngineTuning returns parameters for an asteroid with a strapped
// engine: slow and heavy
func AsteroidWithEngineTuning() ControlTuning {
	return ControlTuning{
		ThrustAccelMps2: 2.0,
		YawRateRadPerS:  0.3,
		DragPerS:        0.1,
	}
}

// MissileTuning returns parameters for a missile: fast and agile
func MissileTuning() ControlTuning {
	return ControlTuning{
		ThrustAccelMps2: 50.0,
		YawRateRadPerS:  4.0,
		DragPerS:        0.05,
	}
}

// reverseThrustRatio matches the flight computer's reverse throttle scaling
const reverseThrustRatio = 0.7

// StepEntityKinematics advances kinematics by one timestep. Pure and
// deterministic: the same inputs always produce bitwise-identical output.
func StepEntityKinematics(state EntityKinematics, input InputSnapshot, tuning ControlTuning, dtS float64) EntityKinematics {
	next := state

	// 1. Yaw.
	switch {
	case input.YawLeft:
		next.HeadingRad += tuning.YawRateRadPerS * dtS
	case input.YawRight:
		next.HeadingRad -= tuning.YawRateRadPerS * dtS
	}

	// 2. Forward direction. Heading 0 faces +Y.
	forward := [3]float64{math.Sin(next.HeadingRad), math.Cos(next.HeadingRad), 0}

	// 3. Thrust acceleration; reverse runs at reduced power.
	thrustAccel := 0.0
	switch {
	case input.ThrustForward:
		thrustAccel = tuning.ThrustAccelMps2
	case input.ThrustReverse:
		thrustAccel = -tuning.ThrustAccelMps2 * reverseThrustRatio
	}

	// 4. Integrate velocity.
	for i := range next.VelocityMps {
		next.VelocityMps[i] += forward[i] * thrustAccel * dtS
	}

	// 5. Drag; braking doubles the drag coefficient.
	drag := tuning.DragPerS
	if input.Brake {
		drag *= 2
	}
	dragFactor := 1.0 - drag*dtS
	if dragFactor < 0 {
		dragFactor = 0
	} else if dragFactor > 1 {
		dragFactor = 1
	}
	for i := range next.VelocityMps {
		next.VelocityMps[i] *= dragFactor
	}

	// 6. Integrate position.
	for i := range next.PositionM {
		next.PositionM[i] += next.VelocityMps[i] * dtS
	}

	return next
}

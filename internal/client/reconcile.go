package client

import (
	"math"

	"github.com/Dastari/sidereal-v3/internal/game"
)

// Reconciliation constants. Hard snap only for large divergence; everything
// else corrects smoothly so the pilot never sees a pop.
const (
	// HardSnapThresholdM forces position to server state past this error
	HardSnapThresholdM = 10.0
	// SmoothCorrectionRate scales the per-frame blend toward server state
	SmoothCorrectionRate = 8.0
	// MinCorrectionM below which position error is left alone
	MinCorrectionM = 0.01
	// MinRotationBlendRad below which heading is left alone
	MinRotationBlendRad = 0.01
)

// PredictedState is the locally simulated controlled-entity state
type PredictedState struct {
	Position   game.Vec3
	Velocity   game.Vec3
	HeadingRad float64
	Health     float64
	MaxHealth  float64
}

// AuthoritativeState is the server's view carried by a state frame
type AuthoritativeState struct {
	Tick       uint64
	Position   game.Vec3
	Velocity   game.Vec3
	HeadingRad float64
	Health     float64
	MaxHealth  float64
}

// ReconcileOutcome reports what the reconciliation pass did
type ReconcileOutcome struct {
	PositionErrorM float64
	HardSnapped    bool
}

// Reconcile aligns the predicted state with an authoritative update:
// hard-snap past the threshold, otherwise a smoothed lerp; velocity lerps
// with the same blend; heading blends only when the angle difference is
// meaningful; health is assigned directly.
func Reconcile(local *PredictedState, server AuthoritativeState, dt float64) ReconcileOutcome {
	outcome := ReconcileOutcome{
		PositionErrorM: local.Position.Distance(server.Position),
	}

	if outcome.PositionErrorM > HardSnapThresholdM {
		local.Position = server.Position
		outcome.HardSnapped = true
	} else if outcome.PositionErrorM > MinCorrectionM {
		blend := math.Min(SmoothCorrectionRate*dt, 1.0)
		local.Position = local.Position.Lerp(server.Position, blend)
	}

	blend := math.Min(SmoothCorrectionRate*dt, 1.0)
	local.Velocity = local.Velocity.Lerp(server.Velocity, blend)

	if game.AngleBetween(local.HeadingRad, server.HeadingRad) > MinRotationBlendRad {
		local.HeadingRad = blendHeading(local.HeadingRad, server.HeadingRad, blend)
	}

	local.Health = server.Health
	local.MaxHealth = server.MaxHealth
	return outcome
}

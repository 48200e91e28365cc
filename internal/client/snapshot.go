package client

import (
	"github.com/Dastari/sidereal-v3/internal/game"
)

// Remote-entity interpolation constants
const (
	// SnapshotBufferCapacity holds roughly one second at 60 Hz
	SnapshotBufferCapacity = 60
	// InterpolationDelayS is how far behind now the render time sits
	InterpolationDelayS = 0.1
	// MaxExtrapolationS bounds holding the last snapshot; past it the
	// entity pauses.
	MaxExtrapolationS = 0.05
)

// Snapshot is one server-timestamped kinematic sample for a remote entity
type Snapshot struct {
	TimeS      float64
	Position   game.Vec3
	Velocity   game.Vec3
	HeadingRad float64
}

// RenderState is an interpolated pose for drawing
type RenderState struct {
	Position   game.Vec3
	Velocity   game.Vec3
	HeadingRad float64
}

// SnapshotBuffer is the bounded per-remote-entity sample sequence
type SnapshotBuffer struct {
	snapshots []Snapshot
}

// Push appends a snapshot, evicting the oldest at capacity. Out-of-order
// arrivals older than the newest retained sample are dropped: the channel
// is unordered and stale kinematics only degrade interpolation.
func (b *SnapshotBuffer) Push(snapshot Snapshot) {
	if n := len(b.snapshots); n > 0 && snapshot.TimeS <= b.snapshots[n-1].TimeS {
		return
	}
	b.snapshots = append(b.snapshots, snapshot)
	if len(b.snapshots) > SnapshotBufferCapacity {
		b.snapshots = b.snapshots[1:]
	}
}

// Len returns the number of buffered snapshots
func (b *SnapshotBuffer) Len() int {
	return len(b.snapshots)
}

// Clear drops all snapshots
func (b *SnapshotBuffer) Clear() {
	b.snapshots = nil
}

// Sample returns the pose at renderTime. With a bracketing pair it
// interpolates position linearly and heading along the shortest arc; with
// only a trailing snapshot it holds that pose for up to MaxExtrapolationS
// and then returns nothing.
func (b *SnapshotBuffer) Sample(renderTime float64) (RenderState, bool) {
	if len(b.snapshots) == 0 {
		return RenderState{}, false
	}

	// Find the bracketing pair: before.t <= renderTime < after.t.
	for i := 0; i < len(b.snapshots)-1; i++ {
		before := b.snapshots[i]
		after := b.snapshots[i+1]
		if before.TimeS <= renderTime && renderTime < after.TimeS {
			span := after.TimeS - before.TimeS
			t := 0.0
			if span > 0 {
				t = (renderTime - before.TimeS) / span
			}
			return RenderState{
				Position:   before.Position.Lerp(after.Position, t),
				Velocity:   before.Velocity.Lerp(after.Velocity, t),
				HeadingRad: blendHeading(before.HeadingRad, after.HeadingRad, t),
			}, true
		}
	}

	// Past the newest snapshot: hold it briefly, then pause.
	last := b.snapshots[len(b.snapshots)-1]
	if renderTime >= last.TimeS && renderTime-last.TimeS <= MaxExtrapolationS {
		return RenderState{
			Position:   last.Position,
			Velocity:   last.Velocity,
			HeadingRad: last.HeadingRad,
		}, true
	}

	// Before the oldest snapshot: hold the oldest.
	first := b.snapshots[0]
	if renderTime < first.TimeS {
		return RenderState{
			Position:   first.Position,
			Velocity:   first.Velocity,
			HeadingRad: first.HeadingRad,
		}, true
	}

	return RenderState{}, false
}

// blendHeading interpolates along the shortest angular arc
func blendHeading(from, to, t float64) float64 {
	return from + game.WrapAngle(to-from)*t
}

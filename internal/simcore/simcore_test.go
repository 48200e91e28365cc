package simcore

import (
	"math"
	"testing"
)

func TestNeutralInputAppliesOnlyDrag(t *testing.T) {
	state := EntityKinematics{VelocityMps: [3]float64{10, 0, 0}}
	next := StepEntityKinematics(state, InputSnapshot{}, DefaultTuning(), 1.0)

	// Velocity decays by drag (0.4 per second).
	if math.Abs(next.VelocityMps[0]-6.0) > 0.01 {
		t.Errorf("velocity after drag = %v, want ~6.0", next.VelocityMps[0])
	}
	if next.PositionM[0] <= 0 {
		t.Errorf("position should integrate velocity, got %v", next.PositionM[0])
	}
}

func TestThrustForwardAccelerates(t *testing.T) {
	next := StepEntityKinematics(EntityKinematics{}, InputSnapshot{ThrustForward: true}, DefaultTuning(), 1.0)

	// Forward is +Y at heading zero.
	if next.VelocityMps[1] <= 0 {
		t.Errorf("expected forward acceleration on Y, got %v", next.VelocityMps[1])
	}
}

func TestReverseIsWeakerThanForward(t *testing.T) {
	tuning := DefaultTuning()
	fwd := StepEntityKinematics(EntityKinematics{}, InputSnapshot{ThrustForward: true}, tuning, 1.0)
	rev := StepEntityKinematics(EntityKinematics{}, InputSnapshot{ThrustReverse: true}, tuning, 1.0)

	if math.Abs(rev.VelocityMps[1]) >= math.Abs(fwd.VelocityMps[1]) {
		t.Errorf("reverse |v|=%v should be weaker than forward |v|=%v", math.Abs(rev.VelocityMps[1]), fwd.VelocityMps[1])
	}
}

func TestYawChangesHeading(t *testing.T) {
	tuning := DefaultTuning()
	next := StepEntityKinematics(EntityKinematics{}, InputSnapshot{YawLeft: true}, tuning, 1.0)

	if next.HeadingRad <= 0 {
		t.Errorf("yaw left should increase heading, got %v", next.HeadingRad)
	}
	if math.Abs(next.HeadingRad-tuning.YawRateRadPerS) > 0.01 {
		t.Errorf("heading = %v, want %v", next.HeadingRad, tuning.YawRateRadPerS)
	}
}

func TestBrakeDecaysFasterThanCoast(t *testing.T) {
	state := EntityKinematics{VelocityMps: [3]float64{10, 0, 0}}
	coast := StepEntityKinematics(state, InputSnapshot{}, DefaultTuning(), 0.1)
	brake := StepEntityKinematics(state, InputSnapshot{Brake: true}, DefaultTuning(), 0.1)

	if brake.VelocityMps[0] >= coast.VelocityMps[0] {
		t.Errorf("brake velocity %v should be below coast velocity %v", brake.VelocityMps[0], coast.VelocityMps[0])
	}
}

func TestDeterministicReplayProducesSameResult(t *testing.T) {
	input := InputSnapshot{ThrustForward: true, YawLeft: true}
	tuning := DefaultTuning()

	result1 := StepEntityKinematics(EntityKinematics{}, input, tuning, 0.016)
	result2 := StepEntityKinematics(EntityKinematics{}, input, tuning, 0.016)

	if result1 != result2 {
		t.Errorf("step is not deterministic: %+v vs %+v", result1, result2)
	}
}

func TestDeterministicVectorChain(t *testing.T) {
	// A longer replay must also be bitwise stable.
	run := func() EntityKinematics {
		state := EntityKinematics{}
		tuning := CorvetteTuning()
		for i := 0; i < 300; i++ {
			input := InputSnapshot{ThrustForward: i%2 == 0, YawRight: i%3 == 0}
			state = StepEntityKinematics(state, input, tuning, 1.0/30.0)
		}
		return state
	}
	if run() != run() {
		t.Error("300-step replay diverged")
	}
}

func TestControlTuningPresetsAreDistinct(t *testing.T) {
	corvette := CorvetteTuning()
	asteroid := AsteroidWithEngineTuning()
	missile := MissileTuning()

	if missile.ThrustAccelMps2 <= corvette.ThrustAccelMps2 || missile.ThrustAccelMps2 <= asteroid.ThrustAccelMps2 {
		t.Error("missile should be fastest")
	}
	if asteroid.YawRateRadPerS >= corvette.YawRateRadPerS || asteroid.YawRateRadPerS >= missile.YawRateRadPerS {
		t.Error("asteroid should be slowest to turn")
	}
}

func TestIsNeutral(t *testing.T) {
	if !(InputSnapshot{}).IsNeutral() {
		t.Error("zero snapshot should be neutral")
	}
	if (InputSnapshot{Brake: true}).IsNeutral() {
		t.Error("brake input is not neutral")
	}
}

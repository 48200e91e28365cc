package game

import (
	"encoding/json"
	"math"
	"testing"
)

func TestVec3_JSONRoundTrip(t *testing.T) {
	v := Vec3{X: 1.5, Y: -2, Z: 0.25}
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != "[1.5,-2,0.25]" {
		t.Errorf("marshal = %s, want [1.5,-2,0.25]", raw)
	}

	var back Vec3
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != v {
		t.Errorf("round trip = %+v, want %+v", back, v)
	}
}

func TestVec3_UnmarshalRejectsWrongArity(t *testing.T) {
	var v Vec3
	if err := json.Unmarshal([]byte("[1,2]"), &v); err == nil {
		t.Error("expected error for 2-component array")
	}
}

func TestVec3_NormalizedZeroSafe(t *testing.T) {
	if got := (Vec3{}).Normalized(); !got.IsZero() {
		t.Errorf("Normalized() of zero = %+v, want zero", got)
	}
	unit := Vec3{X: 3, Y: 4}.Normalized()
	if math.Abs(unit.Length()-1) > 1e-12 {
		t.Errorf("unit length = %v, want 1", unit.Length())
	}
}

func TestHeadingForward(t *testing.T) {
	// Heading zero faces +Y.
	fwd := HeadingForward(0)
	if math.Abs(fwd.X) > 1e-12 || math.Abs(fwd.Y-1) > 1e-12 {
		t.Errorf("HeadingForward(0) = %+v, want +Y", fwd)
	}
}

func TestWrapAngle(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0, 0},
		{math.Pi / 2, math.Pi / 2},
		{2 * math.Pi, 0},
		{-3 * math.Pi / 2, math.Pi / 2},
	}
	for _, tt := range tests {
		if got := WrapAngle(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("WrapAngle(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAngleBetween(t *testing.T) {
	if got := AngleBetween(0.1, 2*math.Pi+0.1); got > 1e-9 {
		t.Errorf("AngleBetween full turn = %v, want 0", got)
	}
	if got := AngleBetween(-math.Pi+0.05, math.Pi-0.05); math.Abs(got-0.1) > 1e-9 {
		t.Errorf("AngleBetween across seam = %v, want 0.1", got)
	}
}

package train

import (
	"math"
	"testing"
)

func TestScheduleRampSustainDecay(t *testing.T) {
	s := Schedule{Min: 0.0001, Max: 0.001, Exp: 0.8, Rampup: 4, Sustain: 2}

	cases := []struct {
		epoch int
		want  float64
	}{
		{-1, 0.0001},
		{0, 0.0001},
		{2, 0.0001 + (0.001-0.0001)*0.5},
		{4, 0.001},
		{5, 0.001},
		{6, 0.001},
		{7, 0.001 * 0.8},
		{9, 0.001 * 0.8 * 0.8 * 0.8},
	}
	for _, c := range cases {
		if got := s.Rate(c.epoch); math.Abs(got-c.want) > 1e-12 {
			t.Fatalf("Rate(%d) = %v, want %v", c.epoch, got, c.want)
		}
	}
}

func TestScheduleDecayFloor(t *testing.T) {
	s := Schedule{Min: 0.0001, Max: 0.001, Exp: 0.5}
	if got := s.Rate(100); got != s.Min {
		t.Fatalf("Rate(100) = %v, want floor %v", got, s.Min)
	}
}

func TestScheduleConstant(t *testing.T) {
	s := Schedule{Min: 0.01, Max: 0.01, Exp: 1}
	for _, epoch := range []int{0, 1, 50} {
		if got := s.Rate(epoch); got != 0.01 {
			t.Fatalf("Rate(%d) = %v, want 0.01", epoch, got)
		}
	}
}

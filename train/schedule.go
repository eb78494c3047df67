// Package train runs the reconstruction training loop and extracts per-depth
// token embeddings from a trained model.
package train

import "math"

// Schedule is the per-epoch learning rate curve: a linear ramp from Min to
// Max across the rampup epochs, a hold at Max for the sustain epochs, then
// exponential decay Max·Exp^n floored at Min.
type Schedule struct {
	Min     float64
	Max     float64
	Exp     float64
	Rampup  int
	Sustain int
}

// Rate returns the learning rate for an epoch (0-based).
func (s Schedule) Rate(epoch int) float64 {
	switch {
	case epoch < 0:
		return s.Min
	case epoch < s.Rampup:
		return s.Min + (s.Max-s.Min)*float64(epoch)/float64(s.Rampup)
	case epoch < s.Rampup+s.Sustain:
		return s.Max
	default:
		r := s.Max * math.Pow(s.Exp, float64(epoch-s.Rampup-s.Sustain))
		if r < s.Min {
			return s.Min
		}
		return r
	}
}

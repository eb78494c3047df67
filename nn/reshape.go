package nn

import (
	"fmt"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Merge folds n consecutive slices along an axis into the next axis:
// [.., A, B] -> [.., A/n, B·n]. A pure view, no parameters, no computation;
// the fold never crosses a group boundary because A must divide by n.
type Merge struct {
	axis int
	n    int
}

func NewMerge(axis, n int) (*Merge, error) {
	if n < 1 {
		return nil, fmt.Errorf("merge: factor must be positive, got %d", n)
	}
	return &Merge{axis: axis, n: n}, nil
}

func (m *Merge) Forward(x *gorgonia.Node, _ Mode) (*gorgonia.Node, error) {
	rank := x.Dims()
	if rank < 2 {
		return nil, fmt.Errorf("merge: want rank >= 2, got %d", rank)
	}
	a0 := ((m.axis % rank) + rank) % rank
	a1 := (a0 + 1) % rank
	shape := x.Shape()
	if shape[a0]%m.n != 0 {
		return nil, fmt.Errorf("merge: axis %d length %d not divisible by %d", a0, shape[a0], m.n)
	}
	target := make(tensor.Shape, rank)
	copy(target, shape)
	target[a0] = shape[a0] / m.n
	target[a1] = shape[a1] * m.n
	return gorgonia.Reshape(x, target)
}

func (m *Merge) Learnables() gorgonia.Nodes             { return nil }
func (m *Merge) Params() map[string]*tensor.Dense       { return nil }
func (m *Merge) Restore(map[string]*tensor.Dense) error { return nil }

// Reshape reinterprets the input as a fixed target shape, preserving element
// order and count. One target dimension may be -1 and is inferred.
type Reshape struct {
	target tensor.Shape
}

func NewReshape(target ...int) (*Reshape, error) {
	wild := 0
	for _, d := range target {
		switch {
		case d == -1:
			wild++
		case d < 1:
			return nil, fmt.Errorf("reshape: invalid dimension %d", d)
		}
	}
	if wild > 1 {
		return nil, fmt.Errorf("reshape: at most one inferred dimension, got %d", wild)
	}
	return &Reshape{target: tensor.Shape(target)}, nil
}

func (r *Reshape) Forward(x *gorgonia.Node, _ Mode) (*gorgonia.Node, error) {
	total := x.Shape().TotalSize()
	target := make(tensor.Shape, len(r.target))
	copy(target, r.target)
	known := 1
	wild := -1
	for i, d := range target {
		if d == -1 {
			wild = i
			continue
		}
		known *= d
	}
	if wild >= 0 {
		if known == 0 || total%known != 0 {
			return nil, fmt.Errorf("reshape: cannot infer dimension, %d elements into %v", total, r.target)
		}
		target[wild] = total / known
	} else if known != total {
		return nil, fmt.Errorf("reshape: %d elements do not fit %v", total, target)
	}
	return gorgonia.Reshape(x, target)
}

func (r *Reshape) Learnables() gorgonia.Nodes             { return nil }
func (r *Reshape) Params() map[string]*tensor.Dense       { return nil }
func (r *Reshape) Restore(map[string]*tensor.Dense) error { return nil }

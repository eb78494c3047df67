package nn

import (
	"fmt"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Layer is the uniform contract shared by every primitive: build graph ops
// for an input node, report the trainable nodes of the most recently built
// graph, and expose/restore the owned parameter tensors by name.
type Layer interface {
	Forward(x *gorgonia.Node, mode Mode) (*gorgonia.Node, error)
	Learnables() gorgonia.Nodes
	Params() map[string]*tensor.Dense
	Restore(params map[string]*tensor.Dense) error
}

// param materializes a host tensor as a value node in g. The node shares the
// tensor's backing, so solver updates are visible to later graphs.
func param(g *gorgonia.ExprGraph, t *tensor.Dense, name string) *gorgonia.Node {
	return gorgonia.NodeFromAny(g, t, gorgonia.WithName(name))
}

func scalar(g *gorgonia.ExprGraph, v float32) *gorgonia.Node {
	return gorgonia.NodeFromAny(g, v)
}

// matmulLast multiplies along the last axis: [..., in] x [in, out] -> [..., out].
// Higher-rank inputs are flattened around the last axis for the product.
func matmulLast(x, w *gorgonia.Node) (*gorgonia.Node, error) {
	xs := x.Shape()
	ws := w.Shape()
	in := xs[len(xs)-1]
	if in != ws[0] {
		return nil, fmt.Errorf("matmul: input width %d does not match kernel %v", in, ws)
	}
	if x.Dims() <= 2 {
		return gorgonia.Mul(x, w)
	}
	rows := tensor.Shape(xs[:len(xs)-1]).TotalSize()
	flat, err := gorgonia.Reshape(x, tensor.Shape{rows, in})
	if err != nil {
		return nil, fmt.Errorf("matmul flatten: %w", err)
	}
	y, err := gorgonia.Mul(flat, w)
	if err != nil {
		return nil, err
	}
	target := make(tensor.Shape, 0, len(xs))
	target = append(target, xs[:len(xs)-1]...)
	target = append(target, ws[1])
	return gorgonia.Reshape(y, target)
}

// restoreTensor adopts a checkpointed tensor into dst, validating the shape
// when the layer was already built.
func restoreTensor(dst **tensor.Dense, params map[string]*tensor.Dense, key string) error {
	t, ok := params[key]
	if !ok {
		return fmt.Errorf("missing parameter %q", key)
	}
	if *dst != nil && !(*dst).Shape().Eq(t.Shape()) {
		return fmt.Errorf("parameter %q: shape %v does not match %v", key, t.Shape(), (*dst).Shape())
	}
	*dst = t
	return nil
}

package nn

import (
	"fmt"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Dense is an affine projection along the last axis: y = x·kernel (+ bias).
// The kernel is created on the first forward pass, once the input width is
// known, and persists for the lifetime of the layer.
type Dense struct {
	name    string
	units   int
	useBias bool
	init    *Init

	kernel *tensor.Dense // [in, units]
	bias   *tensor.Dense // [units]

	graph      *gorgonia.ExprGraph
	kernelNode *gorgonia.Node
	biasNode   *gorgonia.Node
}

func NewDense(name string, units int, useBias bool, init *Init) (*Dense, error) {
	if units < 1 {
		return nil, fmt.Errorf("dense %s: units must be positive, got %d", name, units)
	}
	return &Dense{name: name, units: units, useBias: useBias, init: init}, nil
}

func (d *Dense) build(in int) {
	d.kernel = d.init.SmallNormal(in, d.units)
	if d.useBias {
		d.bias = d.init.SmallNormal(d.units)
	}
}

func (d *Dense) bind(g *gorgonia.ExprGraph) {
	d.graph = g
	d.kernelNode = param(g, d.kernel, d.name+"/kernel")
	if d.useBias {
		d.biasNode = param(g, d.bias, d.name+"/bias")
	}
}

func (d *Dense) Forward(x *gorgonia.Node, _ Mode) (*gorgonia.Node, error) {
	if x.Dims() < 1 {
		return nil, fmt.Errorf("dense %s: scalar input", d.name)
	}
	in := x.Shape()[x.Dims()-1]
	if d.kernel == nil {
		d.build(in)
	} else if d.kernel.Shape()[0] != in {
		return nil, fmt.Errorf("dense %s: input width %d, layer built for %d", d.name, in, d.kernel.Shape()[0])
	}
	if g := x.Graph(); g != d.graph {
		d.bind(g)
	}
	y, err := matmulLast(x, d.kernelNode)
	if err != nil {
		return nil, fmt.Errorf("dense %s: %w", d.name, err)
	}
	if !d.useBias {
		return y, nil
	}
	keep := make(tensor.Shape, y.Dims())
	for i := range keep {
		keep[i] = 1
	}
	keep[len(keep)-1] = d.units
	b, err := gorgonia.Reshape(d.biasNode, keep)
	if err != nil {
		return nil, fmt.Errorf("dense %s bias: %w", d.name, err)
	}
	axes := make([]byte, 0, y.Dims()-1)
	for i := 0; i < y.Dims()-1; i++ {
		axes = append(axes, byte(i))
	}
	out, err := gorgonia.BroadcastAdd(y, b, nil, axes)
	if err != nil {
		return nil, fmt.Errorf("dense %s bias: %w", d.name, err)
	}
	return out, nil
}

func (d *Dense) Learnables() gorgonia.Nodes {
	if d.kernelNode == nil {
		return nil
	}
	if d.useBias {
		return gorgonia.Nodes{d.kernelNode, d.biasNode}
	}
	return gorgonia.Nodes{d.kernelNode}
}

func (d *Dense) Params() map[string]*tensor.Dense {
	p := map[string]*tensor.Dense{}
	if d.kernel != nil {
		p[d.name+"/kernel"] = d.kernel
	}
	if d.bias != nil {
		p[d.name+"/bias"] = d.bias
	}
	return p
}

func (d *Dense) Restore(params map[string]*tensor.Dense) error {
	if err := restoreTensor(&d.kernel, params, d.name+"/kernel"); err != nil {
		return err
	}
	if d.useBias {
		if err := restoreTensor(&d.bias, params, d.name+"/bias"); err != nil {
			return err
		}
	}
	d.graph = nil // force a rebind against the restored tensors
	return nil
}

package nn

import (
	"fmt"
	"math"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Attention is causal self-attention over the axis before last:
// [.., T, D] -> [.., T, headDim]. Key, query and value projections use
// independent kernels; scores are scaled by sqrt(headDim) and masked so a
// position only attends to itself and earlier positions. A single-position
// sequence degenerates to the value projection.
type Attention struct {
	name      string
	headDim   int
	headCount int
	init      *Init

	key   *tensor.Dense // [D, headDim]
	query *tensor.Dense
	value *tensor.Dense

	graph     *gorgonia.ExprGraph
	keyNode   *gorgonia.Node
	queryNode *gorgonia.Node
	valueNode *gorgonia.Node
}

func NewAttention(name string, headDim, headCount int, init *Init) (*Attention, error) {
	if headDim < 1 {
		return nil, fmt.Errorf("attention %s: headDim must be positive, got %d", name, headDim)
	}
	if headCount != 1 {
		return nil, fmt.Errorf("attention %s: headCount %d unsupported, must be 1", name, headCount)
	}
	return &Attention{name: name, headDim: headDim, headCount: headCount, init: init}, nil
}

// causalMask is additive: 0 at or below the diagonal, a large negative value
// above it so masked scores vanish under softmax.
func causalMask(t int) *tensor.Dense {
	backing := make([]float32, t*t)
	for i := 0; i < t; i++ {
		for j := i + 1; j < t; j++ {
			backing[i*t+j] = -1e9
		}
	}
	return tensor.New(tensor.WithShape(1, t, t), tensor.WithBacking(backing))
}

func (a *Attention) Forward(x *gorgonia.Node, mode Mode) (*gorgonia.Node, error) {
	if x.Dims() != 2 && x.Dims() != 3 {
		return nil, fmt.Errorf("attention %s: want [.., T, D] of rank 2 or 3, got rank %d", a.name, x.Dims())
	}
	shape := x.Shape()
	in := shape[len(shape)-1]
	t := shape[len(shape)-2]
	if a.key == nil {
		a.key = a.init.SmallNormal(in, a.headDim)
		a.query = a.init.SmallNormal(in, a.headDim)
		a.value = a.init.SmallNormal(in, a.headDim)
	} else if a.key.Shape()[0] != in {
		return nil, fmt.Errorf("attention %s: input width %d, layer built for %d", a.name, in, a.key.Shape()[0])
	}
	if g := x.Graph(); g != a.graph {
		a.graph = g
		a.keyNode = param(g, a.key, a.name+"/key")
		a.queryNode = param(g, a.query, a.name+"/query")
		a.valueNode = param(g, a.value, a.name+"/value")
	}

	squeeze := false
	if x.Dims() == 2 {
		var err error
		if x, err = gorgonia.Reshape(x, tensor.Shape{1, t, in}); err != nil {
			return nil, fmt.Errorf("attention %s: %w", a.name, err)
		}
		squeeze = true
	}

	q, err := matmulLast(x, a.queryNode)
	if err != nil {
		return nil, fmt.Errorf("attention %s query: %w", a.name, err)
	}
	k, err := matmulLast(x, a.keyNode)
	if err != nil {
		return nil, fmt.Errorf("attention %s key: %w", a.name, err)
	}
	v, err := matmulLast(x, a.valueNode)
	if err != nil {
		return nil, fmt.Errorf("attention %s value: %w", a.name, err)
	}

	kt, err := gorgonia.Transpose(k, 0, 2, 1)
	if err != nil {
		return nil, fmt.Errorf("attention %s: %w", a.name, err)
	}
	scores, err := gorgonia.BatchedMatMul(q, kt)
	if err != nil {
		return nil, fmt.Errorf("attention %s scores: %w", a.name, err)
	}
	scores, err = gorgonia.Div(scores, scalar(a.graph, float32(math.Sqrt(float64(a.headDim)))))
	if err != nil {
		return nil, fmt.Errorf("attention %s scale: %w", a.name, err)
	}
	if t > 1 {
		mask := gorgonia.NodeFromAny(a.graph, causalMask(t), gorgonia.WithName(a.name+"/mask"))
		if scores, err = gorgonia.BroadcastAdd(scores, mask, nil, []byte{0}); err != nil {
			return nil, fmt.Errorf("attention %s mask: %w", a.name, err)
		}
	}
	probs, err := gorgonia.SoftMax(scores, 2)
	if err != nil {
		return nil, fmt.Errorf("attention %s softmax: %w", a.name, err)
	}
	out, err := gorgonia.BatchedMatMul(probs, v)
	if err != nil {
		return nil, fmt.Errorf("attention %s: %w", a.name, err)
	}
	if squeeze {
		return gorgonia.Reshape(out, tensor.Shape{t, a.headDim})
	}
	return out, nil
}

func (a *Attention) Learnables() gorgonia.Nodes {
	if a.keyNode == nil {
		return nil
	}
	return gorgonia.Nodes{a.keyNode, a.queryNode, a.valueNode}
}

func (a *Attention) Params() map[string]*tensor.Dense {
	p := map[string]*tensor.Dense{}
	if a.key != nil {
		p[a.name+"/key"] = a.key
		p[a.name+"/query"] = a.query
		p[a.name+"/value"] = a.value
	}
	return p
}

func (a *Attention) Restore(params map[string]*tensor.Dense) error {
	if err := restoreTensor(&a.key, params, a.name+"/key"); err != nil {
		return err
	}
	if err := restoreTensor(&a.query, params, a.name+"/query"); err != nil {
		return err
	}
	if err := restoreTensor(&a.value, params, a.name+"/value"); err != nil {
		return err
	}
	a.graph = nil
	return nil
}

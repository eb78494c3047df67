package nn

import (
	"fmt"
	"math"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Embedding projects one-hot symbol rows [..., inputDim] to dense vectors
// [..., outputDim] through a content kernel. With AddPosition set, a second
// kernel projects a fixed normalized position index sequence of length T
// (the axis before last) and the result is broadcast-added to the content
// term. One-hot expansion of raw ids lives in the pipeline package.
type Embedding struct {
	name        string
	inputDim    int
	outputDim   int
	addPosition bool
	init        *Init

	content  *tensor.Dense // [inputDim, outputDim]
	position *tensor.Dense // [T, outputDim]
	timeDim  int

	graph        *gorgonia.ExprGraph
	contentNode  *gorgonia.Node
	positionNode *gorgonia.Node
}

func NewEmbedding(name string, inputDim, outputDim int, addPosition bool, init *Init) (*Embedding, error) {
	if inputDim < 1 || outputDim < 1 {
		return nil, fmt.Errorf("embedding %s: dims must be positive, got %d -> %d", name, inputDim, outputDim)
	}
	return &Embedding{name: name, inputDim: inputDim, outputDim: outputDim, addPosition: addPosition, init: init}, nil
}

// positionDiag lays the mean/stddev-normalized indices 0..T-1 on a diagonal.
// The statistics are computed over the index sequence itself, exactly as the
// layer has always done; a single-position sequence normalizes to zero.
func positionDiag(t int) *tensor.Dense {
	mean := float64(t-1) / 2
	variance := 0.0
	for i := 0; i < t; i++ {
		d := float64(i) - mean
		variance += d * d
	}
	stddev := math.Sqrt(variance / float64(t))
	backing := make([]float32, t*t)
	for i := 0; i < t; i++ {
		v := 0.0
		if stddev > 0 {
			v = (float64(i) - mean) / stddev
		}
		backing[i*t+i] = float32(v)
	}
	return tensor.New(tensor.WithShape(t, t), tensor.WithBacking(backing))
}

func (e *Embedding) Forward(x *gorgonia.Node, _ Mode) (*gorgonia.Node, error) {
	if x.Dims() < 1 {
		return nil, fmt.Errorf("embedding %s: scalar input", e.name)
	}
	if got := x.Shape()[x.Dims()-1]; got != e.inputDim {
		return nil, fmt.Errorf("embedding %s: one-hot width %d, want %d", e.name, got, e.inputDim)
	}
	if e.addPosition && x.Dims() < 2 {
		return nil, fmt.Errorf("embedding %s: positional term needs a sequence axis", e.name)
	}
	if e.content == nil {
		e.content = e.init.GlorotUniform(e.inputDim, e.outputDim)
	}
	if e.addPosition {
		t := x.Shape()[x.Dims()-2]
		if e.position == nil {
			e.position = e.init.SmallNormal(t, e.outputDim)
			e.timeDim = t
		} else if e.timeDim != t {
			return nil, fmt.Errorf("embedding %s: sequence length %d, layer built for %d", e.name, t, e.timeDim)
		}
	}
	if g := x.Graph(); g != e.graph {
		e.graph = g
		e.contentNode = param(g, e.content, e.name+"/content-kernel")
		if e.addPosition {
			e.positionNode = param(g, e.position, e.name+"/position-kernel")
		}
	}

	y, err := matmulLast(x, e.contentNode)
	if err != nil {
		return nil, fmt.Errorf("embedding %s: %w", e.name, err)
	}
	if !e.addPosition {
		return y, nil
	}

	diag := gorgonia.NodeFromAny(e.graph, positionDiag(e.timeDim), gorgonia.WithName(e.name+"/positions"))
	pos, err := gorgonia.Mul(diag, e.positionNode)
	if err != nil {
		return nil, fmt.Errorf("embedding %s position: %w", e.name, err)
	}
	if y.Dims() == 2 {
		return gorgonia.Add(y, pos)
	}
	keep := make(tensor.Shape, y.Dims())
	for i := range keep {
		keep[i] = 1
	}
	keep[len(keep)-2] = e.timeDim
	keep[len(keep)-1] = e.outputDim
	pos, err = gorgonia.Reshape(pos, keep)
	if err != nil {
		return nil, fmt.Errorf("embedding %s position: %w", e.name, err)
	}
	axes := make([]byte, 0, y.Dims()-2)
	for i := 0; i < y.Dims()-2; i++ {
		axes = append(axes, byte(i))
	}
	out, err := gorgonia.BroadcastAdd(y, pos, nil, axes)
	if err != nil {
		return nil, fmt.Errorf("embedding %s position: %w", e.name, err)
	}
	return out, nil
}

func (e *Embedding) Learnables() gorgonia.Nodes {
	if e.contentNode == nil {
		return nil
	}
	if e.positionNode != nil {
		return gorgonia.Nodes{e.contentNode, e.positionNode}
	}
	return gorgonia.Nodes{e.contentNode}
}

func (e *Embedding) Params() map[string]*tensor.Dense {
	p := map[string]*tensor.Dense{}
	if e.content != nil {
		p[e.name+"/content-kernel"] = e.content
	}
	if e.position != nil {
		p[e.name+"/position-kernel"] = e.position
	}
	return p
}

func (e *Embedding) Restore(params map[string]*tensor.Dense) error {
	if err := restoreTensor(&e.content, params, e.name+"/content-kernel"); err != nil {
		return err
	}
	if e.addPosition {
		if err := restoreTensor(&e.position, params, e.name+"/position-kernel"); err != nil {
			return err
		}
		e.timeDim = e.position.Shape()[0]
	}
	e.graph = nil
	return nil
}

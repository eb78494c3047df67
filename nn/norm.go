package nn

import (
	"fmt"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Normalization keeps running mean/stddev plus a trainable gain and bias over
// every axis except the reduced one. The batch variant reduces axis 0 and
// keeps per-feature statistics; the layer variant reduces the feature axis
// and keeps per-sample statistics. The computation is identical, only the
// reduced axis differs.
//
// In Training mode the statistics used for normalization are the
// exponentially smoothed blend momentum·running + (1-momentum)·batch; the
// blend is read out of the graph and written back to the running tensors by
// CommitStats after the optimizer step. Inference mode uses the stored
// running values and never mutates them.
type Normalization struct {
	name     string
	axis     int
	momentum float32
	epsilon  float32
	init     *Init

	gain    *tensor.Dense
	bias    *tensor.Dense
	runMean *tensor.Dense
	runStd  *tensor.Dense

	graph    *gorgonia.ExprGraph
	gainNode *gorgonia.Node
	biasNode *gorgonia.Node
	meanNode *gorgonia.Node
	stdNode  *gorgonia.Node

	pendingMean gorgonia.Value
	pendingStd  gorgonia.Value
}

// NewBatchNorm normalizes over the batch axis (axis 0).
func NewBatchNorm(name string, momentum, epsilon float32, init *Init) *Normalization {
	return &Normalization{name: name, axis: 0, momentum: momentum, epsilon: epsilon, init: init}
}

// NewLayerNorm normalizes over the feature axis (last axis).
func NewLayerNorm(name string, momentum, epsilon float32, init *Init) *Normalization {
	return &Normalization{name: name, axis: -1, momentum: momentum, epsilon: epsilon, init: init}
}

func (n *Normalization) build(shape tensor.Shape, ax int) {
	stat := make([]int, 0, len(shape)-1)
	for i, d := range shape {
		if i != ax {
			stat = append(stat, d)
		}
	}
	n.gain = n.init.Ones(stat...)
	n.bias = n.init.Zeros(stat...)
	n.runMean = n.init.Zeros(stat...)
	n.runStd = n.init.Ones(stat...)
}

func (n *Normalization) Forward(x *gorgonia.Node, mode Mode) (*gorgonia.Node, error) {
	if x.Dims() < 2 {
		return nil, fmt.Errorf("normalization %s: want rank >= 2, got %d", n.name, x.Dims())
	}
	shape := x.Shape()
	ax := n.axis
	if ax < 0 {
		ax += x.Dims()
	}
	keep := make(tensor.Shape, len(shape))
	copy(keep, shape)
	keep[ax] = 1
	if n.gain == nil {
		n.build(shape, ax)
	} else if n.gain.Shape().TotalSize() != keep.TotalSize() {
		return nil, fmt.Errorf("normalization %s: input shape %v, layer built for stats %v", n.name, shape, n.gain.Shape())
	}
	if g := x.Graph(); g != n.graph {
		n.graph = g
		n.gainNode = param(g, n.gain, n.name+"/gain")
		n.biasNode = param(g, n.bias, n.name+"/bias")
		n.meanNode = param(g, n.runMean, n.name+"/mean")
		n.stdNode = param(g, n.runStd, n.name+"/stddev")
	}

	runMean, err := gorgonia.Reshape(n.meanNode, keep)
	if err != nil {
		return nil, fmt.Errorf("normalization %s: %w", n.name, err)
	}
	runStd, err := gorgonia.Reshape(n.stdNode, keep)
	if err != nil {
		return nil, fmt.Errorf("normalization %s: %w", n.name, err)
	}

	mean, stddev := runMean, runStd
	if mode == Training {
		batchMean, err := gorgonia.Mean(x, ax)
		if err != nil {
			return nil, fmt.Errorf("normalization %s mean: %w", n.name, err)
		}
		if batchMean, err = gorgonia.Reshape(batchMean, keep); err != nil {
			return nil, fmt.Errorf("normalization %s mean: %w", n.name, err)
		}
		centered, err := gorgonia.BroadcastSub(x, batchMean, nil, []byte{byte(ax)})
		if err != nil {
			return nil, fmt.Errorf("normalization %s: %w", n.name, err)
		}
		sq, err := gorgonia.Square(centered)
		if err != nil {
			return nil, err
		}
		batchVar, err := gorgonia.Mean(sq, ax)
		if err != nil {
			return nil, fmt.Errorf("normalization %s variance: %w", n.name, err)
		}
		if batchVar, err = gorgonia.Reshape(batchVar, keep); err != nil {
			return nil, err
		}
		batchStd, err := gorgonia.Sqrt(batchVar)
		if err != nil {
			return nil, err
		}
		if mean, err = n.blend(runMean, batchMean); err != nil {
			return nil, fmt.Errorf("normalization %s: %w", n.name, err)
		}
		if stddev, err = n.blend(runStd, batchStd); err != nil {
			return nil, fmt.Errorf("normalization %s: %w", n.name, err)
		}
		gorgonia.Read(mean, &n.pendingMean)
		gorgonia.Read(stddev, &n.pendingStd)
	}

	floor, err := gorgonia.Add(stddev, scalar(n.graph, n.epsilon))
	if err != nil {
		return nil, err
	}
	centered, err := gorgonia.BroadcastSub(x, mean, nil, []byte{byte(ax)})
	if err != nil {
		return nil, fmt.Errorf("normalization %s: %w", n.name, err)
	}
	normalized, err := gorgonia.BroadcastHadamardDiv(centered, floor, nil, []byte{byte(ax)})
	if err != nil {
		return nil, fmt.Errorf("normalization %s: %w", n.name, err)
	}
	gainKeep, err := gorgonia.Reshape(n.gainNode, keep)
	if err != nil {
		return nil, err
	}
	biasKeep, err := gorgonia.Reshape(n.biasNode, keep)
	if err != nil {
		return nil, err
	}
	scaled, err := gorgonia.BroadcastHadamardProd(normalized, gainKeep, nil, []byte{byte(ax)})
	if err != nil {
		return nil, fmt.Errorf("normalization %s: %w", n.name, err)
	}
	out, err := gorgonia.BroadcastAdd(scaled, biasKeep, nil, []byte{byte(ax)})
	if err != nil {
		return nil, fmt.Errorf("normalization %s: %w", n.name, err)
	}
	return out, nil
}

func (n *Normalization) blend(running, batch *gorgonia.Node) (*gorgonia.Node, error) {
	old, err := gorgonia.Mul(scalar(n.graph, n.momentum), running)
	if err != nil {
		return nil, err
	}
	fresh, err := gorgonia.Mul(scalar(n.graph, 1-n.momentum), batch)
	if err != nil {
		return nil, err
	}
	return gorgonia.Add(old, fresh)
}

// CommitStats writes the statistics read during the last Training-mode run
// into the running tensors. A no-op before any training pass.
func (n *Normalization) CommitStats() {
	if n.pendingMean == nil || n.pendingStd == nil {
		return
	}
	copy(n.runMean.Data().([]float32), n.pendingMean.Data().([]float32))
	copy(n.runStd.Data().([]float32), n.pendingStd.Data().([]float32))
}

// RunningStats returns copies of the running mean and stddev.
func (n *Normalization) RunningStats() (mean, stddev *tensor.Dense) {
	if n.runMean == nil {
		return nil, nil
	}
	return n.runMean.Clone().(*tensor.Dense), n.runStd.Clone().(*tensor.Dense)
}

func (n *Normalization) Learnables() gorgonia.Nodes {
	if n.gainNode == nil {
		return nil
	}
	return gorgonia.Nodes{n.gainNode, n.biasNode}
}

func (n *Normalization) Params() map[string]*tensor.Dense {
	p := map[string]*tensor.Dense{}
	if n.gain != nil {
		p[n.name+"/gain"] = n.gain
		p[n.name+"/bias"] = n.bias
		p[n.name+"/mean"] = n.runMean
		p[n.name+"/stddev"] = n.runStd
	}
	return p
}

func (n *Normalization) Restore(params map[string]*tensor.Dense) error {
	for _, f := range []struct {
		dst *(*tensor.Dense)
		key string
	}{
		{&n.gain, n.name + "/gain"},
		{&n.bias, n.name + "/bias"},
		{&n.runMean, n.name + "/mean"},
		{&n.runStd, n.name + "/stddev"},
	} {
		if err := restoreTensor(f.dst, params, f.key); err != nil {
			return err
		}
	}
	n.graph = nil
	return nil
}

package nn

import (
	"fmt"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// CategoricalCrossEntropy compares probability rows against one-hot targets:
// the mean over rows of -sum(target · log(prob + eps)). Both nodes must share
// a shape whose last axis is the vocabulary.
func CategoricalCrossEntropy(probs, target *gorgonia.Node) (*gorgonia.Node, error) {
	if !probs.Shape().Eq(target.Shape()) {
		return nil, fmt.Errorf("cross entropy: shape %v vs target %v", probs.Shape(), target.Shape())
	}
	g := probs.Graph()
	shifted, err := gorgonia.Add(probs, scalar(g, float32(1e-8)))
	if err != nil {
		return nil, err
	}
	logp, err := gorgonia.Log(shifted)
	if err != nil {
		return nil, err
	}
	weighted, err := gorgonia.HadamardProd(target, logp)
	if err != nil {
		return nil, err
	}
	perRow, err := gorgonia.Sum(weighted, probs.Dims()-1)
	if err != nil {
		return nil, err
	}
	mean, err := gorgonia.Mean(perRow)
	if err != nil {
		return nil, err
	}
	return gorgonia.Neg(mean)
}

// Accuracy is the argmax match rate between probability rows and one-hot
// target rows, computed on host values.
func Accuracy(probs, target tensor.Tensor) (float64, error) {
	if !probs.Shape().Eq(target.Shape()) {
		return 0, fmt.Errorf("accuracy: shape %v vs target %v", probs.Shape(), target.Shape())
	}
	if probs.Dims() < 2 {
		return 0, fmt.Errorf("accuracy: want rank >= 2, got %d", probs.Dims())
	}
	axis := probs.Dims() - 1
	predicted, err := tensor.Argmax(probs, axis)
	if err != nil {
		return 0, err
	}
	wanted, err := tensor.Argmax(target, axis)
	if err != nil {
		return 0, err
	}
	p := predicted.Data().([]int)
	w := wanted.Data().([]int)
	if len(p) == 0 {
		return 0, fmt.Errorf("accuracy: empty input")
	}
	hits := 0
	for i := range p {
		if p[i] == w[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(p)), nil
}

package nn

import (
	"testing"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func runGraph(t *testing.T, g *gorgonia.ExprGraph) {
	t.Helper()
	vm := gorgonia.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func inputNode(g *gorgonia.ExprGraph, name string, backing []float32, shape ...int) *gorgonia.Node {
	return gorgonia.NodeFromAny(g,
		tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing)),
		gorgonia.WithName(name))
}

func valueData(t *testing.T, n *gorgonia.Node) []float32 {
	t.Helper()
	v := n.Value()
	if v == nil {
		t.Fatal("node has no value")
	}
	return v.Data().([]float32)
}

func seq(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i)
	}
	return out
}

func almostEqual(a, b, tol float32) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}

package nn

import (
	"math"
	"testing"

	"gorgonia.org/gorgonia"
)

// With fresh running statistics (mean 0, stddev 1) and unit gain, inference
// reduces to x / (1 + epsilon), and repeating it never moves the statistics.
func TestBatchNormInferenceIdempotent(t *testing.T) {
	n := NewBatchNorm("norm", 0.99, 0.001, NewInit(1))
	in := []float32{1, -2, 3, 0.5}

	forward := func(name string) []float32 {
		g := gorgonia.NewGraph()
		out, err := n.Forward(inputNode(g, name, in, 2, 2), Inference)
		if err != nil {
			t.Fatalf("forward %s: %v", name, err)
		}
		runGraph(t, g)
		return valueData(t, out)
	}

	first := forward("a")
	second := forward("b")
	for i := range first {
		want := in[i] / 1.001
		if !almostEqual(first[i], want, 1e-6) {
			t.Fatalf("out[%d] = %v, want %v", i, first[i], want)
		}
		if first[i] != second[i] {
			t.Fatalf("inference not idempotent at %d: %v vs %v", i, first[i], second[i])
		}
	}

	mean, stddev := n.RunningStats()
	for _, m := range mean.Data().([]float32) {
		if m != 0 {
			t.Fatalf("inference moved running mean: %v", m)
		}
	}
	for _, s := range stddev.Data().([]float32) {
		if s != 1 {
			t.Fatalf("inference moved running stddev: %v", s)
		}
	}
}

func TestBatchNormCommitStats(t *testing.T) {
	const momentum = 0.9
	n := NewBatchNorm("norm", momentum, 0.001, NewInit(1))

	// column means: (1+3)/2 = 2 and (2+6)/2 = 4; both columns deviate by
	// +-1 and +-2 from their mean, so batch stddev is 1 and 2.
	in := []float32{1, 2, 3, 6}
	g := gorgonia.NewGraph()
	if _, err := n.Forward(inputNode(g, "x", in, 2, 2), Training); err != nil {
		t.Fatalf("forward: %v", err)
	}
	runGraph(t, g)
	n.CommitStats()

	mean, stddev := n.RunningStats()
	wantMean := []float32{momentum*0 + (1-momentum)*2, momentum*0 + (1-momentum)*4}
	wantStd := []float32{momentum*1 + (1-momentum)*1, momentum*1 + (1-momentum)*2}
	for i, m := range mean.Data().([]float32) {
		if !almostEqual(m, wantMean[i], 1e-5) {
			t.Fatalf("running mean[%d] = %v, want %v", i, m, wantMean[i])
		}
	}
	for i, s := range stddev.Data().([]float32) {
		if !almostEqual(s, wantStd[i], 1e-5) {
			t.Fatalf("running stddev[%d] = %v, want %v", i, s, wantStd[i])
		}
	}
}

// A constant column has zero batch stddev; epsilon must keep the output finite.
func TestBatchNormConstantInput(t *testing.T) {
	n := NewBatchNorm("norm", 0.99, 0.001, NewInit(1))

	g := gorgonia.NewGraph()
	out, err := n.Forward(inputNode(g, "x", []float32{5, 5, 5, 5}, 2, 2), Training)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	runGraph(t, g)
	for i, v := range valueData(t, out) {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("out[%d] not finite: %v", i, v)
		}
	}
}

// The layer variant reduces the feature axis, so statistics are per sample:
// one mean per row, tracking each row's feature mean.
func TestLayerNormAxis(t *testing.T) {
	const momentum = 0.9
	n := NewLayerNorm("norm", momentum, 0.001, NewInit(1))

	g := gorgonia.NewGraph()
	if _, err := n.Forward(inputNode(g, "x", []float32{1, 2, 3, 11, 12, 13}, 2, 3), Training); err != nil {
		t.Fatalf("forward: %v", err)
	}
	runGraph(t, g)
	n.CommitStats()

	mean, _ := n.RunningStats()
	got := mean.Data().([]float32)
	if len(got) != 2 {
		t.Fatalf("want one statistic per sample, got %d", len(got))
	}
	wantMean := []float32{(1 - momentum) * 2, (1 - momentum) * 12}
	for i := range got {
		if !almostEqual(got[i], wantMean[i], 1e-5) {
			t.Fatalf("running mean[%d] = %v, want %v", i, got[i], wantMean[i])
		}
	}
}

func TestNormalizationShapeMismatch(t *testing.T) {
	n := NewBatchNorm("norm", 0.99, 0.001, NewInit(1))

	g := gorgonia.NewGraph()
	if _, err := n.Forward(inputNode(g, "x", seq(6), 2, 3), Inference); err != nil {
		t.Fatalf("first forward: %v", err)
	}
	g2 := gorgonia.NewGraph()
	if _, err := n.Forward(inputNode(g2, "y", seq(8), 2, 4), Inference); err == nil {
		t.Fatal("want error for feature width changing after build")
	}
}

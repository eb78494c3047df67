package nn

import (
	"math/rand"
	"testing"

	"gorgonia.org/gorgonia"
)

func TestAttentionShapes(t *testing.T) {
	a, err := NewAttention("attn", 4, 1, NewInit(1))
	if err != nil {
		t.Fatalf("NewAttention: %v", err)
	}

	g := gorgonia.NewGraph()
	x := inputNode(g, "x", seq(24), 2, 3, 4)
	out, err := a.Forward(x, Inference)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	runGraph(t, g)
	if s := out.Shape(); s[0] != 2 || s[1] != 3 || s[2] != 4 {
		t.Fatalf("shape = %v, want (2, 3, 4)", s)
	}
}

// A position may only attend to itself and earlier positions: perturbing the
// last row of the input must leave all earlier output rows unchanged.
func TestAttentionCausal(t *testing.T) {
	const (
		seqLen = 5
		width  = 4
	)
	a, err := NewAttention("attn", width, 1, NewInit(3))
	if err != nil {
		t.Fatalf("NewAttention: %v", err)
	}

	rng := rand.New(rand.NewSource(11))
	base := make([]float32, seqLen*width)
	for i := range base {
		base[i] = float32(rng.NormFloat64())
	}
	bumped := make([]float32, len(base))
	copy(bumped, base)
	for j := 0; j < width; j++ {
		bumped[(seqLen-1)*width+j] += 10
	}

	forward := func(name string, backing []float32) []float32 {
		g := gorgonia.NewGraph()
		out, err := a.Forward(inputNode(g, name, backing, seqLen, width), Inference)
		if err != nil {
			t.Fatalf("forward %s: %v", name, err)
		}
		runGraph(t, g)
		return valueData(t, out)
	}

	ref := forward("base", base)
	got := forward("bumped", bumped)
	for i := 0; i < (seqLen-1)*width; i++ {
		if !almostEqual(ref[i], got[i], 1e-6) {
			t.Fatalf("row %d leaked future input: %v vs %v", i/width, ref[i], got[i])
		}
	}
}

// With a single position the softmax weight is 1, so attention reduces to the
// value projection.
func TestAttentionSinglePosition(t *testing.T) {
	a, err := NewAttention("attn", 2, 1, NewInit(5))
	if err != nil {
		t.Fatalf("NewAttention: %v", err)
	}

	in := []float32{0.5, -1, 2}
	g := gorgonia.NewGraph()
	out, err := a.Forward(inputNode(g, "x", in, 1, 3), Inference)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	runGraph(t, g)
	got := valueData(t, out)

	value := a.Params()["attn/value"].Data().([]float32) // [3, 2]
	for j := 0; j < 2; j++ {
		var want float32
		for i := 0; i < 3; i++ {
			want += in[i] * value[i*2+j]
		}
		if !almostEqual(got[j], want, 1e-6) {
			t.Fatalf("out[%d] = %v, want value projection %v", j, got[j], want)
		}
	}
}

func TestAttentionRejectsMultiHead(t *testing.T) {
	if _, err := NewAttention("attn", 4, 2, NewInit(1)); err == nil {
		t.Fatal("want error for more than one head")
	}
}

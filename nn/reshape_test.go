package nn

import (
	"testing"

	"gorgonia.org/gorgonia"
)

func mustMerge(t *testing.T, axis, n int) *Merge {
	t.Helper()
	m, err := NewMerge(axis, n)
	if err != nil {
		t.Fatalf("NewMerge(%d, %d): %v", axis, n, err)
	}
	return m
}

func mustReshape(t *testing.T, target ...int) *Reshape {
	t.Helper()
	r, err := NewReshape(target...)
	if err != nil {
		t.Fatalf("NewReshape(%v): %v", target, err)
	}
	return r
}

func TestMergeFoldsAxis(t *testing.T) {
	g := gorgonia.NewGraph()
	x := inputNode(g, "x", seq(24), 6, 4)

	out, err := mustMerge(t, -2, 3).Forward(x, Inference)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	runGraph(t, g)

	if s := out.Shape(); s[0] != 2 || s[1] != 12 {
		t.Fatalf("shape = %v, want (2, 12)", s)
	}
	// Folding is a pure relabelling of the row-major layout.
	got := valueData(t, out)
	for i, v := range seq(24) {
		if got[i] != v {
			t.Fatalf("data[%d] = %v, want %v", i, got[i], v)
		}
	}
}

func TestMergeIndivisible(t *testing.T) {
	g := gorgonia.NewGraph()
	x := inputNode(g, "x", seq(20), 5, 4)

	if _, err := mustMerge(t, -2, 3).Forward(x, Inference); err == nil {
		t.Fatal("want error for axis not divisible by group")
	}
}

func TestMergeSplitRoundTrip(t *testing.T) {
	g := gorgonia.NewGraph()
	x := inputNode(g, "x", seq(24), 6, 4)

	merged, err := mustMerge(t, -2, 2).Forward(x, Inference)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	back, err := mustReshape(t, 6, 4).Forward(merged, Inference)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	runGraph(t, g)

	got := valueData(t, back)
	for i, v := range seq(24) {
		if got[i] != v {
			t.Fatalf("roundtrip data[%d] = %v, want %v", i, got[i], v)
		}
	}
}

func TestMergeRejectsBadFactor(t *testing.T) {
	if _, err := NewMerge(-2, 0); err == nil {
		t.Fatal("want error for non-positive factor")
	}
}

func TestReshapeWildcard(t *testing.T) {
	g := gorgonia.NewGraph()
	x := inputNode(g, "x", seq(24), 3, 8)

	out, err := mustReshape(t, -1, 4).Forward(x, Inference)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	runGraph(t, g)

	if s := out.Shape(); s[0] != 6 || s[1] != 4 {
		t.Fatalf("shape = %v, want (6, 4)", s)
	}
}

func TestReshapeCountMismatch(t *testing.T) {
	g := gorgonia.NewGraph()
	x := inputNode(g, "x", seq(24), 6, 4)

	if _, err := mustReshape(t, 4, 5).Forward(x, Inference); err == nil {
		t.Fatal("want error for element count mismatch")
	}
}

func TestReshapeRejectsTwoWildcards(t *testing.T) {
	if _, err := NewReshape(-1, -1, 4); err == nil {
		t.Fatal("want error for more than one inferred dimension")
	}
}

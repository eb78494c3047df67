package nn

import (
	"testing"

	"gorgonia.org/gorgonia"
)

func TestDenseShapes(t *testing.T) {
	d, err := NewDense("proj", 5, true, NewInit(1))
	if err != nil {
		t.Fatalf("NewDense: %v", err)
	}

	g := gorgonia.NewGraph()
	x := inputNode(g, "x", seq(12), 4, 3)
	out, err := d.Forward(x, Training)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	runGraph(t, g)
	if s := out.Shape(); s[0] != 4 || s[1] != 5 {
		t.Fatalf("shape = %v, want (4, 5)", s)
	}
}

func TestDenseRank3(t *testing.T) {
	d, err := NewDense("proj", 5, false, NewInit(1))
	if err != nil {
		t.Fatalf("NewDense: %v", err)
	}

	g := gorgonia.NewGraph()
	x := inputNode(g, "x", seq(24), 2, 3, 4)
	out, err := d.Forward(x, Inference)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	runGraph(t, g)
	if s := out.Shape(); s[0] != 2 || s[1] != 3 || s[2] != 5 {
		t.Fatalf("shape = %v, want (2, 3, 5)", s)
	}
}

func TestDenseWidthMismatch(t *testing.T) {
	d, err := NewDense("proj", 5, false, NewInit(1))
	if err != nil {
		t.Fatalf("NewDense: %v", err)
	}

	g := gorgonia.NewGraph()
	if _, err := d.Forward(inputNode(g, "x", seq(12), 4, 3), Inference); err != nil {
		t.Fatalf("first forward: %v", err)
	}

	g2 := gorgonia.NewGraph()
	if _, err := d.Forward(inputNode(g2, "y", seq(16), 4, 4), Inference); err == nil {
		t.Fatal("want error for input width changing after build")
	}
}

func TestDenseSeedDeterminism(t *testing.T) {
	forward := func(seed int64) []float32 {
		d, err := NewDense("proj", 4, true, NewInit(seed))
		if err != nil {
			t.Fatalf("NewDense: %v", err)
		}
		g := gorgonia.NewGraph()
		out, err := d.Forward(inputNode(g, "x", seq(6), 2, 3), Inference)
		if err != nil {
			t.Fatalf("forward: %v", err)
		}
		runGraph(t, g)
		return valueData(t, out)
	}

	a, b := forward(7), forward(7)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed, output[%d] differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestDenseRejectsBadUnits(t *testing.T) {
	if _, err := NewDense("proj", 0, false, NewInit(1)); err == nil {
		t.Fatal("want error for non-positive units")
	}
}

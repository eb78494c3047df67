package train

import (
	"testing"

	"tokenfold/pipeline"
)

func TestExtractEmbeddingsDepths(t *testing.T) {
	m := tinyModel(t)
	ids := pipeline.Encode("abababcd")
	for i, id := range ids {
		ids[i] = id % 3 // fold bytes into the tiny vocabulary
	}

	// Depth 0: unique single symbols. Depth 1: unique symbol pairs.
	table, err := ExtractEmbeddings(m, ids, 0, 0)
	if err != nil {
		t.Fatalf("depth 0: %v", err)
	}
	if rows, cols := table.Vectors.Dims(); rows != len(table.Labels) || cols != 8 {
		t.Fatalf("depth 0: %d labels, vectors %dx%d", len(table.Labels), rows, cols)
	}

	table, err = ExtractEmbeddings(m, ids, 1, 0)
	if err != nil {
		t.Fatalf("depth 1: %v", err)
	}
	if rows, _ := table.Vectors.Dims(); rows != len(table.Labels) {
		t.Fatalf("depth 1: %d labels for %d vectors", len(table.Labels), rows)
	}
	seen := map[string]bool{}
	for _, l := range table.Labels {
		if len(l) != 2 {
			t.Fatalf("depth-1 token %q, want 2 symbols", l)
		}
		if seen[l] {
			t.Fatalf("duplicate token %q", l)
		}
		seen[l] = true
	}

	if _, err := ExtractEmbeddings(m, ids, 2, 0); err == nil {
		t.Fatal("want error for depth beyond the model")
	}
}

func TestExtractEmbeddingsDeterministic(t *testing.T) {
	m := tinyModel(t)
	ids := []int{0, 1, 2, 0, 1, 2, 1, 0}

	a, err := ExtractEmbeddings(m, ids, 1, 0)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	b, err := ExtractEmbeddings(m, ids, 1, 0)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	rows, cols := a.Vectors.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if a.Vectors.At(i, j) != b.Vectors.At(i, j) {
				t.Fatalf("vector (%d, %d) differs across runs", i, j)
			}
		}
	}
}

// Package export turns token embedding sets into projector-style TSV file
// pairs and offers basic inspection over the vectors.
package export

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Table is an ordered set of token labels and their embedding vectors, rows
// aligned by index.
type Table struct {
	Labels  []string
	Vectors *mat.Dense
}

// NewTable wraps labels and row vectors; every row must share one width.
func NewTable(labels []string, rows [][]float32) (*Table, error) {
	if len(labels) == 0 || len(labels) != len(rows) {
		return nil, fmt.Errorf("table: %d labels for %d rows", len(labels), len(rows))
	}
	width := len(rows[0])
	if width == 0 {
		return nil, fmt.Errorf("table: empty vectors")
	}
	backing := make([]float64, 0, len(rows)*width)
	for i, r := range rows {
		if len(r) != width {
			return nil, fmt.Errorf("table: row %d has width %d, want %d", i, len(r), width)
		}
		for _, v := range r {
			backing = append(backing, float64(v))
		}
	}
	return &Table{Labels: labels, Vectors: mat.NewDense(len(rows), width, backing)}, nil
}

// Neighbor is a similarity match returned by Nearest.
type Neighbor struct {
	Label      string
	Similarity float64
}

// Nearest ranks the k most cosine-similar rows to the given label's row.
func (t *Table) Nearest(label string, k int) ([]Neighbor, error) {
	idx := -1
	for i, l := range t.Labels {
		if l == label {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("nearest: unknown label %q", label)
	}
	ref := t.Vectors.RawRowView(idx)
	refNorm := floats.Norm(ref, 2)
	var out []Neighbor
	for i, l := range t.Labels {
		if i == idx {
			continue
		}
		row := t.Vectors.RawRowView(i)
		denom := refNorm * floats.Norm(row, 2)
		sim := 0.0
		if denom > 0 {
			sim = floats.Dot(ref, row) / denom
		}
		if math.IsNaN(sim) {
			sim = 0
		}
		out = append(out, Neighbor{Label: l, Similarity: sim})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if k > 0 && k < len(out) {
		out = out[:k]
	}
	return out, nil
}

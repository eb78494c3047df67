package train

import (
	"fmt"
	"strings"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"tokenfold/export"
	"tokenfold/model"
	"tokenfold/nn"
	"tokenfold/pipeline"
)

// ExtractEmbeddings encodes the unique depth-k tokens of a symbol sequence
// and returns their embedding vectors, one row per token in first-seen
// order. Depth 0 yields per-symbol embeddings, depth D the latent vectors.
func ExtractEmbeddings(m *model.AutoEncoder, ids []int, depth, padID int) (*export.Table, error) {
	mc := m.Config()
	if depth < 0 || depth > mc.Depth {
		return nil, fmt.Errorf("extract: depth %d out of range [0, %d]", depth, mc.Depth)
	}
	size := 1
	for i := 0; i < depth; i++ {
		size *= mc.TokenDim
	}
	tokens, err := pipeline.Chunk(ids, size, false)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("extract: sequence shorter than one depth-%d token", depth)
	}

	// re-encode the deduplicated tokens as one contiguous stream; row i of
	// the depth-k output then corresponds to token i
	flat := pipeline.Encode(strings.Join(tokens, ""))
	flat, err = pipeline.Pad(flat, mc.GroupSpan(), padID)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	oneHot, err := pipeline.OneHot(flat, mc.EncodingDim)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	g := gorgonia.NewGraph()
	x := gorgonia.NewMatrix(g, tensor.Float32, gorgonia.WithShape(len(flat), mc.EncodingDim), gorgonia.WithName("input"))
	out, err := m.Encoder().ToDepth(x, depth, nn.Inference)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	vm := gorgonia.NewTapeMachine(g)
	defer vm.Close()
	if err := gorgonia.Let(x, oneHot); err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	if err := vm.RunAll(); err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	val := out.Value().(tensor.Tensor)
	width := val.Shape()[1]
	data := val.Data().([]float32)
	rows := make([][]float32, len(tokens))
	for i := range rows {
		row := make([]float32, width)
		copy(row, data[i*width:(i+1)*width])
		rows[i] = row
	}
	return export.NewTable(tokens, rows)
}

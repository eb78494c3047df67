// Package nn provides the primitive layers of the tokenizer autoencoder:
// dense projections, one-hot embeddings, causal self-attention,
// running-statistics normalization and the merge/reshape views used to fold
// groups of embeddings into each other.
//
// Each layer owns its parameters as host tensors and materializes them into
// whatever expression graph its input lives on, so the same weights can back
// a training graph and any number of inference graphs.
package nn

// Mode selects the normalization branch of a forward pass. Every other layer
// computes identically in both modes.
type Mode int

const (
	Training Mode = iota
	Inference
)

func (m Mode) String() string {
	if m == Training {
		return "training"
	}
	return "inference"
}

// Package model composes the nn primitives into the hierarchical tokenizer:
// TokenizeBlocks fold groups of embeddings into single vectors, DetokenizeBlocks
// unfold them, and a HeadBlock projects depth-0 embeddings back to a
// categorical distribution over the symbol vocabulary.
package model

import (
	"fmt"

	"gorgonia.org/gorgonia"

	"tokenfold/nn"
)

// TokenizeBlock is one compression step: an embedding sequence (N, E) becomes
// (N/G, E'), each output vector summarizing G consecutive inputs. Optional
// causal attention mixes context within each G-group before the fold so the
// merged vector can capture order-dependent structure.
type TokenizeBlock struct {
	group    int
	embedDim int

	attend  *nn.Attention // nil without attention
	regroup *nn.Reshape
	flatten *nn.Reshape
	merge   *nn.Merge
	project *nn.Dense
	norm    *nn.Normalization // nil without normalization
}

func NewTokenizeBlock(name string, group, embedDim, units int, attention, normalize bool, momentum, epsilon float32, init *nn.Init) (*TokenizeBlock, error) {
	if group < 2 {
		return nil, fmt.Errorf("tokenize block %s: group size must be >= 2, got %d", name, group)
	}
	merge, err := nn.NewMerge(-2, group)
	if err != nil {
		return nil, fmt.Errorf("tokenize block %s: %w", name, err)
	}
	project, err := nn.NewDense(name+"/project", units, true, init)
	if err != nil {
		return nil, fmt.Errorf("tokenize block %s: %w", name, err)
	}
	b := &TokenizeBlock{group: group, embedDim: embedDim, merge: merge, project: project}
	if attention {
		if b.attend, err = nn.NewAttention(name+"/attend", embedDim, 1, init); err != nil {
			return nil, fmt.Errorf("tokenize block %s: %w", name, err)
		}
		if b.regroup, err = nn.NewReshape(-1, group, embedDim); err != nil {
			return nil, err
		}
		if b.flatten, err = nn.NewReshape(-1, embedDim); err != nil {
			return nil, err
		}
	}
	if normalize {
		b.norm = nn.NewLayerNorm(name+"/norm", momentum, epsilon, init)
	}
	return b, nil
}

func (b *TokenizeBlock) Forward(x *gorgonia.Node, mode nn.Mode) (*gorgonia.Node, error) {
	if x.Dims() != 2 {
		return nil, fmt.Errorf("tokenize block: want (N, E), got rank %d", x.Dims())
	}
	if n := x.Shape()[0]; n%b.group != 0 {
		return nil, fmt.Errorf("tokenize block: sequence length %d not divisible by group %d", n, b.group)
	}
	var err error
	if b.attend != nil {
		grouped, err := b.regroup.Forward(x, mode)
		if err != nil {
			return nil, err
		}
		mixed, err := b.attend.Forward(grouped, mode)
		if err != nil {
			return nil, err
		}
		if x, err = b.flatten.Forward(mixed, mode); err != nil {
			return nil, err
		}
	}
	merged, err := b.merge.Forward(x, mode)
	if err != nil {
		return nil, err
	}
	out, err := b.project.Forward(merged, mode)
	if err != nil {
		return nil, err
	}
	if b.norm != nil {
		if out, err = b.norm.Forward(out, mode); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (b *TokenizeBlock) layers() []nn.Layer {
	ls := []nn.Layer{b.project}
	if b.attend != nil {
		ls = append(ls, b.attend)
	}
	if b.norm != nil {
		ls = append(ls, b.norm)
	}
	return ls
}

// DetokenizeBlock is the inverse step: each (N, E) vector expands into G
// child embeddings, (N·G, E). Optional causal attention lets the freshly
// split positions exchange context before the next level. The two sides are
// trained jointly through the reconstruction loss, not tied analytically.
type DetokenizeBlock struct {
	group    int
	embedDim int

	expand  *nn.Dense
	split   *nn.Reshape
	regroup *nn.Reshape
	flatten *nn.Reshape
	attend  *nn.Attention
	norm    *nn.Normalization
}

func NewDetokenizeBlock(name string, group, embedDim int, attention, normalize bool, momentum, epsilon float32, init *nn.Init) (*DetokenizeBlock, error) {
	if group < 2 {
		return nil, fmt.Errorf("detokenize block %s: group size must be >= 2, got %d", name, group)
	}
	expand, err := nn.NewDense(name+"/expand", group*embedDim, true, init)
	if err != nil {
		return nil, fmt.Errorf("detokenize block %s: %w", name, err)
	}
	split, err := nn.NewReshape(-1, embedDim)
	if err != nil {
		return nil, err
	}
	b := &DetokenizeBlock{group: group, embedDim: embedDim, expand: expand, split: split}
	if attention {
		if b.attend, err = nn.NewAttention(name+"/attend", embedDim, 1, init); err != nil {
			return nil, fmt.Errorf("detokenize block %s: %w", name, err)
		}
		if b.regroup, err = nn.NewReshape(-1, group, embedDim); err != nil {
			return nil, err
		}
		if b.flatten, err = nn.NewReshape(-1, embedDim); err != nil {
			return nil, err
		}
	}
	if normalize {
		b.norm = nn.NewLayerNorm(name+"/norm", momentum, epsilon, init)
	}
	return b, nil
}

func (b *DetokenizeBlock) Forward(x *gorgonia.Node, mode nn.Mode) (*gorgonia.Node, error) {
	if x.Dims() != 2 {
		return nil, fmt.Errorf("detokenize block: want (N, E), got rank %d", x.Dims())
	}
	if e := x.Shape()[1]; e != b.embedDim {
		return nil, fmt.Errorf("detokenize block: embedding width %d, want %d", e, b.embedDim)
	}
	wide, err := b.expand.Forward(x, mode)
	if err != nil {
		return nil, err
	}
	out, err := b.split.Forward(wide, mode)
	if err != nil {
		return nil, err
	}
	if b.attend != nil {
		grouped, err := b.regroup.Forward(out, mode)
		if err != nil {
			return nil, err
		}
		mixed, err := b.attend.Forward(grouped, mode)
		if err != nil {
			return nil, err
		}
		if out, err = b.flatten.Forward(mixed, mode); err != nil {
			return nil, err
		}
	}
	if b.norm != nil {
		if out, err = b.norm.Forward(out, mode); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (b *DetokenizeBlock) layers() []nn.Layer {
	ls := []nn.Layer{b.expand}
	if b.attend != nil {
		ls = append(ls, b.attend)
	}
	if b.norm != nil {
		ls = append(ls, b.norm)
	}
	return ls
}

// HeadBlock projects depth-0 embeddings to a probability distribution over
// the symbol vocabulary. Probabilities, not logits: the loss side trains
// against softmax output.
type HeadBlock struct {
	project *nn.Dense
}

func NewHeadBlock(name string, encodingDim int, init *nn.Init) (*HeadBlock, error) {
	project, err := nn.NewDense(name+"/project", encodingDim, true, init)
	if err != nil {
		return nil, fmt.Errorf("head block %s: %w", name, err)
	}
	return &HeadBlock{project: project}, nil
}

func (h *HeadBlock) Forward(x *gorgonia.Node, mode nn.Mode) (*gorgonia.Node, error) {
	logits, err := h.project.Forward(x, mode)
	if err != nil {
		return nil, err
	}
	return gorgonia.SoftMax(logits, logits.Dims()-1)
}

func (h *HeadBlock) layers() []nn.Layer { return []nn.Layer{h.project} }

// span is G^k.
func span(group, depth int) int {
	s := 1
	for i := 0; i < depth; i++ {
		s *= group
	}
	return s
}

package model

import (
	"fmt"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"tokenfold/nn"
)

// Config fixes the composition of a model instance at construction time.
type Config struct {
	Depth        int  // D, number of compression levels
	TokenDim     int  // G, group size merged/split per level
	EncodingDim  int  // U, symbol vocabulary size
	EmbeddingDim int  // E, embedding width
	LatentDim    int  // width of the most compressed vector
	Attention    bool // mix context within each group before merge/after split
	Normalize    bool // layer-normalize block outputs
	Momentum     float32
	Epsilon      float32
	Seed         int64
}

func (c Config) Validate() error {
	if c.Depth < 1 {
		return fmt.Errorf("config: depth must be >= 1, got %d", c.Depth)
	}
	if c.TokenDim < 2 {
		return fmt.Errorf("config: token dim must be >= 2, got %d", c.TokenDim)
	}
	if c.EncodingDim < 1 {
		return fmt.Errorf("config: encoding dim must be >= 1, got %d", c.EncodingDim)
	}
	if c.EmbeddingDim < 1 {
		return fmt.Errorf("config: embedding dim must be >= 1, got %d", c.EmbeddingDim)
	}
	if c.EmbeddingDim != c.LatentDim {
		return fmt.Errorf("config: embedding dim %d != latent dim %d is unsupported", c.EmbeddingDim, c.LatentDim)
	}
	return nil
}

// GroupSpan is G^D, the number of symbols summarized by one latent vector.
// Input sequence lengths must be multiples of it.
func (c Config) GroupSpan() int { return span(c.TokenDim, c.Depth) }

func (c Config) withDefaults() Config {
	if c.Momentum == 0 {
		c.Momentum = 0.99
	}
	if c.Epsilon == 0 {
		c.Epsilon = 0.001
	}
	return c
}

// Encoder folds a one-hot symbol sequence (N, U) into latent vectors
// (N/G^D, latent): an embedding projection followed by D TokenizeBlocks.
type Encoder struct {
	cfg    Config
	embed  *nn.Embedding
	blocks []*TokenizeBlock
}

func NewEncoder(cfg Config, init *nn.Init) (*Encoder, error) {
	embed, err := nn.NewEmbedding("encoder/embed", cfg.EncodingDim, cfg.EmbeddingDim, false, init)
	if err != nil {
		return nil, err
	}
	e := &Encoder{cfg: cfg, embed: embed}
	for i := 0; i < cfg.Depth; i++ {
		units := cfg.EmbeddingDim
		if i == cfg.Depth-1 {
			units = cfg.LatentDim
		}
		blk, err := NewTokenizeBlock(fmt.Sprintf("encoder/tokenize-%d", i+1),
			cfg.TokenDim, cfg.EmbeddingDim, units, cfg.Attention, cfg.Normalize, cfg.Momentum, cfg.Epsilon, init)
		if err != nil {
			return nil, err
		}
		e.blocks = append(e.blocks, blk)
	}
	return e, nil
}

func (e *Encoder) check(x *gorgonia.Node) error {
	if x.Dims() != 2 {
		return fmt.Errorf("encoder: want one-hot input (N, U), got rank %d", x.Dims())
	}
	if u := x.Shape()[1]; u != e.cfg.EncodingDim {
		return fmt.Errorf("encoder: vocabulary width %d, want %d", u, e.cfg.EncodingDim)
	}
	if n := x.Shape()[0]; n%e.cfg.GroupSpan() != 0 {
		return fmt.Errorf("encoder: sequence length %d not a multiple of %d", n, e.cfg.GroupSpan())
	}
	return nil
}

func (e *Encoder) Forward(x *gorgonia.Node, mode nn.Mode) (*gorgonia.Node, error) {
	return e.ToDepth(x, e.cfg.Depth, mode)
}

// ToDepth stops after k compression levels; k = 0 yields the raw symbol
// embeddings, k = Depth the latent vectors.
func (e *Encoder) ToDepth(x *gorgonia.Node, k int, mode nn.Mode) (*gorgonia.Node, error) {
	if k < 0 || k > e.cfg.Depth {
		return nil, fmt.Errorf("encoder: depth %d out of range [0, %d]", k, e.cfg.Depth)
	}
	if err := e.check(x); err != nil {
		return nil, err
	}
	y, err := e.embed.Forward(x, mode)
	if err != nil {
		return nil, err
	}
	for _, blk := range e.blocks[:k] {
		if y, err = blk.Forward(y, mode); err != nil {
			return nil, err
		}
	}
	return y, nil
}

func (e *Encoder) layers() []nn.Layer {
	ls := []nn.Layer{e.embed}
	for _, blk := range e.blocks {
		ls = append(ls, blk.layers()...)
	}
	return ls
}

// Decoder unfolds latent vectors (M, latent) back into a categorical
// distribution sequence (M·G^D, U).
type Decoder struct {
	cfg    Config
	blocks []*DetokenizeBlock
	head   *HeadBlock
}

func NewDecoder(cfg Config, init *nn.Init) (*Decoder, error) {
	d := &Decoder{cfg: cfg}
	for i := 0; i < cfg.Depth; i++ {
		blk, err := NewDetokenizeBlock(fmt.Sprintf("decoder/detokenize-%d", cfg.Depth-i),
			cfg.TokenDim, cfg.EmbeddingDim, cfg.Attention, cfg.Normalize, cfg.Momentum, cfg.Epsilon, init)
		if err != nil {
			return nil, err
		}
		d.blocks = append(d.blocks, blk)
	}
	head, err := NewHeadBlock("decoder/head", cfg.EncodingDim, init)
	if err != nil {
		return nil, err
	}
	d.head = head
	return d, nil
}

func (d *Decoder) Forward(x *gorgonia.Node, mode nn.Mode) (*gorgonia.Node, error) {
	if x.Dims() != 2 {
		return nil, fmt.Errorf("decoder: want latent input (M, L), got rank %d", x.Dims())
	}
	if l := x.Shape()[1]; l != d.cfg.LatentDim {
		return nil, fmt.Errorf("decoder: latent width %d, want %d", l, d.cfg.LatentDim)
	}
	y := x
	var err error
	for _, blk := range d.blocks {
		if y, err = blk.Forward(y, mode); err != nil {
			return nil, err
		}
	}
	return d.head.Forward(y, mode)
}

func (d *Decoder) layers() []nn.Layer {
	var ls []nn.Layer
	for _, blk := range d.blocks {
		ls = append(ls, blk.layers()...)
	}
	ls = append(ls, d.head.layers()...)
	return ls
}

// AutoEncoder is decoder(encoder(x)), trained end to end against the input
// one-hot sequence. Apart from normalization's mode branch the composition
// is evaluated identically at training and inference time.
type AutoEncoder struct {
	cfg     Config
	encoder *Encoder
	decoder *Decoder
}

func NewAutoEncoder(cfg Config) (*AutoEncoder, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	init := nn.NewInit(cfg.Seed)
	enc, err := NewEncoder(cfg, init)
	if err != nil {
		return nil, err
	}
	dec, err := NewDecoder(cfg, init)
	if err != nil {
		return nil, err
	}
	return &AutoEncoder{cfg: cfg, encoder: enc, decoder: dec}, nil
}

func (m *AutoEncoder) Config() Config    { return m.cfg }
func (m *AutoEncoder) Encoder() *Encoder { return m.encoder }
func (m *AutoEncoder) Decoder() *Decoder { return m.decoder }

func (m *AutoEncoder) Forward(x *gorgonia.Node, mode nn.Mode) (*gorgonia.Node, error) {
	latent, err := m.encoder.Forward(x, mode)
	if err != nil {
		return nil, err
	}
	return m.decoder.Forward(latent, mode)
}

func (m *AutoEncoder) layers() []nn.Layer {
	return append(m.encoder.layers(), m.decoder.layers()...)
}

// Learnables aggregates the trainable nodes of the most recently built graph.
func (m *AutoEncoder) Learnables() gorgonia.Nodes {
	var ns gorgonia.Nodes
	for _, l := range m.layers() {
		ns = append(ns, l.Learnables()...)
	}
	return ns
}

// Normalizations lists the layers whose running statistics the trainer must
// commit after each optimizer step.
func (m *AutoEncoder) Normalizations() []*nn.Normalization {
	var ns []*nn.Normalization
	for _, l := range m.layers() {
		if n, ok := l.(*nn.Normalization); ok {
			ns = append(ns, n)
		}
	}
	return ns
}

// Params collects every owned parameter tensor by name.
func (m *AutoEncoder) Params() map[string]*tensor.Dense {
	out := map[string]*tensor.Dense{}
	for _, l := range m.layers() {
		for k, v := range l.Params() {
			out[k] = v
		}
	}
	return out
}

package model

import (
	"encoding/gob"
	"fmt"
	"os"

	"gorgonia.org/tensor"
)

// checkpoint is the gob payload: the construction config plus every owned
// parameter tensor by name, running statistics included.
type checkpoint struct {
	Config  Config
	Weights map[string]*tensor.Dense
}

// Save writes the model configuration and weights. Layers are built lazily,
// so saving only makes sense after at least one forward pass.
func (m *AutoEncoder) Save(path string) error {
	weights := m.Params()
	if len(weights) == 0 {
		return fmt.Errorf("save: model has no built parameters yet")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(checkpoint{Config: m.cfg, Weights: weights})
}

// Load reconstructs a model from a checkpoint written by Save.
func Load(path string) (*AutoEncoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var ck checkpoint
	if err := gob.NewDecoder(f).Decode(&ck); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	m, err := NewAutoEncoder(ck.Config)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	for _, l := range m.layers() {
		if err := l.Restore(ck.Weights); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	return m, nil
}

// Package config holds the typed configuration for training runs. Defaults
// mirror the reference hyperparameters; a YAML file overrides them field by
// field.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config groups the model, training, data and output settings.
type Config struct {
	Model  ModelConfig  `yaml:"model"`
	Train  TrainConfig  `yaml:"train"`
	Data   DataConfig   `yaml:"data"`
	Output OutputConfig `yaml:"output"`
}

// ModelConfig fixes the autoencoder composition.
type ModelConfig struct {
	Depth        int   `yaml:"depth"`         // compression levels D
	TokenDim     int   `yaml:"token_dim"`     // group size G
	EncodingDim  int   `yaml:"encoding_dim"`  // vocabulary size U
	EmbeddingDim int   `yaml:"embedding_dim"` // embedding width E
	LatentDim    int   `yaml:"latent_dim"`
	Attention    bool  `yaml:"attention"`
	Normalize    bool  `yaml:"normalize"`
	Seed         int64 `yaml:"seed"`
}

// TrainConfig drives the optimization loop and the learning-rate schedule.
type TrainConfig struct {
	Epochs        int     `yaml:"epochs"`
	BatchSize     int     `yaml:"batch_size"`
	SampleLen     int     `yaml:"sample_len"` // symbols per sample, multiple of G^D
	RateMin       float64 `yaml:"rate_min"`
	RateMax       float64 `yaml:"rate_max"`
	RateExp       float64 `yaml:"rate_exp"`
	RampupEpochs  int     `yaml:"rampup_epochs"`
	SustainEpochs int     `yaml:"sustain_epochs"`
	LogEvery      int     `yaml:"log_every"`
}

type DataConfig struct {
	Corpus string `yaml:"corpus"`
	PadID  int    `yaml:"pad_id"`
}

type OutputConfig struct {
	Dir             string `yaml:"dir"`
	Plot            bool   `yaml:"plot"`
	EmbeddingDepths []int  `yaml:"embedding_depths"`
}

// DefaultConfig returns the reference setup: depth 3, groups of 4, byte
// vocabulary, 256-wide embeddings, 32 epochs with a 16-epoch rampup.
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Depth:        3,
			TokenDim:     4,
			EncodingDim:  256,
			EmbeddingDim: 256,
			LatentDim:    256,
			Seed:         1,
		},
		Train: TrainConfig{
			Epochs:        32,
			BatchSize:     128,
			SampleLen:     128,
			RateMin:       0.0001,
			RateMax:       0.001,
			RateExp:       0.8,
			RampupEpochs:  16,
			SustainEpochs: 0,
			LogEvery:      1,
		},
		Data: DataConfig{PadID: 0},
		Output: OutputConfig{
			Dir:             "out",
			Plot:            true,
			EmbeddingDepths: []int{1, 2, 3},
		},
	}
}

// Load applies a YAML file over the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	m := c.Model
	if m.Depth < 1 || m.TokenDim < 2 || m.EncodingDim < 1 || m.EmbeddingDim < 1 {
		return fmt.Errorf("config: invalid model dimensions %+v", m)
	}
	if m.EmbeddingDim != m.LatentDim {
		return fmt.Errorf("config: embedding_dim %d != latent_dim %d is unsupported", m.EmbeddingDim, m.LatentDim)
	}
	span := 1
	for i := 0; i < m.Depth; i++ {
		span *= m.TokenDim
	}
	t := c.Train
	if t.Epochs < 1 || t.BatchSize < 1 || t.SampleLen < 1 {
		return fmt.Errorf("config: invalid train settings %+v", t)
	}
	if t.SampleLen%span != 0 {
		return fmt.Errorf("config: sample_len %d not a multiple of token_dim^depth = %d", t.SampleLen, span)
	}
	if t.RateMin <= 0 || t.RateMax < t.RateMin {
		return fmt.Errorf("config: invalid learning rates min %g max %g", t.RateMin, t.RateMax)
	}
	if t.RateExp <= 0 || t.RateExp > 1 {
		return fmt.Errorf("config: rate_exp %g must be in (0, 1]", t.RateExp)
	}
	for _, d := range c.Output.EmbeddingDepths {
		if d < 0 || d > m.Depth {
			return fmt.Errorf("config: embedding depth %d out of range [0, %d]", d, m.Depth)
		}
	}
	if c.Data.PadID < 0 || c.Data.PadID >= m.EncodingDim {
		return fmt.Errorf("config: pad_id %d out of vocabulary range", c.Data.PadID)
	}
	return nil
}

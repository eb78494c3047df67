package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.Model.Depth != 3 || cfg.Model.TokenDim != 4 || cfg.Model.EncodingDim != 256 {
		t.Fatalf("unexpected defaults: %+v", cfg.Model)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	doc := `
model:
  depth: 2
  token_dim: 2
train:
  epochs: 8
  sample_len: 16
data:
  corpus: corpus.txt
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model.Depth != 2 || cfg.Model.TokenDim != 2 {
		t.Fatalf("model not overridden: %+v", cfg.Model)
	}
	if cfg.Train.Epochs != 8 || cfg.Train.SampleLen != 16 {
		t.Fatalf("train not overridden: %+v", cfg.Train)
	}
	if cfg.Data.Corpus != "corpus.txt" {
		t.Fatalf("data not overridden: %+v", cfg.Data)
	}
	// Untouched fields keep their defaults.
	if cfg.Model.EncodingDim != 256 || cfg.Train.BatchSize != 128 {
		t.Fatalf("defaults lost: %+v %+v", cfg.Model, cfg.Train)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("merged config invalid: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("want error for missing file")
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"mismatched latent", func(c *Config) { c.Model.LatentDim = 128 }},
		{"sample not multiple of span", func(c *Config) { c.Train.SampleLen = 100 }},
		{"zero epochs", func(c *Config) { c.Train.Epochs = 0 }},
		{"inverted rates", func(c *Config) { c.Train.RateMin = 0.01; c.Train.RateMax = 0.001 }},
		{"rate_exp above one", func(c *Config) { c.Train.RateExp = 1.5 }},
		{"embedding depth out of range", func(c *Config) { c.Output.EmbeddingDepths = []int{4} }},
		{"pad id out of range", func(c *Config) { c.Data.PadID = 256 }},
	}
	for _, c := range cases {
		cfg := DefaultConfig()
		c.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: invalid config accepted", c.name)
		}
	}
}

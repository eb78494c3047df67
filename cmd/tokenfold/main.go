package main

import (
	"crypto/sha256"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"tokenfold/model"
	"tokenfold/nn"
	"tokenfold/pipeline"
	"tokenfold/pkg/config"
	"tokenfold/train"
)

// sampleCorpus keeps the train subcommand usable without a corpus file.
const sampleCorpus = `the quick brown fox jumps over the lazy dog. ` +
	`hierarchies of tokens fold long sequences into short ones. ` +
	`every block merges a handful of neighbors into a single vector. ` +
	`the decoder unfolds them again, one level at a time.`

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "train":
		runTrain(os.Args[2:])
	case "embed":
		runEmbed(os.Args[2:])
	case "reconstruct":
		runReconstruct(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: tokenfold <train|embed|reconstruct> [flags]")
}

// Manifest records what a checkpoint was trained on.
type Manifest struct {
	CorpusPath string         `json:"corpus_path"`
	CorpusHash string         `json:"corpus_hash"`
	Config     *config.Config `json:"config"`
	FinalLoss  float64        `json:"final_loss"`
	FinalAcc   float64        `json:"final_accuracy"`
	Epochs     int            `json:"epochs"`
	TrainedAt  time.Time      `json:"trained_at"`
}

func runTrain(args []string) {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	cfgPath := fs.String("config", "", "YAML config file (defaults used when empty)")
	corpusPath := fs.String("corpus", "", "corpus file (built-in sample when empty)")
	outDir := fs.String("out", "", "output directory (overrides config)")
	epochs := fs.Int("epochs", 0, "epoch count (overrides config)")
	fs.Parse(args)

	cfg := config.DefaultConfig()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			log.Fatalf("config: %v", err)
		}
	}
	if *outDir != "" {
		cfg.Output.Dir = *outDir
	}
	if *epochs > 0 {
		cfg.Train.Epochs = *epochs
	}
	if *corpusPath != "" {
		cfg.Data.Corpus = *corpusPath
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	corpus := sampleCorpus
	if cfg.Data.Corpus != "" {
		data, err := os.ReadFile(cfg.Data.Corpus)
		if err != nil {
			log.Fatalf("corpus: %v", err)
		}
		corpus = string(data)
	}
	fmt.Printf("corpus: %d bytes\n", len(corpus))

	m, err := model.NewAutoEncoder(modelConfig(cfg))
	if err != nil {
		log.Fatalf("model: %v", err)
	}
	trainer, err := train.New(m, cfg.Train, cfg.Data.PadID)
	if err != nil {
		log.Fatalf("trainer: %v", err)
	}
	ids := pipeline.Encode(corpus)
	history, err := trainer.Fit(ids)
	if err != nil {
		log.Fatalf("training: %v", err)
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		log.Fatalf("output: %v", err)
	}
	ckpt := filepath.Join(cfg.Output.Dir, "model.gob")
	if err := m.Save(ckpt); err != nil {
		log.Fatalf("checkpoint: %v", err)
	}
	fmt.Printf("checkpoint: %s\n", ckpt)

	if cfg.Output.Plot {
		png := filepath.Join(cfg.Output.Dir, "training.png")
		if err := history.PlotPNG(png); err != nil {
			log.Fatalf("plot: %v", err)
		}
		fmt.Printf("curves: %s\n", png)
	}

	for _, depth := range cfg.Output.EmbeddingDepths {
		table, err := train.ExtractEmbeddings(m, ids, depth, cfg.Data.PadID)
		if err != nil {
			log.Fatalf("embeddings depth %d: %v", depth, err)
		}
		size := 1
		for i := 0; i < depth; i++ {
			size *= cfg.Model.TokenDim
		}
		if err := table.WriteTSV(cfg.Output.Dir, strconv.Itoa(size)); err != nil {
			log.Fatalf("embeddings depth %d: %v", depth, err)
		}
		fmt.Printf("embeddings: %d depth-%d tokens\n", len(table.Labels), depth)
	}

	manifest := Manifest{
		CorpusPath: cfg.Data.Corpus,
		CorpusHash: fmt.Sprintf("%x", sha256.Sum256([]byte(corpus))),
		Config:     cfg,
		FinalLoss:  history.Final().Loss,
		FinalAcc:   history.Final().Accuracy,
		Epochs:     len(history.Epochs),
		TrainedAt:  time.Now().UTC(),
	}
	mf, err := os.Create(filepath.Join(cfg.Output.Dir, "manifest.json"))
	if err != nil {
		log.Fatalf("manifest: %v", err)
	}
	defer mf.Close()
	enc := json.NewEncoder(mf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(manifest); err != nil {
		log.Fatalf("manifest: %v", err)
	}
}

func runEmbed(args []string) {
	fs := flag.NewFlagSet("embed", flag.ExitOnError)
	modelPath := fs.String("model", "", "checkpoint written by train")
	text := fs.String("text", "", "input to embed")
	depth := fs.Int("depth", -1, "compression depth (model depth when negative)")
	fs.Parse(args)
	if *modelPath == "" || *text == "" {
		log.Fatal("embed: -model and -text are required")
	}

	m, err := model.Load(*modelPath)
	if err != nil {
		log.Fatalf("model: %v", err)
	}
	d := *depth
	if d < 0 {
		d = m.Config().Depth
	}
	rows, err := encodeText(m, *text, d)
	if err != nil {
		log.Fatalf("embed: %v", err)
	}
	for _, row := range rows {
		for j, v := range row {
			if j > 0 {
				fmt.Print("\t")
			}
			fmt.Printf("%g", v)
		}
		fmt.Println()
	}
}

func runReconstruct(args []string) {
	fs := flag.NewFlagSet("reconstruct", flag.ExitOnError)
	modelPath := fs.String("model", "", "checkpoint written by train")
	text := fs.String("text", "", "input to round-trip")
	fs.Parse(args)
	if *modelPath == "" || *text == "" {
		log.Fatal("reconstruct: -model and -text are required")
	}

	m, err := model.Load(*modelPath)
	if err != nil {
		log.Fatalf("model: %v", err)
	}
	ids, err := pipeline.Pad(pipeline.Encode(*text), m.Config().GroupSpan(), 0)
	if err != nil {
		log.Fatalf("reconstruct: %v", err)
	}
	oneHot, err := pipeline.OneHot(ids, m.Config().EncodingDim)
	if err != nil {
		log.Fatalf("reconstruct: %v", err)
	}

	g := gorgonia.NewGraph()
	x := gorgonia.NewMatrix(g, tensor.Float32, gorgonia.WithShape(len(ids), m.Config().EncodingDim), gorgonia.WithName("input"))
	probs, err := m.Forward(x, nn.Inference)
	if err != nil {
		log.Fatalf("reconstruct: %v", err)
	}
	vm := gorgonia.NewTapeMachine(g)
	defer vm.Close()
	if err := gorgonia.Let(x, oneHot); err != nil {
		log.Fatalf("reconstruct: %v", err)
	}
	if err := vm.RunAll(); err != nil {
		log.Fatalf("reconstruct: %v", err)
	}

	out, err := pipeline.ArgmaxRows(probs.Value().(tensor.Tensor))
	if err != nil {
		log.Fatalf("reconstruct: %v", err)
	}
	hits := 0
	for i := range ids {
		if ids[i] == out[i] {
			hits++
		}
	}
	fmt.Printf("input:  %q\n", *text)
	fmt.Printf("output: %q\n", pipeline.Decode(out))
	fmt.Printf("symbol accuracy: %.4f\n", float64(hits)/float64(len(ids)))
}

// encodeText runs the encoder alone to the given depth; with fixed weights
// the same text always yields the same vectors.
func encodeText(m *model.AutoEncoder, text string, depth int) ([][]float32, error) {
	ids, err := pipeline.Pad(pipeline.Encode(text), m.Config().GroupSpan(), 0)
	if err != nil {
		return nil, err
	}
	oneHot, err := pipeline.OneHot(ids, m.Config().EncodingDim)
	if err != nil {
		return nil, err
	}
	g := gorgonia.NewGraph()
	x := gorgonia.NewMatrix(g, tensor.Float32, gorgonia.WithShape(len(ids), m.Config().EncodingDim), gorgonia.WithName("input"))
	out, err := m.Encoder().ToDepth(x, depth, nn.Inference)
	if err != nil {
		return nil, err
	}
	vm := gorgonia.NewTapeMachine(g)
	defer vm.Close()
	if err := gorgonia.Let(x, oneHot); err != nil {
		return nil, err
	}
	if err := vm.RunAll(); err != nil {
		return nil, err
	}
	val := out.Value().(tensor.Tensor)
	width := val.Shape()[1]
	data := val.Data().([]float32)
	rows := make([][]float32, val.Shape()[0])
	for i := range rows {
		row := make([]float32, width)
		copy(row, data[i*width:(i+1)*width])
		rows[i] = row
	}
	return rows, nil
}

func modelConfig(cfg *config.Config) model.Config {
	return model.Config{
		Depth:        cfg.Model.Depth,
		TokenDim:     cfg.Model.TokenDim,
		EncodingDim:  cfg.Model.EncodingDim,
		EmbeddingDim: cfg.Model.EmbeddingDim,
		LatentDim:    cfg.Model.LatentDim,
		Attention:    cfg.Model.Attention,
		Normalize:    cfg.Model.Normalize,
		Seed:         cfg.Model.Seed,
	}
}

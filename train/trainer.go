package train

import (
	"fmt"
	"math"
	"math/rand"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"tokenfold/model"
	"tokenfold/nn"
	"tokenfold/pipeline"
	"tokenfold/pkg/config"
)

// Trainer owns one optimization run: it builds the training graph once for a
// fixed window shape and steps an Adam solver over shuffled windows of the
// corpus, one epoch at a time.
type Trainer struct {
	model *model.AutoEncoder
	cfg   config.TrainConfig
	padID int
	rng   *rand.Rand
}

func New(m *model.AutoEncoder, cfg config.TrainConfig, padID int) (*Trainer, error) {
	mc := m.Config()
	if cfg.Epochs < 1 || cfg.BatchSize < 1 || cfg.SampleLen < 1 {
		return nil, fmt.Errorf("trainer: invalid settings %+v", cfg)
	}
	if cfg.SampleLen%mc.GroupSpan() != 0 {
		return nil, fmt.Errorf("trainer: sample length %d not a multiple of %d", cfg.SampleLen, mc.GroupSpan())
	}
	if padID < 0 || padID >= mc.EncodingDim {
		return nil, fmt.Errorf("trainer: pad id %d out of vocabulary range", padID)
	}
	return &Trainer{model: m, cfg: cfg, padID: padID, rng: rand.New(rand.NewSource(mc.Seed))}, nil
}

// Fit minimizes reconstruction cross-entropy of the symbol sequence against
// itself. The target of every window is its own one-hot input.
func (t *Trainer) Fit(ids []int) (*History, error) {
	mc := t.model.Config()
	n := t.cfg.BatchSize * t.cfg.SampleLen
	windows, err := pipeline.Windows(ids, n, t.padID)
	if err != nil {
		return nil, fmt.Errorf("trainer: %w", err)
	}

	g := gorgonia.NewGraph()
	x := gorgonia.NewMatrix(g, tensor.Float32, gorgonia.WithShape(n, mc.EncodingDim), gorgonia.WithName("input"))
	probs, err := t.model.Forward(x, nn.Training)
	if err != nil {
		return nil, fmt.Errorf("trainer forward: %w", err)
	}
	loss, err := nn.CategoricalCrossEntropy(probs, x)
	if err != nil {
		return nil, fmt.Errorf("trainer loss: %w", err)
	}
	var lossVal gorgonia.Value
	gorgonia.Read(loss, &lossVal)

	learnables := t.model.Learnables()
	if _, err := gorgonia.Grad(loss, learnables...); err != nil {
		return nil, fmt.Errorf("trainer grad: %w", err)
	}
	vm := gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(learnables...))
	defer vm.Close()

	sched := Schedule{
		Min:     t.cfg.RateMin,
		Max:     t.cfg.RateMax,
		Exp:     t.cfg.RateExp,
		Rampup:  t.cfg.RampupEpochs,
		Sustain: t.cfg.SustainEpochs,
	}
	norms := t.model.Normalizations()
	history := &History{}
	var solver *gorgonia.AdamSolver
	currentRate := math.NaN()

	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		rate := sched.Rate(epoch)
		if rate != currentRate {
			// the solver has no rate setter, so a rate change rebuilds it
			solver = gorgonia.NewAdamSolver(gorgonia.WithLearnRate(rate), gorgonia.WithBatchSize(float64(n)))
			currentRate = rate
		}
		t.rng.Shuffle(len(windows), func(i, j int) {
			windows[i], windows[j] = windows[j], windows[i]
		})

		var lossSum, accSum float64
		steps := 0
		for _, w := range windows {
			oneHot, err := pipeline.OneHot(w, mc.EncodingDim)
			if err != nil {
				return nil, fmt.Errorf("trainer: %w", err)
			}
			if err := gorgonia.Let(x, oneHot); err != nil {
				return nil, fmt.Errorf("trainer: %w", err)
			}
			vm.Reset()
			if err := vm.RunAll(); err != nil {
				return nil, fmt.Errorf("trainer epoch %d: %w", epoch, err)
			}
			stepLoss := float64(lossVal.Data().(float32))
			if math.IsNaN(stepLoss) || math.IsInf(stepLoss, 0) {
				fmt.Printf("epoch %d: skipping window with unstable loss\n", epoch)
				continue
			}
			acc, err := nn.Accuracy(probs.Value().(tensor.Tensor), oneHot)
			if err != nil {
				return nil, fmt.Errorf("trainer: %w", err)
			}
			if err := solver.Step(gorgonia.NodesToValueGrads(learnables)); err != nil {
				return nil, fmt.Errorf("trainer step: %w", err)
			}
			for _, nm := range norms {
				nm.CommitStats()
			}
			lossSum += stepLoss
			accSum += acc
			steps++
		}
		if steps == 0 {
			return nil, fmt.Errorf("trainer: no stable windows in epoch %d", epoch)
		}
		m := Metrics{
			Epoch:    epoch,
			Loss:     lossSum / float64(steps),
			Accuracy: accSum / float64(steps),
			Rate:     rate,
		}
		history.Epochs = append(history.Epochs, m)
		if t.cfg.LogEvery > 0 && (epoch%t.cfg.LogEvery == 0 || epoch == t.cfg.Epochs-1) {
			fmt.Printf("epoch %d: loss=%.4f acc=%.4f lr=%.6f\n", m.Epoch, m.Loss, m.Accuracy, m.Rate)
		}
	}
	return history, nil
}

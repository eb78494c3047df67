package nn

import (
	"math"
	"math/rand"

	"gorgonia.org/tensor"
)

// Init creates weight tensors from an explicitly seeded source, so two models
// built with the same seed start from identical parameters.
type Init struct {
	rng *rand.Rand
}

func NewInit(seed int64) *Init {
	return &Init{rng: rand.New(rand.NewSource(seed))}
}

// SmallNormal returns a tensor of near-zero gaussian values.
func (in *Init) SmallNormal(dims ...int) *tensor.Dense {
	const stddev = 0.02
	backing := make([]float32, tensor.Shape(dims).TotalSize())
	for i := range backing {
		backing[i] = float32(in.rng.NormFloat64() * stddev)
	}
	return tensor.New(tensor.WithShape(dims...), tensor.WithBacking(backing))
}

// GlorotUniform returns a fan-scaled uniform tensor for projection kernels.
func (in *Init) GlorotUniform(fanIn, fanOut int) *tensor.Dense {
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	backing := make([]float32, fanIn*fanOut)
	for i := range backing {
		backing[i] = float32((2*in.rng.Float64() - 1) * limit)
	}
	return tensor.New(tensor.WithShape(fanIn, fanOut), tensor.WithBacking(backing))
}

// Zeros returns an all-zero tensor.
func (in *Init) Zeros(dims ...int) *tensor.Dense {
	backing := make([]float32, tensor.Shape(dims).TotalSize())
	return tensor.New(tensor.WithShape(dims...), tensor.WithBacking(backing))
}

// Ones returns an all-one tensor.
func (in *Init) Ones(dims ...int) *tensor.Dense {
	backing := make([]float32, tensor.Shape(dims).TotalSize())
	for i := range backing {
		backing[i] = 1
	}
	return tensor.New(tensor.WithShape(dims...), tensor.WithBacking(backing))
}

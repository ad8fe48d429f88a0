package nn

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"sknet/tensor"
)

// KaimingNormal fills t with N(0, sqrt(2/fanOut)) samples, the fan-out
// scheme for conv kernels feeding a ReLU.
func KaimingNormal(t *tensor.Tensor, fanOut int) {
	dist := distuv.Normal{
		Mu:    0,
		Sigma: math.Sqrt(2.0 / float64(fanOut)),
	}
	for i := range t.Data {
		t.Data[i] = dist.Rand()
	}
}

// UniformFanIn fills t with U(-1/sqrt(fanIn), 1/sqrt(fanIn)) samples, the
// usual fresh init for fully connected layers.
func UniformFanIn(t *tensor.Tensor, fanIn int) {
	dist := distuv.Uniform{
		Min: -1 / math.Sqrt(float64(fanIn)),
		Max: 1 / math.Sqrt(float64(fanIn)),
	}
	for i := range t.Data {
		t.Data[i] = dist.Rand()
	}
}

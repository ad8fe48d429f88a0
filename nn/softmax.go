package nn

import (
	"math"

	"sknet/tensor"
)

// Softmax applies the softmax function along the trailing axis.
func Softmax(logits *tensor.Tensor) *tensor.Tensor {
	inner := logits.Shape[len(logits.Shape)-1]
	out := tensor.New(logits.Shape...)
	for start := 0; start < len(logits.Data); start += inner {
		row := logits.Data[start : start+inner]
		maxLogit := row[0]
		for _, v := range row {
			if v > maxLogit {
				maxLogit = v
			}
		}
		expSum := 0.0
		exps := out.Data[start : start+inner]
		for i, v := range row {
			e := math.Exp(v - maxLogit)
			exps[i] = e
			expSum += e
		}
		for i := range exps {
			exps[i] /= expSum
		}
	}
	return out
}

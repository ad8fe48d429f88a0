package layers

import (
	"fmt"
	"math"

	"sknet/tensor"
)

// MaxPool2D takes the maximum over square windows of an NCHW tensor.
// Padded positions never win.
type MaxPool2D struct {
	kernel, stride, padding int
}

// NewMaxPool2D creates a max pooling layer.
func NewMaxPool2D(kernel, stride, padding int) (*MaxPool2D, error) {
	if kernel <= 0 || stride <= 0 {
		return nil, fmt.Errorf("maxpool2d: non-positive kernel %d or stride %d", kernel, stride)
	}
	if padding < 0 || padding > kernel/2 {
		return nil, fmt.Errorf("maxpool2d: padding %d outside [0, %d]", padding, kernel/2)
	}
	return &MaxPool2D{kernel: kernel, stride: stride, padding: padding}, nil
}

// Forward pools the input, which must be [batch, chan, H, W].
func (m *MaxPool2D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 4 {
		return nil, fmt.Errorf("maxpool2d: input must be 4D [batch, chan, height, width], got %v", input.Shape)
	}
	batch, chans, height, width := input.Shape[0], input.Shape[1], input.Shape[2], input.Shape[3]
	outH := (height+2*m.padding-m.kernel)/m.stride + 1
	outW := (width+2*m.padding-m.kernel)/m.stride + 1
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("maxpool2d: input %dx%d too small for kernel %d", height, width, m.kernel)
	}

	output := tensor.New(batch, chans, outH, outW)
	for b := 0; b < batch; b++ {
		for c := 0; c < chans; c++ {
			inOff := (b*chans + c) * height * width
			outOff := (b*chans + c) * outH * outW
			for oy := 0; oy < outH; oy++ {
				for ox := 0; ox < outW; ox++ {
					best := math.Inf(-1)
					for dy := 0; dy < m.kernel; dy++ {
						iy := oy*m.stride - m.padding + dy
						if iy < 0 || iy >= height {
							continue
						}
						for dx := 0; dx < m.kernel; dx++ {
							ix := ox*m.stride - m.padding + dx
							if ix < 0 || ix >= width {
								continue
							}
							if v := input.Data[inOff+iy*width+ix]; v > best {
								best = v
							}
						}
					}
					output.Data[outOff+oy*outW+ox] = best
				}
			}
		}
	}
	return output, nil
}

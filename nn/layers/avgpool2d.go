package layers

import (
	"fmt"

	"sknet/tensor"
)

// AvgPool2DOpts configures an AvgPool2D. Zero Stride means stride equal to
// the kernel. SamePad pads bottom/right so a stride-1 pool keeps the input
// size; CeilMode rounds the output size up instead of down;
// CountIncludePad counts padded taps in the divisor.
type AvgPool2DOpts struct {
	Kernel          int
	Stride          int
	Padding         int
	SamePad         bool
	CeilMode        bool
	CountIncludePad bool
}

// AvgPool2D averages over square windows of an NCHW tensor.
type AvgPool2D struct {
	opts AvgPool2DOpts
}

// NewAvgPool2D creates an average pooling layer.
func NewAvgPool2D(opts AvgPool2DOpts) (*AvgPool2D, error) {
	if opts.Kernel <= 0 {
		return nil, fmt.Errorf("avgpool2d: non-positive kernel %d", opts.Kernel)
	}
	if opts.Stride == 0 {
		opts.Stride = opts.Kernel
	}
	if opts.Stride < 0 || opts.Padding < 0 {
		return nil, fmt.Errorf("avgpool2d: negative stride or padding")
	}
	if opts.Padding > opts.Kernel/2 {
		return nil, fmt.Errorf("avgpool2d: padding %d larger than half the kernel %d", opts.Padding, opts.Kernel)
	}
	return &AvgPool2D{opts: opts}, nil
}

// poolExtent computes the output length plus left/right padding of one
// spatial dimension.
func (a *AvgPool2D) poolExtent(in int) (out, padLo, padHi int) {
	k, s := a.opts.Kernel, a.opts.Stride
	if a.opts.SamePad {
		// Pad bottom/right just enough to cover every stride position.
		need := (ceilDiv(in, s)-1)*s + k - in
		if need < 0 {
			need = 0
		}
		return ceilDiv(in, s), 0, need
	}
	padLo, padHi = a.opts.Padding, a.opts.Padding
	span := in + padLo + padHi - k
	if a.opts.CeilMode {
		out = ceilDiv(span, s) + 1
		// The last window must start inside the input or its left padding.
		if (out-1)*s >= in+padLo {
			out--
		}
	} else {
		out = span/s + 1
	}
	return out, padLo, padHi
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

// Forward pools the input, which must be [batch, chan, H, W].
func (a *AvgPool2D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 4 {
		return nil, fmt.Errorf("avgpool2d: input must be 4D [batch, chan, height, width], got %v", input.Shape)
	}
	batch, chans, height, width := input.Shape[0], input.Shape[1], input.Shape[2], input.Shape[3]
	k, s := a.opts.Kernel, a.opts.Stride
	outH, padTop, padBottom := a.poolExtent(height)
	outW, padLeft, padRight := a.poolExtent(width)
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("avgpool2d: input %dx%d too small for kernel %d", height, width, k)
	}

	output := tensor.New(batch, chans, outH, outW)
	for b := 0; b < batch; b++ {
		for c := 0; c < chans; c++ {
			inOff := (b*chans + c) * height * width
			outOff := (b*chans + c) * outH * outW
			for oy := 0; oy < outH; oy++ {
				for ox := 0; ox < outW; ox++ {
					y0 := oy*s - padTop
					x0 := ox*s - padLeft
					sum := 0.0
					count := 0
					for dy := 0; dy < k; dy++ {
						iy := y0 + dy
						if iy < -padTop || iy >= height+padBottom {
							continue
						}
						for dx := 0; dx < k; dx++ {
							ix := x0 + dx
							if ix < -padLeft || ix >= width+padRight {
								continue
							}
							if a.opts.CountIncludePad {
								count++
							}
							if iy < 0 || iy >= height || ix < 0 || ix >= width {
								continue
							}
							if !a.opts.CountIncludePad {
								count++
							}
							sum += input.Data[inOff+iy*width+ix]
						}
					}
					if count > 0 {
						output.Data[outOff+oy*outW+ox] = sum / float64(count)
					}
				}
			}
		}
	}
	return output, nil
}

// GlobalAvgPool2D averages each channel over its full spatial extent,
// producing [batch, chan, 1, 1].
type GlobalAvgPool2D struct{}

// NewGlobalAvgPool2D creates a global average pooling layer.
func NewGlobalAvgPool2D() *GlobalAvgPool2D { return &GlobalAvgPool2D{} }

// Forward pools the input, which must be [batch, chan, H, W].
func (g *GlobalAvgPool2D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 4 {
		return nil, fmt.Errorf("globalavgpool2d: input must be 4D [batch, chan, height, width], got %v", input.Shape)
	}
	batch, chans, height, width := input.Shape[0], input.Shape[1], input.Shape[2], input.Shape[3]
	plane := height * width
	output := tensor.New(batch, chans, 1, 1)
	for b := 0; b < batch; b++ {
		for c := 0; c < chans; c++ {
			off := (b*chans + c) * plane
			sum := 0.0
			for i := 0; i < plane; i++ {
				sum += input.Data[off+i]
			}
			output.Data[b*chans+c] = sum / float64(plane)
		}
	}
	return output, nil
}

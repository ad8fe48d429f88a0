package layers

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"sknet/nn"
	"sknet/tensor"
)

// Conv2DOpts carries the optional geometry of a Conv2D. Zero values mean
// stride 1, no padding, dilation 1, a single group, and no bias term.
type Conv2DOpts struct {
	Stride   int
	Padding  int
	Dilation int
	Groups   int
	Bias     bool
}

// Conv2D is a 2D convolutional layer over NCHW tensors.
type Conv2D struct {
	inChan, outChan int // number of input/output channels
	kh, kw          int // kernel height and width
	stride, padding int
	dilation        int
	groups          int

	W *tensor.Tensor // weights: [outChan, inChan/groups, kh, kw]
	B *tensor.Tensor // bias: [outChan], nil when the layer has none
}

// NewConv2D creates a new Conv2D layer. Weights are Kaiming-initialized,
// the bias (when present) uniform by fan-in.
func NewConv2D(inChan, outChan, kh, kw int, opts Conv2DOpts) (*Conv2D, error) {
	if inChan <= 0 || outChan <= 0 || kh <= 0 || kw <= 0 {
		return nil, fmt.Errorf("conv2d: non-positive dimension (in=%d out=%d k=%dx%d)", inChan, outChan, kh, kw)
	}
	if opts.Stride == 0 {
		opts.Stride = 1
	}
	if opts.Dilation == 0 {
		opts.Dilation = 1
	}
	if opts.Groups == 0 {
		opts.Groups = 1
	}
	if opts.Stride < 0 || opts.Padding < 0 || opts.Dilation < 0 || opts.Groups < 0 {
		return nil, fmt.Errorf("conv2d: negative stride/padding/dilation/groups")
	}
	if inChan%opts.Groups != 0 || outChan%opts.Groups != 0 {
		return nil, fmt.Errorf("conv2d: channels (%d in, %d out) not divisible by groups %d", inChan, outChan, opts.Groups)
	}

	c := &Conv2D{
		inChan:   inChan,
		outChan:  outChan,
		kh:       kh,
		kw:       kw,
		stride:   opts.Stride,
		padding:  opts.Padding,
		dilation: opts.Dilation,
		groups:   opts.Groups,
		W:        tensor.New(outChan, inChan/opts.Groups, kh, kw),
	}
	nn.KaimingNormal(c.W, outChan*kh*kw)
	if opts.Bias {
		c.B = tensor.New(outChan)
		nn.UniformFanIn(c.B, inChan/opts.Groups*kh*kw)
	}
	return c, nil
}

// OutChannels returns the number of output channels.
func (c *Conv2D) OutChannels() int { return c.outChan }

// OutputShape returns the spatial output size for a given input size.
func (c *Conv2D) OutputShape(inH, inW int) (outH, outW int) {
	outH = (inH+2*c.padding-c.dilation*(c.kh-1)-1)/c.stride + 1
	outW = (inW+2*c.padding-c.dilation*(c.kw-1)-1)/c.stride + 1
	return outH, outW
}

// Forward performs the convolution. The input must be [batch, inChan, H, W].
func (c *Conv2D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 4 {
		return nil, fmt.Errorf("conv2d: input must be 4D [batch, chan, height, width], got %v", input.Shape)
	}
	batch, chans, height, width := input.Shape[0], input.Shape[1], input.Shape[2], input.Shape[3]
	if chans != c.inChan {
		return nil, fmt.Errorf("conv2d: expected %d input channels, got %d", c.inChan, chans)
	}
	outH, outW := c.OutputShape(height, width)
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("conv2d: input %dx%d too small for kernel %dx%d", height, width, c.kh, c.kw)
	}

	inPer := c.inChan / c.groups
	outPer := c.outChan / c.groups
	spatial := outH * outW
	kernel := inPer * c.kh * c.kw

	output := tensor.New(batch, c.outChan, outH, outW)
	col := make([]float64, kernel*spatial)

	// One GEMM per (batch, group): weights [outPer x kernel] times the
	// unrolled patches [kernel x spatial].
	for b := 0; b < batch; b++ {
		for g := 0; g < c.groups; g++ {
			c.im2col(input, col, b, g*inPer, height, width, outH, outW)
			wm := mat.NewDense(outPer, kernel, c.W.Data[g*outPer*kernel:(g+1)*outPer*kernel])
			cm := mat.NewDense(kernel, spatial, col)
			outOff := (b*c.outChan + g*outPer) * spatial
			om := mat.NewDense(outPer, spatial, output.Data[outOff:outOff+outPer*spatial])
			om.Mul(wm, cm)
		}
		if c.B != nil {
			for oc := 0; oc < c.outChan; oc++ {
				off := (b*c.outChan + oc) * spatial
				bias := c.B.Data[oc]
				for i := 0; i < spatial; i++ {
					output.Data[off+i] += bias
				}
			}
		}
	}
	return output, nil
}

// im2col unrolls the receptive fields of one (batch, channel-group) slice
// into col, row per kernel tap, column per output position. Out-of-bounds
// taps read as zero padding.
func (c *Conv2D) im2col(input *tensor.Tensor, col []float64, b, chanOff, height, width, outH, outW int) {
	inPer := c.inChan / c.groups
	spatial := outH * outW
	for ic := 0; ic < inPer; ic++ {
		inOff := (b*c.inChan + chanOff + ic) * height * width
		for dy := 0; dy < c.kh; dy++ {
			for dx := 0; dx < c.kw; dx++ {
				row := (ic*c.kh+dy)*c.kw + dx
				dst := col[row*spatial : (row+1)*spatial]
				for oy := 0; oy < outH; oy++ {
					iy := oy*c.stride - c.padding + dy*c.dilation
					if iy < 0 || iy >= height {
						for ox := 0; ox < outW; ox++ {
							dst[oy*outW+ox] = 0
						}
						continue
					}
					for ox := 0; ox < outW; ox++ {
						ix := ox*c.stride - c.padding + dx*c.dilation
						if ix < 0 || ix >= width {
							dst[oy*outW+ox] = 0
						} else {
							dst[oy*outW+ox] = input.Data[inOff+iy*width+ix]
						}
					}
				}
			}
		}
	}
}

// NamedParams registers the kernel and optional bias.
func (c *Conv2D) NamedParams(prefix string, dst map[string]*tensor.Tensor) {
	dst[nn.JoinName(prefix, "weight")] = c.W
	if c.B != nil {
		dst[nn.JoinName(prefix, "bias")] = c.B
	}
}

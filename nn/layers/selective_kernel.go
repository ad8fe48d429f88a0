package layers

import (
	"fmt"
	"strconv"

	"sknet/nn"
	"sknet/tensor"
)

// SelectiveKernelConfig tunes a SelectiveKernelConv. Nil Kernels means
// [3 5]; zero AttnReduction and MinAttnChannels mean 16 and 32. Keep3x3
// replaces larger kernels by dilated 3x3 convs of the same receptive
// field; SplitInput divides the input channels across the branches.
type SelectiveKernelConfig struct {
	Kernels         []int
	AttnReduction   int
	MinAttnChannels int
	Keep3x3         bool
	SplitInput      bool
}

// DefaultSelectiveKernelConfig returns the reference configuration:
// kernels [3 5] as dilated 3x3s, attention reduction 16 floored at 32
// channels, undivided input.
func DefaultSelectiveKernelConfig() SelectiveKernelConfig {
	return SelectiveKernelConfig{
		Kernels:         []int{3, 5},
		AttnReduction:   16,
		MinAttnChannels: 32,
		Keep3x3:         true,
	}
}

// SelectiveKernelAttn computes per-path channel selection weights from the
// summed branch outputs: pool, bottleneck, then softmax across paths.
type SelectiveKernelAttn struct {
	chans, paths int

	FCReduce *Conv2D // 1x1 reduce, no bias
	Bn       *BatchNorm2D
	FCSelect *Conv2D // 1x1 expand to chans*paths, no bias
	pool     *GlobalAvgPool2D
	act      *ReLU
}

// NewSelectiveKernelAttn creates the attention head.
func NewSelectiveKernelAttn(chans, paths, attnChans int) (*SelectiveKernelAttn, error) {
	if paths < 2 {
		return nil, fmt.Errorf("selective kernel attention needs at least 2 paths, got %d", paths)
	}
	fcReduce, err := NewConv2D(chans, attnChans, 1, 1, Conv2DOpts{})
	if err != nil {
		return nil, err
	}
	bn, err := NewBatchNorm2D(attnChans)
	if err != nil {
		return nil, err
	}
	fcSelect, err := NewConv2D(attnChans, chans*paths, 1, 1, Conv2DOpts{})
	if err != nil {
		return nil, err
	}
	return &SelectiveKernelAttn{
		chans:    chans,
		paths:    paths,
		FCReduce: fcReduce,
		Bn:       bn,
		FCSelect: fcSelect,
		pool:     NewGlobalAvgPool2D(),
		act:      NewReLU(),
	}, nil
}

// Forward takes the elementwise sum of the branch outputs [batch, chans,
// H, W] and returns selection weights [batch, chans, paths] that sum to 1
// across the trailing path axis.
func (a *SelectiveKernelAttn) Forward(sum *tensor.Tensor) (*tensor.Tensor, error) {
	if len(sum.Shape) != 4 || sum.Shape[1] != a.chans {
		return nil, fmt.Errorf("selective kernel attention: want [batch, %d, H, W], got %v", a.chans, sum.Shape)
	}
	batch := sum.Shape[0]

	z, err := a.pool.Forward(sum)
	if err != nil {
		return nil, err
	}
	for _, m := range []nn.Module{a.FCReduce, a.Bn, a.act, a.FCSelect} {
		z, err = m.Forward(z)
		if err != nil {
			return nil, err
		}
	}

	// Output channel p*chans+c of the select conv is the logit of path p
	// for channel c.
	weights := tensor.New(batch, a.chans, a.paths)
	for b := 0; b < batch; b++ {
		for p := 0; p < a.paths; p++ {
			for c := 0; c < a.chans; c++ {
				weights.Set(z.Data[(b*a.paths+p)*a.chans+c], b, c, p)
			}
		}
	}
	return nn.Softmax(weights), nil
}

// NamedParams registers the bottleneck convs and norm.
func (a *SelectiveKernelAttn) NamedParams(prefix string, dst map[string]*tensor.Tensor) {
	a.FCReduce.NamedParams(nn.JoinName(prefix, "fc_reduce"), dst)
	a.Bn.NamedParams(nn.JoinName(prefix, "bn"), dst)
	a.FCSelect.NamedParams(nn.JoinName(prefix, "fc_select"), dst)
}

// SetTraining propagates the mode to the norm.
func (a *SelectiveKernelAttn) SetTraining(training bool) {
	a.Bn.SetTraining(training)
}

// SelectiveKernelConvOpts carries the geometry of a SelectiveKernelConv.
// Zero values mean stride 1, dilation 1, a single group.
type SelectiveKernelConvOpts struct {
	Stride    int
	Dilation  int
	Groups    int
	DropBlock *DropBlock2D
	Config    SelectiveKernelConfig
}

// SelectiveKernelConv runs several conv branches with different receptive
// fields over the same input and blends them per channel with learned
// attention weights.
type SelectiveKernelConv struct {
	inChan, outChan int
	splitInput      bool

	Paths []*ConvBnAct
	Attn  *SelectiveKernelAttn
}

// NewSelectiveKernelConv creates the layer. Kernel sizes must be odd and
// at least 3; with SplitInput the input channels must divide evenly
// across the branches.
func NewSelectiveKernelConv(inChan, outChan int, opts SelectiveKernelConvOpts) (*SelectiveKernelConv, error) {
	cfg := opts.Config
	if len(cfg.Kernels) == 0 {
		cfg.Kernels = []int{3, 5}
	}
	if cfg.AttnReduction == 0 {
		cfg.AttnReduction = 16
	}
	if cfg.MinAttnChannels == 0 {
		cfg.MinAttnChannels = 32
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
	for _, k := range cfg.Kernels {
		if k < 3 || k%2 == 0 {
			return nil, fmt.Errorf("selective kernel: kernel sizes must be odd and >= 3, got %v", cfg.Kernels)
		}
	}

	paths := len(cfg.Kernels)
	kernels := append([]int(nil), cfg.Kernels...)
	dilations := make([]int, paths)
	if cfg.Keep3x3 {
		// A k x k kernel becomes a 3x3 with dilation covering the same
		// receptive field.
		for i, k := range kernels {
			dilations[i] = opts.Dilation * (k - 1) / 2
			kernels[i] = 3
		}
	} else {
		for i := range dilations {
			dilations[i] = opts.Dilation
		}
	}

	pathIn := inChan
	if cfg.SplitInput {
		if inChan%paths != 0 {
			return nil, fmt.Errorf("selective kernel: %d input channels do not divide across %d paths", inChan, paths)
		}
		pathIn = inChan / paths
	}
	groups := opts.Groups
	if groups > outChan {
		groups = outChan
	}

	sk := &SelectiveKernelConv{
		inChan:     inChan,
		outChan:    outChan,
		splitInput: cfg.SplitInput,
	}
	for i := range kernels {
		branch, err := NewConvBnAct(pathIn, outChan, ConvBnActOpts{
			Kernel:    kernels[i],
			Stride:    opts.Stride,
			Dilation:  dilations[i],
			Groups:    groups,
			DropBlock: opts.DropBlock,
		})
		if err != nil {
			return nil, err
		}
		sk.Paths = append(sk.Paths, branch)
	}

	attnChans := outChan / cfg.AttnReduction
	if attnChans < cfg.MinAttnChannels {
		attnChans = cfg.MinAttnChannels
	}
	attn, err := NewSelectiveKernelAttn(outChan, paths, attnChans)
	if err != nil {
		return nil, err
	}
	sk.Attn = attn
	return sk, nil
}

// OutChannels returns the number of output channels.
func (s *SelectiveKernelConv) OutChannels() int { return s.outChan }

// Forward runs every branch, then blends them with the attention weights.
func (s *SelectiveKernelConv) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 4 {
		return nil, fmt.Errorf("selective kernel: input must be 4D [batch, chan, height, width], got %v", input.Shape)
	}
	if input.Shape[1] != s.inChan {
		return nil, fmt.Errorf("selective kernel: expected %d input channels, got %d", s.inChan, input.Shape[1])
	}

	pathOuts := make([]*tensor.Tensor, len(s.Paths))
	for i, p := range s.Paths {
		branchIn := input
		if s.splitInput {
			per := s.inChan / len(s.Paths)
			branchIn = sliceChannels(input, i*per, (i+1)*per)
		}
		out, err := p.Forward(branchIn)
		if err != nil {
			return nil, err
		}
		pathOuts[i] = out
	}

	sum := tensor.New(pathOuts[0].Shape...)
	for _, y := range pathOuts {
		for i, v := range y.Data {
			sum.Data[i] += v
		}
	}
	weights, err := s.Attn.Forward(sum)
	if err != nil {
		return nil, err
	}

	batch, chans := sum.Shape[0], sum.Shape[1]
	plane := sum.Shape[2] * sum.Shape[3]
	output := tensor.New(sum.Shape...)
	for p, y := range pathOuts {
		for b := 0; b < batch; b++ {
			for c := 0; c < chans; c++ {
				off := (b*chans + c) * plane
				w := weights.At(b, c, p)
				for i := 0; i < plane; i++ {
					output.Data[off+i] += y.Data[off+i] * w
				}
			}
		}
	}
	return output, nil
}

// NamedParams registers every branch and the attention head.
func (s *SelectiveKernelConv) NamedParams(prefix string, dst map[string]*tensor.Tensor) {
	for i, p := range s.Paths {
		p.NamedParams(nn.JoinName(prefix, "paths."+strconv.Itoa(i)), dst)
	}
	s.Attn.NamedParams(nn.JoinName(prefix, "attn"), dst)
}

// SetTraining propagates the mode to the branches and attention head.
func (s *SelectiveKernelConv) SetTraining(training bool) {
	for _, p := range s.Paths {
		p.SetTraining(training)
	}
	s.Attn.SetTraining(training)
}

// sliceChannels copies channels [from, to) of an NCHW tensor.
func sliceChannels(x *tensor.Tensor, from, to int) *tensor.Tensor {
	batch, chans := x.Shape[0], x.Shape[1]
	plane := x.Shape[2] * x.Shape[3]
	out := tensor.New(batch, to-from, x.Shape[2], x.Shape[3])
	for b := 0; b < batch; b++ {
		src := (b*chans + from) * plane
		dst := b * (to - from) * plane
		copy(out.Data[dst:dst+(to-from)*plane], x.Data[src:src+(to-from)*plane])
	}
	return out
}

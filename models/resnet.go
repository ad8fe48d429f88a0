package models

import (
	"fmt"

	"sknet/nn"
	"sknet/nn/layers"
	"sknet/tensor"
)

// Block is one residual unit of a backbone stage.
type Block interface {
	nn.Module
	nn.ParamSource
	nn.Trainable

	// ZeroInitLastBN zeroes the scale of the block's final normalization so
	// that a freshly built block starts as an identity on its residual path.
	ZeroInitLastBN()
}

// BlockArgs carries everything a block constructor needs for one residual
// unit. The backbone fills it per block while assembling stages.
type BlockArgs struct {
	InPlanes      int
	Planes        int
	Stride        int
	Downsample    *nn.Sequential // nil when the residual needs no projection
	Cardinality   int
	BaseWidth     int
	ReduceFirst   int
	Dilation      int
	FirstDilation int // 0 means same as Dilation
	UseSE         bool
	DropPath      *layers.DropPath
	DropBlock     *layers.DropBlock2D
}

// BlockBuilder couples a block constructor with its channel expansion
// factor. The backbone needs the expansion before any block exists to plan
// stage widths and downsample projections.
type BlockBuilder struct {
	Expansion int
	New       func(args BlockArgs) (Block, error)
}

// BackboneConfig describes a full backbone. Factories start from
// DefaultBackboneConfig, set their block and depths, then apply caller
// overrides.
type BackboneConfig struct {
	Block       BlockBuilder
	StageDepths []int

	NumClasses  int
	InChans     int
	Cardinality int
	BaseWidth   int
	UseSE       bool

	StemWidth int
	StemType  string // "" for the 7x7 stem, "deep" for three 3x3 convs
	AvgDown   bool

	ReduceFirst    int
	DownKernelSize int
	OutputStride   int

	DropRate      float64
	DropPathRate  float64
	DropBlockRate float64

	ZeroInitLastBN bool
}

// DefaultBackboneConfig returns the standard ImageNet backbone settings.
func DefaultBackboneConfig() BackboneConfig {
	return BackboneConfig{
		StageDepths:    []int{2, 2, 2, 2},
		NumClasses:     1000,
		InChans:        3,
		Cardinality:    1,
		BaseWidth:      64,
		StemWidth:      64,
		ReduceFirst:    1,
		DownKernelSize: 1,
		OutputStride:   32,
		ZeroInitLastBN: true,
	}
}

// Override tweaks a BackboneConfig before construction.
type Override func(*BackboneConfig)

// WithSE adds a squeeze-and-excitation gate to every block.
func WithSE() Override { return func(c *BackboneConfig) { c.UseSE = true } }

// WithCardinality sets grouped convolution width for bottleneck blocks.
func WithCardinality(groups, baseWidth int) Override {
	return func(c *BackboneConfig) { c.Cardinality, c.BaseWidth = groups, baseWidth }
}

// WithStem selects the stem layout and its intermediate width.
func WithStem(stemType string, stemWidth int) Override {
	return func(c *BackboneConfig) { c.StemType, c.StemWidth = stemType, stemWidth }
}

// WithAvgDown uses pooled shortcuts instead of strided 1x1 projections.
func WithAvgDown() Override { return func(c *BackboneConfig) { c.AvgDown = true } }

// WithOutputStride caps the network stride, converting later stage strides
// into dilation. Valid values are 8, 16 and 32.
func WithOutputStride(outputStride int) Override {
	return func(c *BackboneConfig) { c.OutputStride = outputStride }
}

// WithStageDepths replaces the per-stage block counts.
func WithStageDepths(depths ...int) Override {
	return func(c *BackboneConfig) { c.StageDepths = depths }
}

// WithReduceFirst divides the width of the first conv in every block.
func WithReduceFirst(reduce int) Override {
	return func(c *BackboneConfig) { c.ReduceFirst = reduce }
}

// WithDownKernelSize sets the kernel of strided downsample projections.
func WithDownKernelSize(kernel int) Override {
	return func(c *BackboneConfig) { c.DownKernelSize = kernel }
}

// WithDropRate sets classifier dropout.
func WithDropRate(rate float64) Override {
	return func(c *BackboneConfig) { c.DropRate = rate }
}

// WithDropPathRate sets stochastic depth on the block residuals.
func WithDropPathRate(rate float64) Override {
	return func(c *BackboneConfig) { c.DropPathRate = rate }
}

// WithDropBlockRate enables spatial drop block in the last two stages.
func WithDropBlockRate(rate float64) Override {
	return func(c *BackboneConfig) { c.DropBlockRate = rate }
}

// WithZeroInitLastBN controls zeroing of each block's last norm scale.
func WithZeroInitLastBN(enabled bool) Override {
	return func(c *BackboneConfig) { c.ZeroInitLastBN = enabled }
}

// stagePlanes is the base width of each of the four stages before block
// expansion.
var stagePlanes = [4]int{64, 128, 256, 512}

// ResNet is the backbone: a stem, four residual stages and a pooled linear
// classifier head. Models are built in inference mode; SetTraining opts
// into batch statistics and the drop layers.
type ResNet struct {
	cfg DataConfig

	conv1   nn.Module // *layers.Conv2D or the deep stem *nn.Sequential
	bn1     *layers.BatchNorm2D
	act     *layers.ReLU
	maxpool *layers.MaxPool2D

	stages [4]*nn.Sequential
	blocks []Block

	pool    *layers.GlobalAvgPool2D
	flatten *layers.Flatten
	dropout *layers.Dropout // nil without classifier dropout
	fc      *layers.Linear

	numFeatures int
	numClasses  int
}

// New assembles a backbone from the given configuration.
func New(cfg BackboneConfig) (*ResNet, error) {
	if cfg.Block.New == nil || cfg.Block.Expansion < 1 {
		return nil, fmt.Errorf("backbone: config needs a block builder with a positive expansion")
	}
	if len(cfg.StageDepths) != 4 {
		return nil, fmt.Errorf("backbone: want 4 stage depths, got %d", len(cfg.StageDepths))
	}
	for _, d := range cfg.StageDepths {
		if d < 1 {
			return nil, fmt.Errorf("backbone: stage depths must be positive, got %v", cfg.StageDepths)
		}
	}
	switch cfg.OutputStride {
	case 8, 16, 32:
	default:
		return nil, fmt.Errorf("backbone: output stride must be 8, 16 or 32, got %d", cfg.OutputStride)
	}
	if cfg.NumClasses < 1 {
		return nil, fmt.Errorf("backbone: need at least 1 class, got %d", cfg.NumClasses)
	}
	if cfg.InChans < 1 {
		return nil, fmt.Errorf("backbone: need at least 1 input channel, got %d", cfg.InChans)
	}
	if cfg.Cardinality < 1 || cfg.BaseWidth < 1 {
		return nil, fmt.Errorf("backbone: cardinality and base width must be positive")
	}
	if cfg.ReduceFirst < 1 || cfg.DownKernelSize < 1 {
		return nil, fmt.Errorf("backbone: reduce first and down kernel size must be positive")
	}

	r := &ResNet{
		numFeatures: stagePlanes[3] * cfg.Block.Expansion,
		numClasses:  cfg.NumClasses,
	}

	inplanes, err := r.buildStem(cfg)
	if err != nil {
		return nil, err
	}

	// Drop block stays off for the first two stages; the third runs with a
	// reduced rate.
	var stageDropBlocks [4]*layers.DropBlock2D
	if cfg.DropBlockRate > 0 {
		if stageDropBlocks[2], err = layers.NewDropBlock2D(cfg.DropBlockRate, 7, 0.25); err != nil {
			return nil, err
		}
		if stageDropBlocks[3], err = layers.NewDropBlock2D(cfg.DropBlockRate, 7, 1.0); err != nil {
			return nil, err
		}
	}
	var dropPath *layers.DropPath
	if cfg.DropPathRate > 0 {
		if dropPath, err = layers.NewDropPath(cfg.DropPathRate); err != nil {
			return nil, err
		}
	}

	netStride, dilation := 4, 1
	for i, depth := range cfg.StageDepths {
		planes := stagePlanes[i]
		stride := 2
		if i == 0 {
			stride = 1
		}
		prevDilation := dilation
		if stride > 1 && netStride >= cfg.OutputStride {
			// The requested stride is already reached, so trade any further
			// striding for dilation.
			dilation *= stride
			stride = 1
		} else {
			netStride *= stride
		}

		outPlanes := planes * cfg.Block.Expansion
		var downsample *nn.Sequential
		if stride != 1 || inplanes != outPlanes {
			if cfg.AvgDown {
				downsample, err = downsampleAvg(inplanes, outPlanes, cfg.DownKernelSize, stride, dilation)
			} else {
				downsample, err = downsampleConv(inplanes, outPlanes, cfg.DownKernelSize, stride, dilation)
			}
			if err != nil {
				return nil, fmt.Errorf("backbone: stage %d downsample: %w", i+1, err)
			}
		}

		stage := make([]nn.Module, 0, depth)
		for j := 0; j < depth; j++ {
			args := BlockArgs{
				InPlanes:      inplanes,
				Planes:        planes,
				Stride:        1,
				Cardinality:   cfg.Cardinality,
				BaseWidth:     cfg.BaseWidth,
				ReduceFirst:   cfg.ReduceFirst,
				Dilation:      dilation,
				FirstDilation: dilation,
				UseSE:         cfg.UseSE,
				DropPath:      dropPath,
				DropBlock:     stageDropBlocks[i],
			}
			if j == 0 {
				args.Stride = stride
				args.Downsample = downsample
				args.FirstDilation = prevDilation
			}
			block, err := cfg.Block.New(args)
			if err != nil {
				return nil, fmt.Errorf("backbone: stage %d block %d: %w", i+1, j, err)
			}
			stage = append(stage, block)
			r.blocks = append(r.blocks, block)
			inplanes = outPlanes
		}
		r.stages[i] = nn.NewSequential(stage...)
	}

	r.pool = layers.NewGlobalAvgPool2D()
	r.flatten = layers.NewFlatten()
	if cfg.DropRate > 0 {
		if r.dropout, err = layers.NewDropout(cfg.DropRate); err != nil {
			return nil, err
		}
	}
	if r.fc, err = layers.NewLinear(r.numFeatures, cfg.NumClasses); err != nil {
		return nil, err
	}

	if cfg.ZeroInitLastBN {
		for _, b := range r.blocks {
			b.ZeroInitLastBN()
		}
	}
	return r, nil
}

// buildStem creates conv1/bn1/act/maxpool and returns the stem's output
// channel count.
func (r *ResNet) buildStem(cfg BackboneConfig) (int, error) {
	inplanes := 64
	switch cfg.StemType {
	case "":
		conv, err := layers.NewConv2D(cfg.InChans, inplanes, 7, 7, layers.Conv2DOpts{Stride: 2, Padding: 3})
		if err != nil {
			return 0, err
		}
		r.conv1 = conv
	case "deep":
		if cfg.StemWidth < 1 {
			return 0, fmt.Errorf("backbone: deep stem needs a positive stem width, got %d", cfg.StemWidth)
		}
		sw := cfg.StemWidth
		inplanes = sw * 2
		c1, err := layers.NewConv2D(cfg.InChans, sw, 3, 3, layers.Conv2DOpts{Stride: 2, Padding: 1})
		if err != nil {
			return 0, err
		}
		b1, err := layers.NewBatchNorm2D(sw)
		if err != nil {
			return 0, err
		}
		c2, err := layers.NewConv2D(sw, sw, 3, 3, layers.Conv2DOpts{Padding: 1})
		if err != nil {
			return 0, err
		}
		b2, err := layers.NewBatchNorm2D(sw)
		if err != nil {
			return 0, err
		}
		c3, err := layers.NewConv2D(sw, inplanes, 3, 3, layers.Conv2DOpts{Padding: 1})
		if err != nil {
			return 0, err
		}
		r.conv1 = nn.NewSequential(c1, b1, layers.NewReLU(), c2, b2, layers.NewReLU(), c3)
	default:
		return 0, fmt.Errorf("backbone: unknown stem type %q", cfg.StemType)
	}

	bn, err := layers.NewBatchNorm2D(inplanes)
	if err != nil {
		return 0, err
	}
	r.bn1 = bn
	r.act = layers.NewReLU()
	if r.maxpool, err = layers.NewMaxPool2D(3, 2, 1); err != nil {
		return 0, err
	}
	return inplanes, nil
}

// downsampleConv projects a residual with a strided convolution and norm.
func downsampleConv(inChan, outChan, kernel, stride, dilation int) (*nn.Sequential, error) {
	if stride == 1 && dilation == 1 {
		kernel = 1
	}
	firstDilation := 1
	if kernel > 1 {
		firstDilation = dilation
	}
	padding := ((stride - 1) + firstDilation*(kernel-1)) / 2
	conv, err := layers.NewConv2D(inChan, outChan, kernel, kernel, layers.Conv2DOpts{
		Stride:   stride,
		Padding:  padding,
		Dilation: firstDilation,
	})
	if err != nil {
		return nil, err
	}
	bn, err := layers.NewBatchNorm2D(outChan)
	if err != nil {
		return nil, err
	}
	return nn.NewSequential(conv, bn), nil
}

// downsampleAvg projects a residual with an average pool followed by a 1x1
// convolution, keeping the projection itself stride free.
func downsampleAvg(inChan, outChan, kernel, stride, dilation int) (*nn.Sequential, error) {
	avgStride := stride
	if dilation != 1 {
		avgStride = 1
	}
	seq := make([]nn.Module, 0, 3)
	if stride != 1 || dilation != 1 {
		pool, err := layers.NewAvgPool2D(layers.AvgPool2DOpts{
			Kernel:   2,
			Stride:   avgStride,
			SamePad:  avgStride == 1,
			CeilMode: true,
		})
		if err != nil {
			return nil, err
		}
		seq = append(seq, pool)
	}
	conv, err := layers.NewConv2D(inChan, outChan, 1, 1, layers.Conv2DOpts{})
	if err != nil {
		return nil, err
	}
	bn, err := layers.NewBatchNorm2D(outChan)
	if err != nil {
		return nil, err
	}
	seq = append(seq, conv, bn)
	return nn.NewSequential(seq...), nil
}

// Features returns the channel count fed to the classifier.
func (r *ResNet) Features() int { return r.numFeatures }

// NumClasses returns the classifier's output width.
func (r *ResNet) NumClasses() int { return r.numClasses }

// Config returns the data configuration attached to the model.
func (r *ResNet) Config() DataConfig { return r.cfg }

// ForwardFeatures runs the stem and all four stages, returning the final
// feature map before pooling.
func (r *ResNet) ForwardFeatures(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 4 {
		return nil, fmt.Errorf("backbone: input must be 4D [batch, chan, height, width], got %v", x.Shape)
	}
	out, err := r.conv1.Forward(x)
	if err != nil {
		return nil, err
	}
	if out, err = r.bn1.Forward(out); err != nil {
		return nil, err
	}
	if out, err = r.act.Forward(out); err != nil {
		return nil, err
	}
	if out, err = r.maxpool.Forward(out); err != nil {
		return nil, err
	}
	for _, stage := range r.stages {
		if out, err = stage.Forward(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Forward runs the whole network and returns classifier logits of shape
// [batch, numClasses].
func (r *ResNet) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := r.ForwardFeatures(x)
	if err != nil {
		return nil, err
	}
	if out, err = r.pool.Forward(out); err != nil {
		return nil, err
	}
	if out, err = r.flatten.Forward(out); err != nil {
		return nil, err
	}
	if r.dropout != nil {
		if out, err = r.dropout.Forward(out); err != nil {
			return nil, err
		}
	}
	return r.fc.Forward(out)
}

// NamedParams registers the full backbone state under the usual checkpoint
// names (conv1, bn1, layer1..layer4, fc).
func (r *ResNet) NamedParams(prefix string, dst map[string]*tensor.Tensor) {
	if ps, ok := r.conv1.(nn.ParamSource); ok {
		ps.NamedParams(nn.JoinName(prefix, "conv1"), dst)
	}
	r.bn1.NamedParams(nn.JoinName(prefix, "bn1"), dst)
	for i, stage := range r.stages {
		stage.NamedParams(nn.JoinName(prefix, fmt.Sprintf("layer%d", i+1)), dst)
	}
	r.fc.NamedParams(nn.JoinName(prefix, "fc"), dst)
}

// SetTraining flips the whole network between training and inference
// behavior.
func (r *ResNet) SetTraining(training bool) {
	nn.SetTrainingMode(r.conv1, training)
	r.bn1.SetTraining(training)
	for _, stage := range r.stages {
		stage.SetTraining(training)
	}
	if r.dropout != nil {
		r.dropout.SetTraining(training)
	}
}

package models

import (
	"fmt"

	"sknet/nn"
	"sknet/nn/layers"
	"sknet/tensor"
)

var defaultCfgs = map[string]DataConfig{
	"skresnet18":  imageNetCfg("skresnet18", ""),
	"skresnet26d": deepStemCfg("skresnet26d", ""),
}

// deepStemCfg points the first conv name into the stem Sequential, where
// single channel weight adaptation has to happen for deep stem models.
func deepStemCfg(arch, url string) DataConfig {
	cfg := imageNetCfg(arch, url)
	cfg.FirstConv = "conv1.0"
	return cfg
}

func init() {
	// sksresnet18 has no pretrained weights of its own and reuses the base
	// model's configuration.
	cfg := defaultCfgs["skresnet18"]
	cfg.Architecture = "sksresnet18"
	defaultCfgs["sksresnet18"] = cfg

	Register("skresnet18", SKResNet18)
	Register("sksresnet18", SKSResNet18)
	Register("skresnet26d", SKResNet26d)
}

// SelectiveKernelBasic is the two conv residual unit with the first conv
// replaced by a selective kernel.
type SelectiveKernelBasic struct {
	Conv1 *layers.SelectiveKernelConv
	Conv2 *layers.ConvBnAct
	SE    *layers.SEModule // nil unless enabled

	act        *layers.ReLU
	downsample *nn.Sequential
	dropPath   *layers.DropPath
}

// NewSelectiveKernelBasic builds the block. Basic blocks support neither
// grouped convolutions nor a changed base width.
func NewSelectiveKernelBasic(args BlockArgs, sk layers.SelectiveKernelConfig) (*SelectiveKernelBasic, error) {
	normalizeBlockArgs(&args)
	if args.Cardinality != 1 {
		return nil, fmt.Errorf("basic block only supports cardinality 1, got %d", args.Cardinality)
	}
	if args.BaseWidth != 64 {
		return nil, fmt.Errorf("basic block does not support base width %d, only 64", args.BaseWidth)
	}
	firstPlanes := args.Planes / args.ReduceFirst
	outPlanes := args.Planes

	conv1, err := layers.NewSelectiveKernelConv(args.InPlanes, firstPlanes, layers.SelectiveKernelConvOpts{
		Stride:    args.Stride,
		Dilation:  args.FirstDilation,
		DropBlock: args.DropBlock,
		Config:    sk,
	})
	if err != nil {
		return nil, err
	}
	conv2, err := layers.NewConvBnAct(firstPlanes, outPlanes, layers.ConvBnActOpts{
		Kernel:    3,
		Dilation:  args.Dilation,
		NoAct:     true,
		DropBlock: args.DropBlock,
	})
	if err != nil {
		return nil, err
	}

	b := &SelectiveKernelBasic{
		Conv1:      conv1,
		Conv2:      conv2,
		act:        layers.NewReLU(),
		downsample: args.Downsample,
		dropPath:   args.DropPath,
	}
	if args.UseSE {
		if b.SE, err = layers.NewSEModule(outPlanes, args.Planes/4); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// ZeroInitLastBN zeroes the scale of the second conv's norm.
func (b *SelectiveKernelBasic) ZeroInitLastBN() { b.Conv2.Bn.ZeroGamma() }

// Forward runs the residual unit.
func (b *SelectiveKernelBasic) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := b.Conv1.Forward(x)
	if err != nil {
		return nil, err
	}
	if out, err = b.Conv2.Forward(out); err != nil {
		return nil, err
	}
	return finishBlock(out, x, b.SE, b.dropPath, b.downsample, b.act)
}

// NamedParams registers both convs, the optional gate and the projection.
func (b *SelectiveKernelBasic) NamedParams(prefix string, dst map[string]*tensor.Tensor) {
	b.Conv1.NamedParams(nn.JoinName(prefix, "conv1"), dst)
	b.Conv2.NamedParams(nn.JoinName(prefix, "conv2"), dst)
	if b.SE != nil {
		b.SE.NamedParams(nn.JoinName(prefix, "se"), dst)
	}
	if b.downsample != nil {
		b.downsample.NamedParams(nn.JoinName(prefix, "downsample"), dst)
	}
}

// SetTraining propagates the mode through the block.
func (b *SelectiveKernelBasic) SetTraining(training bool) {
	b.Conv1.SetTraining(training)
	b.Conv2.SetTraining(training)
	if b.dropPath != nil {
		b.dropPath.SetTraining(training)
	}
	if b.downsample != nil {
		b.downsample.SetTraining(training)
	}
}

// SelectiveKernelBottleneck is the 1x1 / selective kernel / 1x1 residual
// unit used by the deeper models.
type SelectiveKernelBottleneck struct {
	Conv1 *layers.ConvBnAct
	Conv2 *layers.SelectiveKernelConv
	Conv3 *layers.ConvBnAct
	SE    *layers.SEModule // nil unless enabled

	act        *layers.ReLU
	downsample *nn.Sequential
	dropPath   *layers.DropPath
}

// NewSelectiveKernelBottleneck builds the block. Cardinality and base width
// set the grouped width of the middle selective kernel conv.
func NewSelectiveKernelBottleneck(args BlockArgs, sk layers.SelectiveKernelConfig) (*SelectiveKernelBottleneck, error) {
	normalizeBlockArgs(&args)
	width := args.Planes * args.BaseWidth / 64 * args.Cardinality
	firstPlanes := width / args.ReduceFirst
	outPlanes := args.Planes * 4

	conv1, err := layers.NewConvBnAct(args.InPlanes, firstPlanes, layers.ConvBnActOpts{
		Kernel:    1,
		DropBlock: args.DropBlock,
	})
	if err != nil {
		return nil, err
	}
	conv2, err := layers.NewSelectiveKernelConv(firstPlanes, width, layers.SelectiveKernelConvOpts{
		Stride:    args.Stride,
		Dilation:  args.FirstDilation,
		Groups:    args.Cardinality,
		DropBlock: args.DropBlock,
		Config:    sk,
	})
	if err != nil {
		return nil, err
	}
	conv3, err := layers.NewConvBnAct(width, outPlanes, layers.ConvBnActOpts{
		Kernel:    1,
		NoAct:     true,
		DropBlock: args.DropBlock,
	})
	if err != nil {
		return nil, err
	}

	b := &SelectiveKernelBottleneck{
		Conv1:      conv1,
		Conv2:      conv2,
		Conv3:      conv3,
		act:        layers.NewReLU(),
		downsample: args.Downsample,
		dropPath:   args.DropPath,
	}
	if args.UseSE {
		if b.SE, err = layers.NewSEModule(outPlanes, args.Planes/4); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// ZeroInitLastBN zeroes the scale of the third conv's norm.
func (b *SelectiveKernelBottleneck) ZeroInitLastBN() { b.Conv3.Bn.ZeroGamma() }

// Forward runs the residual unit.
func (b *SelectiveKernelBottleneck) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := b.Conv1.Forward(x)
	if err != nil {
		return nil, err
	}
	if out, err = b.Conv2.Forward(out); err != nil {
		return nil, err
	}
	if out, err = b.Conv3.Forward(out); err != nil {
		return nil, err
	}
	return finishBlock(out, x, b.SE, b.dropPath, b.downsample, b.act)
}

// NamedParams registers the convs, the optional gate and the projection.
func (b *SelectiveKernelBottleneck) NamedParams(prefix string, dst map[string]*tensor.Tensor) {
	b.Conv1.NamedParams(nn.JoinName(prefix, "conv1"), dst)
	b.Conv2.NamedParams(nn.JoinName(prefix, "conv2"), dst)
	b.Conv3.NamedParams(nn.JoinName(prefix, "conv3"), dst)
	if b.SE != nil {
		b.SE.NamedParams(nn.JoinName(prefix, "se"), dst)
	}
	if b.downsample != nil {
		b.downsample.NamedParams(nn.JoinName(prefix, "downsample"), dst)
	}
}

// SetTraining propagates the mode through the block.
func (b *SelectiveKernelBottleneck) SetTraining(training bool) {
	b.Conv1.SetTraining(training)
	b.Conv2.SetTraining(training)
	b.Conv3.SetTraining(training)
	if b.dropPath != nil {
		b.dropPath.SetTraining(training)
	}
	if b.downsample != nil {
		b.downsample.SetTraining(training)
	}
}

// normalizeBlockArgs fills the zero values a hand built BlockArgs may carry.
func normalizeBlockArgs(args *BlockArgs) {
	if args.Stride == 0 {
		args.Stride = 1
	}
	if args.Dilation == 0 {
		args.Dilation = 1
	}
	if args.FirstDilation == 0 {
		args.FirstDilation = args.Dilation
	}
	if args.Cardinality == 0 {
		args.Cardinality = 1
	}
	if args.BaseWidth == 0 {
		args.BaseWidth = 64
	}
	if args.ReduceFirst == 0 {
		args.ReduceFirst = 1
	}
}

// finishBlock applies the shared tail of both block kinds: optional gate,
// optional stochastic depth, residual add and final activation.
func finishBlock(out, residual *tensor.Tensor, se *layers.SEModule, dropPath *layers.DropPath, downsample *nn.Sequential, act *layers.ReLU) (*tensor.Tensor, error) {
	var err error
	if se != nil {
		if out, err = se.Forward(out); err != nil {
			return nil, err
		}
	}
	if dropPath != nil {
		if out, err = dropPath.Forward(out); err != nil {
			return nil, err
		}
	}
	if downsample != nil {
		if residual, err = downsample.Forward(residual); err != nil {
			return nil, err
		}
	}
	sum, err := tensor.Add(out, residual)
	if err != nil {
		return nil, fmt.Errorf("residual add: %w", err)
	}
	return act.Forward(sum)
}

// SelectiveKernelBasicBlock returns a builder producing basic blocks that
// carry the given selective kernel configuration.
func SelectiveKernelBasicBlock(sk layers.SelectiveKernelConfig) BlockBuilder {
	return BlockBuilder{
		Expansion: 1,
		New: func(args BlockArgs) (Block, error) {
			return NewSelectiveKernelBasic(args, sk)
		},
	}
}

// SelectiveKernelBottleneckBlock returns a builder producing bottleneck
// blocks that carry the given selective kernel configuration.
func SelectiveKernelBottleneckBlock(sk layers.SelectiveKernelConfig) BlockBuilder {
	return BlockBuilder{
		Expansion: 4,
		New: func(args BlockArgs) (Block, error) {
			return NewSelectiveKernelBottleneck(args, sk)
		},
	}
}

// buildSKNet is the shared factory tail: apply overrides, construct, attach
// the data configuration and optionally load pretrained weights.
func buildSKNet(arch string, dataCfg DataConfig, block BlockBuilder, pretrained bool, numClasses, inChans int, tweak Override, overrides []Override) (*ResNet, error) {
	if numClasses == 0 {
		numClasses = 1000
	}
	if inChans == 0 {
		inChans = 3
	}
	cfg := DefaultBackboneConfig()
	cfg.Block = block
	cfg.StageDepths = []int{2, 2, 2, 2}
	cfg.NumClasses = numClasses
	cfg.InChans = inChans
	if tweak != nil {
		tweak(&cfg)
	}
	for _, o := range overrides {
		o(&cfg)
	}
	model, err := New(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", arch, err)
	}
	model.cfg = withModelDims(dataCfg, numClasses, inChans)
	if pretrained {
		if err := LoadPretrained(model, dataCfg, numClasses, inChans); err != nil {
			return nil, fmt.Errorf("%s: %w", arch, err)
		}
	}
	return model, nil
}

// SKResNet18 constructs the selective kernel ResNet-18. Each residual unit
// replaces its first 3x3 conv with a two branch selective kernel whose
// larger branch is a dilated 3x3.
func SKResNet18(pretrained bool, numClasses, inChans int, overrides ...Override) (*ResNet, error) {
	sk := layers.DefaultSelectiveKernelConfig()
	sk.MinAttnChannels = 16
	return buildSKNet("skresnet18", defaultCfgs["skresnet18"],
		SelectiveKernelBasicBlock(sk), pretrained, numClasses, inChans, nil, overrides)
}

// SKSResNet18 is SKResNet18 with each selective kernel's input split across
// its branches, roughly halving the cost of the branch convs. It shares the
// skresnet18 data configuration.
func SKSResNet18(pretrained bool, numClasses, inChans int, overrides ...Override) (*ResNet, error) {
	sk := layers.DefaultSelectiveKernelConfig()
	sk.MinAttnChannels = 16
	sk.SplitInput = true
	return buildSKNet("sksresnet18", defaultCfgs["sksresnet18"],
		SelectiveKernelBasicBlock(sk), pretrained, numClasses, inChans, nil, overrides)
}

// SKResNet26d constructs the selective kernel ResNet-26-D: bottleneck
// blocks, a deep three conv stem and pooled shortcut projections, with
// literal 3x3 and 5x5 branches instead of dilated ones.
func SKResNet26d(pretrained bool, numClasses, inChans int, overrides ...Override) (*ResNet, error) {
	sk := layers.DefaultSelectiveKernelConfig()
	sk.Keep3x3 = false
	tweak := func(c *BackboneConfig) {
		c.StemType = "deep"
		c.StemWidth = 32
		c.AvgDown = true
	}
	return buildSKNet("skresnet26d", defaultCfgs["skresnet26d"],
		SelectiveKernelBottleneckBlock(sk), pretrained, numClasses, inChans, tweak, overrides)
}

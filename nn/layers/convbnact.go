package layers

import (
	"sknet/nn"
	"sknet/tensor"
)

// ConvBnActOpts configures a ConvBnAct. Zero values mean a 1x1 kernel,
// stride 1, dilation 1, a single group, activation enabled and no drop
// block.
type ConvBnActOpts struct {
	Kernel    int
	Stride    int
	Dilation  int
	Groups    int
	NoAct     bool
	DropBlock *DropBlock2D
}

// ConvBnAct is the standard conv + batch norm + optional ReLU unit. The
// convolution carries no bias and pads so that stride 1 preserves the
// spatial size.
type ConvBnAct struct {
	Conv *Conv2D
	Bn   *BatchNorm2D
	Act  *ReLU // nil when disabled

	dropBlock *DropBlock2D
}

// NewConvBnAct creates the unit.
func NewConvBnAct(inChan, outChan int, opts ConvBnActOpts) (*ConvBnAct, error) {
	if opts.Kernel == 0 {
		opts.Kernel = 1
	}
	if opts.Stride == 0 {
		opts.Stride = 1
	}
	if opts.Dilation == 0 {
		opts.Dilation = 1
	}
	padding := ((opts.Stride - 1) + opts.Dilation*(opts.Kernel-1)) / 2
	conv, err := NewConv2D(inChan, outChan, opts.Kernel, opts.Kernel, Conv2DOpts{
		Stride:   opts.Stride,
		Padding:  padding,
		Dilation: opts.Dilation,
		Groups:   opts.Groups,
	})
	if err != nil {
		return nil, err
	}
	bn, err := NewBatchNorm2D(outChan)
	if err != nil {
		return nil, err
	}
	cba := &ConvBnAct{Conv: conv, Bn: bn, dropBlock: opts.DropBlock}
	if !opts.NoAct {
		cba.Act = NewReLU()
	}
	return cba, nil
}

// OutChannels returns the number of output channels.
func (c *ConvBnAct) OutChannels() int { return c.Conv.OutChannels() }

// Forward runs conv, norm, optional drop block, optional activation.
func (c *ConvBnAct) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := c.Conv.Forward(input)
	if err != nil {
		return nil, err
	}
	out, err = c.Bn.Forward(out)
	if err != nil {
		return nil, err
	}
	if c.dropBlock != nil {
		out, err = c.dropBlock.Forward(out)
		if err != nil {
			return nil, err
		}
	}
	if c.Act != nil {
		out, err = c.Act.Forward(out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// NamedParams registers the conv kernel and norm state.
func (c *ConvBnAct) NamedParams(prefix string, dst map[string]*tensor.Tensor) {
	c.Conv.NamedParams(nn.JoinName(prefix, "conv"), dst)
	c.Bn.NamedParams(nn.JoinName(prefix, "bn"), dst)
}

// SetTraining propagates the mode to the norm and drop block.
func (c *ConvBnAct) SetTraining(training bool) {
	c.Bn.SetTraining(training)
	if c.dropBlock != nil {
		c.dropBlock.SetTraining(training)
	}
}

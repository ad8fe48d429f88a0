package nn

import (
	"errors"
	"math"
	"testing"

	"sknet/tensor"
)

// dummy layer: adds a constant
type addLayer struct {
	c        float64
	w        *tensor.Tensor
	training bool
}

func (l *addLayer) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out := x.Clone()
	for i := range out.Data {
		out.Data[i] += l.c
	}
	return out, nil
}

func (l *addLayer) NamedParams(prefix string, dst map[string]*tensor.Tensor) {
	if l.w != nil {
		dst[JoinName(prefix, "weight")] = l.w
	}
}

func (l *addLayer) SetTraining(training bool) { l.training = training }

// dummy layer: error on forward
type errLayer struct{}

func (l *errLayer) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return nil, errors.New("fail")
}

func TestSequentialForward(t *testing.T) {
	a := tensor.New(1)
	a.Data[0] = 1
	seq := NewSequential(&addLayer{c: 2}, &addLayer{c: 3})
	out, err := seq.Forward(a)
	if err != nil {
		t.Fatal(err)
	}
	if out.Data[0] != 6 {
		t.Fatalf("expected 6, got %f", out.Data[0])
	}
}

func TestSequentialForwardError(t *testing.T) {
	seq := NewSequential(&addLayer{c: 1}, &errLayer{})
	if _, err := seq.Forward(tensor.New(1)); err == nil {
		t.Fatal("expected error from failing layer")
	}
}

func TestSequentialNamedParamsByIndex(t *testing.T) {
	seq := NewSequential(
		&addLayer{w: tensor.New(1)},
		&addLayer{w: tensor.New(2)},
	)
	params := Params(seq)
	if len(params) != 2 {
		t.Fatalf("expected 2 params, got %d", len(params))
	}
	if _, ok := params["0.weight"]; !ok {
		t.Errorf("missing 0.weight: %v", params)
	}
	if _, ok := params["1.weight"]; !ok {
		t.Errorf("missing 1.weight: %v", params)
	}
}

func TestSetTrainingModePropagates(t *testing.T) {
	a := &addLayer{}
	b := &addLayer{}
	seq := NewSequential(a, NewSequential(b))
	SetTrainingMode(seq, true)
	if !a.training || !b.training {
		t.Errorf("training mode did not reach children: %v %v", a.training, b.training)
	}
}

func TestJoinName(t *testing.T) {
	if got := JoinName("", "conv1"); got != "conv1" {
		t.Errorf("got %q", got)
	}
	if got := JoinName("layer1", "0"); got != "layer1.0" {
		t.Errorf("got %q", got)
	}
}

func TestSoftmaxRowsSumToOne(t *testing.T) {
	logits, err := tensor.NewWithShape([]float64{1, 2, 3, -1, 0, 1}, 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	sm := Softmax(logits)
	for r := 0; r < 2; r++ {
		sum := 0.0
		for c := 0; c < 3; c++ {
			sum += sm.At(r, c)
		}
		if math.Abs(sum-1) > 1e-12 {
			t.Errorf("row %d sums to %f", r, sum)
		}
	}
	// Both rows have the same relative logits, so the same weights.
	if math.Abs(sm.At(0, 0)-sm.At(1, 0)) > 1e-12 {
		t.Errorf("shifted logits changed softmax: %f vs %f", sm.At(0, 0), sm.At(1, 0))
	}
}

func TestSoftmaxLargeLogitsStable(t *testing.T) {
	sm := Softmax(tensor.NewWithData([]float64{1000, 1001}))
	if math.IsNaN(sm.Data[0]) || math.IsNaN(sm.Data[1]) {
		t.Fatalf("softmax overflowed: %v", sm.Data)
	}
	if sm.Data[1] <= sm.Data[0] {
		t.Errorf("larger logit should win: %v", sm.Data)
	}
}

package layers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sknet/tensor"
)

func TestReLU(t *testing.T) {
	r := NewReLU()
	out, err := r.Forward(tensor.NewWithData([]float64{-2, -0.5, 0, 0.5, 2}))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0.5, 2}, out.Data)
}

func TestSigmoid(t *testing.T) {
	s := NewSigmoid()
	out, err := s.Forward(tensor.NewWithData([]float64{0, 100, -100}))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, out.Data[0], 1e-9)
	assert.InDelta(t, 1.0, out.Data[1], 1e-9)
	assert.InDelta(t, 0.0, out.Data[2], 1e-9)
}

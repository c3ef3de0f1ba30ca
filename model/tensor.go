package model

import (
	"fmt"
	"slices"
)

// Tensor is a dense row-major tensor.
type Tensor struct {
	Shape []int
	Data  []float64
}

// NewTensor allocates a zero tensor with the given shape.
func NewTensor(shape ...int) Tensor {
	return Tensor{Shape: slices.Clone(shape), Data: make([]float64, volume(shape))}
}

// FromMatrix wraps a rows by cols matrix as a single channel [rows, cols, 1]
// tensor.
func FromMatrix(m [][]float64) Tensor {
	rows := len(m)
	cols := 0
	if rows > 0 {
		cols = len(m[0])
	}
	t := NewTensor(rows, cols, 1)
	for i, row := range m {
		copy(t.Data[i*cols:(i+1)*cols], row)
	}
	return t
}

// Len returns the number of elements.
func (t Tensor) Len() int { return len(t.Data) }

func (t Tensor) check(rank int) error {
	if len(t.Shape) != rank {
		return fmt.Errorf("%w: want rank %d, got shape %v", ErrShape, rank, t.Shape)
	}
	if volume(t.Shape) != len(t.Data) {
		return fmt.Errorf("%w: shape %v does not match %d elements", ErrShape, t.Shape, len(t.Data))
	}
	return nil
}

func volume(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

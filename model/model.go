package model

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"

	"github.com/klauspost/cpuid/v2"
)

var (
	ErrShape       = errors.New("model: shape mismatch")
	ErrModelFormat = errors.New("model: malformed model file")
)

// Model is a loaded sequential classifier.
type Model struct {
	Name       string
	InputShape []int
	Classes    []string
	Layers     []Layer

	workers int
}

// Option customises a loaded model.
type Option func(*Model)

// WithWorkers bounds the goroutines used by a single convolution.
func WithWorkers(n int) Option {
	return func(m *Model) {
		if n > 0 {
			m.workers = n
		}
	}
}

// defaultWorkers uses physical cores, since hyper-threads add little for the
// multiply-add loops.
func defaultWorkers() int {
	if n := cpuid.CPU.PhysicalCores; n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// New assembles a model and checks that the layer shapes chain together.
func New(name string, input []int, classes []string, layers []Layer, opts ...Option) (*Model, error) {
	m := &Model{
		Name:       name,
		InputShape: slices.Clone(input),
		Classes:    slices.Clone(classes),
		Layers:     layers,
		workers:    defaultWorkers(),
	}
	for _, opt := range opts {
		opt(m)
	}
	out, err := m.OutputShape()
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%w: model output must be a vector, got %v", ErrShape, out)
	}
	if len(m.Classes) > 0 && len(m.Classes) != out[0] {
		return nil, fmt.Errorf("%w: %d class labels for %d outputs", ErrShape, len(m.Classes), out[0])
	}
	return m, nil
}

// OutputShape returns the shape produced by the last layer.
func (m *Model) OutputShape() ([]int, error) {
	shape := m.InputShape
	for i, l := range m.Layers {
		next, err := l.OutputShape(shape)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, l.Kind(), err)
		}
		shape = next
	}
	return shape, nil
}

// Workers reports the convolution parallelism.
func (m *Model) Workers() int { return m.workers }

// Predict runs a forward pass and returns the output vector, normally the
// per-class probabilities.
func (m *Model) Predict(ctx context.Context, in Tensor) ([]float64, error) {
	if !slices.Equal(in.Shape, m.InputShape) {
		return nil, fmt.Errorf("%w: model expects %v, got %v", ErrShape, m.InputShape, in.Shape)
	}
	if volume(in.Shape) != len(in.Data) {
		return nil, fmt.Errorf("%w: shape %v does not match %d elements", ErrShape, in.Shape, len(in.Data))
	}
	t := Tensor{Shape: slices.Clone(in.Shape), Data: slices.Clone(in.Data)}
	for i, l := range m.Layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var err error
		t, err = l.Forward(ctx, t, m.workers)
		if err != nil {
			return nil, fmt.Errorf("model: layer %d (%s): %w", i, l.Kind(), err)
		}
	}
	return t.Data, nil
}

package model

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
)

// Layer is one stage of a sequential model.
type Layer interface {
	// Kind returns the layer type name used in model files.
	Kind() string
	// OutputShape validates the input shape and returns the output shape.
	OutputShape(in []int) ([]int, error)
	Forward(ctx context.Context, in Tensor, workers int) (Tensor, error)
}

// Padding selects how convolutions treat the borders.
type Padding string

const (
	Valid Padding = "valid"
	Same  Padding = "same"
)

func outDim(in, k, stride int, p Padding) int {
	if p == Same {
		return (in + stride - 1) / stride
	}
	if in < k {
		return 0
	}
	return (in-k)/stride + 1
}

func padBefore(in, out, k, stride int, p Padding) int {
	if p != Same {
		return 0
	}
	total := (out-1)*stride + k - in
	if total < 0 {
		return 0
	}
	return total / 2
}

// Conv2D is a 2-D convolution with kernel [kh, kw, in, out].
type Conv2D struct {
	Kernel     Tensor
	Bias       []float64
	Strides    [2]int
	Padding    Padding
	Activation Activation
}

func (c *Conv2D) Kind() string { return "conv2d" }

func (c *Conv2D) OutputShape(in []int) ([]int, error) {
	if len(in) != 3 {
		return nil, fmt.Errorf("%w: conv2d wants [h, w, c], got %v", ErrShape, in)
	}
	kh, kw, cin, cout := c.Kernel.Shape[0], c.Kernel.Shape[1], c.Kernel.Shape[2], c.Kernel.Shape[3]
	if in[2] != cin {
		return nil, fmt.Errorf("%w: conv2d kernel expects %d channels, got %d", ErrShape, cin, in[2])
	}
	oh, ow := outDim(in[0], kh, c.Strides[0], c.Padding), outDim(in[1], kw, c.Strides[1], c.Padding)
	if oh == 0 || ow == 0 {
		return nil, fmt.Errorf("%w: conv2d kernel %dx%d larger than input %v", ErrShape, kh, kw, in)
	}
	return []int{oh, ow, cout}, nil
}

func (c *Conv2D) Forward(ctx context.Context, in Tensor, workers int) (Tensor, error) {
	if err := in.check(3); err != nil {
		return Tensor{}, err
	}
	shape, err := c.OutputShape(in.Shape)
	if err != nil {
		return Tensor{}, err
	}
	h, w, cin := in.Shape[0], in.Shape[1], in.Shape[2]
	kh, kw, cout := c.Kernel.Shape[0], c.Kernel.Shape[1], c.Kernel.Shape[3]
	oh, ow := shape[0], shape[1]
	sy, sx := c.Strides[0], c.Strides[1]
	py, px := padBefore(h, oh, kh, sy, c.Padding), padBefore(w, ow, kw, sx, c.Padding)

	out := NewTensor(shape...)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for o := 0; o < cout; o++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for oy := 0; oy < oh; oy++ {
				for ox := 0; ox < ow; ox++ {
					sum := c.Bias[o]
					for ky := 0; ky < kh; ky++ {
						y := oy*sy + ky - py
						if y < 0 || y >= h {
							continue
						}
						for kx := 0; kx < kw; kx++ {
							x := ox*sx + kx - px
							if x < 0 || x >= w {
								continue
							}
							src := (y*w + x) * cin
							k := ((ky*kw+kx)*cin)*cout + o
							for ch := 0; ch < cin; ch++ {
								sum += in.Data[src+ch] * c.Kernel.Data[k+ch*cout]
							}
						}
					}
					out.Data[(oy*ow+ox)*cout+o] = sum
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Tensor{}, err
	}
	c.Activation.apply(out)
	return out, nil
}

// Pool2D is max or average pooling over [h, w] windows.
type Pool2D struct {
	Average bool
	Size    [2]int
	Strides [2]int
	Padding Padding
}

func (p *Pool2D) Kind() string {
	if p.Average {
		return "averagepool2d"
	}
	return "maxpool2d"
}

func (p *Pool2D) OutputShape(in []int) ([]int, error) {
	if len(in) != 3 {
		return nil, fmt.Errorf("%w: %s wants [h, w, c], got %v", ErrShape, p.Kind(), in)
	}
	oh := outDim(in[0], p.Size[0], p.Strides[0], p.Padding)
	ow := outDim(in[1], p.Size[1], p.Strides[1], p.Padding)
	if oh == 0 || ow == 0 {
		return nil, fmt.Errorf("%w: %s window larger than input %v", ErrShape, p.Kind(), in)
	}
	return []int{oh, ow, in[2]}, nil
}

func (p *Pool2D) Forward(_ context.Context, in Tensor, _ int) (Tensor, error) {
	if err := in.check(3); err != nil {
		return Tensor{}, err
	}
	shape, err := p.OutputShape(in.Shape)
	if err != nil {
		return Tensor{}, err
	}
	h, w, ch := in.Shape[0], in.Shape[1], in.Shape[2]
	oh, ow := shape[0], shape[1]
	py, px := padBefore(h, oh, p.Size[0], p.Strides[0], p.Padding), padBefore(w, ow, p.Size[1], p.Strides[1], p.Padding)

	out := NewTensor(shape...)
	for oy := 0; oy < oh; oy++ {
		for ox := 0; ox < ow; ox++ {
			for c := 0; c < ch; c++ {
				acc := math.Inf(-1)
				if p.Average {
					acc = 0
				}
				n := 0
				for ky := 0; ky < p.Size[0]; ky++ {
					y := oy*p.Strides[0] + ky - py
					if y < 0 || y >= h {
						continue
					}
					for kx := 0; kx < p.Size[1]; kx++ {
						x := ox*p.Strides[1] + kx - px
						if x < 0 || x >= w {
							continue
						}
						v := in.Data[(y*w+x)*ch+c]
						if p.Average {
							acc += v
						} else {
							acc = math.Max(acc, v)
						}
						n++
					}
				}
				if p.Average && n > 0 {
					acc /= float64(n)
				}
				out.Data[(oy*ow+ox)*ch+c] = acc
			}
		}
	}
	return out, nil
}

// GlobalAveragePool2D averages every channel over the spatial axes.
type GlobalAveragePool2D struct{}

func (GlobalAveragePool2D) Kind() string { return "globalaveragepool2d" }

func (GlobalAveragePool2D) OutputShape(in []int) ([]int, error) {
	if len(in) != 3 {
		return nil, fmt.Errorf("%w: globalaveragepool2d wants [h, w, c], got %v", ErrShape, in)
	}
	return []int{in[2]}, nil
}

func (g GlobalAveragePool2D) Forward(_ context.Context, in Tensor, _ int) (Tensor, error) {
	if err := in.check(3); err != nil {
		return Tensor{}, err
	}
	ch := in.Shape[2]
	out := NewTensor(ch)
	for i, v := range in.Data {
		out.Data[i%ch] += v
	}
	n := float64(in.Shape[0] * in.Shape[1])
	for c := range out.Data {
		out.Data[c] /= n
	}
	return out, nil
}

// BatchNorm applies inference-time batch normalisation on the last axis.
type BatchNorm struct {
	Gamma, Beta, Mean, Variance []float64
	Epsilon                     float64
}

func (b *BatchNorm) Kind() string { return "batchnorm" }

func (b *BatchNorm) OutputShape(in []int) ([]int, error) {
	if len(in) == 0 || in[len(in)-1] != len(b.Gamma) {
		return nil, fmt.Errorf("%w: batchnorm has %d channels, input %v", ErrShape, len(b.Gamma), in)
	}
	return in, nil
}

func (b *BatchNorm) Forward(_ context.Context, in Tensor, _ int) (Tensor, error) {
	if _, err := b.OutputShape(in.Shape); err != nil {
		return Tensor{}, err
	}
	ch := len(b.Gamma)
	out := NewTensor(in.Shape...)
	for i, v := range in.Data {
		c := i % ch
		out.Data[i] = b.Gamma[c]*(v-b.Mean[c])/math.Sqrt(b.Variance[c]+b.Epsilon) + b.Beta[c]
	}
	return out, nil
}

// Flatten reshapes its input to a vector.
type Flatten struct{}

func (Flatten) Kind() string { return "flatten" }

func (Flatten) OutputShape(in []int) ([]int, error) { return []int{volume(in)}, nil }

func (Flatten) Forward(_ context.Context, in Tensor, _ int) (Tensor, error) {
	return Tensor{Shape: []int{len(in.Data)}, Data: in.Data}, nil
}

// Dropout is the identity at inference time.
type Dropout struct{}

func (Dropout) Kind() string { return "dropout" }

func (Dropout) OutputShape(in []int) ([]int, error) { return in, nil }

func (Dropout) Forward(_ context.Context, in Tensor, _ int) (Tensor, error) { return in, nil }

// Dense is a fully connected layer with kernel [in, out].
type Dense struct {
	Kernel     Tensor
	Bias       []float64
	Activation Activation
}

func (d *Dense) Kind() string { return "dense" }

func (d *Dense) OutputShape(in []int) ([]int, error) {
	if len(in) != 1 || in[0] != d.Kernel.Shape[0] {
		return nil, fmt.Errorf("%w: dense expects [%d], got %v", ErrShape, d.Kernel.Shape[0], in)
	}
	return []int{d.Kernel.Shape[1]}, nil
}

func (d *Dense) Forward(_ context.Context, in Tensor, _ int) (Tensor, error) {
	if _, err := d.OutputShape(in.Shape); err != nil {
		return Tensor{}, err
	}
	units := d.Kernel.Shape[1]
	out := NewTensor(units)
	copy(out.Data, d.Bias)
	for i, x := range in.Data {
		if x == 0 {
			continue
		}
		row := d.Kernel.Data[i*units : (i+1)*units]
		for j, w := range row {
			out.Data[j] += x * w
		}
	}
	d.Activation.apply(out)
	return out, nil
}

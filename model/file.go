package model

import (
	"compress/lzw"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/x448/float16"
)

type fileModel struct {
	Name       string      `json:"name"`
	InputShape []int       `json:"input_shape"`
	Classes    []string    `json:"classes"`
	Layers     []fileLayer `json:"layers"`
}

type fileLayer struct {
	Type       string                `json:"type"`
	Activation string                `json:"activation,omitempty"`
	Strides    []int                 `json:"strides,omitempty"`
	Padding    string                `json:"padding,omitempty"`
	PoolSize   []int                 `json:"pool_size,omitempty"`
	Epsilon    float64               `json:"epsilon,omitempty"`
	Weights    map[string]fileTensor `json:"weights,omitempty"`
}

type fileTensor struct {
	Shape []int     `json:"shape"`
	DType string    `json:"dtype,omitempty"`
	Data  []float64 `json:"data,omitempty"`
	B64   string    `json:"b64,omitempty"`
}

// Load reads a model file; names ending in .lzw are decompressed first.
func Load(path string, opts ...Option) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("model: open %q: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".lzw") {
		lr := lzw.NewReader(f, lzw.LSB, 8)
		defer lr.Close()
		r = lr
	}
	m, err := Read(r, opts...)
	if err != nil {
		return nil, fmt.Errorf("model: load %q: %w", path, err)
	}
	return m, nil
}

// Read decodes an uncompressed JSON model.
func Read(r io.Reader, opts ...Option) (*Model, error) {
	var fm fileModel
	if err := json.NewDecoder(r).Decode(&fm); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelFormat, err)
	}
	if len(fm.InputShape) == 0 {
		return nil, fmt.Errorf("%w: input_shape is required", ErrModelFormat)
	}
	layers := make([]Layer, 0, len(fm.Layers))
	for i, fl := range fm.Layers {
		l, err := fl.build()
		if err != nil {
			return nil, fmt.Errorf("%w: layer %d: %v", ErrModelFormat, i, err)
		}
		layers = append(layers, l)
	}
	return New(fm.Name, fm.InputShape, fm.Classes, layers, opts...)
}

// WriteCompressed writes a model document LZW compressed, the inverse of
// loading a .json.lzw file.
func WriteCompressed(w io.Writer, doc []byte) error {
	lw := lzw.NewWriter(w, lzw.LSB, 8)
	if _, err := lw.Write(doc); err != nil {
		lw.Close()
		return err
	}
	return lw.Close()
}

func (fl fileLayer) build() (Layer, error) {
	act, err := parseActivation(fl.Activation)
	if err != nil {
		return nil, err
	}
	kind := strings.ToLower(fl.Type)
	switch kind {
	case "conv2d":
		kernel, err := fl.tensor("kernel", 4)
		if err != nil {
			return nil, err
		}
		bias, err := fl.bias(kernel.Shape[3])
		if err != nil {
			return nil, err
		}
		strides, err := pair(fl.Strides, [2]int{1, 1})
		if err != nil {
			return nil, err
		}
		padding, err := parsePadding(fl.Padding)
		if err != nil {
			return nil, err
		}
		return &Conv2D{Kernel: kernel, Bias: bias, Strides: strides, Padding: padding, Activation: act}, nil
	case "maxpool2d", "averagepool2d":
		size, err := pair(fl.PoolSize, [2]int{2, 2})
		if err != nil {
			return nil, err
		}
		strides, err := pair(fl.Strides, size)
		if err != nil {
			return nil, err
		}
		padding, err := parsePadding(fl.Padding)
		if err != nil {
			return nil, err
		}
		return &Pool2D{Average: kind == "averagepool2d", Size: size, Strides: strides, Padding: padding}, nil
	case "globalaveragepool2d":
		return GlobalAveragePool2D{}, nil
	case "batchnorm":
		var vecs [4][]float64
		for i, name := range []string{"gamma", "beta", "moving_mean", "moving_variance"} {
			t, err := fl.tensor(name, 1)
			if err != nil {
				return nil, err
			}
			vecs[i] = t.Data
		}
		n := len(vecs[0])
		for _, v := range vecs[1:] {
			if len(v) != n {
				return nil, fmt.Errorf("batchnorm vectors differ in length")
			}
		}
		eps := fl.Epsilon
		if eps == 0 {
			eps = 1e-3
		}
		return &BatchNorm{Gamma: vecs[0], Beta: vecs[1], Mean: vecs[2], Variance: vecs[3], Epsilon: eps}, nil
	case "flatten":
		return Flatten{}, nil
	case "dropout":
		return Dropout{}, nil
	case "dense":
		kernel, err := fl.tensor("kernel", 2)
		if err != nil {
			return nil, err
		}
		bias, err := fl.bias(kernel.Shape[1])
		if err != nil {
			return nil, err
		}
		return &Dense{Kernel: kernel, Bias: bias, Activation: act}, nil
	}
	return nil, fmt.Errorf("unknown layer type %q", fl.Type)
}

func (fl fileLayer) tensor(name string, rank int) (Tensor, error) {
	ft, ok := fl.Weights[name]
	if !ok {
		return Tensor{}, fmt.Errorf("%s: missing weight %q", fl.Type, name)
	}
	t, err := ft.decode()
	if err != nil {
		return Tensor{}, fmt.Errorf("%s.%s: %w", fl.Type, name, err)
	}
	if len(t.Shape) != rank {
		return Tensor{}, fmt.Errorf("%s.%s: want rank %d, got shape %v", fl.Type, name, rank, t.Shape)
	}
	return t, nil
}

// bias defaults to zeros when the file omits it.
func (fl fileLayer) bias(n int) ([]float64, error) {
	if _, ok := fl.Weights["bias"]; !ok {
		return make([]float64, n), nil
	}
	t, err := fl.tensor("bias", 1)
	if err != nil {
		return nil, err
	}
	if len(t.Data) != n {
		return nil, fmt.Errorf("%s.bias: want %d values, got %d", fl.Type, n, len(t.Data))
	}
	return t.Data, nil
}

func (ft fileTensor) decode() (Tensor, error) {
	n := volume(ft.Shape)
	var data []float64
	switch {
	case ft.B64 != "":
		raw, err := base64.StdEncoding.DecodeString(ft.B64)
		if err != nil {
			return Tensor{}, err
		}
		data, err = decodeRaw(raw, ft.DType)
		if err != nil {
			return Tensor{}, err
		}
	default:
		data = ft.Data
	}
	if len(data) != n {
		return Tensor{}, fmt.Errorf("shape %v wants %d values, got %d", ft.Shape, n, len(data))
	}
	return Tensor{Shape: ft.Shape, Data: data}, nil
}

func decodeRaw(raw []byte, dtype string) ([]float64, error) {
	switch dtype {
	case "float16":
		if len(raw)%2 != 0 {
			return nil, fmt.Errorf("float16 payload has odd length %d", len(raw))
		}
		out := make([]float64, len(raw)/2)
		for i := range out {
			out[i] = float64(float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32())
		}
		return out, nil
	case "float32", "":
		if len(raw)%4 != 0 {
			return nil, fmt.Errorf("float32 payload length %d is not a multiple of 4", len(raw))
		}
		out := make([]float64, len(raw)/4)
		for i := range out {
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported dtype %q", dtype)
}

// EncodeFloat16 packs values as base64 little endian half floats, the
// "float16" tensor encoding.
func EncodeFloat16(values []float64) string {
	raw := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(raw[i*2:], float16.Fromfloat32(float32(v)).Bits())
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func pair(v []int, def [2]int) ([2]int, error) {
	switch len(v) {
	case 0:
		return def, nil
	case 1:
		v = []int{v[0], v[0]}
	case 2:
	default:
		return def, fmt.Errorf("want 1 or 2 values, got %v", v)
	}
	if v[0] <= 0 || v[1] <= 0 {
		return def, fmt.Errorf("values must be positive, got %v", v)
	}
	return [2]int{v[0], v[1]}, nil
}

func parsePadding(s string) (Padding, error) {
	switch p := Padding(strings.ToLower(s)); p {
	case "", Valid:
		return Valid, nil
	case Same:
		return Same, nil
	}
	return "", fmt.Errorf("unknown padding %q", s)
}

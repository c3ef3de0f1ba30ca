package model

import (
	"fmt"
	"math"
)

// Activation is applied element-wise, except softmax which normalises along
// the last axis.
type Activation string

const (
	Linear  Activation = "linear"
	ReLU    Activation = "relu"
	Sigmoid Activation = "sigmoid"
	Tanh    Activation = "tanh"
	Softmax Activation = "softmax"
)

func parseActivation(s string) (Activation, error) {
	switch a := Activation(s); a {
	case "":
		return Linear, nil
	case Linear, ReLU, Sigmoid, Tanh, Softmax:
		return a, nil
	}
	return "", fmt.Errorf("model: unknown activation %q", s)
}

func (a Activation) apply(t Tensor) {
	switch a {
	case ReLU:
		for i, v := range t.Data {
			if v < 0 {
				t.Data[i] = 0
			}
		}
	case Sigmoid:
		for i, v := range t.Data {
			t.Data[i] = 1 / (1 + math.Exp(-v))
		}
	case Tanh:
		for i, v := range t.Data {
			t.Data[i] = math.Tanh(v)
		}
	case Softmax:
		axis := t.Shape[len(t.Shape)-1]
		for start := 0; start < len(t.Data); start += axis {
			softmax(t.Data[start : start+axis])
		}
	}
}

func softmax(v []float64) {
	peak := math.Inf(-1)
	for _, x := range v {
		peak = math.Max(peak, x)
	}
	var sum float64
	for i, x := range v {
		v[i] = math.Exp(x - peak)
		sum += v[i]
	}
	for i := range v {
		v[i] /= sum
	}
}

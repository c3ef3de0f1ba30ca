// Package modeltest builds tiny voice models for tests.
package modeltest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// Bias is added to the logits of the tiny model, one value per class
// (real, synthetic, converted).
type Bias [3]float64

// Doc returns the JSON document of a model taking a [128, 128, 1] feature
// map: 16x16 average pooling, flatten, then a 3-way softmax whose logits
// ignore the input and equal bias.
func Doc(bias Bias) []byte {
	kernel := make([]float64, 64*3)
	doc := map[string]any{
		"name":        "tiny_voice_cnn",
		"input_shape": []int{128, 128, 1},
		"classes":     []string{"real", "synthetic", "converted"},
		"layers": []map[string]any{
			{"type": "averagepool2d", "pool_size": []int{16, 16}},
			{"type": "flatten"},
			{"type": "dropout"},
			{
				"type":       "dense",
				"activation": "softmax",
				"weights": map[string]any{
					"kernel": map[string]any{"shape": []int{64, 3}, "data": kernel},
					"bias":   map[string]any{"shape": []int{3}, "data": bias[:]},
				},
			},
		},
	}
	b, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return b
}

// WriteFile stores Doc(bias) as model.json in dir and returns the path.
func WriteFile(t testing.TB, dir string, bias Bias) string {
	t.Helper()
	path := filepath.Join(dir, "model.json")
	if err := os.WriteFile(path, Doc(bias), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return path
}

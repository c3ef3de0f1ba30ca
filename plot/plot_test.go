package plot

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/neurlang/fakevoice/mel"
)

func decodeSize(t *testing.T, buf *bytes.Buffer) (int, int) {
	t.Helper()
	img, err := png.Decode(buf)
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	b := img.Bounds()
	return b.Dx(), b.Dy()
}

func matrix(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
		for j := range m[i] {
			m[i][j] = float64(i*cols+j) / float64(rows*cols)
		}
	}
	return m
}

func TestWriteSpectrogram(t *testing.T) {
	s := &mel.Spectrogram{Bins: matrix(128, 40), SampleRate: 16000, Hop: 512}
	var buf bytes.Buffer
	if err := WriteSpectrogram(&buf, s); err != nil {
		t.Fatalf("WriteSpectrogram: %v", err)
	}
	if w, h := decodeSize(t, &buf); w != 600 || h != 300 {
		t.Errorf("size = %dx%d, want 600x300", w, h)
	}
}

func TestWriteHeatmap(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHeatmap(&buf, matrix(16, 16)); err != nil {
		t.Fatalf("WriteHeatmap: %v", err)
	}
	if w, h := decodeSize(t, &buf); w != 600 || h != 300 {
		t.Errorf("size = %dx%d, want 600x300", w, h)
	}
}

func TestWriteHeatmap_Flat(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHeatmap(&buf, [][]float64{{0, 0}, {0, 0}}); err != nil {
		t.Fatalf("WriteHeatmap on a flat map: %v", err)
	}
}

func TestWriteSeries(t *testing.T) {
	values := []float64{10, 90, 50, 0, 100}
	for name, fn := range map[string]func(*bytes.Buffer) error{
		"timeline": func(b *bytes.Buffer) error { return WriteTimeline(b, values) },
		"realtime": func(b *bytes.Buffer) error { return WriteRealtime(b, values) },
	} {
		var buf bytes.Buffer
		if err := fn(&buf); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if w, h := decodeSize(t, &buf); w != 600 || h != 300 {
			t.Errorf("%s size = %dx%d, want 600x300", name, w, h)
		}
	}
}

func TestEmptyInputs(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTimeline(&buf, nil); err == nil {
		t.Error("empty timeline should fail")
	}
	if err := WriteHeatmap(&buf, nil); err == nil {
		t.Error("empty heatmap should fail")
	}
	if err := WriteSpectrogram(&buf, &mel.Spectrogram{}); err == nil {
		t.Error("empty spectrogram should fail")
	}
}

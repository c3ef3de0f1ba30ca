package analysis

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/neurlang/fakevoice/audio"
	"github.com/neurlang/fakevoice/mel"
	"github.com/neurlang/fakevoice/model"
)

type fixedPredictor struct {
	probs []float64
	err   error
	shape []int
}

func (f *fixedPredictor) Predict(_ context.Context, in model.Tensor) ([]float64, error) {
	f.shape = in.Shape
	return f.probs, f.err
}

func toneClip(seconds float64) *audio.Clip {
	n := int(16000 * seconds)
	s := make([]float64, n)
	for i := range s {
		// Amplitude ramps up so frame energies differ.
		s[i] = float64(i) / float64(n) * math.Sin(2*math.Pi*440*float64(i)/16000)
	}
	return &audio.Clip{Samples: s, SampleRate: 16000, Channels: 1}
}

func TestFakePercentage(t *testing.T) {
	pct, err := FakePercentage([]float64{0.2, 0.5, 0.3}, []int{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(pct-80) > 1e-9 {
		t.Errorf("pct = %f, want 80", pct)
	}

	over, _ := FakePercentage([]float64{0, 0.7, 0.7}, []int{1, 2})
	if over != 100 {
		t.Errorf("pct = %f, want clamp to 100", over)
	}

	if _, err := FakePercentage([]float64{1, 0}, []int{1, 2}); !errors.Is(err, ErrClassIndex) {
		t.Errorf("err = %v, want ErrClassIndex", err)
	}
}

func TestRound2(t *testing.T) {
	tests := map[float64]float64{
		12.345678: 12.35, 0.004: 0, 33.333: 33.33, 50: 50,
		// Exact ties go to even; 2.675 is stored as 2.67499....
		0.125: 0.12, 0.375: 0.38, 2.675: 2.67, 66.665: 66.67,
	}
	for in, want := range tests {
		if got := Round2(in); math.Abs(got-want) > 1e-9 {
			t.Errorf("Round2(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestFrameTable(t *testing.T) {
	energy := make([]float64, 30)
	for i := range energy {
		energy[i] = float64(i)
	}
	table := FrameTable(energy, 50, 20)
	if len(table) != 20 {
		t.Fatalf("len = %d, want 20", len(table))
	}
	if table[0].Frame != 1 || table[19].Frame != 20 {
		t.Errorf("frames numbered %d..%d, want 1..20", table[0].Frame, table[19].Frame)
	}
	if table[0].FakeProbability != 0 {
		t.Errorf("first = %v, want 0", table[0].FakeProbability)
	}
	// Normalised over all frames, so frame 11 (energy 10) is 10/29 of 50.
	if want := Round2(10.0 / 29 * 50); table[10].FakeProbability != want {
		t.Errorf("frame 11 = %v, want %v", table[10].FakeProbability, want)
	}

	short := FrameTable([]float64{1, 2}, 100, 20)
	if len(short) != 2 {
		t.Errorf("short table len = %d, want 2", len(short))
	}
	if len(FrameTable(nil, 10, 20)) != 0 {
		t.Error("empty energy should give an empty table")
	}

	series := RealtimeSeries(table)
	if len(series) != 20 || series[10] != table[10].FakeProbability {
		t.Errorf("RealtimeSeries mismatch: %v", series)
	}
}

func TestTimeline_Clipped(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for _, pct := range []float64{0, 50, 100} {
		vals := Timeline(rng, pct, 20, 5)
		if len(vals) != 20 {
			t.Fatalf("len = %d, want 20", len(vals))
		}
		for _, v := range vals {
			if v < 0 || v > 100 {
				t.Errorf("value %f outside [0, 100]", v)
			}
		}
	}
	if Timeline(rng, 50, 5, 0)[3] != 50 {
		t.Error("zero stddev should reproduce the score")
	}
}

func TestHeatmap(t *testing.T) {
	s := &mel.Spectrogram{Bins: [][]float64{{-80, -40}, {0, -20}}}
	h := Heatmap(s, 50)
	if h[0][0] != 0 {
		t.Errorf("min cell = %v, want 0", h[0][0])
	}
	if math.Abs(h[1][0]-0.5) > 1e-6 {
		t.Errorf("max cell = %v, want 0.5", h[1][0])
	}
	if math.Abs(h[0][1]-0.25) > 1e-6 {
		t.Errorf("mid cell = %v, want 0.25", h[0][1])
	}
}

func TestAnalyze(t *testing.T) {
	p := &fixedPredictor{probs: []float64{0.25, 0.5, 0.25}}
	a := New(p, mel.NewMel(), DefaultConfig(), rand.New(rand.NewPCG(7, 7)))

	res, err := a.Analyze(context.Background(), toneClip(1))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if p.shape[0] != 128 || p.shape[1] != 128 || p.shape[2] != 1 {
		t.Errorf("model input shape = %v, want [128 128 1]", p.shape)
	}
	if math.Abs(res.FakePercentage-75) > 1e-9 {
		t.Errorf("FakePercentage = %f, want 75", res.FakePercentage)
	}
	if len(res.FrameTable) != 20 || len(res.RealtimeSeries) != 20 || len(res.Timeline) != 20 {
		t.Errorf("series lengths = %d/%d/%d, want 20", len(res.FrameTable), len(res.RealtimeSeries), len(res.Timeline))
	}
	for _, row := range res.FrameTable {
		if row.FakeProbability < 0 || row.FakeProbability > 75 {
			t.Errorf("frame %d = %v outside [0, 75]", row.Frame, row.FakeProbability)
		}
	}
	if res.Spectrogram.NumMels() != 128 || len(res.Heatmap) != 128 {
		t.Errorf("spectrogram/heatmap rows = %d/%d, want 128", res.Spectrogram.NumMels(), len(res.Heatmap))
	}
}

func TestAnalyze_PredictError(t *testing.T) {
	boom := errors.New("boom")
	a := New(&fixedPredictor{err: boom}, mel.NewMel(), DefaultConfig(), nil)
	if _, err := a.Analyze(context.Background(), toneClip(0.2)); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestAnalyze_EmptyClip(t *testing.T) {
	a := New(&fixedPredictor{probs: []float64{1, 0, 0}}, mel.NewMel(), DefaultConfig(), nil)
	if _, err := a.Analyze(context.Background(), &audio.Clip{SampleRate: 16000}); !errors.Is(err, mel.ErrEmptyInput) {
		t.Errorf("err = %v, want mel.ErrEmptyInput", err)
	}
}

package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"sync"

	"github.com/neurlang/fakevoice/audio"
	"github.com/neurlang/fakevoice/mel"
	"github.com/neurlang/fakevoice/model"
)

// Predictor produces per-class probabilities for a feature tensor.
type Predictor interface {
	Predict(ctx context.Context, in model.Tensor) ([]float64, error)
}

var ErrClassIndex = errors.New("analysis: fake class index out of range")

// Config tunes the derived series.
type Config struct {
	// FakeClasses are the output indices summed into the fake percentage.
	FakeClasses []int
	// InputRows and InputCols are the model feature map size.
	InputRows, InputCols int
	// FrameRows is the length of the frame table.
	FrameRows int
	// TimelinePoints is the number of jittered timeline values.
	TimelinePoints int
	// TimelineStdDev is the jitter standard deviation in percent.
	TimelineStdDev float64
}

// DefaultConfig matches the voice CNN: classes 1 and 2 are synthetic speech.
func DefaultConfig() Config {
	return Config{
		FakeClasses:    []int{1, 2},
		InputRows:      128,
		InputCols:      128,
		FrameRows:      20,
		TimelinePoints: 20,
		TimelineStdDev: 5,
	}
}

// FrameRow is one line of the frame-wise probability table.
type FrameRow struct {
	Frame           int     `json:"frame"`
	FakeProbability float64 `json:"fake_probability"`
}

// Result is everything computed for one clip.
type Result struct {
	// FakePercentage is the unrounded score in [0, 100].
	FakePercentage float64
	Probabilities  []float64
	// Spectrogram is the decibel mel spectrogram.
	Spectrogram    *mel.Spectrogram
	FrameTable     []FrameRow
	RealtimeSeries []float64
	Timeline       []float64
	// Heatmap is the normalised spectrogram scaled by the score, [mel][frame].
	Heatmap [][]float64
}

// Analyzer runs feature extraction and inference. It is safe for concurrent
// use.
type Analyzer struct {
	predictor Predictor
	mel       *mel.Mel
	cfg       Config

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates an Analyzer. A nil rng seeds one from the runtime.
func New(p Predictor, m *mel.Mel, cfg Config, rng *rand.Rand) *Analyzer {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Analyzer{predictor: p, mel: m, cfg: cfg, rng: rng}
}

// Analyze scores a clip that is already at the analysis rate.
func (a *Analyzer) Analyze(ctx context.Context, clip *audio.Clip) (*Result, error) {
	power, err := a.mel.ToMel(clip.Samples, clip.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("analysis: features: %w", err)
	}
	db := mel.PowerToDB(power, a.mel.TopDB)
	input := model.FromMatrix(mel.Resize(db.Bins, a.cfg.InputRows, a.cfg.InputCols))

	probs, err := a.predictor.Predict(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("analysis: predict: %w", err)
	}
	pct, err := FakePercentage(probs, a.cfg.FakeClasses)
	if err != nil {
		return nil, err
	}

	table := FrameTable(power.FrameEnergy(), pct, a.cfg.FrameRows)
	res := &Result{
		FakePercentage: pct,
		Probabilities:  probs,
		Spectrogram:    db,
		FrameTable:     table,
		RealtimeSeries: RealtimeSeries(table),
		Heatmap:        Heatmap(db, pct),
	}
	a.mu.Lock()
	res.Timeline = Timeline(a.rng, pct, a.cfg.TimelinePoints, a.cfg.TimelineStdDev)
	a.mu.Unlock()
	return res, nil
}

// FakePercentage sums the probabilities of the fake classes as a percentage,
// clamped to [0, 100].
func FakePercentage(probs []float64, fakeClasses []int) (float64, error) {
	var sum float64
	for _, c := range fakeClasses {
		if c < 0 || c >= len(probs) {
			return 0, fmt.Errorf("%w: %d of %d outputs", ErrClassIndex, c, len(probs))
		}
		sum += probs[c]
	}
	return clamp(sum*100, 0, 100), nil
}

// Round2 rounds to two decimals, the precision used in every payload. It
// rounds the exact binary value and sends ties to even, so 0.125 becomes
// 0.12 and 2.675, stored just below, becomes 2.67.
func Round2(v float64) float64 {
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	return r
}

// FrameTable normalises the first rows frame energies to [0, 1] and scales
// them by the fake percentage. Frames are numbered from 1.
func FrameTable(energy []float64, pct float64, rows int) []FrameRow {
	norm := normalize(energy)
	if len(norm) > rows {
		norm = norm[:rows]
	}
	table := make([]FrameRow, len(norm))
	for i, v := range norm {
		table[i] = FrameRow{Frame: i + 1, FakeProbability: Round2(v * pct)}
	}
	return table
}

// RealtimeSeries extracts the probability column of a frame table.
func RealtimeSeries(table []FrameRow) []float64 {
	out := make([]float64, len(table))
	for i, row := range table {
		out[i] = row.FakeProbability
	}
	return out
}

// Timeline jitters the score with Gaussian noise and clips it to [0, 100].
func Timeline(rng *rand.Rand, pct float64, n int, stddev float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = clamp(pct+rng.NormFloat64()*stddev, 0, 100)
	}
	return out
}

// Heatmap normalises a spectrogram to [0, 1] and scales it by pct/100.
func Heatmap(s *mel.Spectrogram, pct float64) [][]float64 {
	lo, hi := s.MinMax()
	scale := pct / 100 / (hi - lo + 1e-9)
	out := make([][]float64, len(s.Bins))
	for i, row := range s.Bins {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			out[i][j] = (v - lo) * scale
		}
	}
	return out
}

func normalize(v []float64) []float64 {
	if len(v) == 0 {
		return nil
	}
	lo, hi := v[0], v[0]
	for _, x := range v {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = (x - lo) / (hi - lo + 1e-9)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

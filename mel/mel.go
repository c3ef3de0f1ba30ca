package mel

import (
	"errors"
	"math"

	"github.com/mjibson/go-dsp/window"
	"github.com/r9y9/gossp/stft"
)

// Mel represents the configuration for generating mel spectrograms.
type Mel struct {
	NumMels int
	MelFmin float64
	// MelFmax of zero means half the sample rate.
	MelFmax float64
	// Window is the hop between successive frames in samples.
	Window int
	// Resolut is the FFT size and frame length.
	Resolut int
	// HTK selects the HTK mel formula instead of Slaney's.
	HTK      bool
	TopDB    float64
	YReverse bool
}

// NewMel creates a new Mel instance with default values.
func NewMel() *Mel {
	return &Mel{
		NumMels:  128,
		MelFmin:  0,
		MelFmax:  0,
		Window:   512,
		Resolut:  2048,
		TopDB:    80,
		YReverse: true,
	}
}

var (
	ErrEmptyInput    = errors.New("mel: empty input")
	ErrInvalidConfig = errors.New("mel: invalid configuration")
)

// Spectrogram holds a mel spectrogram indexed as Bins[mel][frame].
type Spectrogram struct {
	Bins       [][]float64
	SampleRate int
	Hop        int
}

// NumMels returns the number of mel bands.
func (s *Spectrogram) NumMels() int { return len(s.Bins) }

// NumFrames returns the number of STFT frames.
func (s *Spectrogram) NumFrames() int {
	if len(s.Bins) == 0 {
		return 0
	}
	return len(s.Bins[0])
}

// Duration returns the time span covered by the frames in seconds.
func (s *Spectrogram) Duration() float64 {
	if s.SampleRate == 0 {
		return 0
	}
	return float64(s.NumFrames()*s.Hop) / float64(s.SampleRate)
}

// MinMax returns the smallest and largest bin values.
func (s *Spectrogram) MinMax() (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, row := range s.Bins {
		for _, v := range row {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	return lo, hi
}

// FrameEnergy returns the mean over mel bands for every frame.
func (s *Spectrogram) FrameEnergy() []float64 {
	out := make([]float64, s.NumFrames())
	if len(s.Bins) == 0 {
		return out
	}
	for _, row := range s.Bins {
		for j, v := range row {
			out[j] += v
		}
	}
	for j := range out {
		out[j] /= float64(len(s.Bins))
	}
	return out
}

// ToMel generates a power mel spectrogram from a wave buffer sampled at sr.
func (m *Mel) ToMel(buf []float64, sr int) (*Spectrogram, error) {
	if len(buf) == 0 {
		return nil, ErrEmptyInput
	}
	if m.NumMels <= 0 || m.Window <= 0 || m.Resolut <= 0 || sr <= 0 {
		return nil, ErrInvalidConfig
	}
	fmax := m.MelFmax
	if fmax <= 0 {
		fmax = float64(sr) / 2
	}
	if m.MelFmin < 0 || m.MelFmin >= fmax {
		return nil, ErrInvalidConfig
	}

	s := stft.New(m.Window, m.Resolut)
	s.Window = periodicHann(m.Resolut)
	spectrum := s.STFT(pad(buf, m.Resolut/2))

	nbins := m.Resolut/2 + 1
	filters := filterbank(sr, m.Resolut, m.NumMels, m.MelFmin, fmax, m.HTK)

	power := make([]float64, nbins)
	bins := make([][]float64, m.NumMels)
	for i := range bins {
		bins[i] = make([]float64, len(spectrum))
	}
	for t, frame := range spectrum {
		for k := 0; k < nbins; k++ {
			re, im := real(frame[k]), imag(frame[k])
			power[k] = re*re + im*im
		}
		for i, f := range filters {
			var total float64
			for k := f.lo; k < f.hi; k++ {
				total += f.weights[k-f.lo] * power[k]
			}
			bins[i][t] = total
		}
	}
	return &Spectrogram{Bins: bins, SampleRate: sr, Hop: m.Window}, nil
}

// ToDB generates a decibel mel spectrogram, clipped to TopDB below the peak.
func (m *Mel) ToDB(buf []float64, sr int) (*Spectrogram, error) {
	spec, err := m.ToMel(buf, sr)
	if err != nil {
		return nil, err
	}
	return PowerToDB(spec, m.TopDB), nil
}

// Features returns the model input: the decibel spectrogram resized to
// rows by cols.
func (m *Mel) Features(buf []float64, sr, rows, cols int) ([][]float64, error) {
	spec, err := m.ToDB(buf, sr)
	if err != nil {
		return nil, err
	}
	return Resize(spec.Bins, rows, cols), nil
}

// PowerToDB converts a power spectrogram to decibels relative to its peak.
// A non-positive topDB disables clipping.
func PowerToDB(s *Spectrogram, topDB float64) *Spectrogram {
	const amin = 1e-10
	_, peak := s.MinMax()
	ref := 10 * math.Log10(math.Max(amin, peak))

	out := &Spectrogram{Bins: make([][]float64, len(s.Bins)), SampleRate: s.SampleRate, Hop: s.Hop}
	hi := math.Inf(-1)
	for i, row := range s.Bins {
		out.Bins[i] = make([]float64, len(row))
		for j, v := range row {
			db := 10*math.Log10(math.Max(amin, v)) - ref
			out.Bins[i][j] = db
			hi = math.Max(hi, db)
		}
	}
	if topDB > 0 {
		floor := hi - topDB
		for _, row := range out.Bins {
			for j := range row {
				if row[j] < floor {
					row[j] = floor
				}
			}
		}
	}
	return out
}

// Resize reshapes a matrix to rows by cols by flattening it row-major and
// repeating or truncating the values cyclically.
func Resize(in [][]float64, rows, cols int) [][]float64 {
	var flat []float64
	for _, row := range in {
		flat = append(flat, row...)
	}
	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, cols)
		if len(flat) == 0 {
			continue
		}
		for j := range out[i] {
			out[i][j] = flat[(i*cols+j)%len(flat)]
		}
	}
	return out
}

// periodicHann is the DFT-even Hann window of length n.
func periodicHann(n int) []float64 {
	return window.Hann(n + 1)[:n]
}

// pad surrounds buf with n zeros on both sides so frames are centred.
func pad(buf []float64, n int) []float64 {
	out := make([]float64, len(buf)+2*n)
	copy(out[n:], buf)
	return out
}

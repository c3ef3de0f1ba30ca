package mel

import "math"

type filter struct {
	lo, hi  int
	weights []float64
}

func mel_to_hz(value float64) float64 {
	const _MEL_BREAK_FREQUENCY_HERTZ = 700.0
	const _MEL_HIGH_FREQUENCY_Q = 1127.0
	return _MEL_BREAK_FREQUENCY_HERTZ * (math.Exp(value/_MEL_HIGH_FREQUENCY_Q) - 1.0)
}

func hz_to_mel(value float64) float64 {
	const _MEL_BREAK_FREQUENCY_HERTZ = 700.0
	const _MEL_HIGH_FREQUENCY_Q = 1127.0
	return _MEL_HIGH_FREQUENCY_Q * math.Log(1.0+(value/_MEL_BREAK_FREQUENCY_HERTZ))
}

// Slaney's scale is linear below 1 kHz and logarithmic above.
const (
	slaneyFSp     = 200.0 / 3
	slaneyMinLog  = 1000.0
	slaneyMinMel  = slaneyMinLog / slaneyFSp
	slaneyLogStep = 0.06875177742094912 // ln(6.4) / 27
)

func hz_to_mel_slaney(hz float64) float64 {
	if hz >= slaneyMinLog {
		return slaneyMinMel + math.Log(hz/slaneyMinLog)/slaneyLogStep
	}
	return hz / slaneyFSp
}

func mel_to_hz_slaney(mel float64) float64 {
	if mel >= slaneyMinMel {
		return slaneyMinLog * math.Exp(slaneyLogStep*(mel-slaneyMinMel))
	}
	return slaneyFSp * mel
}

// melFrequencies returns n frequencies evenly spaced on the mel scale.
func melFrequencies(n int, fmin, fmax float64, htk bool) []float64 {
	toMel, toHz := hz_to_mel_slaney, mel_to_hz_slaney
	if htk {
		toMel, toHz = hz_to_mel, mel_to_hz
	}
	lo, hi := toMel(fmin), toMel(fmax)
	out := make([]float64, n)
	for i := range out {
		out[i] = toHz(lo + (hi-lo)*float64(i)/float64(n-1))
	}
	return out
}

// filterbank builds area normalised triangular filters over the rfft bins.
func filterbank(sr, nfft, mels int, fmin, fmax float64, htk bool) []filter {
	nbins := nfft/2 + 1
	fftfreqs := make([]float64, nbins)
	for k := range fftfreqs {
		fftfreqs[k] = float64(k) * float64(sr) / float64(nfft)
	}
	melf := melFrequencies(mels+2, fmin, fmax, htk)

	filters := make([]filter, mels)
	for i := range filters {
		left, center, right := melf[i], melf[i+1], melf[i+2]
		enorm := 2.0 / (right - left)
		f := filter{lo: -1}
		var weights []float64
		for k, freq := range fftfreqs {
			lower := (freq - left) / (center - left)
			upper := (right - freq) / (right - center)
			w := math.Max(0, math.Min(lower, upper)) * enorm
			if w > 0 {
				if f.lo < 0 {
					f.lo = k
				}
				f.hi = k + 1
			}
			weights = append(weights, w)
		}
		if f.lo < 0 {
			f.lo, f.hi = 0, 0
		}
		f.weights = weights[f.lo:f.hi]
		filters[i] = f
	}
	return filters
}

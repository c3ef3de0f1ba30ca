package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	resampling "github.com/tphakala/go-audio-resampling"
)

// AnalysisRate is the sample rate every clip is converted to before feature
// extraction.
const AnalysisRate = 16000

var (
	ErrUnsupportedFormat = errors.New("audio: unsupported format")
	ErrNoSamples         = errors.New("audio: no samples decoded")
)

// Clip is a mono PCM clip with samples normalised to [-1, 1].
type Clip struct {
	Samples    []float64
	SampleRate int
	// Channels is the channel count of the source before down-mixing.
	Channels int
	// Format is the lower-case container name ("wav", "flac", "mp3", "ogg").
	Format string
}

// Duration returns the playback length of the clip.
func (c *Clip) Duration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(len(c.Samples)) / float64(c.SampleRate) * float64(time.Second))
}

// Formats lists the container names accepted by [Decode].
var Formats = []string{"wav", "flac", "mp3", "ogg"}

// FormatFromName maps a file name to a container name using its extension.
func FormatFromName(name string) (string, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	switch ext {
	case "wav", "wave":
		return "wav", nil
	case "flac":
		return "flac", nil
	case "mp3":
		return "mp3", nil
	case "ogg", "oga":
		return "ogg", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

// Load decodes the file at path, choosing the decoder by extension.
func Load(path string) (*Clip, error) {
	format, err := FormatFromName(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f, format)
}

// Decode reads a whole clip of the given format from r.
func Decode(r io.Reader, format string) (*Clip, error) {
	var (
		clip *Clip
		err  error
	)
	switch format {
	case "wav":
		// beep's wav decoder needs to seek past unknown chunks.
		rs, ok := r.(io.ReadSeeker)
		if !ok {
			data, rerr := io.ReadAll(r)
			if rerr != nil {
				return nil, rerr
			}
			rs = bytes.NewReader(data)
		}
		clip, err = decodeWav(rs)
	case "flac":
		clip, err = decodeFlac(r)
	case "mp3":
		clip, err = decodeMp3(r)
	case "ogg":
		clip, err = decodeVorbis(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("audio: decode %s: %w", format, err)
	}
	if len(clip.Samples) == 0 || clip.SampleRate <= 0 {
		return nil, ErrNoSamples
	}
	clip.Format = format
	return clip, nil
}

// Resample returns a copy of the clip at the given rate. The receiver is
// returned unchanged when it already has that rate.
func (c *Clip) Resample(rate int) (*Clip, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rate %d", rate)
	}
	if c.SampleRate == rate {
		return c, nil
	}
	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(c.SampleRate),
		OutputRate: float64(rate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("audio: create resampler: %w", err)
	}
	out, err := rs.Process(c.Samples)
	if err != nil {
		return nil, fmt.Errorf("audio: resample: %w", err)
	}
	// The filter holds back its delay line until flushed.
	tail, err := rs.Flush()
	if err != nil {
		return nil, fmt.Errorf("audio: resample flush: %w", err)
	}
	out = append(out, tail...)
	if want := resampledLen(len(c.Samples), c.SampleRate, rate); len(out) > want {
		out = out[:want]
	}
	if len(out) == 0 {
		return nil, ErrNoSamples
	}
	return &Clip{Samples: out, SampleRate: rate, Channels: c.Channels, Format: c.Format}, nil
}

// resampledLen is the output length for n input samples, rounded up.
func resampledLen(n, from, to int) int {
	return int((int64(n)*int64(to) + int64(from) - 1) / int64(from))
}

// downmix averages interleaved frames into a mono vector.
func downmix(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		return interleaved
	}
	mono := make([]float64, len(interleaved)/channels)
	for i := range mono {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += interleaved[i*channels+ch]
		}
		mono[i] = sum / float64(channels)
	}
	return mono
}

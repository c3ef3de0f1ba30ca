// Package audiotest writes synthetic clips for tests.
package audiotest

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
)

// Sine returns a streamer producing a sine tone of the given frequency at
// half amplitude on both channels.
func Sine(rate beep.SampleRate, freq float64) beep.Streamer {
	var pos int
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			v := 0.5 * math.Sin(2*math.Pi*freq*float64(pos)/float64(rate))
			samples[i][0] = v
			samples[i][1] = v
			pos++
		}
		return len(samples), true
	})
}

// WriteWav writes seconds of a 440 Hz tone into dir and returns its path.
func WriteWav(t testing.TB, dir string, rate, channels int, seconds float64) string {
	t.Helper()
	path := filepath.Join(dir, "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	defer f.Close()

	format := beep.Format{SampleRate: beep.SampleRate(rate), NumChannels: channels, Precision: 2}
	n := int(float64(rate) * seconds)
	if err := wav.Encode(f, beep.Take(n, Sine(format.SampleRate, 440)), format); err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	return path
}

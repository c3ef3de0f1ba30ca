package audio

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/faiface/beep/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/mewkiz/flac"
)

func decodeWav(r io.ReadSeeker) (*Clip, error) {
	stream, format, err := wav.Decode(r)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var out []float64
	var samples = make([][2]float64, 4096)
	for {
		n, ok := stream.Stream(samples)
		for i := 0; i < n; i++ {
			if format.NumChannels > 1 {
				out = append(out, (samples[i][0]+samples[i][1])/2)
			} else {
				out = append(out, samples[i][0])
			}
		}
		if !ok {
			break
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return &Clip{Samples: out, SampleRate: int(format.SampleRate), Channels: format.NumChannels}, nil
}

func decodeFlac(r io.Reader) (*Clip, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	channels := int(stream.Info.NChannels)
	scale := float64(int64(1) << (stream.Info.BitsPerSample - 1))

	var out []float64
	for {
		frame, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		n := len(frame.Subframes[0].Samples)
		for i := 0; i < n; i++ {
			var sum float64
			for ch := 0; ch < channels; ch++ {
				sum += float64(frame.Subframes[ch].Samples[i]) / scale
			}
			out = append(out, sum/float64(channels))
		}
	}
	return &Clip{Samples: out, SampleRate: int(stream.Info.SampleRate), Channels: channels}, nil
}

// go-mp3 always produces 16-bit little endian stereo.
func decodeMp3(r io.Reader) (*Clip, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, err
	}
	interleaved := make([]float64, len(raw)/2)
	for i := range interleaved {
		interleaved[i] = float64(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768.0
	}
	return &Clip{Samples: downmix(interleaved, 2), SampleRate: dec.SampleRate(), Channels: 2}, nil
}

func decodeVorbis(r io.Reader) (*Clip, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, err
	}
	var interleaved []float64
	buf := make([]float32, 16384)
	for {
		n, err := dec.Read(buf)
		for _, v := range buf[:n] {
			interleaved = append(interleaved, float64(v))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return &Clip{Samples: downmix(interleaved, dec.Channels()), SampleRate: dec.SampleRate(), Channels: dec.Channels()}, nil
}

package mel

import (
	"image"
	"image/color"
	"image/png"
	"io"
)

// Image renders a spectrogram as a grayscale image, one pixel per bin. With
// YReverse set the lowest band is drawn at the bottom.
func (m *Mel) Image(s *Spectrogram) *image.Gray {
	mels, frames := s.NumMels(), s.NumFrames()
	img := image.NewGray(image.Rect(0, 0, frames, mels))
	lo, hi := s.MinMax()
	span := hi - lo
	for y := 0; y < mels; y++ {
		for x := 0; x < frames; x++ {
			var val float64
			if span > 0 {
				val = (s.Bins[y][x] - lo) / span
			}
			col := color.Gray{Y: uint8(255 * val)}
			if m.YReverse {
				img.SetGray(x, mels-y-1, col)
			} else {
				img.SetGray(x, y, col)
			}
		}
	}
	return img
}

// WritePNG encodes the spectrogram image as PNG.
func (m *Mel) WritePNG(w io.Writer, s *Spectrogram) error {
	return png.Encode(w, m.Image(s))
}

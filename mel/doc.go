// Package mel provides mel-frequency spectrogram generation for voice analysis.
//
// This package implements the feature front end of the detector. It supports:
//   - Centred STFT power spectra with a periodic Hann window
//   - Slaney (default) or HTK mel filterbanks with area normalisation
//   - Power to decibel conversion relative to the spectrogram peak
//   - Cyclic resizing of a spectrogram to a fixed model input shape
//   - Rendering spectrograms as grayscale PNG images
package mel

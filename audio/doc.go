// Package audio decodes uploaded voice clips into mono sample vectors.
//
// Supported containers:
//   - WAV (PCM, any bit depth beep understands)
//   - FLAC
//   - MP3
//   - Ogg/Vorbis
//
// Multi-channel input is down-mixed by averaging the channels and clips can be
// resampled to the analysis rate with [Clip.Resample].
package audio

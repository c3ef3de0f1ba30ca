// Command fakevoice estimates how likely a voice recording is AI generated.
//
// Usage:
//
//	fakevoice [--config file] <command> [args]
//
// Commands:
//
//	serve        run the HTTP service (upload page, /predict, reports)
//	analyze      analyse one file offline and write figures and a PDF report
//	mel          render the mel spectrogram of an audio file as PNG
//	version      print the build version
//
// Supported input formats: .wav, .flac, .mp3, .ogg
//
// The model is a sequential CNN stored as JSON, optionally LZW compressed
// (.json.lzw). Its path is set in the configuration file under model.path.
package main

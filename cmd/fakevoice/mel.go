package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/neurlang/fakevoice/audio"
	"github.com/neurlang/fakevoice/mel"
)

func newMelCmd() *cobra.Command {
	m := mel.NewMel()
	var (
		output   string
		resample bool
	)
	cmd := &cobra.Command{
		Use:   "mel <audio_file>",
		Short: "Render the mel spectrogram of an audio file as PNG",
		Long: `Render the decibel mel spectrogram of an audio file as a grayscale PNG,
one pixel per frame and mel band. The output defaults to <audio_file>.png.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clip, err := audio.Load(args[0])
			if err != nil {
				return err
			}
			if resample {
				if clip, err = clip.Resample(audio.AnalysisRate); err != nil {
					return err
				}
			}
			spec, err := m.ToDB(clip.Samples, clip.SampleRate)
			if err != nil {
				return err
			}

			if output == "" {
				output = strings.TrimSuffix(args[0], "/") + ".png"
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := m.WritePNG(f, spec); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d mels x %d frames\n", output, spec.NumMels(), spec.NumFrames())
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output PNG path")
	cmd.Flags().IntVar(&m.NumMels, "mels", m.NumMels, "number of mel bands")
	cmd.Flags().IntVar(&m.Window, "hop", m.Window, "hop length in samples")
	cmd.Flags().IntVar(&m.Resolut, "nfft", m.Resolut, "FFT size")
	cmd.Flags().Float64Var(&m.MelFmin, "fmin", m.MelFmin, "lowest mel frequency in Hz")
	cmd.Flags().Float64Var(&m.MelFmax, "fmax", m.MelFmax, "highest mel frequency in Hz, 0 for half the sample rate")
	cmd.Flags().BoolVar(&m.HTK, "htk", m.HTK, "use the HTK mel formula")
	cmd.Flags().BoolVar(&resample, "resample", true, "resample to 16 kHz first")
	return cmd
}

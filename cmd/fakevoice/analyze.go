package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/neurlang/fakevoice/service"
	"github.com/neurlang/fakevoice/storage"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f"))
	labelStyle = lipgloss.NewStyle().Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00ff9f")).
			Padding(0, 1)
)

// scoreStyle colours a percentage like the upload page does.
func scoreStyle(pct float64) lipgloss.Style {
	s := lipgloss.NewStyle().Bold(true)
	switch {
	case pct < 30:
		return s.Foreground(lipgloss.Color("#4facfe"))
	case pct < 60:
		return s.Foreground(lipgloss.Color("#f59e0b"))
	}
	return s.Foreground(lipgloss.Color("#ef4444"))
}

func newAnalyzeCmd(flags *rootFlags) *cobra.Command {
	var (
		outDir  string
		asJSON  bool
		history bool
	)
	cmd := &cobra.Command{
		Use:   "analyze <audio_file>",
		Short: "Analyse one file and write figures and a PDF report",
		Long: `Analyse one audio file without starting the server. Figures are written
to <out>/static/<id>/ and the report to <out>/reports/.

Examples:
  fakevoice analyze voice.wav
  fakevoice -c config.yaml analyze voice.flac --out results --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			store, err := storage.NewLocal(outDir)
			if err != nil {
				return err
			}
			a, err := build(cmd.Context(), cfg, buildOptions{store: store, noHistory: !history})
			if err != nil {
				return err
			}
			defer a.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			resp, err := a.detector.Detect(cmd.Context(), filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			printResult(cmd.OutOrStdout(), store.Root(), args[0], resp)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "out", "output directory")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the response as JSON")
	cmd.Flags().BoolVar(&history, "history", false, "also record the analysis in the history database")
	return cmd
}

func printResult(w io.Writer, root, input string, resp *service.Response) {
	var b strings.Builder
	fmt.Fprintln(&b, titleStyle.Render("AI Voice Fake Probability"))
	fmt.Fprintln(&b, dimStyle.Render(input))
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Fake probability:"),
		scoreStyle(resp.FakePercentage).Render(fmt.Sprintf("%.2f%%", resp.FakePercentage)))
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, lipgloss.NewStyle().Width(72).Render(resp.Summary))
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, labelStyle.Render("Artifacts:"))
	for _, u := range []string{resp.Spectrogram, resp.Timeline, resp.Heatmap, resp.Realtime, resp.Report} {
		fmt.Fprintln(&b, "  "+filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(u, "/"))))
	}
	fmt.Fprintln(w, boxStyle.Render(strings.TrimRight(b.String(), "\n")))
}

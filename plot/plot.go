// Package plot renders the analysis figures as PNG images.
//
// All figures are 6x3 inches at 100 dpi, matching the size embedded in the
// PDF report.
package plot

import (
	"fmt"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/neurlang/fakevoice/mel"
)

const (
	width  = 6 * vg.Inch
	height = 3 * vg.Inch
	dpi    = 100

	colorBarWidth = 0.9 * vg.Inch
	paletteSize   = 256
)

// Names of the rendered figures.
const (
	Spectrogram = "spectrogram.png"
	Timeline    = "timeline.png"
	Heatmap     = "heatmap.png"
	Realtime    = "realtime.png"
)

// grid adapts a [row][col] matrix to plotter.GridXYZ. Column c is centred at
// x0 + c*dx and row r at y0 + r*dy.
type grid struct {
	cells  [][]float64
	x0, dx float64
	y0, dy float64
}

func (g grid) Dims() (c, r int) {
	if len(g.cells) == 0 {
		return 0, 0
	}
	return len(g.cells[0]), len(g.cells)
}

func (g grid) Z(c, r int) float64 { return g.cells[r][c] }
func (g grid) X(c int) float64    { return g.x0 + float64(c)*g.dx }
func (g grid) Y(r int) float64    { return g.y0 + float64(r)*g.dy }

func minMax(cells [][]float64) (lo, hi float64) {
	lo, hi = cells[0][0], cells[0][0]
	for _, row := range cells {
		for _, v := range row {
			lo = min(lo, v)
			hi = max(hi, v)
		}
	}
	if lo == hi {
		hi = lo + 1
	}
	return lo, hi
}

// WriteSpectrogram draws the decibel mel spectrogram with a colour bar.
func WriteSpectrogram(w io.Writer, s *mel.Spectrogram) error {
	if s.NumFrames() == 0 {
		return fmt.Errorf("plot: empty spectrogram")
	}
	p := plot.New()
	p.Title.Text = "Mel Spectrogram"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Mel band"

	g := grid{cells: s.Bins, dx: float64(s.Hop) / float64(s.SampleRate), dy: 1}
	cm := moreland.ExtendedBlackBody()
	return heatmapWithBar(w, p, g, cm, "dB")
}

// WriteHeatmap draws the fake intensity map, cells indexed [bin][frame].
func WriteHeatmap(w io.Writer, cells [][]float64) error {
	if len(cells) == 0 || len(cells[0]) == 0 {
		return fmt.Errorf("plot: empty heatmap")
	}
	p := plot.New()
	p.X.Label.Text = "Time Frames"
	p.Y.Label.Text = "Frequency Bins"

	return heatmapWithBar(w, p, grid{cells: cells, dx: 1, dy: 1}, moreland.BlackBody(), "Fake Intensity")
}

func heatmapWithBar(w io.Writer, p *plot.Plot, g grid, cm palette.ColorMap, label string) error {
	lo, hi := minMax(g.cells)
	cm.SetMin(lo)
	cm.SetMax(hi)
	hm := plotter.NewHeatMap(g, cm.Palette(paletteSize))
	hm.Min, hm.Max = lo, hi
	p.Add(hm)

	bar := plot.New()
	bar.HideX()
	bar.Y.Label.Text = label
	bar.Add(&plotter.ColorBar{ColorMap: cm, Vertical: true})

	img := vgimg.NewWith(vgimg.UseWH(width, height), vgimg.UseDPI(dpi))
	dc := draw.New(img)
	p.Draw(draw.Crop(dc, 0, -colorBarWidth, 0, 0))
	bar.Draw(draw.Crop(dc, width-colorBarWidth, 0, 0, 0))

	out := vgimg.PngCanvas{Canvas: img}
	_, err := out.WriteTo(w)
	return err
}

// WriteTimeline draws the jittered per-segment score.
func WriteTimeline(w io.Writer, values []float64) error {
	return writeSeries(w, values, "Time Segment", "Fake Probability (%)")
}

// WriteRealtime draws the frame-wise probability series.
func WriteRealtime(w io.Writer, values []float64) error {
	return writeSeries(w, values, "Time", "Fake Probability (%)")
}

func writeSeries(w io.Writer, values []float64, xlabel, ylabel string) error {
	if len(values) == 0 {
		return fmt.Errorf("plot: empty series")
	}
	p := plot.New()
	p.X.Label.Text = xlabel
	p.Y.Label.Text = ylabel
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(values))
	for i, v := range values {
		pts[i].X = float64(i)
		pts[i].Y = v
	}
	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return fmt.Errorf("plot: %w", err)
	}
	points.Shape = draw.CircleGlyph{}
	p.Add(line, points)
	// Fixed range, independent of the data.
	p.Y.Min, p.Y.Max = 0, 100

	img := vgimg.NewWith(vgimg.UseWH(width, height), vgimg.UseDPI(dpi))
	p.Draw(draw.New(img))
	out := vgimg.PngCanvas{Canvas: img}
	_, err = out.WriteTo(w)
	return err
}

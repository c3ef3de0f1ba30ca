// Package report lays out the PDF report of an analysis.
//
// The report has three parts: a summary page with the spectrogram and the
// timeline, a page with the heat map and the realtime graph, and the
// frame-wise probability table, which spills onto further pages as needed.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"

	"github.com/neurlang/fakevoice/analysis"
)

// Layout constants in points, measured from the top of an A4 page.
const (
	marginLeft  = 50.0
	imageWidth  = 500.0
	rowHeight   = 18.0
	tableTop    = 90.0
	tableResume = 60.0
	tableBottom = 60.0
	lineHeight  = 14.4
	imageHeight = 250.0
	imageGap    = 10.0
	pageBottom  = 20.0
)

var ErrMissingImage = errors.New("report: missing image")

// Report is the content of one PDF.
type Report struct {
	FakePercentage float64
	Summary        string
	Timestamp      time.Time
	FrameTable     []analysis.FrameRow

	// PNG encoded figures.
	Spectrogram []byte
	Timeline    []byte
	Heatmap     []byte
	Realtime    []byte
}

// FileName returns a fresh report file name, report_<32 hex digits>.pdf.
func FileName() string {
	return "report_" + strings.ReplaceAll(uuid.NewString(), "-", "") + ".pdf"
}

// Write renders the report as PDF into w.
func Write(w io.Writer, r Report) error {
	images := []struct {
		name string
		data []byte
	}{
		{"spectrogram", r.Spectrogram},
		{"timeline", r.Timeline},
		{"heatmap", r.Heatmap},
		{"realtime", r.Realtime},
	}

	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle("AI Voice Fake Probability Report", true)
	pdf.SetCreationDate(r.Timestamp)

	for _, img := range images {
		if len(img.data) == 0 {
			return fmt.Errorf("%w: %s", ErrMissingImage, img.name)
		}
		pdf.RegisterImageOptionsReader(img.name, fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(img.data))
	}
	_, pageHeight := pdf.GetPageSize()

	writeSummaryPage(pdf, r)

	// Figures page.
	pdf.AddPage()
	placeImage(pdf, "heatmap", 110)
	placeImage(pdf, "realtime", 400)

	// Frame table.
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Text(marginLeft, 50, "Frame-wise Fake Probability Table")

	pdf.SetFont("Helvetica", "", 11)
	y := tableTop
	for _, row := range r.FrameTable {
		if y > pageHeight-tableBottom {
			pdf.AddPage()
			y = tableResume
		}
		pdf.Text(60, y, "Frame "+strconv.Itoa(row.Frame))
		pdf.Text(160, y, formatPercent(row.FakeProbability))
		y += rowHeight
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("report: layout: %w", err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("report: write: %w", err)
	}
	return nil
}

// summaryLayout is where writeSummaryPage put the wrapped summary and the
// two figures. Positions are top offsets in points.
type summaryLayout struct {
	lastBaseline    float64
	spectrogramTop  float64
	spectrogramPage int
	timelineTop     float64
	timelinePage    int
}

// writeSummaryPage adds the first page. The spectrogram starts below the last
// summary line, and a figure that would run past the bottom edge moves to a
// new page.
func writeSummaryPage(pdf *fpdf.Fpdf, r Report) summaryLayout {
	pageWidth, _ := pdf.GetPageSize()

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Text(marginLeft, 50, "AI Voice Fake Probability Report")

	pdf.SetFont("Helvetica", "", 12)
	pdf.Text(marginLeft, 90, fmt.Sprintf("Fake Percentage: %.2f%%", r.FakePercentage))
	pdf.Text(marginLeft, 120, "Timestamp: "+r.Timestamp.Format("2006-01-02 15:04:05.000000"))

	pdf.Text(marginLeft, 160, "AI Analysis Summary:")
	var l summaryLayout
	l.lastBaseline = 160
	y := 190.0
	for _, sentence := range strings.Split(r.Summary, ". ") {
		for _, line := range pdf.SplitText(sentence, pageWidth-2*(marginLeft+10)) {
			pdf.Text(marginLeft+10, y, line)
			l.lastBaseline = y
			y += lineHeight
		}
	}

	// y is one line below the last baseline, which clears its descenders.
	l.spectrogramTop, l.spectrogramPage = flowImage(pdf, "spectrogram", max(210, y))
	l.timelineTop, l.timelinePage = flowImage(pdf, "timeline", l.spectrogramTop+imageHeight+imageGap)
	return l
}

// flowImage places a figure at top, or at the top of a new page when it would
// not fit above the bottom edge. It returns where the figure went.
func flowImage(pdf *fpdf.Fpdf, name string, top float64) (float64, int) {
	_, pageHeight := pdf.GetPageSize()
	if top+imageHeight > pageHeight-pageBottom {
		pdf.AddPage()
		top = tableResume
	}
	placeImage(pdf, name, top)
	return top, pdf.PageNo()
}

// placeImage draws a registered figure 500pt wide with its top edge at top.
func placeImage(pdf *fpdf.Fpdf, name string, top float64) {
	pdf.ImageOptions(name, marginLeft, top, imageWidth, 0, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")
}

// formatPercent prints the shortest decimal form, always with a fraction.
func formatPercent(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s + "%"
}

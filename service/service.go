// Package service runs one upload through the whole detection pipeline:
// decode, features and inference, summary, figures, PDF report, artifact
// storage and the history record.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/neurlang/fakevoice/analysis"
	"github.com/neurlang/fakevoice/audio"
	"github.com/neurlang/fakevoice/history"
	"github.com/neurlang/fakevoice/mel"
	"github.com/neurlang/fakevoice/observe"
	"github.com/neurlang/fakevoice/plot"
	"github.com/neurlang/fakevoice/report"
	"github.com/neurlang/fakevoice/storage"
	"github.com/neurlang/fakevoice/summary"
)

// ErrDecode marks uploads that are not decodable audio.
var ErrDecode = errors.New("service: audio could not be decoded")

// Storage path prefixes. They double as the public URL prefixes.
const (
	StaticDir  = "static"
	ReportsDir = "reports"
)

// StaticPath is the storage path of a figure of analysis id.
func StaticPath(id, name string) string { return StaticDir + "/" + id + "/" + name }

// ReportPath is the storage path of a PDF report.
func ReportPath(name string) string { return ReportsDir + "/" + name }

// Response is the JSON body returned for one analysis. Figure and report
// fields are URLs relative to the server root.
type Response struct {
	ID             string              `json:"id"`
	FakePercentage float64             `json:"fake_percentage"`
	Summary        string              `json:"summary"`
	Spectrogram    string              `json:"spectrogram"`
	Timeline       string              `json:"timeline"`
	Heatmap        string              `json:"heatmap"`
	Realtime       string              `json:"realtime"`
	RealtimeSeries []float64           `json:"realtime_series"`
	FrameTable     []analysis.FrameRow `json:"frame_table"`
	Report         string              `json:"report"`
}

// Analyzer scores a clip at the analysis rate.
type Analyzer interface {
	Analyze(ctx context.Context, clip *audio.Clip) (*analysis.Result, error)
}

// Options wires a Detector. History and Metrics are optional.
type Options struct {
	Analyzer   Analyzer
	Summarizer summary.Summarizer
	Store      storage.Store
	History    *history.Store
	Metrics    *observe.Metrics

	// Now and NewID default to time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() string
}

// Detector is safe for concurrent use.
type Detector struct {
	opts Options
}

// New returns a Detector. Analyzer, Summarizer and Store are required.
func New(opts Options) (*Detector, error) {
	if opts.Analyzer == nil || opts.Summarizer == nil || opts.Store == nil {
		return nil, errors.New("service: analyzer, summarizer and store are required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Detector{opts: opts}, nil
}

// Store returns the artifact store.
func (d *Detector) Store() storage.Store { return d.opts.Store }

// History returns the history store, which may be nil.
func (d *Detector) History() *history.Store { return d.opts.History }

// Detect analyses the upload r. name is the client file name and selects
// the decoder. Errors wrapping [ErrDecode] are the caller's fault.
func (d *Detector) Detect(ctx context.Context, name string, r io.Reader) (*Response, error) {
	ctx, span := observe.StartSpan(ctx, "detect", trace.WithAttributes(attribute.String("file.name", name)))
	defer span.End()

	m := d.opts.Metrics
	if m != nil {
		m.InFlight.Add(ctx, 1)
		defer m.InFlight.Add(ctx, -1)
	}

	format, _ := audio.FormatFromName(name)
	resp, err := d.detect(ctx, name, format, r)
	if m != nil {
		var pct float64
		if resp != nil {
			pct = resp.FakePercentage
		}
		m.RecordAnalysis(ctx, format, pct, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("analysis.id", resp.ID),
		attribute.Float64("analysis.fake_percentage", resp.FakePercentage),
	)
	return resp, nil
}

func (d *Detector) detect(ctx context.Context, name, format string, r io.Reader) (*Response, error) {
	log := observe.Logger(ctx)
	id := d.opts.NewID()

	var (
		clip       *audio.Clip
		sourceRate int
	)
	err := d.stage(ctx, observe.StageDecode, func(ctx context.Context) error {
		if format == "" {
			return fmt.Errorf("%w: %s: %w", ErrDecode, name, audio.ErrUnsupportedFormat)
		}
		c, err := audio.Decode(r, format)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrDecode, name, err)
		}
		sourceRate = c.SampleRate
		if clip, err = c.Resample(audio.AnalysisRate); err != nil {
			return fmt.Errorf("service: resample: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.DebugContext(ctx, "decoded upload",
		"id", id, "format", format, "duration", clip.Duration(), "source_rate", sourceRate)

	var res *analysis.Result
	err = d.stage(ctx, observe.StageInference, func(ctx context.Context) error {
		res, err = d.opts.Analyzer.Analyze(ctx, clip)
		if errors.Is(err, mel.ErrEmptyInput) {
			return fmt.Errorf("%w: %s: %w", ErrDecode, name, err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	var text string
	err = d.stage(ctx, observe.StageSummary, func(ctx context.Context) error {
		text, err = d.opts.Summarizer.Summarize(ctx, res.FakePercentage)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("service: summary: %w", err)
	}

	var figs figures
	err = d.stage(ctx, observe.StagePlots, func(context.Context) error {
		figs, err = renderFigures(res)
		return err
	})
	if err != nil {
		return nil, err
	}

	reportName := report.FileName()
	var pdf bytes.Buffer
	err = d.stage(ctx, observe.StageReport, func(context.Context) error {
		return report.Write(&pdf, report.Report{
			FakePercentage: res.FakePercentage,
			Summary:        text,
			Timestamp:      d.opts.Now(),
			FrameTable:     res.FrameTable,
			Spectrogram:    figs.spectrogram,
			Timeline:       figs.timeline,
			Heatmap:        figs.heatmap,
			Realtime:       figs.realtime,
		})
	})
	if err != nil {
		return nil, err
	}

	resp := &Response{
		ID:             id,
		FakePercentage: analysis.Round2(res.FakePercentage),
		Summary:        text,
		Spectrogram:    "/" + StaticPath(id, plot.Spectrogram),
		Timeline:       "/" + StaticPath(id, plot.Timeline),
		Heatmap:        "/" + StaticPath(id, plot.Heatmap),
		Realtime:       "/" + StaticPath(id, plot.Realtime),
		RealtimeSeries: res.RealtimeSeries,
		FrameTable:     res.FrameTable,
		Report:         "/" + ReportPath(reportName),
	}

	err = d.stage(ctx, observe.StageStore, func(ctx context.Context) error {
		objects := []struct {
			path, contentType string
			data              []byte
		}{
			{StaticPath(id, plot.Spectrogram), "image/png", figs.spectrogram},
			{StaticPath(id, plot.Timeline), "image/png", figs.timeline},
			{StaticPath(id, plot.Heatmap), "image/png", figs.heatmap},
			{StaticPath(id, plot.Realtime), "image/png", figs.realtime},
			{ReportPath(reportName), "application/pdf", pdf.Bytes()},
		}
		for _, o := range objects {
			if err := d.opts.Store.Put(ctx, o.path, o.contentType, bytes.NewReader(o.data)); err != nil {
				return fmt.Errorf("service: store %s: %w", o.path, err)
			}
		}
		if d.opts.History == nil {
			return nil
		}
		rec := &history.Record{
			ID:              id,
			CreatedAt:       d.opts.Now().UTC(),
			FileName:        name,
			Format:          format,
			DurationSeconds: clip.Duration().Seconds(),
			FakePercentage:  resp.FakePercentage,
			Probabilities:   res.Probabilities,
			Summary:         text,
			FrameTable:      res.FrameTable,
			Report:          resp.Report,
			Figures: map[string]string{
				"spectrogram": resp.Spectrogram,
				"timeline":    resp.Timeline,
				"heatmap":     resp.Heatmap,
				"realtime":    resp.Realtime,
			},
		}
		return d.opts.History.Put(ctx, rec)
	})
	if err != nil {
		return nil, err
	}

	log.InfoContext(ctx, "analysis complete",
		"id", id, "file", name, "fake_percentage", resp.FakePercentage)
	return resp, nil
}

// stage runs fn in a child span and records its latency.
func (d *Detector) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "stage "+name)
	defer span.End()

	err := fn(ctx)
	if d.opts.Metrics != nil {
		d.opts.Metrics.RecordStage(ctx, name, start)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

type figures struct {
	spectrogram, timeline, heatmap, realtime []byte
}

// renderFigures draws the four PNGs concurrently.
func renderFigures(res *analysis.Result) (figures, error) {
	var f figures
	var g errgroup.Group
	draw := func(dst *[]byte, name string, fn func(io.Writer) error) {
		g.Go(func() error {
			var buf bytes.Buffer
			if err := fn(&buf); err != nil {
				return fmt.Errorf("service: plot %s: %w", name, err)
			}
			*dst = buf.Bytes()
			return nil
		})
	}
	draw(&f.spectrogram, plot.Spectrogram, func(w io.Writer) error {
		return plot.WriteSpectrogram(w, res.Spectrogram)
	})
	draw(&f.timeline, plot.Timeline, func(w io.Writer) error {
		return plot.WriteTimeline(w, res.Timeline)
	})
	draw(&f.heatmap, plot.Heatmap, func(w io.Writer) error {
		return plot.WriteHeatmap(w, res.Heatmap)
	})
	draw(&f.realtime, plot.Realtime, func(w io.Writer) error {
		return plot.WriteRealtime(w, res.RealtimeSeries)
	})
	return f, g.Wait()
}

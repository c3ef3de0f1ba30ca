package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/neurlang/fakevoice/analysis"
	"github.com/neurlang/fakevoice/health"
	"github.com/neurlang/fakevoice/history"
	"github.com/neurlang/fakevoice/service"
	"github.com/neurlang/fakevoice/storage"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeDetector struct {
	err  error
	name string
	body string
}

func (d *fakeDetector) Detect(_ context.Context, name string, r io.Reader) (*service.Response, error) {
	b, _ := io.ReadAll(r)
	d.name, d.body = name, string(b)
	if d.err != nil {
		return nil, d.err
	}
	return &service.Response{
		ID:             "id1",
		FakePercentage: 12.34,
		Summary:        "ok",
		Spectrogram:    "/static/id1/spectrogram.png",
		FrameTable:     []analysis.FrameRow{{Frame: 1, FakeProbability: 1.5}},
		RealtimeSeries: []float64{1.5},
		Report:         "/reports/report_x.pdf",
	}, nil
}

type env struct {
	det     *fakeDetector
	store   *storage.Local
	history *history.Store
	router  *gin.Engine
}

func newEnv(t *testing.T, det *fakeDetector) env {
	t.Helper()
	store, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	hist, err := history.Open(history.Options{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { hist.Close() })
	r := New(Config{
		Detector:       det,
		Store:          store,
		History:        hist,
		MaxUploadBytes: 1 << 20,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			io.WriteString(w, "# metrics\n")
		}),
		Checkers: []health.Checker{{Name: "history", Check: hist.Ping}},
	})
	return env{det: det, store: store, history: hist, router: r}
}

func (e env) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func upload(t *testing.T, field, name, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, name)
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(fw, content)
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/predict", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestIndex(t *testing.T) {
	e := newEnv(t, &fakeDetector{})
	rec := e.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "uploadForm") {
		t.Error("index page missing upload form")
	}
	if rec := e.do(httptest.NewRequest(http.MethodGet, "/assets/script.js", nil)); rec.Code != http.StatusOK {
		t.Errorf("script status = %d", rec.Code)
	}
}

func TestPredict(t *testing.T) {
	det := &fakeDetector{}
	e := newEnv(t, det)

	rec := e.do(upload(t, "audio", "clip.wav", "RIFF"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if det.name != "clip.wav" || det.body != "RIFF" {
		t.Errorf("detector got %q %q", det.name, det.body)
	}
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{
		"id", "fake_percentage", "summary", "spectrogram", "timeline", "heatmap",
		"realtime", "realtime_series", "frame_table", "report",
	} {
		if _, ok := out[k]; !ok {
			t.Errorf("response missing %q", k)
		}
	}
	if out["fake_percentage"] != 12.34 {
		t.Errorf("fake_percentage = %v", out["fake_percentage"])
	}
}

func TestPredict_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		req  func(t *testing.T) *http.Request
		want int
	}{
		{
			name: "missing file",
			req:  func(t *testing.T) *http.Request { return upload(t, "file", "clip.wav", "x") },
			want: http.StatusBadRequest,
		},
		{
			name: "undecodable",
			err:  fmt.Errorf("%w: bad", service.ErrDecode),
			req:  func(t *testing.T) *http.Request { return upload(t, "audio", "clip.wav", "x") },
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "pipeline failure",
			err:  errors.New("disk full"),
			req:  func(t *testing.T) *http.Request { return upload(t, "audio", "clip.wav", "x") },
			want: http.StatusInternalServerError,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t, &fakeDetector{err: tc.err})
			rec := e.do(tc.req(t))
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
			if strings.Contains(rec.Body.String(), "disk full") {
				t.Error("internal error leaked to client")
			}
		})
	}
}

func TestPredict_TooLarge(t *testing.T) {
	det := &fakeDetector{}
	e := newEnv(t, det)

	rec := e.do(upload(t, "audio", "clip.wav", strings.Repeat("x", 1<<20+1)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
	if !strings.Contains(rec.Body.String(), "1048576 bytes") {
		t.Errorf("body = %s, want the limit", rec.Body)
	}
	if det.name != "" {
		t.Error("detector should not run for an oversized upload")
	}
}

func TestArtifacts(t *testing.T) {
	e := newEnv(t, &fakeDetector{})
	ctx := context.Background()
	if err := e.store.Put(ctx, "static/id1/timeline.png", "image/png", strings.NewReader("png")); err != nil {
		t.Fatal(err)
	}
	if err := e.store.Put(ctx, "reports/report_a.pdf", "application/pdf", strings.NewReader("pdf")); err != nil {
		t.Fatal(err)
	}

	rec := e.do(httptest.NewRequest(http.MethodGet, "/static/id1/timeline.png", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "png" {
		t.Errorf("figure: %d %q", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("figure Content-Type = %q", ct)
	}

	rec = e.do(httptest.NewRequest(http.MethodGet, "/reports/report_a.pdf", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "pdf" {
		t.Errorf("report: %d %q", rec.Code, rec.Body)
	}

	rec = e.do(httptest.NewRequest(http.MethodGet, "/reports/missing.pdf", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing report status = %d", rec.Code)
	}
}

func TestAnalyses(t *testing.T) {
	e := newEnv(t, &fakeDetector{})
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		rec := &history.Record{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Second), FakePercentage: float64(i)}
		if err := e.history.Put(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	rec := e.do(httptest.NewRequest(http.MethodGet, "/analyses/b", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var one history.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &one); err != nil {
		t.Fatal(err)
	}
	if one.ID != "b" || one.FakePercentage != 1 {
		t.Errorf("record = %+v", one)
	}

	if rec := e.do(httptest.NewRequest(http.MethodGet, "/analyses/zzz", nil)); rec.Code != http.StatusNotFound {
		t.Errorf("missing status = %d", rec.Code)
	}

	rec = e.do(httptest.NewRequest(http.MethodGet, "/analyses?limit=2", nil))
	var list []history.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "c" || list[1].ID != "b" {
		t.Errorf("list = %+v", list)
	}

	if rec := e.do(httptest.NewRequest(http.MethodGet, "/analyses?limit=x", nil)); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", rec.Code)
	}
}

func TestProbesAndMetrics(t *testing.T) {
	e := newEnv(t, &fakeDetector{})
	for _, p := range []string{"/healthz", "/readyz", "/metrics"} {
		if rec := e.do(httptest.NewRequest(http.MethodGet, p, nil)); rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", p, rec.Code)
		}
	}
}

func TestCORS(t *testing.T) {
	e := newEnv(t, &fakeDetector{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://example.org")
	rec := e.do(req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

// Package server exposes the detector over HTTP with gin.
package server

import (
	"context"
	"embed"
	"errors"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/neurlang/fakevoice/health"
	"github.com/neurlang/fakevoice/history"
	"github.com/neurlang/fakevoice/observe"
	"github.com/neurlang/fakevoice/service"
	"github.com/neurlang/fakevoice/storage"
)

//go:embed web
var webFS embed.FS

// Detector is the analysis pipeline behind POST /predict.
type Detector interface {
	Detect(ctx context.Context, name string, r io.Reader) (*service.Response, error)
}

// Config wires the router. Store is required. History, Metrics and
// Checkers are optional.
type Config struct {
	Detector Detector
	Store    storage.Store
	History  *history.Store
	Metrics  *observe.Metrics
	Checkers []health.Checker

	// MaxUploadBytes caps the request body of POST /predict.
	MaxUploadBytes int64
	// ListLimit caps GET /analyses.
	ListLimit int
	// MetricsHandler serves /metrics. Defaults to promhttp.Handler().
	MetricsHandler http.Handler
}

type errorResponse struct {
	Error string `json:"error"`
}

type handler struct {
	cfg Config
}

// New returns the gin engine serving every route.
func New(cfg Config) *gin.Engine {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = 50
	}
	if cfg.MetricsHandler == nil {
		cfg.MetricsHandler = promhttp.Handler()
	}
	h := &handler{cfg: cfg}

	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Metrics != nil {
		r.Use(observe.Middleware(cfg.Metrics))
	}
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Origin", "Content-Type", "traceparent"},
		ExposeHeaders:   []string{"X-Correlation-ID"},
	}))

	assets, _ := fs.Sub(webFS, "web")
	r.GET("/", h.index)
	r.StaticFS("/assets", http.FS(assets))

	r.POST("/predict", h.predict)
	r.GET("/static/:id/:name", h.figure)
	r.GET("/reports/:name", h.report)
	r.GET("/analyses", h.listAnalyses)
	r.GET("/analyses/:id", h.getAnalysis)

	health.New(cfg.Checkers...).Register(r)
	r.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	return r
}

func (h *handler) index(c *gin.Context) {
	page, err := webFS.ReadFile("web/index.html")
	if err != nil {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

func (h *handler) predict(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxUploadBytes)

	fh, err := c.FormFile("audio")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: "upload exceeds " + strconv.FormatInt(tooLarge.Limit, 10) + " bytes"})
			return
		}
		c.JSON(http.StatusBadRequest, errorResponse{Error: "no audio file provided"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to read upload"})
		return
	}
	defer f.Close()

	resp, err := h.cfg.Detector.Detect(c.Request.Context(), fh.Filename, f)
	if err != nil {
		c.Error(err)
		if errors.Is(err, service.ErrDecode) {
			c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "analysis failed"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) figure(c *gin.Context) {
	h.serve(c, service.StaticPath(c.Param("id"), c.Param("name")))
}

func (h *handler) report(c *gin.Context) {
	h.serve(c, service.ReportPath(c.Param("name")))
}

// serve streams an artifact from the store.
func (h *handler) serve(c *gin.Context, p string) {
	p, err := storage.Clean(p)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid path"})
		return
	}
	rc, err := h.cfg.Store.Open(c.Request.Context(), p)
	if errors.Is(err, os.ErrNotExist) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "not found"})
		return
	}
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "storage unavailable"})
		return
	}
	defer rc.Close()

	ct := mime.TypeByExtension(path.Ext(p))
	if ct == "" {
		ct = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, -1, ct, rc, nil)
}

func (h *handler) getAnalysis(c *gin.Context) {
	if h.cfg.History == nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "history disabled"})
		return
	}
	rec, err := h.cfg.History.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, history.ErrNotFound) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "not found"})
		return
	}
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "history unavailable"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *handler) listAnalyses(c *gin.Context) {
	if h.cfg.History == nil {
		c.JSON(http.StatusOK, []*history.Record{})
		return
	}
	limit := h.cfg.ListLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, limit)
	}
	recs, err := h.cfg.History.List(c.Request.Context(), limit)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "history unavailable"})
		return
	}
	c.JSON(http.StatusOK, recs)
}

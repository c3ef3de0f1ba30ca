package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/neurlang/fakevoice/analysis"
	"github.com/neurlang/fakevoice/config"
	"github.com/neurlang/fakevoice/history"
	"github.com/neurlang/fakevoice/mel"
	"github.com/neurlang/fakevoice/model"
	"github.com/neurlang/fakevoice/observe"
	"github.com/neurlang/fakevoice/service"
	"github.com/neurlang/fakevoice/storage"
	"github.com/neurlang/fakevoice/summary"
)

// app holds the long lived components built from the configuration.
type app struct {
	model       *model.Model
	fakeClasses []int
	store       storage.Store
	history     *history.Store
	detector    *service.Detector
}

// buildOptions lets callers swap the artifact store and skip history.
type buildOptions struct {
	store     storage.Store
	noHistory bool
	metrics   *observe.Metrics
}

func build(ctx context.Context, cfg *config.Config, bo buildOptions) (*app, error) {
	m, err := model.Load(cfg.Model.Path, model.WithWorkers(cfg.Model.Workers))
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "model loaded",
		"name", m.Name, "classes", m.Classes, "workers", m.Workers())

	a := &app{model: m, fakeClasses: cfg.Model.FakeClasses, store: bo.store}
	if a.store == nil {
		if a.store, err = newStore(cfg.Storage); err != nil {
			return nil, err
		}
	}
	if !bo.noHistory {
		a.history, err = history.Open(history.Options{Dir: cfg.History.Dir, InMemory: cfg.History.InMemory})
		if err != nil {
			return nil, err
		}
	}

	mc := mel.NewMel()
	mc.TopDB = cfg.Analysis.TopDB
	ac := analysis.DefaultConfig()
	ac.FakeClasses = cfg.Model.FakeClasses
	ac.FrameRows = cfg.Analysis.FrameRows
	ac.TimelinePoints = cfg.Analysis.TimelinePoints
	ac.TimelineStdDev = cfg.Analysis.TimelineStdDev
	if len(m.InputShape) == 3 {
		ac.InputRows, ac.InputCols = m.InputShape[0], m.InputShape[1]
	}

	a.detector, err = service.New(service.Options{
		Analyzer:   analysis.New(m, mc, ac, nil),
		Summarizer: newSummarizer(cfg.Summary),
		Store:      a.store,
		History:    a.history,
		Metrics:    bo.metrics,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// checkModel reports whether the loaded network still produces an output for
// every configured fake class.
func (a *app) checkModel(context.Context) error {
	out, err := a.model.OutputShape()
	if err != nil {
		return err
	}
	for _, c := range a.fakeClasses {
		if c < 0 || c >= out[0] {
			return fmt.Errorf("%w: %d of %d outputs", analysis.ErrClassIndex, c, out[0])
		}
	}
	return nil
}

func (a *app) Close() error {
	if a.history != nil {
		return a.history.Close()
	}
	return nil
}

func newStore(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Backend {
	case config.StorageS3:
		return storage.NewS3(newS3Client(cfg), cfg.Bucket, cfg.Prefix), nil
	case config.StorageLocal, "":
		return storage.NewLocal(cfg.Dir)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

// newS3Client builds a client from the standard AWS environment variables.
// A custom endpoint switches to path style addressing for S3 compatible
// servers such as MinIO.
func newS3Client(cfg config.StorageConfig) *s3.Client {
	creds := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		c := aws.Credentials{
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			Source:          "environment",
		}
		if c.AccessKeyID == "" || c.SecretAccessKey == "" {
			return aws.Credentials{}, errors.New("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
		}
		return c, nil
	})
	region := cfg.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	opts := s3.Options{
		Region:      region,
		Credentials: aws.NewCredentialsCache(creds),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}

func newSummarizer(cfg config.SummaryConfig) summary.Summarizer {
	templates := summary.NewTemplates(nil)
	if cfg.Provider != config.SummaryOpenAI {
		return templates
	}
	return summary.NewOpenAI(summary.OpenAIConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
	}, templates)
}

func newLogger(level config.LogLevel, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level.Level()}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at path over [Default], applies environment
// overrides and validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		ApplyEnv(cfg, os.Getenv)
		if err := Validate(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over [Default]. Unknown keys are
// rejected. getenv supplies overrides and may be nil.
func LoadFromReader(r io.Reader, getenv func(string) string) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if getenv != nil {
		ApplyEnv(cfg, getenv)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv applies PORT to the listen address and OPENAI_API_KEY to an
// unset summary key.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if port := getenv("PORT"); port != "" {
		host, _, err := net.SplitHostPort(cfg.Server.ListenAddr)
		if err != nil {
			host = ""
		}
		cfg.Server.ListenAddr = net.JoinHostPort(host, port)
	}
	if cfg.Summary.APIKey == "" {
		cfg.Summary.APIKey = getenv("OPENAI_API_KEY")
	}
}

// Validate returns all problems found in cfg joined into one error.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "text" && cfg.Server.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}
	if _, port, err := net.SplitHostPort(cfg.Server.ListenAddr); err != nil {
		errs = append(errs, fmt.Errorf("server.listen_addr %q: %w", cfg.Server.ListenAddr, err))
	} else if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		errs = append(errs, fmt.Errorf("server.listen_addr %q has an invalid port", cfg.Server.ListenAddr))
	}
	if cfg.Server.MaxUploadMB <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_mb must be positive, got %d", cfg.Server.MaxUploadMB))
	}

	if cfg.Model.Path == "" {
		errs = append(errs, errors.New("model.path is required"))
	}
	if cfg.Model.Workers < 0 {
		errs = append(errs, fmt.Errorf("model.workers must not be negative, got %d", cfg.Model.Workers))
	}
	if len(cfg.Model.FakeClasses) == 0 {
		errs = append(errs, errors.New("model.fake_classes must name at least one class"))
	}
	for i, c := range cfg.Model.FakeClasses {
		if c < 0 {
			errs = append(errs, fmt.Errorf("model.fake_classes[%d] must not be negative, got %d", i, c))
		}
	}

	if cfg.Analysis.FrameRows <= 0 {
		errs = append(errs, fmt.Errorf("analysis.frame_rows must be positive, got %d", cfg.Analysis.FrameRows))
	}
	if cfg.Analysis.TimelinePoints <= 0 {
		errs = append(errs, fmt.Errorf("analysis.timeline_points must be positive, got %d", cfg.Analysis.TimelinePoints))
	}
	if cfg.Analysis.TimelineStdDev < 0 {
		errs = append(errs, fmt.Errorf("analysis.timeline_stddev must not be negative, got %g", cfg.Analysis.TimelineStdDev))
	}
	if cfg.Analysis.TopDB < 0 {
		errs = append(errs, fmt.Errorf("analysis.top_db must not be negative, got %g", cfg.Analysis.TopDB))
	}

	switch cfg.Storage.Backend {
	case StorageLocal:
		if cfg.Storage.Dir == "" {
			errs = append(errs, errors.New("storage.dir is required for the local backend"))
		}
	case StorageS3:
		if cfg.Storage.Bucket == "" {
			errs = append(errs, errors.New("storage.bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: local, s3", cfg.Storage.Backend))
	}

	if !cfg.History.InMemory && cfg.History.Dir == "" {
		errs = append(errs, errors.New("history.dir is required unless history.in_memory is set"))
	}
	if cfg.History.ListLimit <= 0 {
		errs = append(errs, fmt.Errorf("history.list_limit must be positive, got %d", cfg.History.ListLimit))
	}

	switch cfg.Summary.Provider {
	case SummaryTemplates:
	case SummaryOpenAI:
		if cfg.Summary.APIKey == "" {
			errs = append(errs, errors.New("summary.api_key (or OPENAI_API_KEY) is required for the openai provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("summary.provider %q is invalid; valid values: templates, openai", cfg.Summary.Provider))
	}

	return errors.Join(errs...)
}

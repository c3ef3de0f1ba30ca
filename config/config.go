// Package config defines the YAML configuration for the fakevoice service
// and loads it with defaults, environment overrides and validation.
package config

import "log/slog"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to a slog level. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Storage backends.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Summary providers.
const (
	SummaryTemplates = "templates"
	SummaryOpenAI    = "openai"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Model    ModelConfig    `yaml:"model"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Storage  StorageConfig  `yaml:"storage"`
	History  HistoryConfig  `yaml:"history"`
	Summary  SummaryConfig  `yaml:"summary"`
}

// ServerConfig holds the HTTP listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address, e.g. ":5000". PORT overrides the port.
	ListenAddr string   `yaml:"listen_addr"`
	LogLevel   LogLevel `yaml:"log_level"`
	// LogFormat is "text" or "json".
	LogFormat string `yaml:"log_format"`
	// MaxUploadMB caps the multipart body size.
	MaxUploadMB int64 `yaml:"max_upload_mb"`
}

// ModelConfig locates the classifier.
type ModelConfig struct {
	// Path is a .json or .json.lzw model file.
	Path string `yaml:"path"`
	// Workers bounds convolution parallelism. Zero uses the physical core count.
	Workers int `yaml:"workers"`
	// FakeClasses are the output indices counted as synthetic speech.
	FakeClasses []int `yaml:"fake_classes"`
}

// AnalysisConfig tunes the derived series and features.
type AnalysisConfig struct {
	FrameRows      int     `yaml:"frame_rows"`
	TimelinePoints int     `yaml:"timeline_points"`
	TimelineStdDev float64 `yaml:"timeline_stddev"`
	TopDB          float64 `yaml:"top_db"`
}

// StorageConfig selects where plots and reports are written.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	// Dir is the root for the local backend.
	Dir string `yaml:"dir"`

	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// HistoryConfig locates the analysis history database.
type HistoryConfig struct {
	Dir      string `yaml:"dir"`
	InMemory bool   `yaml:"in_memory"`
	// ListLimit caps GET /analyses.
	ListLimit int `yaml:"list_limit"`
}

// SummaryConfig selects the summary writer.
type SummaryConfig struct {
	Provider string `yaml:"provider"`
	// APIKey falls back to OPENAI_API_KEY.
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Default returns the configuration used for any field the file omits.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:  ":5000",
			LogLevel:    LogInfo,
			LogFormat:   "text",
			MaxUploadMB: 32,
		},
		Model: ModelConfig{
			Path:        "model/voice_cnn.json.lzw",
			FakeClasses: []int{1, 2},
		},
		Analysis: AnalysisConfig{
			FrameRows:      20,
			TimelinePoints: 20,
			TimelineStdDev: 5,
			TopDB:          80,
		},
		Storage: StorageConfig{
			Backend: StorageLocal,
			Dir:     "data",
		},
		History: HistoryConfig{
			Dir:       "data/history",
			ListLimit: 50,
		},
		Summary: SummaryConfig{
			Provider: SummaryTemplates,
		},
	}
}

package config

import (
	"strings"
	"testing"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadFromReader_Defaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""), nil)
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":5000" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Analysis.FrameRows != 20 || cfg.Analysis.TimelineStdDev != 5 {
		t.Errorf("Analysis = %+v", cfg.Analysis)
	}
	if len(cfg.Model.FakeClasses) != 2 {
		t.Errorf("FakeClasses = %v", cfg.Model.FakeClasses)
	}
}

func TestLoadFromReader_Overrides(t *testing.T) {
	const doc = `
server:
  listen_addr: "127.0.0.1:8080"
  log_level: debug
  log_format: json
model:
  path: /models/cnn.json
  workers: 2
  fake_classes: [2]
storage:
  backend: s3
  bucket: voices
  prefix: prod
history:
  in_memory: true
`
	cfg, err := LoadFromReader(strings.NewReader(doc), nil)
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.LogLevel.Level().String() != "DEBUG" {
		t.Errorf("level = %v", cfg.Server.LogLevel.Level())
	}
	if cfg.Storage.Bucket != "voices" || cfg.Storage.Prefix != "prod" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Model.Workers != 2 || len(cfg.Model.FakeClasses) != 1 || cfg.Model.FakeClasses[0] != 2 {
		t.Errorf("Model = %+v", cfg.Model)
	}
	if cfg.Analysis.TimelinePoints != 20 {
		t.Errorf("untouched default lost: %+v", cfg.Analysis)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	if _, err := LoadFromReader(strings.NewReader("server:\n  bogus: 1\n"), nil); err == nil {
		t.Error("unknown field should be rejected")
	}
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name string
		addr string
		port string
		want string
	}{
		{"port only", ":5000", "8081", ":8081"},
		{"keeps host", "127.0.0.1:5000", "9000", "127.0.0.1:9000"},
		{"unset", ":5000", "", ":5000"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Server.ListenAddr = tc.addr
			ApplyEnv(cfg, env(map[string]string{"PORT": tc.port}))
			if cfg.Server.ListenAddr != tc.want {
				t.Errorf("ListenAddr = %q, want %q", cfg.Server.ListenAddr, tc.want)
			}
		})
	}
}

func TestApplyEnv_APIKey(t *testing.T) {
	cfg := Default()
	ApplyEnv(cfg, env(map[string]string{"OPENAI_API_KEY": "sk-env"}))
	if cfg.Summary.APIKey != "sk-env" {
		t.Errorf("APIKey = %q", cfg.Summary.APIKey)
	}

	cfg = Default()
	cfg.Summary.APIKey = "sk-file"
	ApplyEnv(cfg, env(map[string]string{"OPENAI_API_KEY": "sk-env"}))
	if cfg.Summary.APIKey != "sk-file" {
		t.Errorf("file key overridden: %q", cfg.Summary.APIKey)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Server.LogLevel = "loud"
	cfg.Server.MaxUploadMB = 0
	cfg.Model.FakeClasses = nil
	cfg.Storage.Backend = "ftp"
	cfg.Summary.Provider = "openai"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate should fail")
	}
	for _, want := range []string{
		"server.log_level",
		"server.max_upload_mb",
		"model.fake_classes",
		"storage.backend",
		"summary.api_key",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestValidate_S3NeedsBucket(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = StorageS3
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "storage.bucket") {
		t.Errorf("err = %v", err)
	}
}

func TestValidate_BadListenAddr(t *testing.T) {
	cfg := Default()
	cfg.Server.ListenAddr = "localhost"
	if err := Validate(cfg); err == nil {
		t.Error("address without port should fail")
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
environment: test
prediction:
  symbols: [BTC, ETH]
  ranges:
    Close: { min: 0, max: 100000 }
models:
  source: file
  dir: Models
  paths:
    BTC: xgboost_model_BTC
    ETH: xgboost_model_ETH
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if c.Server.Host != "0.0.0.0" || c.Server.Port != 8080 || c.Prediction.NormMin != 1 || c.Prediction.NormMax != 10 {
		t.Fatalf("unexpected defaults %+v %+v", c.Server, c.Prediction)
	}
	if c.Cache.Backend != "none" || c.Recorder.Backend != "none" || c.Cache.TTL != time.Minute {
		t.Fatalf("unexpected side-channel defaults")
	}
	if r := c.Prediction.Ranges["Close"]; r.Max != 100000 {
		t.Fatalf("range not parsed: %+v", r)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no environment", func(c *Config) { c.Environment = "" }, "environment"},
		{"no symbols", func(c *Config) { c.Prediction.Symbols = nil }, "symbols"},
		{"inverted norm", func(c *Config) { c.Prediction.NormMin = 10; c.Prediction.NormMax = 1 }, "norm_min"},
		{"missing model path", func(c *Config) { c.Prediction.Symbols = append(c.Prediction.Symbols, "LTC") }, "LTC"},
		{"bad source", func(c *Config) { c.Models.Source = "ftp" }, "models.source"},
		{"http without url", func(c *Config) { c.Models.Source = "http" }, "base_url"},
		{"s3 without bucket", func(c *Config) { c.Models.Source = "s3" }, "s3.bucket"},
		{"redis without addr", func(c *Config) { c.Cache.Backend = "redis" }, "redis.addr"},
		{"kafka without topic", func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Brokers = []string{"k:9092"} }, "kafka.topic"},
		{"sqlite without path", func(c *Config) { c.Recorder.Backend = "sqlite" }, "sqlite.path"},
		{"unknown recorder", func(c *Config) { c.Recorder.Backend = "mongo" }, "recorder.backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse([]byte(minimalYAML))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			tt.mutate(c)
			err = c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	c, _ := Parse([]byte(minimalYAML))
	env := map[string]string{
		"SERVER_HOST":      "127.0.0.1",
		"SERVER_PORT":      "9090",
		"KAFKA_BROKERS":    "a:9092, b:9092,",
		"RECORDER_BACKEND": "sqlite",
		"MODELS_DIR":       "/srv/models",
	}
	if err := c.applyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if c.Server.Host != "127.0.0.1" || c.Server.Port != 9090 || c.Models.Dir != "/srv/models" || c.Recorder.Backend != "sqlite" {
		t.Fatalf("overrides not applied: %+v", c)
	}
	if len(c.Kafka.Brokers) != 2 || c.Kafka.Brokers[1] != "b:9092" {
		t.Fatalf("brokers: %v", c.Kafka.Brokers)
	}

	bad := func(k string) string {
		if k == "SERVER_PORT" {
			return "http"
		}
		return ""
	}
	if err := c.applyEnv(bad); err == nil {
		t.Fatalf("expected error for non-numeric port")
	}
}

func TestLoadSampleConfig(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	if err != nil {
		t.Fatalf("load sample: %v", err)
	}
	if len(c.Prediction.Ranges) != 14 || len(c.Prediction.Features) != 14 {
		t.Fatalf("sample config should carry all 14 features")
	}
	if c.Prediction.CompletionPolicy != "midpoint" {
		t.Fatalf("sample policy: %q", c.Prediction.CompletionPolicy)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected read error")
	}
	p := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(p, []byte("server: ["), 0o644)
	if _, err := Load(p); err == nil {
		t.Fatalf("expected parse error")
	}
}

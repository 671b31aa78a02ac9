package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	SOCTrace SOCTraceConfig `yaml:"soctrace"`
}

// SOCTraceConfig is the project configuration.
type SOCTraceConfig struct {
	Logs        LogsConfig        `yaml:"logs"`
	Input       InputConfig       `yaml:"input"`
	Detection   DetectionConfig   `yaml:"detection"`
	Correlation CorrelationConfig `yaml:"correlation"`
	RCA         RCAConfig         `yaml:"rca"`
	Report      ReportConfig      `yaml:"report"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LogsConfig controls on-disk log ingestion.
type LogsConfig struct {
	Dir string `yaml:"dir"`
}

// InputConfig controls optional non-file event sources.
type InputConfig struct {
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig controls the Redis raw-log source.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
	MaxDrain int    `yaml:"max_drain"`
}

// DetectionConfig controls the rule detector.
type DetectionConfig struct {
	BruteForce BruteForceConfig `yaml:"brute_force"`
	Sigma      SigmaConfig      `yaml:"sigma"`
}

// BruteForceConfig controls the failed-login windowing rule.
type BruteForceConfig struct {
	Window    time.Duration `yaml:"window"`
	Threshold int           `yaml:"threshold"`
}

// SigmaConfig controls optional Sigma rule loading.
type SigmaConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// CorrelationConfig controls alert enrichment.
type CorrelationConfig struct {
	TakeoverWindow time.Duration `yaml:"takeover_window"`
}

// RCAConfig controls root-cause narrative windows.
type RCAConfig struct {
	Lookback  time.Duration `yaml:"lookback"`
	Lookahead time.Duration `yaml:"lookahead"`
}

// ReportConfig controls report and alert export output.
type ReportConfig struct {
	Dir     string           `yaml:"dir"`
	Alerts  FileOutputConfig `yaml:"alerts"`
	Webhook HTTPOutputConfig `yaml:"webhook"`
}

// FileOutputConfig config for local JSONL output.
type FileOutputConfig struct {
	Path string `yaml:"path"`
}

// HTTPOutputConfig config for remote output.
type HTTPOutputConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

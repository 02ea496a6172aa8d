package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by WithDefaults.
type Config struct {
	AuthKey    string `json:"auth_key" yaml:"auth_key" toml:"auth_key"`
	Host       string `json:"host" yaml:"host" toml:"host"`
	Port       int    `json:"port" yaml:"port" toml:"port"`
	StorageDir string `json:"storage_dir" yaml:"storage_dir" toml:"storage_dir"`
	Device     string `json:"device" yaml:"device" toml:"device"`

	// Cache and admission
	MaxModels      int  `json:"max_models" yaml:"max_models" toml:"max_models"`
	MaxQueueDepth  int  `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxWaitSeconds int  `json:"max_wait_seconds" yaml:"max_wait_seconds" toml:"max_wait_seconds"`
	StrictSamplers bool `json:"strict_schedulers" yaml:"strict_schedulers" toml:"strict_schedulers"`

	// Output
	EmbedMetadata bool   `json:"embed_metadata" yaml:"embed_metadata" toml:"embed_metadata"`
	OutputDir     string `json:"output_dir" yaml:"output_dir" toml:"output_dir"`

	// Diffusion worker
	OriginalConfig string   `json:"original_config" yaml:"original_config" toml:"original_config"`
	WorkerURL      string   `json:"worker_url" yaml:"worker_url" toml:"worker_url"`
	WorkerCommand  string   `json:"worker_command" yaml:"worker_command" toml:"worker_command"`
	WorkerArgs     []string `json:"worker_args" yaml:"worker_args" toml:"worker_args"`

	// HTTP
	MaxBodyBytes int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	CORSEnabled  bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins  []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`

	// Logging
	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`
	LogFile   string `json:"log_file" yaml:"log_file" toml:"log_file"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

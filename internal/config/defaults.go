package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Defaults mirror the original sd-server start contract.
const (
	DefaultHost          = "127.0.0.1"
	DefaultPort          = 5000
	DefaultStorageDir    = "../sd-server/.cache"
	DefaultDevice        = "cuda"
	DefaultMaxQueueDepth = 32
	DefaultMaxBodyBytes  = 1 << 20
	DefaultLogLevel      = "info"
)

// Storage subdirectories derived from StorageDir.
const (
	CheckpointsSubdir = "checkpoints"
	LorasSubdir       = "loras"
	HuggingFaceSubdir = "huggingface"
)

// WithDefaults returns a copy of c with unset fields filled in.
func (c Config) WithDefaults() Config {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if c.StorageDir == "" {
		c.StorageDir = DefaultStorageDir
	}
	if c.Device == "" {
		c.Device = DefaultDevice
	}
	if c.MaxQueueDepth <= 0 {
		c.MaxQueueDepth = DefaultMaxQueueDepth
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	return c
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// CheckpointsDir holds converted (prepared) checkpoints.
func (c Config) CheckpointsDir() string { return filepath.Join(c.StorageDir, CheckpointsSubdir) }

// LorasDir holds adapter weights referenced by relative path.
func (c Config) LorasDir() string { return filepath.Join(c.StorageDir, LorasSubdir) }

// HuggingFaceDir is exported to the worker as HF_HOME.
func (c Config) HuggingFaceDir() string { return filepath.Join(c.StorageDir, HuggingFaceSubdir) }

// ApplyEnv overrides fields from SDSERVER_* environment variables.
func (c Config) ApplyEnv() Config {
	if v := os.Getenv("SDSERVER_AUTH_KEY"); v != "" {
		c.AuthKey = v
	}
	if v := os.Getenv("SDSERVER_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("SDSERVER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := os.Getenv("SDSERVER_STORAGE_DIR"); v != "" {
		c.StorageDir = v
	}
	if v := os.Getenv("SDSERVER_DEVICE"); v != "" {
		c.Device = v
	}
	if v := os.Getenv("SDSERVER_WORKER_URL"); v != "" {
		c.WorkerURL = v
	}
	if v := os.Getenv("SDSERVER_WORKER_COMMAND"); v != "" {
		c.WorkerCommand = v
	}
	if v := os.Getenv("SDSERVER_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("SDSERVER_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("SDSERVER_LOG_FILE"); v != "" {
		c.LogFile = v
	}
	if v := os.Getenv("SDSERVER_STRICT_SCHEDULERS"); v != "" {
		c.StrictSamplers = parseBool(v)
	}
	return c
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

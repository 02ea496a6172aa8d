package config

import (
	"path/filepath"
	"testing"
)

func TestWithDefaults(t *testing.T) {
	cfg := Config{}.WithDefaults()
	if cfg.Port != DefaultPort || cfg.StorageDir != DefaultStorageDir || cfg.Device != DefaultDevice {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.MaxQueueDepth != DefaultMaxQueueDepth || cfg.MaxBodyBytes != DefaultMaxBodyBytes {
		t.Fatalf("unexpected queue/body defaults: %+v", cfg)
	}
	if cfg.Addr() != "127.0.0.1:5000" {
		t.Fatalf("addr=%s", cfg.Addr())
	}
	// explicit values survive
	cfg = Config{Port: 6000, Device: "cpu"}.WithDefaults()
	if cfg.Port != 6000 || cfg.Device != "cpu" {
		t.Fatalf("explicit values overwritten: %+v", cfg)
	}
}

func TestStorageSubdirs(t *testing.T) {
	cfg := Config{StorageDir: "/data/sd"}
	if cfg.CheckpointsDir() != filepath.Join("/data/sd", "checkpoints") { t.Fatalf("checkpoints=%s", cfg.CheckpointsDir()) }
	if cfg.LorasDir() != filepath.Join("/data/sd", "loras") { t.Fatalf("loras=%s", cfg.LorasDir()) }
	if cfg.HuggingFaceDir() != filepath.Join("/data/sd", "huggingface") { t.Fatalf("hf=%s", cfg.HuggingFaceDir()) }
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SDSERVER_AUTH_KEY", "env-key")
	t.Setenv("SDSERVER_PORT", "5151")
	t.Setenv("SDSERVER_STRICT_SCHEDULERS", "yes")
	t.Setenv("SDSERVER_WORKER_URL", "http://127.0.0.1:7000")
	cfg := Config{AuthKey: "file-key", Port: 1}.ApplyEnv()
	if cfg.AuthKey != "env-key" || cfg.Port != 5151 || !cfg.StrictSamplers || cfg.WorkerURL != "http://127.0.0.1:7000" {
		t.Fatalf("env not applied: %+v", cfg)
	}
}

func TestApplyEnv_BadPortIgnored(t *testing.T) {
	t.Setenv("SDSERVER_PORT", "not-a-port")
	cfg := Config{Port: 42}.ApplyEnv()
	if cfg.Port != 42 {
		t.Fatalf("expected port to stay 42, got %d", cfg.Port)
	}
}

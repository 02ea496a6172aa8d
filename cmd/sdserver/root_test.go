package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"sdserver/internal/config"
)

func TestSplitCSV(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{" a , b , c ", []string{"a", "b", "c"}},
		{"a,,c", []string{"a", "c"}},
		{"", nil},
	}
	for _, c := range cases {
		got := splitCSV(c.in)
		if len(got) != len(c.want) {
			t.Fatalf("%q -> %v, want %v", c.in, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("%q -> %v, want %v", c.in, got, c.want)
			}
		}
	}
}

func parse(t *testing.T, argv ...string) (config.Config, error) {
	t.Helper()
	cmd := newRootCmd()
	if err := cmd.ParseFlags(argv); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	var f serveFlags
	fl := cmd.Flags()
	f.configPath, _ = fl.GetString("config")
	f.host, _ = fl.GetString("host")
	f.workerURL, _ = fl.GetString("worker-url")
	f.workerArgs, _ = fl.GetString("worker-args")
	f.maxModels, _ = fl.GetInt("max-models")
	return resolveConfig(cmd, f, fl.Args())
}

func TestResolveConfig_Positional(t *testing.T) {
	t.Setenv("SDSERVER_AUTH_KEY", "")
	cfg, err := parse(t, "secret", "6000", "/data/sd")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AuthKey != "secret" || cfg.Port != 6000 || cfg.StorageDir != "/data/sd" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.CheckpointsDir() != filepath.Join("/data/sd", "checkpoints") {
		t.Fatalf("checkpoints dir = %s", cfg.CheckpointsDir())
	}
}

func TestResolveConfig_Defaults(t *testing.T) {
	t.Setenv("SDSERVER_AUTH_KEY", "")
	cfg, err := parse(t, "secret")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != config.DefaultPort || cfg.StorageDir != config.DefaultStorageDir || cfg.Device != config.DefaultDevice {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestResolveConfig_SecretRequired(t *testing.T) {
	t.Setenv("SDSERVER_AUTH_KEY", "")
	if _, err := parse(t); err == nil || !strings.Contains(err.Error(), "shared secret") {
		t.Fatalf("err = %v", err)
	}
	t.Setenv("SDSERVER_AUTH_KEY", "from-env")
	cfg, err := parse(t)
	if err != nil || cfg.AuthKey != "from-env" {
		t.Fatalf("cfg=%+v err=%v", cfg, err)
	}
}

func TestResolveConfig_BadPort(t *testing.T) {
	for _, p := range []string{"http", "0", "70000"} {
		if _, err := parse(t, "secret", p); err == nil {
			t.Fatalf("port %q accepted", p)
		}
	}
}

func TestResolveConfig_Precedence(t *testing.T) {
	t.Setenv("SDSERVER_AUTH_KEY", "")
	t.Setenv("SDSERVER_HOST", "10.0.0.1")
	path := filepath.Join(t.TempDir(), "sd.yaml")
	yaml := "auth_key: file-secret\nport: 7000\nhost: 0.0.0.0\nmax_models: 2\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := parse(t, "--config", path, "--max-models", "3", "--worker-args=--fp16, --xformers")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AuthKey != "file-secret" || cfg.Port != 7000 {
		t.Fatalf("file values lost: %+v", cfg)
	}
	if cfg.Host != "10.0.0.1" {
		t.Fatalf("env should override file, host=%s", cfg.Host)
	}
	if cfg.MaxModels != 3 {
		t.Fatalf("flag should override file, max_models=%d", cfg.MaxModels)
	}
	if len(cfg.WorkerArgs) != 2 || cfg.WorkerArgs[1] != "--xformers" {
		t.Fatalf("worker args = %v", cfg.WorkerArgs)
	}
}

func TestSchedulersCmd(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"schedulers"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "euler_ancestral") || strings.Count(out.String(), "\n") != 6 {
		t.Fatalf("output = %q", out.String())
	}
	if !strings.Contains(out.String(), "relatively fast; Good balance") {
		t.Fatalf("multi-line description not flattened: %q", out.String())
	}
}

func TestModelsCmd(t *testing.T) {
	storage := t.TempDir()
	ckpts := filepath.Join(storage, "checkpoints")
	if err := os.MkdirAll(ckpts, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(ckpts, "base.safetensors"), []byte("w"), 0o644); err != nil {
		t.Fatal(err)
	}
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"models", "--storage-dir", storage})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "base.safetensors") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestParseLogLevel(t *testing.T) {
	if parseLogLevel("debug") != zerolog.DebugLevel || parseLogLevel("WARN") != zerolog.WarnLevel {
		t.Fatalf("known levels not parsed")
	}
	if parseLogLevel("") != zerolog.InfoLevel || parseLogLevel("loud") != zerolog.InfoLevel {
		t.Fatalf("unknown levels should fall back to info")
	}
}

func TestNewLogger_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sd.log")
	log, closer := newLogger(config.Config{LogFile: path, LogFormat: "json", LogLevel: "info"})
	log.Info().Msg("hello")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil || !strings.Contains(string(b), "hello") {
		t.Fatalf("log file = %q err=%v", b, err)
	}
}

package manager

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"sdserver/internal/diffusion/diffusiontest"
	"sdserver/pkg/types"
)

type testEnv struct {
	m       *Manager
	rt      *diffusiontest.FakeRuntime
	pub     *MemoryPublisher
	storage string
}

func newTestEnv(t *testing.T, mutate ...func(*ManagerConfig)) *testEnv {
	t.Helper()
	storage := t.TempDir()
	rt := diffusiontest.NewFakeRuntime()
	pub := NewMemoryPublisher()
	cfg := ManagerConfig{
		Runtime:        rt,
		CheckpointsDir: filepath.Join(storage, "checkpoints"),
		LorasDir:       filepath.Join(storage, "loras"),
		Device:         "cuda",
		Publisher:      pub,
	}
	for _, f := range mutate {
		f(&cfg)
	}
	return &testEnv{m: NewWithConfig(cfg), rt: rt, pub: pub, storage: storage}
}

// archive writes a placeholder single-file checkpoint and returns its path.
func (e *testEnv) archive(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(e.storage, name)
	if err := os.WriteFile(p, []byte("weights"), 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	return p
}

// prepared creates a directory-form model and returns its path.
func (e *testEnv) prepared(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(e.storage, name)
	if err := os.MkdirAll(p, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return p
}

func baseRequest(model string) types.GenerationRequest {
	return types.GenerationRequest{
		PositivePrompt: "a lighthouse at dusk",
		NegativePrompt: "blurry",
		Model:          model,
		Steps:          20,
		Width:          64,
		Height:         64,
		Seed:           42,
		CFGScale:       7.5,
		Scheduler:      "euler_ancestral",
		Iterations:     1,
	}
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

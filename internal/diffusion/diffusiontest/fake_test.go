package diffusiontest

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"sdserver/internal/diffusion"
)

func samePixels(a, b image.Image) bool {
	if a.Bounds() != b.Bounds() {
		return false
	}
	r := a.Bounds()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if a.At(x, y) != b.At(x, y) {
				return false
			}
		}
	}
	return true
}

func TestFakeRuntime_Deterministic(t *testing.T) {
	rt := NewFakeRuntime()
	ctx := context.Background()
	p, err := rt.Load(ctx, diffusion.LoadRequest{Path: "/m/a", DType: diffusion.Float16})
	if err != nil {
		t.Fatal(err)
	}
	params := diffusion.GenerateParams{Prompt: "cat", Width: 8, Height: 8, Steps: 4, GuidanceScale: 7.5, NumImages: 2, Seed: 42}
	a, err := p.Generate(ctx, params)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := p.Generate(ctx, params)
	if len(a) != 2 || len(b) != 2 {
		t.Fatalf("want 2 images, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if !samePixels(a[i], b[i]) {
			t.Fatalf("image %d differs across identical requests", i)
		}
	}
	if samePixels(a[0], a[1]) {
		t.Fatalf("images within one call should differ")
	}
	params.Seed = 43
	c, _ := p.Generate(ctx, params)
	if samePixels(a[0], c[0]) {
		t.Fatalf("different seeds produced identical images")
	}
	if got := rt.Generations.Load(); got != 3 {
		t.Fatalf("generations = %d", got)
	}
}

func TestFakeRuntime_ConvertWritesModelIndex(t *testing.T) {
	rt := NewFakeRuntime()
	out := filepath.Join(t.TempDir(), "model")
	if err := rt.Convert(context.Background(), diffusion.ConvertRequest{CheckpointPath: "x.ckpt", OutputDir: out}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(out, "model_index.json")); err != nil {
		t.Fatalf("model_index.json missing: %v", err)
	}
	if rt.Conversions.Load() != 1 {
		t.Fatalf("conversions = %d", rt.Conversions.Load())
	}
}

func TestFakePipeline_Adapters(t *testing.T) {
	rt := NewFakeRuntime()
	ctx := context.Background()
	pl, _ := rt.Load(ctx, diffusion.LoadRequest{Path: "/m"})
	p := pl.(*FakePipeline)
	if err := p.SetAdapters(ctx, []string{"lora_0"}, []float64{1}); err == nil {
		t.Fatalf("expected error activating unloaded adapter")
	}
	_ = p.LoadLoRA(ctx, "/a", "lora_0")
	_ = p.LoadLoRA(ctx, "/b", "lora_1")
	if err := p.LoadLoRA(ctx, "/c", "lora_1"); err == nil {
		t.Fatalf("expected duplicate adapter error")
	}
	if err := p.SetAdapters(ctx, []string{"lora_0", "lora_1"}, []float64{0.5, 1}); err != nil {
		t.Fatal(err)
	}
	if w := p.Weights(); len(w) != 2 || w[0] != 0.5 {
		t.Fatalf("weights = %v", w)
	}
	if err := p.UnloadLoRAs(ctx); err != nil {
		t.Fatal(err)
	}
	if len(p.ActiveAdapters()) != 0 {
		t.Fatalf("adapters remain after unload")
	}
}

func TestFakeRuntime_InjectedErrors(t *testing.T) {
	rt := NewFakeRuntime()
	boom := errors.New("boom")
	rt.Set(func(f *FakeRuntime) { f.LoadErr = boom })
	if _, err := rt.Load(context.Background(), diffusion.LoadRequest{}); !errors.Is(err, boom) {
		t.Fatalf("load err = %v", err)
	}
	rt.Set(func(f *FakeRuntime) { f.LoadErr = nil; f.GenerateErr = boom })
	p, _ := rt.Load(context.Background(), diffusion.LoadRequest{})
	if _, err := p.Generate(context.Background(), diffusion.GenerateParams{}); !errors.Is(err, boom) {
		t.Fatalf("generate err = %v", err)
	}
}

func TestFakePipeline_SetSchedulerKeepsConfig(t *testing.T) {
	rt := NewFakeRuntime()
	p, _ := rt.Load(context.Background(), diffusion.LoadRequest{Path: "/m"})
	cfg := diffusion.SchedulerConfig{"_class_name": "DDIMScheduler", "num_train_timesteps": 1000}
	if err := p.SetScheduler(context.Background(), "ddim", cfg); err != nil {
		t.Fatal(err)
	}
	kind, got := p.Scheduler()
	if kind != "ddim" || got["_class_name"] != "DDIMScheduler" {
		t.Fatalf("kind=%q config=%v", kind, got)
	}
}

func TestFakeRuntime_MaxResident(t *testing.T) {
	rt := NewFakeRuntime()
	a, _ := rt.Load(context.Background(), diffusion.LoadRequest{Path: "/a"})
	_ = a.Close()
	_, _ = rt.Load(context.Background(), diffusion.LoadRequest{Path: "/b"})
	if rt.MaxResident.Load() != 1 {
		t.Fatalf("max resident = %d", rt.MaxResident.Load())
	}
	_, _ = rt.Load(context.Background(), diffusion.LoadRequest{Path: "/c"})
	if rt.MaxResident.Load() != 2 {
		t.Fatalf("max resident = %d", rt.MaxResident.Load())
	}
}

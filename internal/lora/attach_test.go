package lora

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"sdserver/internal/diffusion"
	"sdserver/internal/diffusion/diffusiontest"
	"sdserver/pkg/types"
)

func newPipeline(t *testing.T) (*diffusiontest.FakeRuntime, *diffusiontest.FakePipeline) {
	t.Helper()
	rt := diffusiontest.NewFakeRuntime()
	p, err := rt.Load(context.Background(), diffusion.LoadRequest{Path: "/m"})
	if err != nil {
		t.Fatal(err)
	}
	return rt, p.(*diffusiontest.FakePipeline)
}

func TestAttachAll_ActivatesAllTogether(t *testing.T) {
	_, p := newPipeline(t)
	a := Attacher{Dir: "/data/loras"}
	specs := []types.LoraSpec{
		{Path: "watercolor.safetensors", Strength: 0.8},
		{Path: "/abs/ink.safetensors", Strength: 0.3},
	}
	detach, err := a.AttachAll(context.Background(), p, specs)
	if err != nil {
		t.Fatal(err)
	}
	if got := p.ActiveAdapters(); len(got) != 2 || got[0] != "lora_0" || got[1] != "lora_1" {
		t.Fatalf("adapters = %v", got)
	}
	if p.SetAdaptersCalls() != 1 {
		t.Fatalf("SetAdapters called %d times, want 1", p.SetAdaptersCalls())
	}
	if w := p.Weights(); len(w) != 2 || w[0] != 0.8 || w[1] != 0.3 {
		t.Fatalf("weights = %v", w)
	}
	if err := detach(); err != nil {
		t.Fatal(err)
	}
	if got := p.ActiveAdapters(); len(got) != 0 {
		t.Fatalf("adapters after detach = %v", got)
	}
}

func TestAttachAll_EmptyIsNoop(t *testing.T) {
	_, p := newPipeline(t)
	detach, err := Attacher{}.AttachAll(context.Background(), p, nil)
	if err != nil || detach == nil {
		t.Fatalf("detach nil=%v err=%v", detach == nil, err)
	}
	if err := detach(); err != nil {
		t.Fatal(err)
	}
	if p.SetAdaptersCalls() != 0 {
		t.Fatalf("SetAdapters should not be called without adapters")
	}
}

func TestAttachAll_PartialFailureStillDetaches(t *testing.T) {
	rt, p := newPipeline(t)
	specs := []types.LoraSpec{{Path: "/a.safetensors", Strength: 1}, {Path: "/b.safetensors", Strength: 1}}
	rt.Set(func(f *diffusiontest.FakeRuntime) { f.SetAdaptersErr = errors.New("shape mismatch") })
	detach, err := Attacher{}.AttachAll(context.Background(), p, specs)
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(p.ActiveAdapters()) != 2 {
		t.Fatalf("expected adapters loaded before failure, got %v", p.ActiveAdapters())
	}
	if err := detach(); err != nil {
		t.Fatal(err)
	}
	if len(p.ActiveAdapters()) != 0 {
		t.Fatalf("adapters remain: %v", p.ActiveAdapters())
	}
}

func TestAttachAll_RelativePathUnderDir(t *testing.T) {
	rt := diffusiontest.NewFakeRuntime()
	pl, _ := rt.Load(context.Background(), diffusion.LoadRequest{Path: "/m"})
	rec := &recordingPipeline{Pipeline: pl}
	dir := t.TempDir()
	_, err := Attacher{Dir: dir}.AttachAll(context.Background(), rec, []types.LoraSpec{{Path: "x.safetensors", Strength: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "x.safetensors"); rec.paths[0] != want {
		t.Fatalf("path = %q, want %q", rec.paths[0], want)
	}
}

func TestAdapterName(t *testing.T) {
	if AdapterName(0) != "lora_0" || AdapterName(12) != "lora_12" {
		t.Fatalf("unexpected names")
	}
}

type recordingPipeline struct {
	diffusion.Pipeline
	paths []string
}

func (r *recordingPipeline) LoadLoRA(ctx context.Context, path, name string) error {
	r.paths = append(r.paths, path)
	return r.Pipeline.LoadLoRA(ctx, path, name)
}

// Package diffusiontest provides an in-memory diffusion runtime for tests.
package diffusiontest

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"sdserver/internal/diffusion"
)

// FakeRuntime is an in-memory Runtime for tests. Conversion writes a
// model_index.json into the output directory. Generated images are a pure
// function of the parameters, so equal requests give equal pixels.
type FakeRuntime struct {
	// Inject errors or panics. Read under mu on each call.
	mu             sync.Mutex
	ConvertErr     error
	LoadErr        error
	GenerateErr    error
	LoadLoRAErr    error
	SetAdaptersErr error
	GeneratePanic  any
	// GenerateDelay blocks Generate to exercise the admission gate.
	GenerateDelay time.Duration

	Conversions atomic.Int64
	Loads       atomic.Int64
	Generations atomic.Int64
	// MaxInFlight is the highest number of overlapping Generate calls seen.
	MaxInFlight atomic.Int64
	// MaxResident is the highest number of unclosed pipelines seen at a Load,
	// counting the one being loaded.
	MaxResident atomic.Int64
	inFlight    atomic.Int64

	pipelines []*FakePipeline
}

var _ diffusion.Runtime = (*FakeRuntime)(nil)

// NewFakeRuntime returns an empty fake.
func NewFakeRuntime() *FakeRuntime { return &FakeRuntime{} }

// Set mutates injected behavior under the fake's lock.
func (f *FakeRuntime) Set(fn func(f *FakeRuntime)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// Pipelines returns every pipeline created so far.
func (f *FakeRuntime) Pipelines() []*FakePipeline {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakePipeline(nil), f.pipelines...)
}

func (f *FakeRuntime) Convert(ctx context.Context, req diffusion.ConvertRequest) error {
	f.mu.Lock()
	err := f.ConvertErr
	f.mu.Unlock()
	f.Conversions.Add(1)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(req.OutputDir, "model_index.json"), []byte(`{"_class_name":"StableDiffusionXLPipeline"}`), 0o644)
}

func (f *FakeRuntime) Load(ctx context.Context, req diffusion.LoadRequest) (diffusion.Pipeline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Loads.Add(1)
	if f.LoadErr != nil {
		return nil, f.LoadErr
	}
	p := &FakePipeline{
		rt:        f,
		path:      req.Path,
		dtype:     req.DType,
		scheduler: "euler_discrete",
		config:    diffusion.SchedulerConfig{"num_train_timesteps": 1000, "beta_schedule": "scaled_linear"},
		device:    "cpu",
		loaded:    map[string]string{},
	}
	f.pipelines = append(f.pipelines, p)
	var open int64
	for _, q := range f.pipelines {
		if !q.Closed() {
			open++
		}
	}
	if open > f.MaxResident.Load() {
		f.MaxResident.Store(open)
	}
	return p, nil
}

// FakePipeline records every call made against it.
type FakePipeline struct {
	rt    *FakeRuntime
	path  string
	dtype diffusion.DType

	mu        sync.Mutex
	scheduler string
	config    diffusion.SchedulerConfig
	device    string
	loaded    map[string]string
	order     []string
	active    []string
	weights   []float64
	setCalls  int
	closed    bool
	lastGen   diffusion.GenerateParams
	genActive []string
}

// Path returns the prepared directory the pipeline was loaded from.
func (p *FakePipeline) Path() string { return p.path }

// Closed reports whether Close was called.
func (p *FakePipeline) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// SetAdaptersCalls counts SetAdapters invocations.
func (p *FakePipeline) SetAdaptersCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setCalls
}

// Weights returns the weights of the last SetAdapters call.
func (p *FakePipeline) Weights() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.weights...)
}

// LastGenerate returns the params of the most recent Generate call and the
// adapters that were active during it.
func (p *FakePipeline) LastGenerate() (diffusion.GenerateParams, []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastGen, append([]string(nil), p.genActive...)
}

func (p *FakePipeline) Scheduler() (string, diffusion.SchedulerConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scheduler, p.config
}

func (p *FakePipeline) SetScheduler(ctx context.Context, kind string, cfg diffusion.SchedulerConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := diffusion.SchedulerConfig{}
	for k, v := range cfg {
		next[k] = v
	}
	p.scheduler = kind
	p.config = next
	return nil
}

func (p *FakePipeline) To(ctx context.Context, device string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.device = device
	return nil
}

func (p *FakePipeline) Device() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.device
}

func (p *FakePipeline) LoadLoRA(ctx context.Context, path, name string) error {
	p.rt.mu.Lock()
	err := p.rt.LoadLoRAErr
	p.rt.mu.Unlock()
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, dup := p.loaded[name]; dup {
		return fmt.Errorf("adapter %q already loaded", name)
	}
	p.loaded[name] = path
	p.order = append(p.order, name)
	return nil
}

func (p *FakePipeline) SetAdapters(ctx context.Context, names []string, weights []float64) error {
	p.rt.mu.Lock()
	err := p.rt.SetAdaptersErr
	p.rt.mu.Unlock()
	if err != nil {
		return err
	}
	if len(names) != len(weights) {
		return errors.New("names and weights differ in length")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, n := range names {
		if _, ok := p.loaded[n]; !ok {
			return fmt.Errorf("adapter %q not loaded", n)
		}
	}
	p.setCalls++
	p.active = append([]string(nil), names...)
	p.weights = append([]float64(nil), weights...)
	return nil
}

func (p *FakePipeline) UnloadLoRAs(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loaded = map[string]string{}
	p.order = nil
	p.active = nil
	p.weights = nil
	return nil
}

// ActiveAdapters lists loaded adapters in load order.
func (p *FakePipeline) ActiveAdapters() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.order...)
}

func (p *FakePipeline) Generate(ctx context.Context, params diffusion.GenerateParams) ([]image.Image, error) {
	p.rt.mu.Lock()
	err, pv, delay := p.rt.GenerateErr, p.rt.GeneratePanic, p.rt.GenerateDelay
	p.rt.mu.Unlock()
	p.rt.Generations.Add(1)
	n := p.rt.inFlight.Add(1)
	defer p.rt.inFlight.Add(-1)
	for {
		cur := p.rt.MaxInFlight.Load()
		if n <= cur || p.rt.MaxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	p.mu.Lock()
	p.lastGen = params
	p.genActive = append([]string(nil), p.active...)
	sched := p.scheduler
	p.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if pv != nil {
		panic(pv)
	}
	if err != nil {
		return nil, err
	}
	count := params.NumImages
	if count < 1 {
		count = 1
	}
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%d|%d|%d|%g|%s", p.path, params.Prompt, params.NegativePrompt, params.Width, params.Height, params.Steps, params.GuidanceScale, sched)
	rng := rand.New(rand.NewPCG(uint64(params.Seed), h.Sum64()))
	w, ht := clampDim(params.Width), clampDim(params.Height)
	out := make([]image.Image, 0, count)
	for i := 0; i < count; i++ {
		img := image.NewNRGBA(image.Rect(0, 0, w, ht))
		for y := 0; y < ht; y++ {
			for x := 0; x < w; x++ {
				v := rng.Uint32()
				img.SetNRGBA(x, y, color.NRGBA{R: uint8(v), G: uint8(v >> 8), B: uint8(v >> 16), A: 255})
			}
		}
		out = append(out, img)
	}
	return out, nil
}

func (p *FakePipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// clampDim keeps fake images small regardless of the requested size.
func clampDim(v int) int {
	switch {
	case v < 1:
		return 1
	case v > 16:
		return 16
	default:
		return v
	}
}

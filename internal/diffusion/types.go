package diffusion

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// DType selects the weight precision a pipeline is loaded with.
type DType string

const (
	Float16 DType = "float16"
	Float32 DType = "float32"
)

// SchedulerConfig is the runtime's opaque scheduler configuration. It is
// carried from one scheduler to the next so shared hyperparameters survive a swap.
type SchedulerConfig map[string]any

// ConvertRequest asks the runtime to turn a single-file checkpoint into a
// directory-form model at OutputDir.
type ConvertRequest struct {
	CheckpointPath  string `json:"checkpoint_path"`
	OutputDir       string `json:"output_dir"`
	FromSafetensors bool   `json:"from_safetensors"`
	OriginalConfig  string `json:"original_config,omitempty"`
}

// LoadRequest asks the runtime to construct a pipeline from a prepared directory.
type LoadRequest struct {
	Path           string `json:"path"`
	DType          DType  `json:"torch_dtype"`
	UseSafetensors bool   `json:"use_safetensors"`
	SafetyChecker  bool   `json:"safety_checker"`
}

// GenerateParams are the synthesis inputs for one call.
type GenerateParams struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Steps          int     `json:"num_inference_steps"`
	GuidanceScale  float64 `json:"guidance_scale"`
	NumImages      int     `json:"num_images_per_prompt"`
	// Seed initializes a generator bound to Device.
	Seed   int64  `json:"seed"`
	Device string `json:"device"`
}

// Runtime converts checkpoints and loads pipelines.
type Runtime interface {
	Convert(ctx context.Context, req ConvertRequest) error
	Load(ctx context.Context, req LoadRequest) (Pipeline, error)
}

// Pipeline is a loaded, device-resident model.
type Pipeline interface {
	// Scheduler returns the current scheduler kind and configuration.
	Scheduler() (string, SchedulerConfig)
	// SetScheduler replaces the scheduler with kind, derived from cfg.
	SetScheduler(ctx context.Context, kind string, cfg SchedulerConfig) error
	// To moves the pipeline to device. Idempotent.
	To(ctx context.Context, device string) error
	Device() string
	LoadLoRA(ctx context.Context, path, name string) error
	// SetAdapters activates names with the matching weights.
	SetAdapters(ctx context.Context, names []string, weights []float64) error
	// UnloadLoRAs removes every loaded adapter.
	UnloadLoRAs(ctx context.Context) error
	ActiveAdapters() []string
	Generate(ctx context.Context, p GenerateParams) ([]image.Image, error)
	Close() error
}

// ErrDependencyUnavailable reports that no diffusion runtime is reachable.
var ErrDependencyUnavailable = errors.New("diffusion: runtime unavailable")

// WorkerError is a non-2xx reply from the diffusion worker.
type WorkerError struct {
	Status  int
	Op      string
	Message string
}

func (e *WorkerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("diffusion worker %s: status %d", e.Op, e.Status)
	}
	return e.Message
}

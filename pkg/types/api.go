package types

// LoraSpec is one style adapter to attach for the duration of a request.
type LoraSpec struct {
	// Path to the adapter weights. Relative paths resolve against the loras directory.
	// example: ~/loras/watercolor.safetensors
	Path string `json:"path" example:"~/loras/watercolor.safetensors"`
	// Strength multiplier applied to the adapter.
	// example: 0.8
	Strength float64 `json:"strength" example:"0.8"`
}

// Text2ImgRequest is the POST /sd/text2img payload.
// Pointer fields distinguish "absent" from "zero" so defaults can be applied.
type Text2ImgRequest struct {
	// example: a lighthouse at dusk, oil painting
	PositivePrompt *string `json:"positive_prompt" example:"a lighthouse at dusk, oil painting"`
	// example: blurry, low quality
	NegativePrompt *string `json:"negative_prompt" example:"blurry, low quality"`
	// Model reference: a prepared model directory or a .safetensors/.ckpt archive.
	// example: ~/models/sdxl_base.safetensors
	Model string `json:"model" example:"~/models/sdxl_base.safetensors"`
	// example: 20
	Steps int `json:"steps" example:"20"`
	// example: 1024
	Width int `json:"width" example:"1024"`
	// example: 1024
	Height int `json:"height" example:"1024"`
	// example: 42
	Seed int64 `json:"seed" example:"42"`
	// Adapters to attach, in order.
	Loras []LoraSpec `json:"loras"`
	// Guidance scale; defaults to 7.5.
	// example: 7.5
	CFGScale *float64 `json:"cfg_scale,omitempty" example:"7.5"`
	// Scheduler name; defaults to euler_ancestral.
	// example: euler_ancestral
	Scheduler *string `json:"scheduler,omitempty" example:"euler_ancestral"`
	// Number of images to produce; defaults to 1.
	// example: 1
	Iterations *int `json:"iterations,omitempty" example:"1"`
}

// Text2ImgResponse carries base64 encoded PNG images in generation order.
type Text2ImgResponse struct {
	Images []string `json:"images"`
}

// SchedulerInfo describes one selectable scheduler.
type SchedulerInfo struct {
	// example: Euler Ancestral
	Name string `json:"name" example:"Euler Ancestral"`
	// example: Can yield more diverse outputs
	Description string `json:"description" example:"Can yield more diverse outputs"`
}

// ErrorResponse is the JSON error payload for every failing endpoint.
type ErrorResponse struct {
	// example: Bad Request
	Error string `json:"error" example:"Bad Request"`
}

// ModelsResponse is returned by GET /sd/models.
type ModelsResponse struct {
	Checkpoints []ModelFile `json:"checkpoints"`
	Loras       []ModelFile `json:"loras"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Loaded pipelines, most recently used first.
	Instances []InstanceStatus `json:"instances"`
	// Device pipelines are placed on.
	// example: cuda
	Device string `json:"device" example:"cuda"`
	// Maximum cached pipelines, 0 means unbounded.
	// example: 0
	MaxModels int `json:"max_models" example:"0"`
	// Requests waiting for or holding the device slot.
	// example: 1
	QueueLen int `json:"queue_len" example:"1"`
	// example: 32
	MaxQueueDepth int `json:"max_queue_depth" example:"32"`
	// Whether a generation currently holds the device.
	Busy bool `json:"busy"`
	// example: 3
	LoadsTotal uint64 `json:"loads_total" example:"3"`
	// example: 1
	ConversionsTotal uint64 `json:"conversions_total" example:"1"`
	// example: 0
	EvictionsTotal uint64 `json:"evictions_total" example:"0"`
	// example: 12
	GenerationsTotal uint64 `json:"generations_total" example:"12"`
	// Last error observed by the manager (if any).
	LastError string `json:"last_error,omitempty"`
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
}

// InstanceStatus summarizes one cached pipeline.
type InstanceStatus struct {
	// example: ~/models/sdxl_base.safetensors
	Model string `json:"model" example:"~/models/sdxl_base.safetensors"`
	// Prepared directory the pipeline was loaded from.
	Path string `json:"path"`
	// example: euler_ancestral
	Scheduler string `json:"scheduler,omitempty" example:"euler_ancestral"`
	// example: 1700000000
	LoadedAt int64 `json:"loaded_at_unix" example:"1700000000"`
	// example: 1700000000
	LastUsed int64 `json:"last_used_unix" example:"1700000000"`
	// example: 4
	Uses uint64 `json:"uses" example:"4"`
}

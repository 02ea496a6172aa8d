package types

// GenerationRequest is a validated text-to-image request with defaults applied.
type GenerationRequest struct {
	PositivePrompt string
	NegativePrompt string
	Model          string
	Steps          int
	Width          int
	Height         int
	Seed           int64
	CFGScale       float64
	Scheduler      string
	Iterations     int
	Loras          []LoraSpec
}

// GenerationResult holds the encoded images of one request.
type GenerationResult struct {
	Images []string
	// Paths of persisted copies, empty unless an output directory is configured.
	Saved []string
}

// GenerationInfo is stored as JSON in the PNG tEXt chunk "GenerationInfo".
// Key names are read by external tooling and must not change.
type GenerationInfo struct {
	PositivePrompt string  `json:"positive_prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Model          string  `json:"model"`
	Sampler        string  `json:"sampler"`
	Seed           int64   `json:"seed"`
	Steps          int     `json:"steps"`
	CFGScale       float64 `json:"cfg_scale"`
}

// ModelFile is a checkpoint or adapter found on disk.
type ModelFile struct {
	// example: sdxl_base
	Name string `json:"name" example:"sdxl_base"`
	// example: /data/sd/checkpoints/sdxl_base
	Path string `json:"path" example:"/data/sd/checkpoints/sdxl_base"`
	// prepared | archive
	// example: prepared
	Kind string `json:"kind" example:"prepared"`
	// example: 6938078334
	SizeBytes int64 `json:"size_bytes,omitempty" example:"6938078334"`
}

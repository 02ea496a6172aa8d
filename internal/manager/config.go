package manager

import (
	"time"

	"github.com/rs/zerolog"

	"sdserver/internal/checkpoint"
	"sdserver/internal/diffusion"
	"sdserver/internal/imageio"
	"sdserver/internal/lora"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxQueueDepth = 32
	defaultDevice        = "cuda"
)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Runtime diffusion.Runtime
	// CheckpointsDir receives converted archives.
	CheckpointsDir string
	// LorasDir resolves relative adapter paths.
	LorasDir       string
	OriginalConfig string
	Device         string
	// MaxModels bounds the cache; 0 keeps every pipeline loaded.
	MaxModels     int
	MaxQueueDepth int
	// MaxWait bounds the wait for the device slot; 0 waits indefinitely.
	MaxWait time.Duration
	// StrictSamplers rejects unknown scheduler names instead of ignoring them.
	StrictSamplers bool
	// EmbedMetadata adds the GenerationInfo chunk to returned images.
	EmbedMetadata bool
	// Output persists every image when set.
	Output    imageio.Storage
	Publisher EventPublisher
	Logger    *zerolog.Logger
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) *Manager {
	m := &Manager{
		rt:             cfg.Runtime,
		device:         cfg.Device,
		maxModels:      cfg.MaxModels,
		maxWait:        cfg.MaxWait,
		strictSamplers: cfg.StrictSamplers,
		embedMetadata:  cfg.EmbedMetadata,
		output:         cfg.Output,
		publisher:      cfg.Publisher,
		instances:      make(map[string]*Instance),
		startTime:      time.Now(),
	}
	if m.rt == nil {
		m.rt = diffusion.StubRuntime{Reason: "no runtime configured"}
	}
	if m.device == "" {
		m.device = defaultDevice
	}
	if cfg.MaxQueueDepth <= 0 {
		m.maxQueueDepth = defaultMaxQueueDepth
	} else {
		m.maxQueueDepth = cfg.MaxQueueDepth
	}
	if m.maxModels < 0 {
		m.maxModels = 0
	}
	if m.maxWait < 0 {
		m.maxWait = 0
	}
	if m.publisher == nil {
		m.publisher = noopPublisher{}
	}
	if cfg.Logger != nil {
		m.log = *cfg.Logger
	} else {
		m.log = zerolog.Nop()
	}
	m.genCh = make(chan struct{}, 1)
	m.queueCh = make(chan struct{}, m.maxQueueDepth)
	m.store = checkpoint.New(checkpoint.Options{
		Dir:            cfg.CheckpointsDir,
		OriginalConfig: cfg.OriginalConfig,
		Runtime:        m.rt,
		Logger:         m.log,
	})
	m.loras = lora.Attacher{Dir: cfg.LorasDir}
	return m
}

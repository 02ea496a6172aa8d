package manager

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"sdserver/internal/checkpoint"
	"sdserver/internal/diffusion"
	"sdserver/internal/imageio"
	"sdserver/internal/lora"
)

type Manager struct {
	mu        sync.RWMutex
	instances map[string]*Instance
	lastErr   string

	rt     diffusion.Runtime
	store  *checkpoint.Store
	loras  lora.Attacher
	output imageio.Storage
	device string

	maxModels      int
	strictSamplers bool
	embedMetadata  bool

	// Device slot: genCh holds the running generation, queueCh bounds waiters.
	genCh         chan struct{}
	queueCh       chan struct{}
	maxQueueDepth int
	maxWait       time.Duration

	loads       atomic.Uint64
	evictions   atomic.Uint64
	generations atomic.Uint64

	publisher EventPublisher
	log       zerolog.Logger
	startTime time.Time
}

// New constructs a Manager with package defaults for everything but the runtime
// and storage directories.
func New(rt diffusion.Runtime, checkpointsDir, lorasDir string) *Manager {
	return NewWithConfig(ManagerConfig{
		Runtime:        rt,
		CheckpointsDir: checkpointsDir,
		LorasDir:       lorasDir,
	})
}

// Ready reports whether the manager can accept work. A stub runtime is not ready.
func (m *Manager) Ready() bool {
	_, stub := m.rt.(diffusion.StubRuntime)
	return !stub
}

// Device returns the device pipelines are placed on.
func (m *Manager) Device() string { return m.device }

// Close releases every cached pipeline. It waits for the running generation.
func (m *Manager) Close() error {
	release, err := m.beginGeneration(context.Background())
	if err != nil {
		return err
	}
	defer release()
	m.mu.Lock()
	insts := make([]*Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		insts = append(insts, inst)
	}
	m.instances = make(map[string]*Instance)
	m.mu.Unlock()
	var first error
	for _, inst := range insts {
		if err := inst.Pipeline.Close(); err != nil && first == nil {
			first = err
		}
	}
	cachedModels.Set(0)
	return first
}

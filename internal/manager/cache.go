package manager

import (
	"context"
	"time"

	"sdserver/internal/diffusion"
)

// lookup returns the cached instance for ref without touching it.
func (m *Manager) lookup(ref string) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[ref]
	return inst, ok
}

// getOrLoad returns the pipeline cached under ref, loading it on a miss.
// Callers must hold the device slot.
func (m *Manager) getOrLoad(ctx context.Context, ref string) (*Instance, error) {
	if inst, ok := m.lookup(ref); ok {
		cacheLookups.WithLabelValues("hit").Inc()
		m.mu.Lock()
		inst.LastUsed = time.Now()
		m.mu.Unlock()
		m.log.Debug().Str("model", ref).Msg("model already loaded, using cached pipeline")
		return inst, nil
	}
	cacheLookups.WithLabelValues("miss").Inc()

	// Free device memory before the new pipeline lands on it.
	if m.maxModels > 0 {
		m.evictUntilFits(m.maxModels - 1)
	}

	m.publisher.Publish(Event{Name: "load_start", Model: ref})
	start := time.Now()
	path, err := m.store.Resolve(ctx, ref)
	if err != nil {
		m.publisher.Publish(Event{Name: "load_error", Model: ref, Fields: map[string]any{"error": err.Error()}})
		return nil, err
	}
	m.log.Info().Str("model", ref).Str("path", path).Msg("loading pipeline")
	p, err := m.rt.Load(ctx, diffusion.LoadRequest{
		Path:           path,
		DType:          diffusion.Float16,
		UseSafetensors: true,
		SafetyChecker:  false,
	})
	if err != nil {
		m.publisher.Publish(Event{Name: "load_error", Model: ref, Fields: map[string]any{"error": err.Error()}})
		return nil, err
	}
	m.loads.Add(1)
	pipelineLoads.Inc()
	if err := p.To(ctx, m.device); err != nil {
		_ = p.Close()
		return nil, err
	}

	now := time.Now()
	inst := &Instance{Ref: ref, Path: path, Pipeline: p, LoadedAt: now, LastUsed: now}
	m.mu.Lock()
	m.instances[ref] = inst
	n := len(m.instances)
	m.mu.Unlock()
	cachedModels.Set(float64(n))
	m.publisher.Publish(Event{Name: "load_done", Model: ref, Fields: map[string]any{
		"path": path, "duration_ms": time.Since(start).Milliseconds(),
	}})
	return inst, nil
}

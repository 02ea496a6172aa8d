package manager

import (
	"context"
	"errors"
)

// ErrNotLoaded is returned by Unload for references not in the cache.
var ErrNotLoaded = errors.New("model not loaded")

// Unload removes the pipeline cached under ref. It waits for the device like a
// generation does, so it never pulls a pipeline out from under running work.
func (m *Manager) Unload(ctx context.Context, ref string) error {
	if ref == "" {
		return ErrBadRequest("Bad Request")
	}
	release, err := m.beginGeneration(ctx)
	if err != nil {
		return err
	}
	defer release()

	m.mu.Lock()
	inst := m.instances[ref]
	if inst == nil {
		m.mu.Unlock()
		return ErrNotLoaded
	}
	delete(m.instances, ref)
	n := len(m.instances)
	m.mu.Unlock()

	m.release(inst, "unload")
	cachedModels.Set(float64(n))
	return nil
}

package manager

import (
	"sdserver/internal/registry"
	"sdserver/pkg/types"
)

// ListModels reports the checkpoints and adapters present on disk.
func (m *Manager) ListModels() (types.ModelsResponse, error) {
	return registry.LoadDir(m.store.Dir(), m.loras.Dir)
}

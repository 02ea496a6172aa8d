// Package lora attaches style adapters to a pipeline for one generation.
package lora

import (
	"context"
	"errors"
	"fmt"

	"sdserver/internal/common/fsutil"
	"sdserver/internal/diffusion"
	"sdserver/pkg/types"
)

// AdapterName is the synthetic name of the adapter at position idx.
func AdapterName(idx int) string { return fmt.Sprintf("lora_%d", idx) }

// Attacher resolves adapter paths against a base directory.
type Attacher struct {
	// Dir is where relative adapter paths are looked up.
	Dir string
}

// AttachAll loads every spec in order under lora_<i> and activates all of
// them together with their strengths.
//
// The returned detach func is never nil and always safe to call. It must be
// deferred even when err is non-nil, since a partial attach leaves adapters
// loaded.
func (a Attacher) AttachAll(ctx context.Context, p diffusion.Pipeline, specs []types.LoraSpec) (detach func() error, err error) {
	if len(specs) == 0 {
		return func() error { return nil }, nil
	}
	detach = func() error { return DetachAll(context.WithoutCancel(ctx), p) }

	names := make([]string, 0, len(specs))
	weights := make([]float64, 0, len(specs))
	for i, s := range specs {
		path, err := fsutil.ResolveUnder(a.Dir, s.Path)
		if err != nil {
			return detach, fmt.Errorf("lora %d: %w", i, err)
		}
		if path == "" {
			return detach, fmt.Errorf("lora %d: empty path", i)
		}
		name := AdapterName(i)
		if err := p.LoadLoRA(ctx, path, name); err != nil {
			return detach, fmt.Errorf("load lora %s: %w", path, err)
		}
		names = append(names, name)
		weights = append(weights, s.Strength)
	}
	if err := p.SetAdapters(ctx, names, weights); err != nil {
		return detach, fmt.Errorf("activate loras: %w", err)
	}
	return detach, nil
}

// DetachAll removes every adapter from p.
func DetachAll(ctx context.Context, p diffusion.Pipeline) error {
	if err := p.UnloadLoRAs(ctx); err != nil {
		return fmt.Errorf("unload loras: %w", err)
	}
	if left := p.ActiveAdapters(); len(left) != 0 {
		return errors.New("adapters still attached after unload")
	}
	return nil
}

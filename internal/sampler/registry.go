// Package sampler holds the fixed table of selectable schedulers and swaps
// them on a loaded pipeline.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"sdserver/internal/diffusion"
	"sdserver/pkg/types"
)

// Default is used when a request names no scheduler.
const Default = "euler_ancestral"

// ErrUnknownSampler is returned by Configure for names outside the table.
var ErrUnknownSampler = errors.New("unknown scheduler")

// Info describes one scheduler.
type Info struct {
	Name        string
	Description string
	// Class is the runtime scheduler class derived from the current config.
	Class string
}

var table = map[string]Info{
	"ddim": {
		Name:        "DDIM",
		Description: "Deterministic and relatively fast\nGood balance between speed and quality",
		Class:       "DDIMScheduler",
	},
	"dpm_solver_multistep": {
		Name:        "DPM Solver Multistep",
		Description: "Very fast and high-quality\nOne of the most commonly used schedulers for SDXL",
		Class:       "DPMSolverMultistepScheduler",
	},
	"euler_discrete": {
		Name:        "Euler Discrete",
		Description: "Often preferred for artistic generations",
		Class:       "EulerDiscreteScheduler",
	},
	"euler_ancestral": {
		Name:        "Euler Ancestral",
		Description: "Can yield more diverse outputs",
		Class:       "EulerAncestralDiscreteScheduler",
	},
	"heun_discrete_scheduler": {
		Name:        "Heun Discrete",
		Description: "Similar to Euler with minor differences in trajectory computation",
		Class:       "HeunDiscreteScheduler",
	},
	"uni_pc_multistep": {
		Name:        "UniPC Multistep",
		Description: "Good for high-quality generations",
		Class:       "UniPCMultistepScheduler",
	},
}

// List returns the wire form of the table. The map is a fresh copy.
func List() map[string]types.SchedulerInfo {
	out := make(map[string]types.SchedulerInfo, len(table))
	for k, v := range table {
		out[k] = types.SchedulerInfo{Name: v.Name, Description: v.Description}
	}
	return out
}

// Names returns the scheduler identifiers in sorted order.
func Names() []string {
	out := make([]string, 0, len(table))
	for k := range table {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the entry for name.
func Lookup(name string) (Info, bool) {
	v, ok := table[name]
	return v, ok
}

// Configure replaces the pipeline's scheduler with name, derived from the
// scheduler config currently installed so shared settings carry over.
func Configure(ctx context.Context, p diffusion.Pipeline, name string) error {
	info, ok := table[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSampler, name)
	}
	_, cur := p.Scheduler()
	cfg := make(diffusion.SchedulerConfig, len(cur)+1)
	for k, v := range cur {
		cfg[k] = v
	}
	cfg["_class_name"] = info.Class
	if err := p.SetScheduler(ctx, name, cfg); err != nil {
		return fmt.Errorf("set scheduler %s: %w", name, err)
	}
	return nil
}

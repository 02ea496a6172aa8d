package manager

import (
	"sort"
	"time"

	"sdserver/pkg/types"
)

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	resp := types.StatusResponse{
		Device:           m.device,
		MaxModels:        m.maxModels,
		QueueLen:         len(m.queueCh),
		MaxQueueDepth:    cap(m.queueCh),
		Busy:             len(m.genCh) > 0,
		LoadsTotal:       m.loads.Load(),
		ConversionsTotal: m.store.Conversions(),
		EvictionsTotal:   m.evictions.Load(),
		GenerationsTotal: m.generations.Load(),
		LastError:        m.lastErr,
		UptimeSeconds:    int64(time.Since(m.startTime).Seconds()),
	}
	resp.Instances = make([]types.InstanceStatus, 0, len(m.instances))
	for _, inst := range m.instances {
		sched, _ := inst.Pipeline.Scheduler()
		resp.Instances = append(resp.Instances, types.InstanceStatus{
			Model:     inst.Ref,
			Path:      inst.Path,
			Scheduler: sched,
			LoadedAt:  inst.LoadedAt.Unix(),
			LastUsed:  inst.LastUsed.Unix(),
			Uses:      inst.Uses,
		})
	}
	sort.Slice(resp.Instances, func(i, j int) bool {
		return resp.Instances[i].LastUsed > resp.Instances[j].LastUsed
	})
	return resp
}

// Loaded lists cached model references.
func (m *Manager) Loaded() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.instances))
	for ref := range m.instances {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}

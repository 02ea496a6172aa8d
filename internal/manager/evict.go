package manager

// evictUntilFits drops least recently used pipelines until at most keep remain.
// Callers must hold the device slot, so no cached pipeline is in use.
func (m *Manager) evictUntilFits(keep int) {
	if keep < 0 {
		keep = 0
	}
	for {
		m.mu.Lock()
		if len(m.instances) <= keep {
			m.mu.Unlock()
			return
		}
		var lru *Instance
		for _, inst := range m.instances {
			if lru == nil || inst.LastUsed.Before(lru.LastUsed) {
				lru = inst
			}
		}
		delete(m.instances, lru.Ref)
		n := len(m.instances)
		m.mu.Unlock()

		m.release(lru, "lru")
		cachedModels.Set(float64(n))
	}
}

// release closes an instance that is no longer in the cache.
func (m *Manager) release(inst *Instance, reason string) {
	m.evictions.Add(1)
	pipelineEvictions.Inc()
	if err := inst.Pipeline.Close(); err != nil {
		m.log.Warn().Err(err).Str("model", inst.Ref).Msg("closing evicted pipeline")
	}
	m.log.Info().Str("model", inst.Ref).Str("reason", reason).Msg("pipeline evicted")
	m.publisher.Publish(Event{Name: "evict", Model: inst.Ref, Fields: map[string]any{"reason": reason}})
}

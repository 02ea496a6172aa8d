// Package manager owns the loaded diffusion pipelines and runs generations
// against them. It is structured into small files by concern:
//
//   - manager.go: core Manager type, constructor, simple getters.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: cached Instance state.
//   - errors.go: error types and helpers (IsTooBusy, IsBadRequest, ...).
//   - admission.go: the single device slot and its bounded wait queue.
//   - cache.go: reference to pipeline cache (getOrLoad).
//   - evict.go: least recently used eviction when max_models is set.
//   - unload.go: explicit removal of a cached pipeline.
//   - generate.go: validation and the end to end generation path.
//   - status_report.go: Status for /status.
//   - events.go, eventpub_memory.go: lifecycle events.
//   - metrics.go: Prometheus collectors.
//
// The device holds at most one generation at a time. Every mutation of a
// pipeline (load, scheduler swap, adapters, synthesis, eviction) happens while
// holding that slot, so pipelines never need their own locking.
package manager

// Package diffusion defines the contract between the server and the native
// diffusion runtime that performs checkpoint conversion and image synthesis.
//
// The numerical work is opaque to this module. Three implementations exist:
//
//   - WorkerRuntime: JSON over HTTP to a diffusion worker process, either an
//     already running one (worker_url) or one spawned by SpawnWorker.
//   - StubRuntime: fails every call with ErrDependencyUnavailable. Used when no
//     worker is configured so the HTTP surface still starts.
//   - FakeRuntime: deterministic in-memory runtime used by tests.
//
// A Pipeline is stateful and not safe for concurrent use; callers serialize
// access (see manager.beginGeneration).
package diffusion

// Package engine is the backend-agnostic layer between callers and the
// execution backends.
//
// # Architecture
//
//	Handle     one backend slot: select, create, load, call, destroy
//	Rack       one Handle per backend kind plus the active selector
//	ThreadEnv  per-goroutine record of which backends did thread setup
//
// # Lifecycle
//
//  1. Handle.Select picks the backend kind (rejected while loaded)
//  2. Handle.Create brings the runtime up (Load does it lazily otherwise)
//  3. Handle.Load loads one image and resolves one export
//  4. Handle.Call invokes it; unloaded handles yield a zero result
//  5. Handle.Destroy waits for an in-flight call, then releases the
//     instance and the runtime, in that order
//
// # Instance Slots
//
// At most one instance per backend kind is live in the process. Load takes
// the kind's slot and fails with a busy error if another handle holds it;
// Destroy gives it back. LiveInstances reports how many slots are held.
//
// # Real-Time Path
//
// Call takes no lock and allocates nothing itself. It reads the loaded state with
// one atomic load and brackets the backend call with an in-flight counter,
// which is what Destroy waits on. The Rack selector is a single atomic word,
// so a change lands at the next call boundary and never mid-call.
package engine

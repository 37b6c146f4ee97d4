// Package statestore records where every module of a run is in its
// lifecycle.
//
// # Purpose
//
// The orchestrator moves each module through
//
//	Unvisited → Configuring → Configured → Building → Built → Installing → Installed
//
// with ConfigurationFailed, BuildFailed, InstallFailed and Skipped as the
// other terminal states. The store is the single place those transitions are
// made, and it refuses the ones the lifecycle does not allow. In particular
// a module can enter Building only once, which is what guarantees that a
// module's build action never runs twice in one run.
//
// # Concurrency Model
//
// Modules in independent subtrees change state concurrently, and every
// module's state is independent of every other's. The store therefore keeps
// one sync.Map entry per module and moves it with CompareAndSwap instead of
// taking a global lock.
//
// The store is ephemeral: it is created for one run and discarded with it.
package statestore

// Package orchestrator executes chain runs over a fixed task dependency graph.
//
// A run starts once admission control accepts it. Within a run, tasks execute
// one at a time in the graph's topological order; runs themselves proceed
// concurrently and contend only for resource class slots in a shared
// ResourcePool. Handlers may fan sub-items out under the same slots with
// FanOut. Each task's outcome is persisted and published to the run's event
// log as soon as it is known. A failed critical task aborts the run; a failed
// non-critical task is recorded as failed_continuing and the run goes on,
// skipping tasks whose hard prerequisites did not complete.
package orchestrator

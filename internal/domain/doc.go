// Package domain contains the entities shared by every layer of the pipeline:
// task and chain run records, their status values, and the single error-kind
// enumeration used by the orchestrator, the store layer and the HTTP surface.
package domain

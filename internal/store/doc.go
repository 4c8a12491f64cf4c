// Package store defines the persistence contracts used by the orchestrator
// and the HTTP layer: cached task results, chain summaries, synthesized audio,
// sealed service credentials and the durable chain archive. Implementations
// live under internal/platform.
package store

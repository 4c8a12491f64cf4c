// Package postgres provides the durable ChainRun archive on PostgreSQL.
// Finalized chain summaries are written once per run so they outlive the
// time-to-live of the Redis cache. Schema changes ship as embedded goose
// migrations applied at startup.
package postgres

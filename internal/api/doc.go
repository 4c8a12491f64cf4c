// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting. It adapts HTTP to the orchestrator, the event log
// and the credential service, and maps error kinds to status codes.
package api

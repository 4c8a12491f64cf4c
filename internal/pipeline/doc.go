// Package pipeline implements the eleven tasks of the content pipeline as
// orchestrator handlers: text generation for topic, trends, outline, script,
// hooks, keywords and description; voice synthesis; scene sentiment
// analysis; per-scene storyboard descriptions; and per-scene image URLs.
//
// Handlers are pure functions of the TaskContext and the injected clients.
// They read earlier results through the context and never touch the
// orchestrator's state directly.
package pipeline

// Package gemini implements generation.TextGenerator on top of Google's
// Gemini API.
//
// This package is an infrastructure adapter: it translates prompts into
// genai requests and maps the replies and failures back into the
// application's error kinds without exposing genai types to callers.
//
// Error mapping:
//   - rejected credentials and malformed requests become validation errors,
//     which the retry policy does not repeat
//   - rate limits, server errors and transport failures become external
//     service errors, which are retried
//   - safety blocks and empty replies are invalid responses
//
// Retries are not performed here; callers wrap Generate in their own policy.
package gemini

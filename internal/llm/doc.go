// Package llm sends prompts to an OpenAI-compatible chat completions
// endpoint.
//
// Each Generate call issues one user turn and retries transient failures
// with exponential backoff. The retry policy is a small state machine
// (attempt, backoff, success, fatal, exhausted) driven by the outcome of
// each attempt:
//
//   - HTTP 200 with a recognizable body: success.
//   - HTTP 400, 401, 403 or any other unexpected status: fatal.
//   - HTTP 429 or 5xx: back off, doubling up to 32s.
//   - Network timeout: back off, doubling, giving up after 3 attempts.
//   - Other transport errors: back off, doubling.
//
// No call makes more than 6 attempts. Sleeps add up to 250ms of jitter and
// never drop below 500ms.
//
// A hard-cancelled context aborts in-flight requests and backoff sleeps and
// is returned as is.
package llm

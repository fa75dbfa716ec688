// Package redact scrubs credentials from text that leaves the process:
// error bodies echoed by the generation endpoint, and, when enabled,
// document text before it is rendered into a prompt.
//
// Detection is regex based and covers the common shapes: key and token
// assignments, bearer headers, JWTs, private key blocks, AWS key IDs, and
// provider-specific keys (OpenRouter, OpenAI, Anthropic, GitHub, Slack).
package redact

// Package llm provides an OpenRouter-compatible chat client used by the
// analyst and strategist stages.
//
// The client sends a system prompt and a user prompt, requests a JSON
// response format, and returns the raw model text. Validation of that text
// against a schema happens in internal/structured; Client.Generator adapts
// the client to structured.Generator.
//
// # Configuration
//
// Requires api_key and model; base_url, referer, title and timeout are
// optional. Per-stage overrides come from the [analysis] and [strategy]
// config sections.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx, empty content and network
// timeouts with exponential backoff (base 1s, max 10s, up to 5 attempts by
// default). Retry-After is honoured. Context cancellation aborts retries
// immediately.
package llm

// Package llm provides a chat-completion client for DeepSeek and other
// OpenAI-compatible endpoints.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.Complete: send system/user prompts with sampling settings, receive text.
// Client.HealthCheck: verify API key and model availability.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors, network timeouts, and empty
// completions with exponential backoff (base 1s, max 10s, up to 4 attempts by
// default). A Retry-After header overrides the computed delay. Context
// cancellation aborts retries immediately.
package llm

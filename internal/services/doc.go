// Package services defines shared utilities consumed by the pipeline stages and
// their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp item keys, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can tell a fatal
//     configuration problem from a per-item stage failure, and a degraded cache
//     or report write from either.
//
// Subpackages hold the concrete collaborators (yt-dlp, SiliconFlow ASR, the
// chat-completion client, and the bilibili web API).
package services

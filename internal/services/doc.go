// Package services defines shared utilities consumed by the conversion
// pipeline and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that let the gateway tell
//     protocol violations, converter rejections, and environment failures
//     apart without string matching.
//
// Use these helpers when wiring new components so error handling and
// observability stay uniform across the gateway.
package services

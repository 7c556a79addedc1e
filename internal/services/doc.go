// Package services defines shared utilities consumed by the pipeline stages
// and the external provider integrations.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, stage names, production job IDs,
//     and correlation identifiers for logging.
//   - Sentinel error markers plus the Wrap helper, and the failure taxonomy
//     (gate, provider, validation, partial, fatal) that callers receive as a
//     typed Outcome rather than an exception.
//   - FailureStatus, which translates stage errors into task queue statuses.
//
// Provider clients live in subpackages (llm, tts, render).
package services

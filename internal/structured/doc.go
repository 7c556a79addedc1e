// Package structured turns free-form model output into schema-checked JSON.
//
// Extract pulls the JSON candidate out of fenced or prose-wrapped text,
// Validate checks it against an embedded YAML schema, and Runner applies the
// attempt lifecycle: one corrective retry, then quarantine. Every result is
// handed to a Sink before the next step so raw output is never lost.
package structured

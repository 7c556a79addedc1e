// Package daemon coordinates the long-running viralforge process.
//
// It holds a flock-based lock so only one instance drives the task queue,
// starts the workflow manager, and serves a small read-only HTTP API with
// status, budget, job and report views plus Prometheus metrics. Composition
// of the stages lives in daemonrun; this package owns startup, shutdown and
// the API surface.
package daemon

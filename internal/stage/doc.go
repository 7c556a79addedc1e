// Package stage defines the contract between the workflow manager and the
// analyze, strategize and produce handlers.
package stage

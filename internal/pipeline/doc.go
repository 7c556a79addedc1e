// Package pipeline implements the analyze, strategize and produce stage
// handlers the workflow manager dispatches tasks to.
//
// Every paid step is gated on the budget ledger before any provider call is
// made and records what it actually spent afterwards. A budget refusal
// surfaces as services.ErrGate so the task is deferred to the next budget
// day; output that stays invalid after the corrective retry surfaces as
// services.ErrValidation so the task lands in review.
package pipeline

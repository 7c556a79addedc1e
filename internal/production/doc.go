// Package production assembles a final short-form video from a narration
// script and scene prompts.
//
// Orchestrator.Produce walks a job through
// budget_blocked → queued → synthesizing_narration → rendering_segments →
// concatenating → mixing → completed, or into failed from any step. The job
// snapshot is saved on every transition and every artifact is kept in the
// object store under productions/<job-id>/.
//
// The narration is the timing authority. Scene prompts are stretched to cover
// it (Reconcile), clips render in parallel and tolerate partial failure, and
// a short concatenation is extended by holding its last frame. Spend is
// settled on the ledger for the narration and the clips that rendered, on
// every exit path once narration succeeded.
package production

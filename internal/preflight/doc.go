// Package preflight provides readiness checks for the directories, binaries
// and external services viralforge depends on.
//
// These checks run in two contexts:
//   - The workflow manager calls RunAll when it starts. If any check fails,
//     the daemon refuses to process tasks instead of failing each one.
//   - The CLI "viralforge status" command uses the individual check
//     functions (CheckLLM, CheckSystemDeps, CheckBudgetBackend) to display
//     service health.
package preflight

// Package workflow advances queued tasks through the pipeline stages.
//
// The Manager polls the task table, reclaims stale work via heartbeats, and
// feeds claimed tasks into the registered stage handlers (analyst,
// strategist, producer). Failures are classified by services.FailureStatus:
// budget gates defer the task until the next budget day, validation problems
// park it for review, and everything else marks it failed. The manager also
// aggregates task stats and stage health for status reporting.
//
// Work runs in two independent lanes. The analysis lane claims analyze and
// strategize tasks; the production lane claims produce tasks. A long video
// render therefore never blocks analysis of newly imported candidates.
//
// Add new stages by extending StageSet and store.TaskKind; this package is
// the authoritative home for dispatch and failure routing.
package workflow

// Package store persists viralforge state in SQLite.
//
// A single database holds tracked profiles, scored candidates, every
// structured model output (valid or not), strategies awaiting approval,
// production job snapshots, the stage task queue, and the spend ledger
// periods and daily counters. Store satisfies budget.Store and
// production.JobStore so the ledger and the orchestrator persist through it.
//
// Candidate scores are derived fields: UpsertCandidate and
// UpdateProfileBaselines recompute them inside the same transaction that
// changes their inputs. Ledger charges go through Apply, which creates the
// day's period, increments totals and latches the exceeded flag in one
// immediate transaction.
//
// Schema changes bump schemaVersion; an older database must be moved aside.
package store

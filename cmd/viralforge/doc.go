// Package main hosts the viralforge CLI entrypoint and command graph.
//
// Commands operate on the local record store and spend ledger directly:
// profile and candidate management, budget views, strategy approval, one-off
// productions, task maintenance and the daily report. `daemon run` starts the
// long-running worker that drains the task queue.
package main

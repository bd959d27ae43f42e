// Package tasks drives a queue of downloads through the engine bridge while keeping the lifecycle coordinator
// informed.
//
// # Queue
//
// [Queue.Run] is the foreground driver of a background job:
//
//  1. sets the engine's output directory and starts the coordinator with the queue size
//  2. for each [DownloadRequest], optionally checks for a duplicate by ISRC, then dispatches
//     downloadWithFallback and polls getProgress until the call returns
//  3. reports labels, remaining queue depth and cumulative bytes to the coordinator
//  4. stops the coordinator when the queue is drained or the context is cancelled
//
// Item starts are paced with a [rate.Limiter]; progress polling runs at the configured interval.
//
// # Progress Reporting
//
// Runs emit [ProgressUpdate] values on an optional channel. Sends use select with default so a slow reader
// never stalls the queue.
//
// # Item History
//
// The optional [ItemRecorder] (repositories.SessionRepository) stores each item's outcome against the
// coordinator's session.
package tasks

// Package ui implements an interactive terminal view of a download job using bubbletea's Elm architecture.
//
// The TUI has two views:
//  1. [DownloadView] : live queue progress, recent item outcomes and the job notification
//  2. [ResultView] : per-item outcomes in a scrollable list
//
// The [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union
// type. Progress updates flow through a channel from [tasks.Queue]; the queue's final result follows once that
// channel is closed.
//
// # Primary Context
//
// The program's update loop plays the role of the UI's main thread. [ProgramNotifier] is a notification surface
// for the lifecycle coordinator that forwards each notification into that loop, and [ResultPoster] does the same
// for asynchronous bridge results.
//
// Keyboard: s stops the queue (the coordinator is stopped and the lease released), q stops and exits once the
// job has shut down, ctrl+c exits immediately.
package ui

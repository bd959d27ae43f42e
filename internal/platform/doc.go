// Package platform provides in-process stand-ins for the OS surfaces the job coordinator needs:
// a [TimedWakeLock] lease, a [TerminalNotifier] that draws the persistent notification on a terminal,
// and a [ProcessHost] that tracks the background task window.
package platform

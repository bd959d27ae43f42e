// Package lifecycle coordinates the background download job: its running state, the wake lease that keeps
// the CPU awake, and the persistent progress notification.
//
// # States
//
// A [Coordinator] moves through three phases:
//
//   - [PhaseIdle]: initial and terminal; no lease, no notification
//   - [PhaseActive]: lease held (best effort), notification visible and kept current
//   - [PhaseStopping]: transient, entered only while a platform timeout is being handled
//
// # Signals
//
// The host delivers intents as [Signal] values on a single-consumer queue. [Coordinator.Run] is the only
// consumer and applies them one at a time, so transitions never interleave:
//
//	coord := lifecycle.NewCoordinator(lifecycle.Options{Lease: lease, Notifier: notifier, Host: host})
//	go coord.Run(ctx)
//
//	coord.Start(ctx, "Track 1", "Artist 1", 1)
//	coord.UpdateProgress(ctx, lifecycle.ProgressSignal{Done: 512, Total: 1024})
//	coord.Stop(ctx)
//
// Stop is safe from any state and any number of times. A platform timeout performs the same cleanup and
// acknowledges on a channel so the caller can enforce its grace window; see [Watchdog].
//
// # Rendering
//
// [Render] is a pure function of [models.JobState]. It returns false when the job is not running, and the
// coordinator never shows or updates a notification in that case.
package lifecycle

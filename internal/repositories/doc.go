// Package repositories implements SQLite persistence for job sessions.
//
// [SessionRepository] records each Active period of the lifecycle coordinator together with the outcome of
// every queued download. It serves three callers:
//   - the coordinator, through StartSession and FinishSession
//   - the budget watchdog, through [SessionRepository.RuntimeSince]
//   - the history command and its exports, through List and Items
//
// Sequence numbers provide stable, human-readable ordering (session #42) independent of UUIDs and timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories

// Package models defines the value types shared by the dlx job coordinator, the engine bridge and persistence.
//
// The package contains two categories of types:
//
// 1. Job state: values owned by the lifecycle coordinator and copied out for readers
//   - [JobState] : running flag, current labels, queue depth and byte progress
//   - [Label] : primary/secondary human-readable text for the item being worked on
//   - [Progress] : cumulative bytes done/total, total of zero meaning unknown size
//   - [Notification] : the rendered, OS-facing representation of a [JobState]
//
// 2. Persistent Entities: database-backed records
//   - [Session] : one Active period of the coordinator, used for runtime budget accounting and history
//   - [SessionItem] : outcome of one queued download within a session
//
// Persistent entities implement [Model]; [Repository] describes the CRUD surface used by the repositories package.
package models

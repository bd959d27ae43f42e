// Package bridge dispatches loosely typed requests to the download engine.
//
// A [Request] names an operation and carries its arguments either as a map of named values or, for blob-shaped
// operations, as a single serialized JSON string. The [Dispatcher] looks the operation up in its [Registry],
// decodes and validates the arguments, invokes the matching [Engine] entry point and returns a [Result].
//
// # Errors
//
// Every failure is a [CallError] inside the result, never a panic or a returned error:
//   - [CodeInvalidArgument]: a required argument is missing or has the wrong type; the engine is not called
//   - [CodeUnsupportedOperation]: no operation with that name is registered
//   - [CodeEngine]: the engine failed or panicked; only its message is kept
//
// CallError matches [shared.ErrInvalidArgument], [shared.ErrUnsupportedOperation] and [shared.ErrEngine] with
// errors.Is.
//
// # Delivery
//
// [Dispatcher.Dispatch] runs the call on its own goroutine and returns a channel. [Dispatcher.Call] posts the
// result through a [Poster] instead, such as a bubbletea program's Send. [Dispatcher.Invoke] blocks.
package bridge
